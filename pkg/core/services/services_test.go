package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/repository/sqldb"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
)

const testSourceURL = "https://facts.example/api"

func newTestRepo(t *testing.T) *sqldb.Repository {
	t.Helper()
	repo, err := sqldb.Open(context.Background(), "file:"+filepath.Join(t.TempDir(), "facts.db"))
	if err != nil {
		t.Fatalf("Failed to init db: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// stubSource serves a fixed payload or error.
type stubSource struct {
	mu      sync.Mutex
	payload []byte
	err     error
	calls   int
}

func (s *stubSource) Fetch(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.payload, s.err
}

func (s *stubSource) Location() string { return testSourceURL }

func (s *stubSource) set(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = []byte(payload)
	s.err = nil
}

// recordingNotifier keeps every notice it receives.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) last() domain.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return domain.Notice{}
	}
	return r.notices[len(r.notices)-1]
}

func mustCount(t *testing.T, repo *sqldb.Repository) int64 {
	t.Helper()
	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func mustFind(t *testing.T, repo *sqldb.Repository, text string) *domain.Fact {
	t.Helper()
	f, err := repo.FindByText(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	if f == nil {
		t.Fatalf("fact %q not found", text)
	}
	return f
}

func TestCatScenario(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	src := &stubSource{}
	ingest := NewIngestionService(repo, src, nil, nil)
	query := NewFactService(repo, 10)

	if _, err := query.List(ctx, domain.SortAlphabetical, false, 0); !errors.Is(err, domain.ErrEmptyDataset) {
		t.Fatalf("List on empty store = %v, want ErrEmptyDataset", err)
	}

	src.set(`{"data":["A cat sleeps 70% of its life.","A cat sleeps 70% of its life. "]}`)
	report, err := ingest.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Outcome != domain.OutcomeIngested || report.Inserted != 1 {
		t.Errorf("first report = %+v", report)
	}
	if n := mustCount(t, repo); n != 1 {
		t.Fatalf("facts = %d, want 1", n)
	}
	fact := mustFind(t, repo, "A cat sleeps 70% of its life.")
	if fact.OccurrenceCount != 2 {
		t.Errorf("occurrence after first run = %d, want 2", fact.OccurrenceCount)
	}
	if fact.Source != testSourceURL {
		t.Errorf("source = %q", fact.Source)
	}

	src.set(`{"data":["A cat sleeps 70% of its life."]}`)
	if _, err := ingest.Run(ctx); err != nil {
		t.Fatal(err)
	}
	again := mustFind(t, repo, "A cat sleeps 70% of its life.")
	if again.ID != fact.ID || again.OccurrenceCount != 3 {
		t.Errorf("after re-ingest = %+v, want same id with occurrence 3", again)
	}
	if !again.InsertedAt.Equal(fact.InsertedAt) {
		t.Errorf("insertedAt moved from %v to %v", fact.InsertedAt, again.InsertedAt)
	}

	if _, err := query.Like(ctx, fact.ID); err != nil {
		t.Fatal(err)
	}
	disliked, err := query.Dislike(ctx, fact.ID)
	if err != nil {
		t.Fatal(err)
	}
	if disliked.LikeCount != 1 || disliked.DislikeCount != 1 {
		t.Errorf("counters = %+v", disliked)
	}
	if pop := (domain.Fact{LikeCount: disliked.LikeCount, DislikeCount: disliked.DislikeCount}).Popularity(); pop != 0 {
		t.Errorf("popularity = %d, want 0", pop)
	}
}

func TestFetchFailureWritesNothing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	notices := &recordingNotifier{}
	src := &stubSource{err: &domain.FetchError{URL: testSourceURL, StatusCode: 500}}
	ingest := NewIngestionService(repo, src, notices, nil)

	report, err := ingest.Run(ctx)
	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Run error = %v, want FetchError", err)
	}
	if report.Outcome != domain.OutcomeFetchFailed {
		t.Errorf("outcome = %s", report.Outcome)
	}
	if n := mustCount(t, repo); n != 0 {
		t.Errorf("facts = %d after failed fetch", n)
	}
	if got := notices.last(); got.Category != domain.CategoryWarning || got.Report == nil {
		t.Errorf("notice = %+v", got)
	}
}

func TestIngestBatchProperties(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantFacts int64
		wantOcc   map[string]int64
		wantOut   domain.RunOutcome
	}{
		{
			name:      "distinct strings",
			payload:   `{"data":["one","two","three"]}`,
			wantFacts: 3,
			wantOcc:   map[string]int64{"one": 1, "two": 1, "three": 1},
			wantOut:   domain.OutcomeIngested,
		},
		{
			name:      "same string K times",
			payload:   `{"data":["dup","dup "," dup","DUP"]}`,
			wantFacts: 1,
			wantOcc:   map[string]int64{"dup": 4},
			wantOut:   domain.OutcomeIngested,
		},
		{
			name:      "blank strings dropped",
			payload:   `{"data":["  ","","kept"]}`,
			wantFacts: 1,
			wantOcc:   map[string]int64{"kept": 1},
			wantOut:   domain.OutcomeIngested,
		},
		{name: "malformed payload", payload: `{"data": [1, 2`, wantOut: domain.OutcomeEmpty},
		{name: "empty data", payload: `{"data": []}`, wantOut: domain.OutcomeEmpty},
		{name: "missing data", payload: `{}`, wantOut: domain.OutcomeEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newTestRepo(t)
			src := &stubSource{}
			src.set(tt.payload)

			report, err := NewIngestionService(repo, src, nil, nil).Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if report.Outcome != tt.wantOut {
				t.Errorf("outcome = %s, want %s", report.Outcome, tt.wantOut)
			}
			if n := mustCount(t, repo); n != tt.wantFacts {
				t.Errorf("facts = %d, want %d", n, tt.wantFacts)
			}
			for text, occ := range tt.wantOcc {
				if f := mustFind(t, repo, text); f.OccurrenceCount != occ {
					t.Errorf("%q occurrence = %d, want %d", text, f.OccurrenceCount, occ)
				}
			}
		})
	}
}

func TestReingestAddsRepeats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	src := &stubSource{}
	ingest := NewIngestionService(repo, src, nil, nil)

	payload := `{"data":["x","y","x","z"]}`
	src.set(payload)
	if _, err := ingest.Run(ctx); err != nil {
		t.Fatal(err)
	}
	liked := mustFind(t, repo, "y")
	if _, err := repo.IncrementLike(ctx, liked.ID); err != nil {
		t.Fatal(err)
	}

	src.set(payload)
	report, err := ingest.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Inserted != 0 || report.Incremented != 3 {
		t.Errorf("second report = %+v", report)
	}

	want := map[string]int64{"x": 4, "y": 2, "z": 2}
	for text, occ := range want {
		if f := mustFind(t, repo, text); f.OccurrenceCount != occ {
			t.Errorf("%q occurrence = %d, want %d", text, f.OccurrenceCount, occ)
		}
	}
	if y := mustFind(t, repo, "y"); y.LikeCount != 1 || y.DislikeCount != 0 {
		t.Errorf("ingestion touched like/dislike: %+v", y)
	}
}

func TestOverlongTextRejected(t *testing.T) {
	repo := newTestRepo(t)
	long := make([]byte, domain.MaxTextLength+1)
	for i := range long {
		long[i] = 'a'
	}
	src := &stubSource{}
	src.set(`{"data":["` + string(long) + `","short"]}`)

	report, err := NewIngestionService(repo, src, nil, nil).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Rejected != 1 || report.Inserted != 1 {
		t.Errorf("report = %+v", report)
	}
}

// staleRepo hides existing rows from the bulk lookup, as if another run had
// inserted them after this run looked.
type staleRepo struct {
	*sqldb.Repository
}

func (staleRepo) FindByTexts(context.Context, []string) ([]domain.Fact, error) {
	return nil, nil
}

func TestConcurrentInsertBecomesIncrement(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	src := &stubSource{}
	src.set(`{"data":["Cats see in the dark.","New fact."]}`)

	if _, err := NewIngestionService(repo, src, nil, nil).Run(ctx); err != nil {
		t.Fatal(err)
	}

	src.set(`{"data":["cats see in the dark."]}`)
	report, err := NewIngestionService(staleRepo{repo}, src, nil, nil).Run(ctx)
	if err != nil {
		t.Fatalf("conflict surfaced to caller: %v", err)
	}
	if report.Recovered != 1 || report.Inserted != 0 {
		t.Errorf("report = %+v", report)
	}
	if f := mustFind(t, repo, "Cats see in the dark."); f.OccurrenceCount != 2 {
		t.Errorf("occurrence = %d, want 2", f.OccurrenceCount)
	}
	if n := mustCount(t, repo); n != 2 {
		t.Errorf("facts = %d, want 2", n)
	}
}

func TestOverlappingRunsKeepTextUnique(t *testing.T) {
	repo := newTestRepo(t)
	src := &stubSource{}
	src.set(`{"data":["alpha","beta","alpha"]}`)
	ingest := NewIngestionService(repo, src, nil, nil)

	const runs = 5
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ingest.Run(context.Background()); err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := mustCount(t, repo); n != 2 {
		t.Errorf("facts = %d, want 2", n)
	}
	if f := mustFind(t, repo, "alpha"); f.OccurrenceCount != 2*runs {
		t.Errorf("alpha occurrence = %d, want %d", f.OccurrenceCount, 2*runs)
	}
	if f := mustFind(t, repo, "beta"); f.OccurrenceCount != runs {
		t.Errorf("beta occurrence = %d, want %d", f.OccurrenceCount, runs)
	}
}

// flakyRepo fails the first ApplyBatch calls, by default with a transient error.
type flakyRepo struct {
	*sqldb.Repository
	mu    sync.Mutex
	fails int
	err   error
	calls int
}

func (f *flakyRepo) ApplyBatch(ctx context.Context, batch domain.UpsertBatch) (domain.BatchResult, error) {
	f.mu.Lock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		if f.err != nil {
			return domain.BatchResult{}, f.err
		}
		return domain.BatchResult{}, errors.New("database is locked (5) (SQLITE_BUSY)")
	}
	f.mu.Unlock()
	return f.Repository.ApplyBatch(ctx, batch)
}

func TestCommitRetriesTransientErrors(t *testing.T) {
	repo := &flakyRepo{Repository: newTestRepo(t), fails: 2}
	src := &stubSource{}
	src.set(`{"data":["retry me"]}`)
	ingest := NewIngestionService(repo, src, nil, nil)
	ingest.backoff = 0

	report, err := ingest.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Inserted != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestCommitGivesUp(t *testing.T) {
	repo := &flakyRepo{Repository: newTestRepo(t), fails: maxRetries}
	src := &stubSource{}
	src.set(`{"data":["never stored"]}`)
	notices := &recordingNotifier{}
	ingest := NewIngestionService(repo, src, notices, nil)
	ingest.backoff = 0

	report, err := ingest.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if report.Outcome != domain.OutcomeFailed {
		t.Errorf("outcome = %s", report.Outcome)
	}
	if notices.last().Category != domain.CategoryError {
		t.Errorf("notice = %+v", notices.last())
	}
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("ERROR: could not serialize access due to concurrent update: serialization failure (SQLSTATE 40001)"), true},
		{errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"), true},
		{errors.New("connection(localhost:27017[-3]) incomplete read of message header: EOF"), false},
		{errors.New("write exception: E11000 duplicate key error"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := isRetriableError(tt.err); got != tt.want {
			t.Errorf("isRetriableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCommitDoesNotRetryPartialWrites(t *testing.T) {
	repo := &flakyRepo{
		Repository: newTestRepo(t),
		fails:      1,
		err:        errors.New("connection(localhost:27017[-3]) incomplete read of message header: EOF"),
	}
	src := &stubSource{}
	src.set(`{"data":["applied once"]}`)
	ingest := NewIngestionService(repo, src, nil, nil)
	ingest.backoff = 0

	if _, err := ingest.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if repo.calls != 1 {
		t.Errorf("ApplyBatch calls = %d, want 1", repo.calls)
	}
}

func TestNulBytesStripped(t *testing.T) {
	repo := newTestRepo(t)
	src := &stubSource{}
	src.set(`{"data":["Cats\u0000 purr.","Cats purr."]}`)
	ingest := NewIngestionService(repo, src, nil, nil)

	report, err := ingest.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Inserted != 1 {
		t.Errorf("report = %+v", report)
	}
	if f := mustFind(t, repo, "Cats purr."); f.Text != "Cats purr." || f.OccurrenceCount != 2 {
		t.Errorf("fact = %+v", f)
	}
}
