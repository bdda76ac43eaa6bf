package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"                   // PostgreSQL driver
	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/ports"
	_ "modernc.org/sqlite" // Local SQLite driver
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"

	// keep IN lists under SQLite's bound parameter limit
	lookupChunk = 500

	// how long a local SQLite connection waits on another process's write lock
	sqliteBusyTimeout = 5000
)

const factColumns = `id, text, inserted_at, source, occurrence_count, like_count, dislike_count`

type Repository struct {
	db      *sql.DB
	dialect string
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open picks the driver from the URL: libsql:// and wss:// go to Turso,
// postgres:// and postgresql:// to pgx, everything else to local SQLite.
func Open(ctx context.Context, dbURL string) (*Repository, error) {
	driverName, dialect := detectDriver(dbURL)
	if driverName == "sqlite" {
		dbURL = sqliteDSN(dbURL)
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, err
	}

	if driverName == "sqlite" {
		// one writer at a time, and a single connection keeps :memory: databases alive
		db.SetMaxOpenConns(1)
	}

	repo, err := New(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// New wraps an open database and brings its schema up to date.
func New(ctx context.Context, db *sql.DB, dialect string) (*Repository, error) {
	if _, ok := migrations[dialect]; !ok {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	r := &Repository{db: db, dialect: dialect}
	if err := r.migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func detectDriver(dbURL string) (driverName, dialect string) {
	switch {
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		return "pgx", dialectPostgres
	case strings.Contains(dbURL, "libsql://"), strings.Contains(dbURL, "wss://"):
		return "libsql", dialectSQLite
	default:
		return "sqlite", dialectSQLite
	}
}

// sqliteDSN adds the busy timeout and WAL journal unless the URL sets them.
// The server, the worker and factctl may share one database file.
func sqliteDSN(dbURL string) string {
	var pragmas []string
	if !strings.Contains(dbURL, "busy_timeout") {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=busy_timeout(%d)", sqliteBusyTimeout))
	}
	if !strings.Contains(dbURL, "journal_mode") && !strings.Contains(dbURL, ":memory:") && !strings.Contains(dbURL, "mode=memory") {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	if len(pragmas) == 0 {
		return dbURL
	}
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	return dbURL + sep + strings.Join(pragmas, "&")
}

func (r *Repository) Dialect() string { return r.dialect }

func (r *Repository) Close() error {
	return r.db.Close()
}

// q rewrites ? placeholders to $n for PostgreSQL.
func (r *Repository) q(query string) string {
	if r.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// seqColumn orders rows by insertion when inserted_at ties.
func (r *Repository) seqColumn() string {
	if r.dialect == dialectPostgres {
		return "seq"
	}
	return "rowid"
}

func (r *Repository) FindByText(ctx context.Context, text string) (*domain.Fact, error) {
	return r.findOne(ctx, r.db, `text_key = ?`, domain.TextKey(domain.NormalizeText(text)))
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Fact, error) {
	return r.findOne(ctx, r.db, `id = ?`, id.String())
}

func (r *Repository) findOne(ctx context.Context, q queryer, where string, arg any) (*domain.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM facts WHERE ` + where
	fact, err := scanFact(q.QueryRowContext(ctx, r.q(query), arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fact, nil
}

// FindByTexts returns every stored fact whose key matches one of the texts.
func (r *Repository) FindByTexts(ctx context.Context, texts []string) ([]domain.Fact, error) {
	keys := make([]any, 0, len(texts))
	seen := make(map[string]struct{}, len(texts))
	for _, t := range texts {
		key := domain.TextKey(domain.NormalizeText(t))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	var facts []domain.Fact
	for start := 0; start < len(keys); start += lookupChunk {
		end := min(start+lookupChunk, len(keys))
		chunk := keys[start:end]

		query := `SELECT ` + factColumns + ` FROM facts WHERE text_key IN (?` + strings.Repeat(", ?", len(chunk)-1) + `)`
		rows, err := r.db.QueryContext(ctx, r.q(query), chunk...)
		if err != nil {
			return nil, err
		}
		found, err := scanFacts(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, found...)
	}
	return facts, nil
}

func (r *Repository) Insert(ctx context.Context, fact *domain.Fact) error {
	if err := prepareInsert(fact); err != nil {
		return err
	}
	inserted, err := r.insert(ctx, r.db, fact, `ON CONFLICT(text_key) DO NOTHING`)
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("%w: %q", domain.ErrConflict, fact.Text)
	}
	return nil
}

func prepareInsert(fact *domain.Fact) error {
	fact.Text = domain.NormalizeText(fact.Text)
	if fact.Text == "" {
		return errors.New("fact text is empty")
	}
	if domain.TextLength(fact.Text) > domain.MaxTextLength {
		return fmt.Errorf("fact text exceeds %d characters", domain.MaxTextLength)
	}
	if fact.ID == uuid.Nil {
		fact.ID = uuid.New()
	}
	if fact.InsertedAt.IsZero() {
		fact.InsertedAt = time.Now()
	}
	fact.InsertedAt = fact.InsertedAt.UTC()
	if fact.OccurrenceCount < 1 {
		fact.OccurrenceCount = 1
	}
	return nil
}

func (r *Repository) insert(ctx context.Context, q queryer, fact *domain.Fact, onConflict string) (bool, error) {
	query := `INSERT INTO facts (id, text, text_key, inserted_at, source, occurrence_count, like_count, dislike_count)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?) ` + onConflict

	res, err := q.ExecContext(ctx, r.q(query),
		fact.ID.String(), fact.Text, domain.TextKey(fact.Text), r.timeArg(fact.InsertedAt),
		fact.Source, fact.OccurrenceCount, fact.LikeCount, fact.DislikeCount,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repository) IncrementOccurrence(ctx context.Context, id uuid.UUID, by int64) error {
	return r.bump(ctx, r.db, "occurrence_count", id, by)
}

func (r *Repository) IncrementLike(ctx context.Context, id uuid.UUID) (*domain.Fact, error) {
	return r.incrementAndGet(ctx, "like_count", id)
}

func (r *Repository) IncrementDislike(ctx context.Context, id uuid.UUID) (*domain.Fact, error) {
	return r.incrementAndGet(ctx, "dislike_count", id)
}

// bump is an atomic column = column + by on one row.
func (r *Repository) bump(ctx context.Context, q queryer, column string, id uuid.UUID, by int64) error {
	res, err := q.ExecContext(ctx, r.q(`UPDATE facts SET `+column+` = `+column+` + ? WHERE id = ?`), by, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) incrementAndGet(ctx context.Context, column string, id uuid.UUID) (*domain.Fact, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := r.bump(ctx, tx, column, id, 1); err != nil {
		return nil, err
	}

	fact, err := r.findOne(ctx, tx, `id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	if fact == nil {
		return nil, domain.ErrNotFound
	}
	return fact, tx.Commit()
}

func orderExpression(key domain.SortKey) string {
	switch key {
	case domain.SortInsertion:
		return "inserted_at"
	case domain.SortOccurrence:
		return "occurrence_count"
	case domain.SortLike:
		return "like_count"
	case domain.SortDislike:
		return "dislike_count"
	case domain.SortPopularity:
		return "(like_count - dislike_count)"
	default:
		return "text_key"
	}
}

func (r *Repository) orderBy(key domain.SortKey, descending bool) string {
	dir := "ASC"
	if descending {
		dir = "DESC"
	}
	seq := r.seqColumn()
	if key == domain.SortInsertion {
		return fmt.Sprintf("inserted_at %s, %s %s", dir, seq, dir)
	}
	// ties always fall back to ascending insertion order
	return fmt.Sprintf("%s %s, inserted_at ASC, %s ASC", orderExpression(key), dir, seq)
}

// ListOrdered returns one page and the total row count. The count comes from
// the same statement as the page; an empty page falls back to a separate count.
func (r *Repository) ListOrdered(ctx context.Context, key domain.SortKey, descending bool, skip, take int) ([]domain.Fact, int64, error) {
	if !key.Valid() {
		return nil, 0, domain.ErrInvalidSortKey
	}
	if skip < 0 || take <= 0 {
		return nil, 0, domain.ErrInvalidPage
	}

	query := `SELECT ` + factColumns + `, COUNT(*) OVER () AS total
			  FROM facts ORDER BY ` + r.orderBy(key, descending) + ` LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, r.q(query), take, skip)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var facts []domain.Fact
	var total int64
	for rows.Next() {
		var (
			fact       domain.Fact
			id         string
			insertedAt any
		)
		if err := rows.Scan(&id, &fact.Text, &insertedAt, &fact.Source,
			&fact.OccurrenceCount, &fact.LikeCount, &fact.DislikeCount, &total); err != nil {
			return nil, 0, err
		}
		if err := fillFact(&fact, id, insertedAt); err != nil {
			return nil, 0, err
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	if len(facts) == 0 {
		total, err = r.Count(ctx)
		if err != nil {
			return nil, 0, err
		}
	}
	return facts, total, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts`).Scan(&count)
	return count, err
}

// ApplyBatch commits increments and inserts in one transaction.
func (r *Repository) ApplyBatch(ctx context.Context, batch domain.UpsertBatch) (domain.BatchResult, error) {
	var result domain.BatchResult
	if batch.Empty() {
		return result, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer tx.Rollback()

	for _, inc := range batch.Increments {
		if err := r.bump(ctx, tx, "occurrence_count", inc.ID, inc.By); err != nil {
			return domain.BatchResult{}, fmt.Errorf("increment %s: %w", inc.ID, err)
		}
		result.Incremented++
	}

	for i := range batch.Inserts {
		fact := batch.Inserts[i]
		if err := prepareInsert(&fact); err != nil {
			return domain.BatchResult{}, err
		}
		inserted, err := r.insert(ctx, tx, &fact, `ON CONFLICT(text_key) DO NOTHING`)
		if err != nil {
			return domain.BatchResult{}, fmt.Errorf("insert %q: %w", fact.Text, err)
		}
		if inserted {
			result.Inserted++
			continue
		}

		// lost the race against a concurrent run: count it as occurrences instead
		res, err := tx.ExecContext(ctx,
			r.q(`UPDATE facts SET occurrence_count = occurrence_count + ? WHERE text_key = ?`),
			fact.OccurrenceCount, domain.TextKey(fact.Text))
		if err != nil {
			return domain.BatchResult{}, fmt.Errorf("recover conflict %q: %w", fact.Text, err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return domain.BatchResult{}, fmt.Errorf("recover conflict %q: %w", fact.Text, domain.ErrConflict)
		}
		result.Recovered++
	}

	if err := tx.Commit(); err != nil {
		return domain.BatchResult{}, err
	}
	return result, nil
}

func (r *Repository) Dump(ctx context.Context) ([]domain.Fact, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+factColumns+` FROM facts ORDER BY inserted_at ASC, `+r.seqColumn()+` ASC`)
	if err != nil {
		return nil, err
	}
	return scanFacts(rows)
}

// Import restores facts as they were exported, keeping ids and counters.
// Facts whose id or text already exist are skipped.
func (r *Repository) Import(ctx context.Context, facts []domain.Fact) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	count := 0
	for i := range facts {
		fact := facts[i]
		if err := prepareInsert(&fact); err != nil {
			return 0, err
		}
		inserted, err := r.insert(ctx, tx, &fact, `ON CONFLICT DO NOTHING`)
		if err != nil {
			return 0, err
		}
		if inserted {
			count++
		}
	}
	return count, tx.Commit()
}

var _ ports.FactRepository = (*Repository)(nil)
