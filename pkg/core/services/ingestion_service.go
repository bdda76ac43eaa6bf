package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/logger"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/ports"
)

const (
	maxRetries       = 3
	retryBackoffBase = 100 * time.Millisecond
)

type IngestionService struct {
	repo     ports.FactRepository
	source   ports.Source
	notifier ports.Notifier
	log      *logger.Logger
	now      func() time.Time
	backoff  time.Duration
}

// NewIngestionService wires the pipeline. notifier may be nil.
func NewIngestionService(repo ports.FactRepository, source ports.Source, notifier ports.Notifier, log *logger.Logger) *IngestionService {
	if log == nil {
		log = logger.Discard()
	}
	return &IngestionService{
		repo:     repo,
		source:   source,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		backoff:  retryBackoffBase,
	}
}

type factPayload struct {
	Data []string `json:"data"`
}

// ParsePayload decodes a {"data": [...]} document.
func ParsePayload(payload []byte) ([]string, error) {
	var p factPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, &domain.ParseError{Err: err}
	}
	return p.Data, nil
}

// candidate is one distinct normalized text of a batch and how often it appeared.
type candidate struct {
	text  string
	key   string
	count int64
}

// collapse normalizes the raw strings and groups them by dedup key, keeping
// first-seen order. Empty and over-long strings are dropped.
func collapse(raw []string) ([]candidate, int) {
	var (
		out      []candidate
		rejected int
	)
	index := make(map[string]int, len(raw))
	for _, r := range raw {
		text := domain.NormalizeText(r)
		if text == "" {
			continue
		}
		if domain.TextLength(text) > domain.MaxTextLength {
			rejected++
			continue
		}
		key := domain.TextKey(text)
		if i, ok := index[key]; ok {
			out[i].count++
			continue
		}
		index[key] = len(out)
		out = append(out, candidate{text: text, key: key, count: 1})
	}
	return out, rejected
}

// Run executes one ingestion run. A fetch failure is returned after being
// reported; nothing is written in that case. Unparseable or empty payloads
// are a no-op.
func (s *IngestionService) Run(ctx context.Context) (domain.RunReport, error) {
	report := domain.RunReport{Source: s.source.Location(), StartedAt: s.now().UTC()}
	log := s.log.WithField("source", report.Source)

	payload, err := s.source.Fetch(ctx)
	if err != nil {
		report.Outcome = domain.OutcomeFetchFailed
		report.Error = err.Error()
		log.WithError(err).Warn("fetch failed, skipping run")
		s.finish(ctx, &report)
		return report, err
	}

	raw, err := ParsePayload(payload)
	if err != nil {
		log.WithError(err).Debug("payload not understood, nothing to ingest")
		report.Outcome = domain.OutcomeEmpty
		s.finish(ctx, &report)
		return report, nil
	}
	report.Fetched = len(raw)

	candidates, rejected := collapse(raw)
	report.Rejected = rejected
	if rejected > 0 {
		log.WithField("rejected", rejected).Warn(fmt.Sprintf("dropped facts longer than %d characters", domain.MaxTextLength))
	}
	if len(candidates) == 0 {
		log.Info("No facts to persist")
		report.Outcome = domain.OutcomeEmpty
		s.finish(ctx, &report)
		return report, nil
	}

	batch, err := s.plan(ctx, candidates, report.Source, report.StartedAt)
	if err != nil {
		return s.fail(ctx, &report, fmt.Errorf("lookup existing facts: %w", err))
	}

	res, err := s.commit(ctx, batch)
	if err != nil {
		return s.fail(ctx, &report, fmt.Errorf("commit batch: %w", err))
	}

	report.Outcome = domain.OutcomeIngested
	report.Inserted = res.Inserted
	report.Incremented = res.Incremented
	report.Recovered = res.Recovered
	log.WithFields(map[string]interface{}{
		"fetched":     report.Fetched,
		"inserted":    report.Inserted,
		"incremented": report.Incremented,
		"recovered":   report.Recovered,
	}).Info("ingestion run finished")
	s.finish(ctx, &report)
	return report, nil
}

// plan partitions the candidates into increments of existing facts and new
// facts, using one bulk lookup.
func (s *IngestionService) plan(ctx context.Context, candidates []candidate, source string, now time.Time) (domain.UpsertBatch, error) {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.text
	}

	existing, err := s.repo.FindByTexts(ctx, texts)
	if err != nil {
		return domain.UpsertBatch{}, err
	}
	byKey := make(map[string]domain.Fact, len(existing))
	for _, f := range existing {
		byKey[domain.TextKey(f.Text)] = f
	}

	var batch domain.UpsertBatch
	for _, c := range candidates {
		if f, ok := byKey[c.key]; ok {
			batch.Increments = append(batch.Increments, domain.Increment{ID: f.ID, By: c.count})
			continue
		}
		batch.Inserts = append(batch.Inserts, domain.Fact{
			ID:              uuid.New(),
			Text:            c.text,
			InsertedAt:      now,
			Source:          source,
			OccurrenceCount: c.count,
		})
	}
	return batch, nil
}

// commit retries transient store errors with exponential backoff. Only SQL
// lock and serialization errors count as transient; they roll back the whole
// batch transaction, so a retry never double counts. Mongo applies a batch
// per document and none of its errors are retried.
func (s *IngestionService) commit(ctx context.Context, batch domain.UpsertBatch) (domain.BatchResult, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := s.repo.ApplyBatch(ctx, batch)
		if err == nil {
			return res, nil
		}
		if !isRetriableError(err) || attempt == maxRetries-1 {
			return res, err
		}

		s.log.WithError(err).WithField("attempt", attempt+1).Warn("retrying batch commit")
		select {
		case <-ctx.Done():
			return domain.BatchResult{}, ctx.Err()
		case <-time.After(s.backoff * time.Duration(1<<attempt)):
		}
	}
	return domain.BatchResult{}, errors.New("max retries exceeded")
}

func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"database is locked", "sqlite_busy", "serialization failure", "restart transaction", "deadlock detected"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (s *IngestionService) fail(ctx context.Context, report *domain.RunReport, err error) (domain.RunReport, error) {
	report.Outcome = domain.OutcomeFailed
	report.Error = err.Error()
	s.log.WithError(err).Error("ingestion run failed")
	s.finish(ctx, report)
	return *report, err
}

func (s *IngestionService) finish(ctx context.Context, report *domain.RunReport) {
	report.FinishedAt = s.now().UTC()
	if s.notifier != nil {
		s.notifier.Notify(ctx, report.Notice())
	}
}

var _ ports.Ingestor = (*IngestionService)(nil)
