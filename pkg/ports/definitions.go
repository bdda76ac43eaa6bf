package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
)

// FactRepository defines storage operations for facts
type FactRepository interface {
	FindByText(ctx context.Context, text string) (*domain.Fact, error)
	FindByTexts(ctx context.Context, texts []string) ([]domain.Fact, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Fact, error)
	Insert(ctx context.Context, fact *domain.Fact) error // ErrConflict on duplicate text

	// Counters, ErrNotFound on unknown id
	IncrementOccurrence(ctx context.Context, id uuid.UUID, by int64) error
	IncrementLike(ctx context.Context, id uuid.UUID) (*domain.Fact, error)
	IncrementDislike(ctx context.Context, id uuid.UUID) (*domain.Fact, error)

	ListOrdered(ctx context.Context, key domain.SortKey, descending bool, skip, take int) ([]domain.Fact, int64, error)
	Count(ctx context.Context) (int64, error)

	// ApplyBatch commits one ingestion run. Inserts that hit the uniqueness
	// constraint are applied as occurrence increments.
	ApplyBatch(ctx context.Context, batch domain.UpsertBatch) (domain.BatchResult, error)

	// Migration
	Dump(ctx context.Context) ([]domain.Fact, error)
	Import(ctx context.Context, facts []domain.Fact) (int, error)

	Close() error
}

// FactService is the query/mutation side
type FactService interface {
	List(ctx context.Context, key domain.SortKey, descending bool, pageIndex int) (*domain.Page[domain.FactProjection], error)
	Get(ctx context.Context, id uuid.UUID) (*domain.FactProjection, error)
	Like(ctx context.Context, id uuid.UUID) (*domain.FactProjection, error)
	Dislike(ctx context.Context, id uuid.UUID) (*domain.FactProjection, error)
}

// Ingestor runs the ingestion pipeline once
type Ingestor interface {
	Run(ctx context.Context) (domain.RunReport, error)
}

// Source fetches the raw payload of a batch
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	Location() string
}

// RunLocker guards ingestion runs against overlap. ok is false when another
// holder owns the lock.
type RunLocker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

// Notifier receives notices
type Notifier interface {
	Notify(ctx context.Context, n domain.Notice)
}
