package services

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/ports"
)

const DefaultPageSize = 10

type FactService struct {
	repo     ports.FactRepository
	pageSize int
}

func NewFactService(repo ports.FactRepository, pageSize int) *FactService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &FactService{repo: repo, pageSize: pageSize}
}

func (s *FactService) PageSize() int { return s.pageSize }

// List returns page pageIndex (zero-based) of all facts ordered by key.
// ErrEmptyDataset means there are no facts at all; a page past the end is
// returned empty with the real totals.
func (s *FactService) List(ctx context.Context, key domain.SortKey, descending bool, pageIndex int) (*domain.Page[domain.FactProjection], error) {
	if !key.Valid() {
		return nil, domain.ErrInvalidSortKey
	}
	if pageIndex < 0 || pageIndex > math.MaxInt32/s.pageSize {
		return nil, domain.ErrInvalidPage
	}

	facts, total, err := s.repo.ListOrdered(ctx, key, descending, pageIndex*s.pageSize, s.pageSize)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, domain.ErrEmptyDataset
	}

	items := make([]domain.FactProjection, 0, len(facts))
	for _, f := range facts {
		items = append(items, f.Projection())
	}
	page := domain.NewPage(items, pageIndex, s.pageSize, total)
	return &page, nil
}

func (s *FactService) Get(ctx context.Context, id uuid.UUID) (*domain.FactProjection, error) {
	fact, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if fact == nil {
		return nil, domain.ErrNotFound
	}
	p := fact.Projection()
	return &p, nil
}

func (s *FactService) Like(ctx context.Context, id uuid.UUID) (*domain.FactProjection, error) {
	return project(s.repo.IncrementLike(ctx, id))
}

func (s *FactService) Dislike(ctx context.Context, id uuid.UUID) (*domain.FactProjection, error) {
	return project(s.repo.IncrementDislike(ctx, id))
}

func project(fact *domain.Fact, err error) (*domain.FactProjection, error) {
	if err != nil {
		return nil, err
	}
	if fact == nil {
		return nil, domain.ErrNotFound
	}
	p := fact.Projection()
	return &p, nil
}

var _ ports.FactService = (*FactService)(nil)
