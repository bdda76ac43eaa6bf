package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxTextLength bounds Fact.Text, counted in UTF-16 code units.
const MaxTextLength = 900

// Fact represents a deduplicated fact with its engagement counters
type Fact struct {
	ID              uuid.UUID `json:"id"`
	Text            string    `json:"text"`
	InsertedAt      time.Time `json:"insertedAt"`
	Source          string    `json:"source"`
	OccurrenceCount int64     `json:"occurrenceCount"`
	LikeCount       int64     `json:"likeCount"`
	DislikeCount    int64     `json:"dislikeCount"`
}

// Popularity is derived, never stored.
func (f Fact) Popularity() int64 {
	return f.LikeCount - f.DislikeCount
}

// Projection returns the public-facing shape of the fact.
func (f Fact) Projection() FactProjection {
	return FactProjection{
		ID:              f.ID,
		Text:            f.Text,
		InsertedAt:      f.InsertedAt,
		OccurrenceCount: f.OccurrenceCount,
		LikeCount:       f.LikeCount,
		DislikeCount:    f.DislikeCount,
	}
}

// FactProjection is what API callers see (no source)
type FactProjection struct {
	ID              uuid.UUID `json:"id"`
	Text            string    `json:"text"`
	InsertedAt      time.Time `json:"insertedAt"`
	OccurrenceCount int64     `json:"occurrenceCount"`
	LikeCount       int64     `json:"likeCount"`
	DislikeCount    int64     `json:"dislikeCount"`
}

// Increment adds By occurrences to an existing fact.
type Increment struct {
	ID uuid.UUID
	By int64
}

// UpsertBatch is everything a single ingestion run commits.
type UpsertBatch struct {
	Increments []Increment
	Inserts    []Fact
}

func (b UpsertBatch) Empty() bool {
	return len(b.Increments) == 0 && len(b.Inserts) == 0
}

// BatchResult counts what a committed batch actually did. Recovered counts
// inserts that lost a uniqueness race and were applied as increments instead.
type BatchResult struct {
	Inserted    int `json:"inserted"`
	Incremented int `json:"incremented"`
	Recovered   int `json:"recovered"`
}
