package sqldb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
)

// sqliteTimeLayout is fixed width so that text ordering is chronological.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// timeArg binds a timestamp. PostgreSQL gets a native TIMESTAMPTZ, SQLite a
// fixed width UTC string.
func (r *Repository) timeArg(t time.Time) any {
	if r.dialect == dialectPostgres {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func scanFact(row *sql.Row) (*domain.Fact, error) {
	var (
		fact       domain.Fact
		id         string
		insertedAt any
	)
	if err := row.Scan(&id, &fact.Text, &insertedAt, &fact.Source,
		&fact.OccurrenceCount, &fact.LikeCount, &fact.DislikeCount); err != nil {
		return nil, err
	}
	if err := fillFact(&fact, id, insertedAt); err != nil {
		return nil, err
	}
	return &fact, nil
}

func scanFacts(rows *sql.Rows) ([]domain.Fact, error) {
	defer rows.Close()

	var facts []domain.Fact
	for rows.Next() {
		var (
			fact       domain.Fact
			id         string
			insertedAt any
		)
		if err := rows.Scan(&id, &fact.Text, &insertedAt, &fact.Source,
			&fact.OccurrenceCount, &fact.LikeCount, &fact.DislikeCount); err != nil {
			return nil, err
		}
		if err := fillFact(&fact, id, insertedAt); err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

func fillFact(fact *domain.Fact, id string, insertedAt any) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("fact id %q: %w", id, err)
	}
	fact.ID = parsed

	t, ok := decodeAnyTime(insertedAt)
	if !ok {
		return fmt.Errorf("fact %s: unreadable inserted_at %v", id, insertedAt)
	}
	fact.InsertedAt = t.UTC()
	return nil
}

func decodeAnyTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return parseTimeString(x)
	case []byte:
		return parseTimeString(string(x))
	default:
		return time.Time{}, false
	}
}

func parseTimeString(s string) (time.Time, bool) {
	layouts := []string{
		sqliteTimeLayout,
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
