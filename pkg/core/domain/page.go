package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SortKey selects the ordering of a fact listing
type SortKey int

const (
	SortAlphabetical SortKey = iota
	SortInsertion
	SortOccurrence
	SortLike
	SortDislike
	SortPopularity
)

var sortKeyNames = [...]string{
	SortAlphabetical: "Alphabetical",
	SortInsertion:    "Insertion",
	SortOccurrence:   "Occurrence",
	SortLike:         "Like",
	SortDislike:      "Dislike",
	SortPopularity:   "Popularity",
}

func (k SortKey) Valid() bool {
	return k >= SortAlphabetical && k <= SortPopularity
}

func (k SortKey) String() string {
	if !k.Valid() {
		return "SortKey(" + strconv.Itoa(int(k)) + ")"
	}
	return sortKeyNames[k]
}

// SortKeys lists every valid key in ordinal order.
func SortKeys() []SortKey {
	keys := make([]SortKey, 0, len(sortKeyNames))
	for i := range sortKeyNames {
		keys = append(keys, SortKey(i))
	}
	return keys
}

// ParseSortKey accepts a key name (case-insensitive) or its ordinal.
// An empty string yields SortAlphabetical.
func ParseSortKey(s string) (SortKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SortAlphabetical, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if k := SortKey(n); k.Valid() {
			return k, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidSortKey, s)
	}
	for i, name := range sortKeyNames {
		if strings.EqualFold(name, s) {
			return SortKey(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSortKey, s)
}

func (k SortKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *SortKey) UnmarshalText(b []byte) error {
	parsed, err := ParseSortKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Page is a transient paginated view
type Page[T any] struct {
	Items      []T   `json:"items"`
	PageIndex  int   `json:"pageIndex"`
	PageSize   int   `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

func NewPage[T any](items []T, pageIndex, pageSize int, totalItems int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		PageIndex:  pageIndex,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: TotalPages(totalItems, pageSize),
	}
}

// TotalPages is ceil(totalItems / pageSize).
func TotalPages(totalItems int64, pageSize int) int {
	if pageSize <= 0 || totalItems <= 0 {
		return 0
	}
	size := int64(pageSize)
	return int((totalItems + size - 1) / size)
}
