package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("fact not found")
	ErrConflict       = errors.New("fact text already exists")
	ErrEmptyDataset   = errors.New("no facts stored")
	ErrInvalidSortKey = errors.New("invalid sort key")
	ErrInvalidPage    = errors.New("invalid page index")
)

// FetchError is a transport failure or non-success response from the source.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means the payload could not be decoded. Ingestion treats it as an empty batch.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse payload: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }
