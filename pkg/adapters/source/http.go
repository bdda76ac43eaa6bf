package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/ports"
)

// maxPayloadBytes caps how much of a response body is read.
const maxPayloadBytes = 1 << 20

var errTooLarge = errors.New("response body too large")

// HTTPSource fetches the fact payload with a GET request bounded by timeout.
type HTTPSource struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPSource(url string, timeout time.Duration, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSource{url: url, timeout: timeout, client: client}
}

func (s *HTTPSource) Location() string { return s.url }

// Fetch returns the raw body of a 2xx response. Anything else, including a
// timeout, is a *domain.FetchError.
func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: s.url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: s.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxPayloadBytes))
		return nil, &domain.FetchError{URL: s.url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, &domain.FetchError{URL: s.url, Err: err}
	}
	if len(body) > maxPayloadBytes {
		return nil, &domain.FetchError{URL: s.url, Err: fmt.Errorf("%w: over %d bytes", errTooLarge, maxPayloadBytes)}
	}
	return body, nil
}

var _ ports.Source = (*HTTPSource)(nil)
