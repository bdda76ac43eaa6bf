package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
)

func TestHTTPSourceFetch(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		delay      time.Duration
		body       string
		wantErr    bool
		wantStatus int
		wantErrIs  error
	}{
		{name: "success", status: http.StatusOK, body: `{"data":["a"]}`},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true, wantStatus: http.StatusInternalServerError},
		{name: "not found", status: http.StatusNotFound, wantErr: true, wantStatus: http.StatusNotFound},
		{name: "timeout", status: http.StatusOK, delay: 200 * time.Millisecond, wantErr: true},
		{name: "exactly at limit", status: http.StatusOK, body: strings.Repeat("a", maxPayloadBytes)},
		{name: "too large", status: http.StatusOK, body: strings.Repeat("a", maxPayloadBytes+1), wantErr: true, wantErrIs: errTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.delay > 0 {
					select {
					case <-time.After(tt.delay):
					case <-r.Context().Done():
						return
					}
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			timeout := 2 * time.Second
			if tt.delay > 0 {
				timeout = 50 * time.Millisecond
			}
			src := NewHTTPSource(server.URL, timeout, server.Client())
			body, err := src.Fetch(context.Background())

			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if string(body) != tt.body {
					t.Errorf("body has %d bytes, want %d", len(body), len(tt.body))
				}
				return
			}

			var fetchErr *domain.FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("error = %v, want *domain.FetchError", err)
			}
			if fetchErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", fetchErr.StatusCode, tt.wantStatus)
			}
			if fetchErr.URL != server.URL {
				t.Errorf("URL = %q", fetchErr.URL)
			}
			if tt.wantErrIs != nil && !errors.Is(err, tt.wantErrIs) {
				t.Errorf("error = %v, want %v", err, tt.wantErrIs)
			}
		})
	}
}
