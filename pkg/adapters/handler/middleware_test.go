package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/logger"
)

func TestMiddleware(t *testing.T) {
	mw := NewMiddleware(logger.Discard())

	tests := []struct {
		name           string
		handler        http.HandlerFunc
		expectedStatus int
		expectNotice   bool
	}{
		{
			name: "Pass through",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Status recorded",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			},
			expectedStatus: http.StatusTeapot,
		},
		{
			name: "Panic recovered",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("boom")
			},
			expectedStatus: http.StatusInternalServerError,
			expectNotice:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/facts", nil)
			rr := httptest.NewRecorder()

			mw.Recover(mw.Logging(tt.handler)).ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v",
					status, tt.expectedStatus)
			}
			if tt.expectNotice {
				var notice domain.Notice
				if err := json.NewDecoder(rr.Body).Decode(&notice); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				if notice.Category != domain.CategoryError {
					t.Errorf("category = %v", notice.Category)
				}
			}
		})
	}
}
