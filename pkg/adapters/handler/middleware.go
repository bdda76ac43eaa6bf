package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/logger"
)

type Middleware struct {
	log *logger.Logger
}

func NewMiddleware(log *logger.Logger) *Middleware {
	if log == nil {
		log = logger.Discard()
	}
	return &Middleware{log: log}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging logs method, path, status and duration of every request
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.log.WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request handled")
	})
}

// Recover turns a panic into a 500 with the error notice body
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				m.log.WithField("panic", fmt.Sprint(p)).WithField("path", r.URL.Path).Error("handler panicked")
				writeJSON(w, http.StatusInternalServerError, domain.Notice{
					Category: domain.CategoryError,
					Title:    "Unexpected error",
					Text:     "Something went wrong while processing the request",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
