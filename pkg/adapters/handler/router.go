package handler

import (
	"encoding/json"
	"net/http"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/config"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/logger"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/ports"
)

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, service ports.FactService, log *logger.Logger) http.Handler {
	h := NewHTTPHandler(service, log)
	mw := NewMiddleware(log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		res := map[string]string{
			"message": "ok",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&res)
	})

	mux.HandleFunc("GET /api/v1/facts", h.List)
	mux.HandleFunc("GET /api/v1/facts/{id}", h.Get)
	mux.HandleFunc("POST /api/v1/facts/{id}/like", h.Like)
	mux.HandleFunc("POST /api/v1/facts/{id}/dislike", h.Dislike)

	// serve the front-end build when configured
	if cfg != nil && cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return mw.Recover(mw.Logging(mux))
}
