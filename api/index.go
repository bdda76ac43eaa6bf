package handler

import (
	"context"
	"net/http"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/app"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/config"
)

var mux http.Handler

func init() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Note: On Vercel, a local sqlite file is ephemeral; point DATABASE_URL at Turso/Postgres or set MONGODB_URI.
	// No scheduler here, run cmd/worker or a cron hitting factctl ingest.
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		panic(err)
	}
	mux = a.Router()
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
