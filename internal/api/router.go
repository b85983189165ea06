package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atmx/contracts-engine/internal/metrics"
)

// NewRouter builds the chi router for the read-side REST API, wired with
// the same middleware stack the teacher's main.go assembles by hand.
func NewRouter(svc *Service, ws http.HandlerFunc) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"contracts-engine"}`))
	})

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if ws != nil {
			r.Get("/ws", ws)
		}
		r.Get("/markets", svc.GetMarkets)
		r.Get("/markets/{marketId}/book", svc.GetBook)
		r.Get("/balance/{userId}", svc.GetBalance)
	})

	return r
}
