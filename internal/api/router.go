package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/fastprodman/coinledger/internal/auth"
	"github.com/fastprodman/coinledger/internal/metrics"
)

// NewRouter registers every endpoint on a chi router. Admin routes are
// mounted only when tm is non-nil.
func NewRouter(svc Economy, tm *auth.TokenManager) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()

	r.Use(RequestID, Recover, HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/accounts/{accountId}", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Post("/quit", h.Quit)
		r.Post("/quit/confirm", h.ConfirmQuit)
		r.Get("/balance", h.Balance)
		r.Post("/pay", h.Pay)
		r.Post("/work", h.Work)
		r.Post("/daily", h.Daily)
		r.Post("/buy", h.Buy)
		r.Post("/sell", h.Sell)
		r.Post("/trade", h.Trade)
		r.Post("/lottery/enter", h.EnterLottery)
	})

	r.Get("/leaderboard", h.Leaderboard)
	r.Get("/store", h.Store)
	r.Get("/lottery", h.CurrentRound)
	r.Get("/lottery/{roundId}", h.GetRound)

	if tm != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminOnly(tm))
			r.Post("/lottery/start", h.StartRound)
			r.Post("/lottery/{roundId}/end", h.EndRound)
		})
	}

	return r
}
