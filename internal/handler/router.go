package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/govpoints-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса govpoints.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/points/{address}", h.GetPoints)
		r.Get("/points/{address}/stats", h.GetPointsStats)
		r.Get("/points/{address}/history", h.GetPointsHistory)

		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/points-stats", h.GetPlatformStats)

		r.Get("/rewards", h.ListRewards)
		r.Get("/rewards/{id}", h.GetReward)
		r.Post("/rewards/{id}/redeem", h.Redeem)

		r.Get("/redemptions/{id}", h.GetRedemption)
		r.Get("/redemptions/user/{address}", h.GetUserRedemptions)
		r.Post("/redemptions/{id}/cancel", h.CancelRedemption)

		r.Get("/reward-pool", h.GetPool)

		r.Get("/daos", h.ListDAOs)
		r.Get("/daos/{id}/tier", h.GetDAOTier)

		// Операторские операции защищены bearer-токеном.
		r.Group(func(r chi.Router) {
			r.Use(h.adminAuth.Middleware)

			r.Post("/points/award", h.AwardPoints)
			r.Post("/points/redeem", h.RedeemPoints)
			r.Post("/points/bonus", h.AwardBonus)

			r.Post("/rewards", h.AddReward)
			r.Put("/rewards/{id}", h.UpdateReward)

			r.Get("/redemptions", h.ListRedemptions)
			r.Post("/redemptions/{id}/process", h.ProcessRedemption)

			r.Post("/reward-pool/add-budget", h.AddBudget)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
