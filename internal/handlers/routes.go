package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Router wires the auth endpoints and the per-user document API.
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.SignUp)
		r.Post("/login", h.Login)
		r.Post("/token", h.Token)
		r.With(h.AuthMiddleware).Post("/refresh", h.Refresh)
		r.With(h.AuthMiddleware).Post("/logout", h.Logout)
	})

	r.Route("/api/users/{uid}", func(r chi.Router) {
		r.Use(h.AuthMiddleware, h.OwnerOnly)
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.PutProfile)
		r.Get("/expenses", h.ListExpenses)
		r.Post("/expenses", h.CreateExpense)
		r.Patch("/expenses/{id}", h.UpdateExpense)
		r.Delete("/expenses/{id}", h.DeleteExpense)
		r.Get("/insights", h.Statistics)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}
