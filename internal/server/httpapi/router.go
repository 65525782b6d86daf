package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routes wires the endpoint tree. Login sits outside the token
// middleware but behind the per-client throttle; everything else
// requires a valid token, and management endpoints the admin role.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.metrics.Middleware())

	r.Handle("/metrics", s.metrics.Handler())

	r.With(s.limiter.Middleware()).Post("/api/users/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/api/users/me", s.handleMe)

		// admin-or-self checked in the handler, after the body is read
		r.Post("/api/users/reset-password", s.handleResetPassword)

		r.With(s.requireRoles(adminRole)).Post("/api/users", s.handleRegister)
		r.With(s.requireRoles(adminRole)).Get("/api/users", s.handleListUsers)

		// self-or-admin checked in the handlers
		r.Get("/api/users/{id}", s.handleGetUser)
		r.Put("/api/users/{id}", s.handleUpdateUser)

		r.With(s.requireRoles(adminRole)).Get("/api/roles", s.handleListRoles)
	})

	return r
}
