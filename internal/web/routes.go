package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegate/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	enrollHandler := handlers.NewEnrollHandler(s.engine)
	identifyHandler := handlers.NewIdentifyHandler(s.engine)
	identitiesHandler := handlers.NewIdentitiesHandler(s.engine)
	statusHandler := handlers.NewStatusHandler(s.engine)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/enroll", enrollHandler.Enroll)
		r.Post("/identify", identifyHandler.Identify)

		r.Delete("/identities/{id}", identitiesHandler.Delete)
		r.Put("/identities/{id}/key", identitiesHandler.Rekey)

		r.Get("/status", statusHandler.Status)
	})
}
