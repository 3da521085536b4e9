package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/percept-io/percept/internal/adapter/ws"
	"github.com/percept-io/percept/internal/service"
)

// MountRoutes registers all API routes on the given chi router. The API
// key middleware guards the v1 group only; health and the event stream
// stay open.
func MountRoutes(r chi.Router, h *Handlers, hub *ws.Hub, auth *service.AuthService, authEnabled bool) {
	r.Get("/health", h.Health)
	r.Get("/ws", hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APIKey(auth, authEnabled))

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"service":"percept-core","version":"0.1.0"}`))
		})

		r.Post("/classify", h.SubmitClassification)
		r.Get("/classify/{id}", h.GetClassification)

		r.Get("/suggested-prompts", h.SuggestedPrompts)
		r.Get("/workers", h.ListWorkers)
	})
}
