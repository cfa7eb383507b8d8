package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadismael/DevPath/interviewer/internal/model/persona"
	"github.com/ziadismael/DevPath/interviewer/pkg/utils"
)

// Handler serves the interview personas.
type Handler struct {
	registry *persona.Registry
}

// New creates a persona handler.
func New(registry *persona.Registry) *Handler {
	return &Handler{
		registry: registry,
	}
}

// RegisterRoutes registers the persona routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
}

func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.registry.List())
}
