package termos

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smdhc/parcerias/internal/platform/httpx"
	"github.com/smdhc/parcerias/internal/shared"
)

// Handler serves the termo endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the collection-level /termos routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/disponiveis", h.disponiveis)
}

// MountTermoRoutes registers the routes scoped to one termo. The router
// mounts the termo-scoped parcel routes on the same subtree.
func (h *Handler) MountTermoRoutes(r chi.Router) {
	r.Get("/", h.obter)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrTermoRequired):
		httpx.Fail(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("termos: handler", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, "erro interno")
	}
}

func (h *Handler) disponiveis(w http.ResponseWriter, r *http.Request) {
	lista, err := h.service.Disponiveis(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "termos": lista})
}

func (h *Handler) obter(w http.ResponseWriter, r *http.Request) {
	termo, err := h.service.Get(r.Context(), chi.URLParam(r, "termo"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "termo": termo})
}
