package empenhos

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smdhc/parcerias/internal/platform/httpx"
)

// Handler serves the empenho detail view: the raw mirror lines behind one SEI
// process, used by operators to audit a bucket's availability.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the /empenhos routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.entradas)
}

func (h *Handler) entradas(w http.ResponseWriter, r *http.Request) {
	sei := r.URL.Query().Get("sei")
	if sei == "" {
		httpx.Fail(w, http.StatusBadRequest, "sei é obrigatório")
		return
	}
	entradas, err := h.service.Entradas(r.Context(), sei)
	if err != nil {
		if errors.Is(err, ErrEspelhoIndisponivel) {
			httpx.JSON(w, http.StatusOK, map[string]any{
				"success": true, "data": []Entrada{}, "aviso": AvisoEspelhoIndisponivel,
			})
			return
		}
		h.logger.Error("empenhos: handler", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, "erro interno")
		return
	}
	if entradas == nil {
		entradas = []Entrada{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "data": entradas})
}
