package cronograma

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/smdhc/parcerias/internal/parcelas"
	"github.com/smdhc/parcerias/internal/platform/httpx"
	"github.com/smdhc/parcerias/internal/shared"
)

// Handler serves the cronogram endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the /cronograma routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.carregar)
	r.Post("/", h.salvar)
}

// MountParcelasRoutes registers the materialization route under /parcelas.
// Turning a saved cronogram into parcels is a cronogram operation even though
// the route lives on the parcel surface.
func (h *Handler) MountParcelasRoutes(r chi.Router) {
	r.Post("/add", h.materializar)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrTermoRequired):
		httpx.Fail(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("cronograma: handler", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, "erro interno")
	}
}

func (h *Handler) carregar(w http.ResponseWriter, r *http.Request) {
	meses, err := h.service.LoadCronograma(r.Context(), r.URL.Query().Get("termo"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "meses": meses})
}

type salvarRequest struct {
	Termo         string     `json:"termo" validate:"required"`
	InfoAlteracao string     `json:"info_alteracao"`
	Meses         []MesInput `json:"meses" validate:"required,min=1"`
}

func (h *Handler) salvar(w http.ResponseWriter, r *http.Request) {
	var req salvarRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		if errors.Is(err, shared.ErrValidation) {
			httpx.Fail(w, http.StatusBadRequest, err.Error())
			return
		}
		httpx.Fail(w, http.StatusBadRequest, "corpo JSON inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	resultado, err := h.service.SaveCronograma(r.Context(), req.Termo, req.Meses, req.InfoAlteracao)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "resultado": resultado})
}

type materializarRequest struct {
	Parcels    []parcelas.ParcelaInput `json:"parcels" validate:"required,min=1"`
	UpsertMode bool                    `json:"upsert_mode"`
}

func (h *Handler) materializar(w http.ResponseWriter, r *http.Request) {
	var req materializarRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "corpo JSON inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	resultado, err := h.service.Materialize(r.Context(), req.Parcels, req.UpsertMode)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "resultado": resultado})
}
