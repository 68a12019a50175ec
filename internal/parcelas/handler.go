package parcelas

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/smdhc/parcerias/internal/platform/httpx"
	"github.com/smdhc/parcerias/internal/reconcile"
	"github.com/smdhc/parcerias/internal/shared"
)

// Handler serves the parcel endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the /parcelas routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listar)
	r.Get("/export-csv", h.exportarCSV)
	r.Get("/{id}", h.obter)
	r.Put("/{id}", h.atualizar)
	r.Delete("/{id}", h.excluir)
}

// MountTermoRoutes registers the termo-scoped bulk routes under
// /termos/{termo}.
func (h *Handler) MountTermoRoutes(r chi.Router) {
	r.Get("/parcelas", h.listarPorTermo)
	r.Put("/parcelas/bulk-update", h.atualizarPorTermo)
	r.Put("/parcelas/bulk-upsert", h.bulkUpsert)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrParcelaNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrTermoRequired),
		errors.Is(err, ErrSecaoInvalida), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Fail(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("parcelas: handler", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, "erro interno")
	}
}

func filtrosFromQuery(r *http.Request) (Filtros, error) {
	q := r.URL.Query()
	f := Filtros{
		Secao:             Secao(q.Get("section")),
		Termo:             q.Get("termo"),
		ParcelaTipo:       q.Get("parcela_tipo"),
		ParcelaNumero:     q.Get("parcela_numero"),
		Status:            q.Get("status"),
		StatusSecundario:  q.Get("status_secundario"),
		Observacoes:       q.Get("observacoes"),
		TipoTermo:         q.Get("tipo_termo"),
		ColunasExpandidas: q.Get("colunas_expandidas") == "1" || q.Get("colunas_expandidas") == "true",
	}
	if v := q.Get("vigencia"); v != "" {
		t, err := ParseData(v)
		if err != nil {
			return Filtros{}, err
		}
		f.VigenciaDia = &t
	}
	if v := q.Get("vigencia_mes"); v != "" {
		mes, err := strconv.Atoi(v)
		if err != nil || mes < 1 || mes > 12 {
			return Filtros{}, fmt.Errorf("%w: vigencia_mes", shared.ErrValidation)
		}
		f.VigenciaMes = mes
	}
	if v := q.Get("vigencia_ano"); v != "" {
		ano, err := strconv.Atoi(v)
		if err != nil {
			return Filtros{}, fmt.Errorf("%w: vigencia_ano", shared.ErrValidation)
		}
		f.VigenciaAno = ano
	}
	if v := q.Get("pagamento_de"); v != "" {
		t, err := ParseData(v)
		if err != nil {
			return Filtros{}, err
		}
		f.PagamentoDe = &t
	}
	if v := q.Get("pagamento_ate"); v != "" {
		t, err := ParseData(v)
		if err != nil {
			return Filtros{}, err
		}
		f.PagamentoAte = &t
	}
	if v := q.Get("ano_termino"); v != "" {
		ano, err := strconv.Atoi(v)
		if err != nil {
			return Filtros{}, fmt.Errorf("%w: ano_termino", shared.ErrValidation)
		}
		f.AnoTermino = ano
	}
	if q.Has("cor") {
		switch cor := reconcile.Cor(q.Get("cor")); cor {
		case reconcile.CorAmarela, reconcile.CorVerdeClaro, reconcile.CorVerdeEscuro:
			f.Cor = &cor
		case "nenhuma", reconcile.CorNenhuma:
			nenhuma := reconcile.CorNenhuma
			f.Cor = &nenhuma
		default:
			return Filtros{}, fmt.Errorf("%w: cor %q", shared.ErrValidation, cor)
		}
	}
	return f, nil
}

type listagemResponse struct {
	Success      bool               `json:"success"`
	Data         []ParcelaDetalhada `json:"data"`
	Total        int                `json:"total"`
	Pagina       int                `json:"pagina"`
	PorPagina    int                `json:"por_pagina"`
	TotalPaginas int                `json:"total_paginas"`
	Contadores
	Aviso string `json:"aviso,omitempty"`
}

func (h *Handler) listar(w http.ResponseWriter, r *http.Request) {
	f, err := filtrosFromQuery(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	pagina, _ := strconv.Atoi(r.URL.Query().Get("page"))

	listagem, err := h.service.Listar(r.Context(), f, pagina)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if listagem.Data == nil {
		listagem.Data = []ParcelaDetalhada{}
	}
	httpx.JSON(w, http.StatusOK, listagemResponse{
		Success:      true,
		Data:         listagem.Data,
		Total:        listagem.Total,
		Pagina:       listagem.Pagina,
		PorPagina:    listagem.PorPagina,
		TotalPaginas: listagem.TotalPaginas,
		Contadores:   listagem.Contadores,
		Aviso:        listagem.Aviso,
	})
}

func (h *Handler) exportarCSV(w http.ResponseWriter, r *http.Request) {
	f, err := filtrosFromQuery(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	data, _, err := h.service.ListarTudo(r.Context(), f)
	if err != nil {
		h.respondError(w, err)
		return
	}

	filename := "parcelas_" + time.Now().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := EscreverCSV(w, data); err != nil {
		h.logger.Error("parcelas: export csv", slog.Any("error", err))
	}
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id", shared.ErrValidation)
	}
	return id, nil
}

func (h *Handler) obter(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	p, err := h.service.Obter(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "data": p})
}

func (h *Handler) atualizar(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var delta Delta
	if err := httpx.DecodeJSON(r, &delta); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "corpo JSON inválido")
		return
	}
	if err := h.service.Atualizar(r.Context(), id, delta); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) excluir(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.service.Excluir(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) listarPorTermo(w http.ResponseWriter, r *http.Request) {
	termo := chi.URLParam(r, "termo")
	data, err := h.service.ListarPorTermo(r.Context(), termo)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if data == nil {
		data = []Parcela{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func (h *Handler) atualizarPorTermo(w http.ResponseWriter, r *http.Request) {
	termo := chi.URLParam(r, "termo")
	var delta Delta
	if err := httpx.DecodeJSON(r, &delta); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "corpo JSON inválido")
		return
	}
	afetadas, err := h.service.AtualizarPorTermo(r.Context(), termo, delta)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "afetadas": afetadas})
}

type bulkUpsertRequest struct {
	Parcels        []ParcelaInput `json:"parcels" validate:"required"`
	DeleteIDs      []int64        `json:"delete_ids"`
	IdempotencyKey string         `json:"idempotency_key"`
}

func (h *Handler) bulkUpsert(w http.ResponseWriter, r *http.Request) {
	termo := chi.URLParam(r, "termo")
	var req bulkUpsertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "corpo JSON inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.IdempotencyKey != "" {
		if _, err := uuid.Parse(req.IdempotencyKey); err != nil {
			httpx.Fail(w, http.StatusBadRequest, "idempotency_key deve ser um UUID")
			return
		}
	}
	resultado, err := h.service.BulkUpsert(r.Context(), termo, req.Parcels, req.DeleteIDs, req.IdempotencyKey)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "resultado": resultado})
}
