package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/smdhc/parcerias/internal/cronograma"
	"github.com/smdhc/parcerias/internal/empenhos"
	"github.com/smdhc/parcerias/internal/observability"
	"github.com/smdhc/parcerias/internal/parcelas"
	"github.com/smdhc/parcerias/internal/termos"
	"github.com/smdhc/parcerias/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	ParcelasHandler   *parcelas.Handler
	CronogramaHandler *cronograma.Handler
	TermosHandler     *termos.Handler
	EmpenhosHandler   *empenhos.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with the API surface.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/parcelas", func(r chi.Router) {
			params.ParcelasHandler.MountRoutes(r)
			// POST /parcelas/add materializes a cronogram.
			params.CronogramaHandler.MountParcelasRoutes(r)
		})
		r.Route("/cronograma", params.CronogramaHandler.MountRoutes)
		r.Route("/empenhos", params.EmpenhosHandler.MountRoutes)
		r.Route("/termos", func(r chi.Router) {
			params.TermosHandler.MountRoutes(r)
			r.Route("/{termo}", func(r chi.Router) {
				params.TermosHandler.MountTermoRoutes(r)
				params.ParcelasHandler.MountTermoRoutes(r)
			})
		})
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
