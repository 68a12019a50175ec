package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/smdhc/parcerias/internal/empenhos"
	jobmetrics "github.com/smdhc/parcerias/internal/jobs"
	"github.com/smdhc/parcerias/internal/platform/db"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// EspelhoRefreshJob reloads the empenho mirror from the staging table SOF
// exports into, one expense element at a time, then bumps the bucket-cache
// version so listings see fresh availability.
type EspelhoRefreshJob struct {
	Pool     *pgxpool.Pool
	Empenhos *empenhos.Service
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewEspelhoRefreshJob wires dependencies for the refresh handler.
func NewEspelhoRefreshJob(pool *pgxpool.Pool, empenhosSvc *empenhos.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *EspelhoRefreshJob {
	return &EspelhoRefreshJob{
		Pool:     pool,
		Empenhos: empenhosSvc,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes espelho:refresh tasks.
func (j *EspelhoRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("espelho refresh: handler not configured")
	}
	var payload EspelhoRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	elementos := payload.ElementosPadrao()

	tracker := j.metrics().Track(TaskTypeEspelhoRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	inicio := j.now()
	logger.Info("iniciando refresh do espelho", slog.Any("elementos", elementos))

	g, gctx := errgroup.WithContext(ctx)
	for _, elemento := range elementos {
		g.Go(func() error {
			return j.refreshElemento(gctx, elemento)
		})
	}
	if err := g.Wait(); err != nil {
		resultErr = err
		logger.Error("refresh do espelho", slog.Any("error", err))
		return resultErr
	}

	if j.Empenhos != nil {
		if err := j.Empenhos.Invalidate(ctx); err != nil {
			logger.Warn("invalidar cache de buckets", slog.Any("error", err))
		}
	}

	logger.Info("refresh do espelho concluído", slog.Duration("duracao", time.Since(inicio)))
	return resultErr
}

// refreshElemento swaps every mirror line of one expense element for the
// staging content, in a single transaction so readers never see a half-loaded
// element.
func (j *EspelhoRefreshJob) refreshElemento(ctx context.Context, elemento string) error {
	refreshCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	return db.WithTx(refreshCtx, j.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(refreshCtx, `DELETE FROM empenhos_sof WHERE cod_item_desp_sof = $1`, elemento); err != nil {
			return err
		}
		_, err := tx.Exec(refreshCtx, `
INSERT INTO empenhos_sof (cod_eph, cod_nro_pcss_sof, ano_eph, val_tot_eph, val_tot_canc_eph, val_tot_pago_eph, cod_item_desp_sof)
SELECT cod_eph, cod_nro_pcss_sof, ano_eph, val_tot_eph, val_tot_canc_eph, val_tot_pago_eph, cod_item_desp_sof
FROM empenhos_sof_staging
WHERE cod_item_desp_sof = $1`, elemento)
		return err
	})
}

func (j *EspelhoRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeEspelhoRefresh))
	}
	return slog.Default().With(slog.String("job", TaskTypeEspelhoRefresh))
}

func (j *EspelhoRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *EspelhoRefreshJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
