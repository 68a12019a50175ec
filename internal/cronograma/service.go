package cronograma

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/smdhc/parcerias/internal/parcelas"
	"github.com/smdhc/parcerias/internal/shared"
)

// MesInput is one incoming cronogram row from the save payload. Dates accept
// ISO or dd/mm/yyyy and values accept Brazilian notation.
type MesInput struct {
	NomeMes       parcelas.Data     `json:"nome_mes" validate:"required"`
	ValorMes23    parcelas.Dinheiro `json:"valor_mes_23"`
	ValorMes24    parcelas.Dinheiro `json:"valor_mes_24"`
	ValorMes      parcelas.Dinheiro `json:"valor_mes"`
	ParcelaNumero string            `json:"parcela_numero"`
}

// Service implements the cronogram operations. Saving never touches parcels;
// materialization is an explicit second step handed to the parcel store.
type Service struct {
	repo     Repository
	parcelas *parcelas.Service
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService builds the Service.
func NewService(repo Repository, parcelasSvc *parcelas.Service, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, parcelas: parcelasSvc, audit: audit, logger: logger}
}

func (s *Service) registrar(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	op := shared.OperatorFromContext(ctx)
	err := s.audit.Record(ctx, shared.AuditLog{
		Operator: op.Login,
		Action:   action,
		Entity:   "cronograma",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("cronograma: audit", slog.String("action", action), slog.Any("error", err))
	}
}

// SaveCronograma replaces every cronogram row of the termo with the given
// plan, in one transaction. Rows are normalized to the first day of their
// month and valor_mes is recomputed as the sum of the two elements.
func (s *Service) SaveCronograma(ctx context.Context, termo string, entradas []MesInput, infoAlteracao string) (ResultadoCronograma, error) {
	if termo == "" {
		return ResultadoCronograma{}, shared.ErrTermoRequired
	}
	if infoAlteracao == "" {
		infoAlteracao = InfoAlteracaoBase
	}

	meses := make([]Mes, 0, len(entradas))
	for i, in := range entradas {
		if in.NomeMes.IsZero() {
			return ResultadoCronograma{}, fmt.Errorf("%w: linha %d sem nome_mes", shared.ErrValidation, i+1)
		}
		nome := in.NomeMes.Time
		nome = time.Date(nome.Year(), nome.Month(), 1, 0, 0, 0, 0, time.UTC)
		meses = append(meses, Mes{
			TermoID:       termo,
			NomeMes:       nome,
			ValorMes23:    float64(in.ValorMes23),
			ValorMes24:    float64(in.ValorMes24),
			ValorMes:      float64(in.ValorMes23) + float64(in.ValorMes24),
			ParcelaNumero: in.ParcelaNumero,
			InfoAlteracao: infoAlteracao,
		})
	}
	sort.SliceStable(meses, func(a, b int) bool { return meses[a].NomeMes.Before(meses[b].NomeMes) })

	excluidas, inseridas, err := s.repo.ReplaceForTermo(ctx, termo, meses)
	if err != nil {
		return ResultadoCronograma{}, fmt.Errorf("cronograma: salvar termo %s: %w", termo, err)
	}
	s.registrar(ctx, "cronograma.salvar", termo, map[string]any{
		"excluidas": excluidas, "inseridas": inseridas, "info_alteracao": infoAlteracao,
	})
	return ResultadoCronograma{Excluidas: excluidas, Inseridas: inseridas}, nil
}

// LoadCronograma returns the stored rows sorted by month.
func (s *Service) LoadCronograma(ctx context.Context, termo string) ([]Mes, error) {
	if termo == "" {
		return nil, shared.ErrTermoRequired
	}
	meses, err := s.repo.ListForTermo(ctx, termo)
	if err != nil {
		return nil, fmt.Errorf("cronograma: carregar termo %s: %w", termo, err)
	}
	return meses, nil
}

// Materialize inserts the operator-confirmed parcels derived from the
// cronogram into the parcel store.
func (s *Service) Materialize(ctx context.Context, entradas []parcelas.ParcelaInput, upsert bool) (parcelas.ResultadoLote, error) {
	return s.parcelas.InserirLote(ctx, entradas, upsert)
}
