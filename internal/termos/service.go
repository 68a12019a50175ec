package termos

import (
	"context"
	"errors"
	"log/slog"

	"github.com/smdhc/parcerias/internal/shared"
)

// DefaultToleranciaMeses is how many months of shortfall trigger the
// prorrogation listing. The business rule is disputed between "short by one"
// and "short by more than one", so the tolerance is a knob and termos exactly
// at the boundary carry the Revisar flag.
const DefaultToleranciaMeses = 1

// Service computes termo availability from vigency and materialized parcels.
type Service struct {
	repo            Repository
	logger          *slog.Logger
	toleranciaMeses int
}

// NewService builds the Service. toleranciaMeses <= 0 falls back to the
// default.
func NewService(repo Repository, logger *slog.Logger, toleranciaMeses int) *Service {
	if toleranciaMeses <= 0 {
		toleranciaMeses = DefaultToleranciaMeses
	}
	return &Service{repo: repo, logger: logger, toleranciaMeses: toleranciaMeses}
}

// Get returns one termo.
func (s *Service) Get(ctx context.Context, numeroTermo string) (Termo, error) {
	if numeroTermo == "" {
		return Termo{}, shared.ErrTermoRequired
	}
	return s.repo.Get(ctx, numeroTermo)
}

// ErrVigenciaInvalida marks termos whose vigency range is inverted.
var ErrVigenciaInvalida = errors.New("vigência do termo inválida")

// Disponibilidade evaluates one termo against the month-boundary rules.
func (s *Service) Disponibilidade(tc TermoContagem) (Disponibilidade, error) {
	esperados := shared.ExpectedParcelMonths(tc.Inicio, tc.Final)
	if esperados == 0 && tc.Final.Before(tc.Inicio) {
		return Disponibilidade{}, ErrVigenciaInvalida
	}
	faltam := esperados - tc.ParcelasProgramadas
	if faltam < 0 {
		faltam = 0
	}
	return Disponibilidade{
		Termo:                tc.Termo,
		MesesEsperados:       esperados,
		MesesMaterializados:  tc.ParcelasProgramadas,
		MesesFaltantes:       faltam,
		NecessitaProrrogacao: faltam >= s.toleranciaMeses,
		Revisar:              faltam == s.toleranciaMeses,
	}, nil
}

// Disponiveis lists every termo needing extension: the adjusted vigency
// expects more Programada months than were materialized, beyond the
// tolerance.
func (s *Service) Disponiveis(ctx context.Context) ([]Disponibilidade, error) {
	contagens, err := s.repo.ListComContagem(ctx)
	if err != nil {
		return nil, err
	}

	var out []Disponibilidade
	for _, tc := range contagens {
		disp, err := s.Disponibilidade(tc)
		if err != nil {
			s.logger.Warn("termos: vigência inválida", slog.String("termo", tc.NumeroTermo))
			continue
		}
		if disp.NecessitaProrrogacao {
			out = append(out, disp)
		}
	}
	return out, nil
}
