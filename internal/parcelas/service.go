package parcelas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smdhc/parcerias/internal/cascade"
	"github.com/smdhc/parcerias/internal/empenhos"
	"github.com/smdhc/parcerias/internal/reconcile"
	"github.com/smdhc/parcerias/internal/shared"
)

var (
	ErrParcelaNotFound = errors.New("parcela não encontrada")
	ErrSecaoInvalida   = errors.New("seção inválida")
)

// IdempotencyGuard is the slice of the idempotency store the bulk mutations
// use: consume a key up front, release it when nothing was applied.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service assembles the operator view: stored rows plus reconciliation and
// cascade, and guards every mutation with the field whitelist and audit
// stamps.
type Service struct {
	repo     Repository
	empenhos *empenhos.Service
	audit    *shared.AuditLogger
	idem     IdempotencyGuard
	logger   *slog.Logger
	agora    func() time.Time
}

// NewService wires the parcel service. audit and idem may be nil in tests.
func NewService(repo Repository, emp *empenhos.Service, audit *shared.AuditLogger, idem IdempotencyGuard, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		empenhos: emp,
		audit:    audit,
		idem:     idem,
		logger:   logger,
		agora:    time.Now,
	}
}

func (s *Service) registrar(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	op := shared.OperatorFromContext(ctx)
	err := s.audit.Record(ctx, shared.AuditLog{
		Operator: op.Login,
		Action:   action,
		Entity:   "parcela",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		// Auditing is best effort and never aborts the primary operation.
		s.logger.Warn("parcelas: audit", slog.String("action", action), slog.Any("error", err))
	}
}

var statusEncaminhadoNorm = shared.Normalize(StatusEncaminhado)

// completarCascata loads the off-page Encaminhado parcels of every payment
// bucket the listed rows touch. Without them the cascade would restart each
// bucket at its full paid totals on every page.
func (s *Service) completarCascata(ctx context.Context, rows []Row, hoje time.Time) ([]Row, error) {
	vistos := make(map[int64]struct{}, len(rows))
	refSet := make(map[CascataRef]struct{})
	var refs []CascataRef
	for _, row := range rows {
		vistos[row.ID] = struct{}{}
		if shared.Normalize(row.ParcelaStatus) != statusEncaminhadoNorm {
			continue
		}
		ref := CascataRef{Termo: row.TermoID, Ano: row.AnoFiscal()}
		if _, ok := refSet[ref]; ok {
			continue
		}
		refSet[ref] = struct{}{}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil, nil
	}

	todas, err := s.repo.ListCascata(ctx, refs, hoje)
	if err != nil {
		return nil, err
	}
	var extras []Row
	for _, row := range todas {
		if _, ok := vistos[row.ID]; ok {
			continue
		}
		extras = append(extras, row)
	}
	return extras, nil
}

// montar runs both engines over the listed rows and assembles the
// operator-facing projection. extras are bucket mates outside the page: they
// take part in classification and cascade but never appear in the output.
func (s *Service) montar(rows, extras []Row, buckets map[empenhos.Chave]empenhos.Bucket, hoje time.Time, expandir bool) ([]ParcelaDetalhada, Contadores) {
	universo := rows
	if len(extras) > 0 {
		universo = make([]Row, 0, len(rows)+len(extras))
		universo = append(universo, rows...)
		universo = append(universo, extras...)
	}

	recRows := make([]reconcile.Row, 0, len(universo))
	totais := make(map[string]reconcile.TermoTotais)
	for _, row := range universo {
		recRows = append(recRows, reconcile.Row{
			ID:              row.ID,
			Termo:           row.TermoID,
			CodSof:          row.CodSof,
			Ano:             row.AnoFiscal(),
			Status:          row.ParcelaStatus,
			Tipo:            row.ParcelaTipo,
			Valor23:         row.ValorElemento23,
			Valor24:         row.ValorElemento24,
			ValorPrevisto:   row.ValorPrevisto,
			VigenciaInicial: row.VigenciaInicial,
		})
		if row.TemTermo {
			totais[row.TermoID] = reconcile.TermoTotais{
				SomaProgramada: row.SomaProgramada,
				TotalPrevisto:  row.TotalPrevisto,
			}
		}
	}
	classificacao := reconcile.Classify(recRows, totais, buckets, hoje)

	cascRows := make([]cascade.Row, 0, len(universo))
	for _, row := range universo {
		cascRows = append(cascRows, cascade.Row{
			ID:              row.ID,
			Termo:           row.TermoID,
			CodSof:          row.CodSof,
			Ano:             row.AnoFiscal(),
			Status:          row.ParcelaStatus,
			Amarela:         classificacao[row.ID].Cor == reconcile.CorAmarela,
			VigenciaInicial: row.VigenciaInicial,
			Valor23:         row.ValorElemento23,
			Valor24:         row.ValorElemento24,
		})
	}
	atribuicoes := cascade.Distribute(cascRows, buckets)

	var contadores Contadores
	out := make([]ParcelaDetalhada, 0, len(rows))
	for _, row := range rows {
		det := ParcelaDetalhada{
			Parcela:       row.Parcela,
			Classificacao: classificacao[row.ID],
			Atribuicao:    atribuicoes[row.ID],
		}
		if expandir && row.TemTermo {
			resumo := row.TermoResumo
			det.Termo = &resumo
		}
		if det.Classificacao.TemInconsistencia {
			contadores.TotalPendencias++
		}
		if det.Classificacao.NecessitaRegularizacao {
			contadores.TotalNecessitaPagamento++
		}
		if det.Classificacao.EmpenhoCobreValor {
			contadores.TotalEmpenhoCobre++
		}
		if det.Atribuicao.PagoIntegral {
			contadores.TotalPagoIntegral++
		}
		if det.Atribuicao.PagoParcial {
			contadores.TotalPagoParcial++
		}
		out = append(out, det)
	}
	return out, contadores
}

// Listar serves one page of the section table.
func (s *Service) Listar(ctx context.Context, f Filtros, pagina int) (Listagem, error) {
	if f.Secao != "" && f.Secao.Status() == "" {
		return Listagem{}, fmt.Errorf("%w: %q", ErrSecaoInvalida, f.Secao)
	}
	if f.Secao == SecaoNaoPago && f.StatusSecundario == "" {
		f.OcultarSubStatus = SubStatusOcultosNaoPago
	}
	hoje := s.agora()
	pag := shared.NewPagination(pagina, shared.DefaultPageSize, 0)

	rows, total, avisoSQL, err := s.repo.List(ctx, f, hoje, pag)
	if err != nil {
		return Listagem{}, err
	}
	extras, err := s.completarCascata(ctx, rows, hoje)
	if err != nil {
		return Listagem{}, err
	}
	buckets, aviso := s.empenhos.Buckets(ctx)
	if aviso == "" {
		aviso = avisoSQL
	}

	data, contadores := s.montar(rows, extras, buckets, hoje, f.ColunasExpandidas)
	pag = shared.NewPagination(pagina, shared.DefaultPageSize, total)
	return Listagem{
		Data:         data,
		Total:        total,
		Pagina:       pag.Page,
		PorPagina:    pag.PerPage,
		TotalPaginas: pag.TotalPages,
		Contadores:   contadores,
		Aviso:        aviso,
	}, nil
}

// ListarTudo serves the full filtered result, export path.
func (s *Service) ListarTudo(ctx context.Context, f Filtros) ([]ParcelaDetalhada, string, error) {
	hoje := s.agora()
	if f.Secao == SecaoNaoPago && f.StatusSecundario == "" {
		f.OcultarSubStatus = SubStatusOcultosNaoPago
	}
	rows, _, avisoSQL, err := s.repo.List(ctx, f, hoje, shared.Pagination{})
	if err != nil {
		return nil, "", err
	}
	// Filters can slice a bucket the same way pagination does.
	extras, err := s.completarCascata(ctx, rows, hoje)
	if err != nil {
		return nil, "", err
	}
	buckets, aviso := s.empenhos.Buckets(ctx)
	if aviso == "" {
		aviso = avisoSQL
	}
	data, _ := s.montar(rows, extras, buckets, hoje, true)
	return data, aviso, nil
}

// Obter returns one parcel.
func (s *Service) Obter(ctx context.Context, id int64) (Parcela, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Parcela{}, ErrParcelaNotFound
		}
		return Parcela{}, err
	}
	return p, nil
}

// ListarPorTermo returns every parcel of one termo for the collective edit
// screen.
func (s *Service) ListarPorTermo(ctx context.Context, termo string) ([]Parcela, error) {
	if termo == "" {
		return nil, shared.ErrTermoRequired
	}
	return s.repo.ListByTermo(ctx, termo)
}

// parseDelta converts an incoming delta into typed column values. Keys
// outside the editable whitelist are silently dropped; unparseable values are
// validation errors.
func parseDelta(delta Delta) (map[string]any, error) {
	campos := make(map[string]any)
	for chave, valor := range delta {
		if !camposEditaveis[chave] {
			continue
		}
		switch chave {
		case "vigencia_inicial", "vigencia_final":
			s, ok := valor.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s", shared.ErrValidation, chave)
			}
			t, err := ParseData(s)
			if err != nil {
				return nil, err
			}
			campos[chave] = t
		case "data_pagamento":
			if valor == nil {
				campos[chave] = nil
				continue
			}
			s, ok := valor.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s", shared.ErrValidation, chave)
			}
			if s == "" {
				campos[chave] = nil
				continue
			}
			t, err := ParseData(s)
			if err != nil {
				return nil, err
			}
			campos[chave] = t
		case "valor_elemento_23", "valor_elemento_24", "valor_previsto",
			"valor_subtraido", "valor_encaminhado", "valor_pago":
			switch v := valor.(type) {
			case float64:
				campos[chave] = v
			case string:
				parsed, err := ParseDinheiro(v)
				if err != nil {
					return nil, err
				}
				campos[chave] = parsed
			default:
				return nil, fmt.Errorf("%w: %s", shared.ErrValidation, chave)
			}
		case "parcela_status_secundario":
			if valor == nil {
				campos[chave] = nil
				continue
			}
			s, ok := valor.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s", shared.ErrValidation, chave)
			}
			campos[chave] = s
		default:
			s, ok := valor.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s", shared.ErrValidation, chave)
			}
			campos[chave] = s
		}
	}
	return campos, nil
}

func (s *Service) carimbar(ctx context.Context, campos map[string]any) {
	op := shared.OperatorFromContext(ctx)
	campos["atualizado_por"] = op.Login
	campos["atualizado_em"] = s.agora()
}

// Atualizar applies a whitelisted delta to one parcel.
func (s *Service) Atualizar(ctx context.Context, id int64, delta Delta) error {
	campos, err := parseDelta(delta)
	if err != nil {
		return err
	}
	if len(campos) == 0 {
		return nil
	}
	s.carimbar(ctx, campos)
	if err := s.repo.Update(ctx, id, campos); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ErrParcelaNotFound
		}
		return err
	}
	s.registrar(ctx, "parcela.atualizar", fmt.Sprint(id), map[string]any{"campos": chaves(campos)})
	return nil
}

// AtualizarPorTermo applies one delta to every parcel of the termo.
func (s *Service) AtualizarPorTermo(ctx context.Context, termo string, delta Delta) (int64, error) {
	if termo == "" {
		return 0, shared.ErrTermoRequired
	}
	campos, err := parseDelta(delta)
	if err != nil {
		return 0, err
	}
	if len(campos) == 0 {
		return 0, nil
	}
	s.carimbar(ctx, campos)
	afetadas, err := s.repo.BulkUpdateByTermo(ctx, termo, campos)
	if err != nil {
		return 0, err
	}
	s.registrar(ctx, "parcela.atualizar_termo", termo, map[string]any{"afetadas": afetadas, "campos": chaves(campos)})
	return afetadas, nil
}

// ResultadoLote reports a bulk-upsert outcome.
type ResultadoLote struct {
	Inseridas int         `json:"inseridas"`
	Alteradas int         `json:"alteradas"`
	Excluidas int         `json:"excluidas"`
	Erros     []ErroLinha `json:"erros,omitempty"`
}

func (s *Service) liberarChave(ctx context.Context, chave string) {
	if chave == "" || s.idem == nil {
		return
	}
	if err := s.idem.Delete(ctx, chave); err != nil {
		s.logger.Warn("parcelas: liberar chave de idempotência",
			slog.String("chave", chave), slog.Any("error", err))
	}
}

func validarEntrada(termo string, in ParcelaInput) error {
	if in.TermoID != "" && in.TermoID != termo {
		return fmt.Errorf("%w: parcela de outro termo", shared.ErrValidation)
	}
	if in.VigenciaInicial.IsZero() {
		return fmt.Errorf("%w: vigência inicial obrigatória", shared.ErrValidation)
	}
	return nil
}

// BulkUpsert replaces parcels of one termo: rows with id are updated, rows
// without are inserted, ids in deleteIDs are removed. Rows failing validation
// are skipped and reported; the validated remainder persists atomically.
func (s *Service) BulkUpsert(ctx context.Context, termo string, entradas []ParcelaInput, deleteIDs []int64, chaveIdem string) (ResultadoLote, error) {
	if termo == "" {
		return ResultadoLote{}, shared.ErrTermoRequired
	}
	if chaveIdem != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, chaveIdem, "parcelas.bulk_upsert"); err != nil {
			return ResultadoLote{}, err
		}
	}

	op := shared.OperatorFromContext(ctx)
	agora := s.agora()
	var updates, inserts []Parcela
	var erros []ErroLinha
	for i, in := range entradas {
		if err := validarEntrada(termo, in); err != nil {
			erros = append(erros, ErroLinha{Indice: i, Erro: err.Error()})
			continue
		}
		p := in.Parcela()
		p.TermoID = termo
		p.AtualizadoPor = op.Login
		p.AtualizadoEm = agora
		if p.ID > 0 {
			updates = append(updates, p)
		} else {
			p.CriadoPor = op.Login
			p.CriadoEm = agora
			inserts = append(inserts, p)
		}
	}

	ins, upd, del, err := s.repo.BulkUpsertByTermo(ctx, termo, updates, inserts, deleteIDs)
	if err != nil {
		// The transaction rolled back, so the key must not block a retry.
		s.liberarChave(ctx, chaveIdem)
		if errors.Is(err, shared.ErrNotFound) {
			return ResultadoLote{}, ErrParcelaNotFound
		}
		return ResultadoLote{}, err
	}
	s.registrar(ctx, "parcela.lote", termo, map[string]any{
		"inseridas": ins, "alteradas": upd, "excluidas": del, "erros": len(erros),
	})
	return ResultadoLote{Inseridas: ins, Alteradas: upd, Excluidas: del, Erros: erros}, nil
}

// InserirLote materializes parcels from the cronogram. In upsert mode rows
// colliding on (termo, vigência inicial) update the existing parcel instead.
func (s *Service) InserirLote(ctx context.Context, entradas []ParcelaInput, upsert bool) (ResultadoLote, error) {
	op := shared.OperatorFromContext(ctx)
	agora := s.agora()

	var lote []Parcela
	var erros []ErroLinha
	for i, in := range entradas {
		if in.TermoID == "" {
			erros = append(erros, ErroLinha{Indice: i, Erro: shared.ErrTermoRequired.Error()})
			continue
		}
		if in.VigenciaInicial.IsZero() {
			erros = append(erros, ErroLinha{Indice: i, Erro: "vigência inicial obrigatória"})
			continue
		}
		p := in.Parcela()
		p.ID = 0
		if p.ParcelaStatus == "" {
			p.ParcelaStatus = StatusNaoPago
		}
		if p.ParcelaTipo == "" {
			p.ParcelaTipo = TipoProgramada
		}
		p.CriadoPor = op.Login
		p.CriadoEm = agora
		p.AtualizadoPor = op.Login
		p.AtualizadoEm = agora
		lote = append(lote, p)
	}

	ins, upd, err := s.repo.InsertLote(ctx, lote, upsert)
	if err != nil {
		return ResultadoLote{}, err
	}
	s.registrar(ctx, "parcela.materializar", "", map[string]any{
		"inseridas": ins, "alteradas": upd, "erros": len(erros),
	})
	return ResultadoLote{Inseridas: ins, Alteradas: upd, Erros: erros}, nil
}

// Excluir removes one parcel.
func (s *Service) Excluir(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ErrParcelaNotFound
		}
		return err
	}
	s.registrar(ctx, "parcela.excluir", fmt.Sprint(id), nil)
	return nil
}

func chaves(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if k == "atualizado_por" || k == "atualizado_em" {
			continue
		}
		out = append(out, k)
	}
	return out
}
