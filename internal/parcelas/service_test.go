package parcelas

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smdhc/parcerias/internal/empenhos"
	"github.com/smdhc/parcerias/internal/reconcile"
	"github.com/smdhc/parcerias/internal/shared"
)

type fakeRepo struct {
	rows       []Row
	total      int
	aviso      string
	listErr    error
	lastFiltro Filtros
	lastPag    shared.Pagination

	parcelas map[int64]Parcela

	updateID     int64
	updateCampos map[string]any
	updateErr    error

	cascataRefs []CascataRef
	cascataRows []Row

	bulkTermo   string
	bulkUpdates []Parcela
	bulkInserts []Parcela
	bulkDeletes []int64
	bulkErr     error

	loteRows   []Parcela
	loteUpsert bool

	deletedID int64
	deleteErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{parcelas: make(map[int64]Parcela)}
}

func (f *fakeRepo) List(_ context.Context, filtros Filtros, _ time.Time, pag shared.Pagination) ([]Row, int, string, error) {
	f.lastFiltro = filtros
	f.lastPag = pag
	return f.rows, f.total, f.aviso, f.listErr
}

func (f *fakeRepo) ListCascata(_ context.Context, refs []CascataRef, _ time.Time) ([]Row, error) {
	f.cascataRefs = refs
	return f.cascataRows, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Parcela, error) {
	p, ok := f.parcelas[id]
	if !ok {
		return Parcela{}, shared.ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) ListByTermo(_ context.Context, termo string) ([]Parcela, error) {
	var out []Parcela
	for _, p := range f.parcelas {
		if p.TermoID == termo {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) Update(_ context.Context, id int64, campos map[string]any) error {
	f.updateID = id
	f.updateCampos = campos
	return f.updateErr
}

func (f *fakeRepo) BulkUpdateByTermo(_ context.Context, termo string, campos map[string]any) (int64, error) {
	f.bulkTermo = termo
	f.updateCampos = campos
	return 3, nil
}

func (f *fakeRepo) BulkUpsertByTermo(_ context.Context, termo string, updates, inserts []Parcela, deleteIDs []int64) (int, int, int, error) {
	f.bulkTermo = termo
	f.bulkUpdates = updates
	f.bulkInserts = inserts
	f.bulkDeletes = deleteIDs
	if f.bulkErr != nil {
		return 0, 0, 0, f.bulkErr
	}
	return len(inserts), len(updates), len(deleteIDs), nil
}

func (f *fakeRepo) InsertLote(_ context.Context, rows []Parcela, upsert bool) (int, int, error) {
	f.loteRows = rows
	f.loteUpsert = upsert
	return len(rows), 0, nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	f.deletedID = id
	return f.deleteErr
}

type stubEspelho struct {
	buckets map[empenhos.Chave]empenhos.Bucket
	err     error
}

func (s *stubEspelho) LoadBuckets(context.Context) (map[empenhos.Chave]empenhos.Bucket, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.buckets, nil
}

func (s *stubEspelho) LoadEntradas(context.Context, string) ([]empenhos.Entrada, error) {
	return nil, s.err
}

var fixo = time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)

func newTestService(repo Repository, espelho *stubEspelho) *Service {
	logger := slog.New(slog.DiscardHandler)
	if espelho == nil {
		espelho = &stubEspelho{}
	}
	svc := NewService(repo, empenhos.NewService(espelho, nil, logger), nil, nil, logger)
	svc.agora = func() time.Time { return fixo }
	return svc
}

func ctxComOperador() context.Context {
	return shared.ContextWithOperator(context.Background(), shared.Operator{Login: "d123456", Nome: "Analista"})
}

func parcelaBase(id int64, termo string) Parcela {
	return Parcela{
		ID:              id,
		TermoID:         termo,
		VigenciaInicial: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		VigenciaFinal:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		ParcelaTipo:     TipoProgramada,
		ValorElemento23: 1000,
		ValorElemento24: 500,
		ValorPrevisto:   1500,
		ParcelaStatus:   StatusNaoPago,
	}
}

func TestListarMontaClassificacaoEContadores(t *testing.T) {
	repo := newFakeRepo()
	chave := empenhos.Chave{CodSof: "60251112025", Ano: 2025}

	coberta := Row{Parcela: parcelaBase(1, "TC/001/2025"), CodSof: "60251112025",
		TotalPrevisto: 3000, SomaProgramada: 3000, TemTermo: true,
		TermoResumo: TermoResumo{OSC: "Instituto Alfa"}}
	divergente := Row{Parcela: parcelaBase(2, "TC/001/2025"), CodSof: "60251112025",
		TotalPrevisto: 3000, SomaProgramada: 3000, TemTermo: true}
	divergente.ValorElemento23 = 900 // 900+500 != 1500
	repo.rows = []Row{coberta, divergente}
	repo.total = 2

	svc := newTestService(repo, &stubEspelho{buckets: map[empenhos.Chave]empenhos.Bucket{
		chave: {Disponivel: 5000, Linhas: 1},
	}})

	lst, err := svc.Listar(context.Background(), Filtros{Secao: SecaoNaoPago, ColunasExpandidas: true}, 1)
	require.NoError(t, err)
	require.Len(t, lst.Data, 2)
	require.Equal(t, 2, lst.Total)
	require.Equal(t, 1, lst.Pagina)
	require.Equal(t, shared.DefaultPageSize, lst.PorPagina)
	require.Equal(t, 1, lst.TotalPaginas)

	require.Equal(t, reconcile.CorVerdeEscuro, lst.Data[0].Classificacao.Cor)
	require.NotNil(t, lst.Data[0].Termo)
	require.Equal(t, "Instituto Alfa", lst.Data[0].Termo.OSC)

	require.Equal(t, reconcile.CorAmarela, lst.Data[1].Classificacao.Cor)
	require.Equal(t, 1, lst.Contadores.TotalPendencias)
	require.Equal(t, 1, lst.Contadores.TotalEmpenhoCobre)
}

func TestListarOcultaSubStatusAdministrativos(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	_, err := svc.Listar(context.Background(), Filtros{Secao: SecaoNaoPago}, 1)
	require.NoError(t, err)
	require.Equal(t, SubStatusOcultosNaoPago, repo.lastFiltro.OcultarSubStatus)

	// An explicit sub-status filter disables the hiding.
	_, err = svc.Listar(context.Background(), Filtros{Secao: SecaoNaoPago, StatusSecundario: "Antigos"}, 1)
	require.NoError(t, err)
	require.Empty(t, repo.lastFiltro.OcultarSubStatus)
}

func TestListarSecaoInvalida(t *testing.T) {
	svc := newTestService(newFakeRepo(), nil)
	_, err := svc.Listar(context.Background(), Filtros{Secao: "paga"}, 1)
	require.ErrorIs(t, err, ErrSecaoInvalida)
}

func TestListarPropagaAvisoDoEspelho(t *testing.T) {
	repo := newFakeRepo()
	repo.rows = []Row{{Parcela: parcelaBase(1, "TC/001/2025"), CodSof: "123"}}
	repo.total = 1
	svc := newTestService(repo, &stubEspelho{err: empenhos.ErrEspelhoIndisponivel})

	lst, err := svc.Listar(context.Background(), Filtros{}, 1)
	require.NoError(t, err)
	require.Equal(t, empenhos.AvisoEspelhoIndisponivel, lst.Aviso)
	// Without the mirror nothing is covered.
	require.False(t, lst.Data[0].Classificacao.EmpenhoCobreValor)
}

func parcelaEncaminhada(id int64, termo string, vigencia time.Time, valor23 float64) Row {
	return Row{Parcela: Parcela{
		ID:              id,
		TermoID:         termo,
		VigenciaInicial: vigencia,
		ParcelaTipo:     TipoProgramada,
		ValorElemento23: valor23,
		ValorPrevisto:   valor23,
		ParcelaStatus:   StatusEncaminhado,
	}, CodSof: "60251112024"}
}

// The cascade runs over whole (termo, ano) buckets even when the page shows
// only part of one: the off-page members consume their share first.
func TestListarCascataNaoReiniciaEntrePaginas(t *testing.T) {
	chave := empenhos.Chave{CodSof: "60251112024", Ano: 2024}
	espelho := &stubEspelho{buckets: map[empenhos.Chave]empenhos.Bucket{
		chave: {Pago23: 1000, Linhas: 1},
	}}
	p1 := parcelaEncaminhada(1, "TC/009/2024", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1000)
	p2 := parcelaEncaminhada(2, "TC/009/2024", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 1000)

	// Page with the first parcel: it consumes the bucket's paid total.
	repo := newFakeRepo()
	repo.rows = []Row{p1}
	repo.total = 2
	repo.cascataRows = []Row{p1, p2}
	svc := newTestService(repo, espelho)

	lst, err := svc.Listar(context.Background(), Filtros{}, 1)
	require.NoError(t, err)
	require.Equal(t, []CascataRef{{Termo: "TC/009/2024", Ano: 2024}}, repo.cascataRefs)
	require.InDelta(t, 1000, lst.Data[0].Atribuicao.ValorPago23, 0.001)
	require.True(t, lst.Data[0].Atribuicao.PagoIntegral)
	require.Equal(t, 1, lst.Contadores.TotalPagoIntegral)

	// Page with the second parcel: nothing is left for it, and the counter
	// only reflects the page.
	repo2 := newFakeRepo()
	repo2.rows = []Row{p2}
	repo2.total = 2
	repo2.cascataRows = []Row{p1, p2}
	svc2 := newTestService(repo2, espelho)

	lst2, err := svc2.Listar(context.Background(), Filtros{}, 2)
	require.NoError(t, err)
	require.Zero(t, lst2.Data[0].Atribuicao.ValorPago23)
	require.False(t, lst2.Data[0].Atribuicao.PagoIntegral)
	require.False(t, lst2.Data[0].Atribuicao.PagoParcial)
	require.Zero(t, lst2.Contadores.TotalPagoIntegral)
}

func TestListarSemEncaminhadasNaoConsultaCascata(t *testing.T) {
	repo := newFakeRepo()
	repo.rows = []Row{{Parcela: parcelaBase(1, "TC/001/2025")}}
	repo.total = 1
	svc := newTestService(repo, nil)

	_, err := svc.Listar(context.Background(), Filtros{}, 1)
	require.NoError(t, err)
	require.Empty(t, repo.cascataRefs)
}

func TestAtualizarAplicaWhitelistECarimbos(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	err := svc.Atualizar(ctxComOperador(), 7, Delta{
		"observacoes":    "reprogramada",
		"valor_pago":     "1.234,56",
		"id":             99,     // not editable, dropped
		"criado_por":     "hack", // not editable, dropped
		"data_pagamento": "15/08/2025",
	})
	require.NoError(t, err)
	require.EqualValues(t, 7, repo.updateID)

	campos := repo.updateCampos
	require.Equal(t, "reprogramada", campos["observacoes"])
	require.InDelta(t, 1234.56, campos["valor_pago"].(float64), 0.001)
	require.Equal(t, time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC), campos["data_pagamento"])
	require.NotContains(t, campos, "id")
	require.NotContains(t, campos, "criado_por")
	require.Equal(t, "d123456", campos["atualizado_por"])
	require.Equal(t, fixo, campos["atualizado_em"])
}

func TestAtualizarValorInvalido(t *testing.T) {
	svc := newTestService(newFakeRepo(), nil)
	err := svc.Atualizar(ctxComOperador(), 7, Delta{"valor_pago": "abc"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAtualizarSemCamposEditaveisNaoTocaStore(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	err := svc.Atualizar(ctxComOperador(), 7, Delta{"id": 99, "termo_id": "x"})
	require.NoError(t, err)
	require.Zero(t, repo.updateID)
}

func TestAtualizarNaoEncontrada(t *testing.T) {
	repo := newFakeRepo()
	repo.updateErr = shared.ErrNotFound
	svc := newTestService(repo, nil)

	err := svc.Atualizar(ctxComOperador(), 404, Delta{"observacoes": "x"})
	require.ErrorIs(t, err, ErrParcelaNotFound)
}

func TestAtualizarPorTermo(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	afetadas, err := svc.AtualizarPorTermo(ctxComOperador(), "TC/001/2025", Delta{"parcela_status": StatusEncaminhado})
	require.NoError(t, err)
	require.EqualValues(t, 3, afetadas)
	require.Equal(t, "TC/001/2025", repo.bulkTermo)
	require.Equal(t, StatusEncaminhado, repo.updateCampos["parcela_status"])

	_, err = svc.AtualizarPorTermo(ctxComOperador(), "", Delta{"observacoes": "x"})
	require.ErrorIs(t, err, shared.ErrTermoRequired)
}

func TestBulkUpsertSeparaOperacoesEReportaErros(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	vig := Data{Time: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)}
	entradas := []ParcelaInput{
		{ID: 10, TermoID: "TC/001/2025", VigenciaInicial: vig, ValorPrevisto: 100},
		{VigenciaInicial: vig, ValorPrevisto: 200},
		{TermoID: "TC/OUTRO/2025", VigenciaInicial: vig},
		{TermoID: "TC/001/2025"},
	}
	res, err := svc.BulkUpsert(ctxComOperador(), "TC/001/2025", entradas, []int64{55}, "")
	require.NoError(t, err)
	require.Equal(t, 1, res.Inseridas)
	require.Equal(t, 1, res.Alteradas)
	require.Equal(t, 1, res.Excluidas)
	require.Len(t, res.Erros, 2)
	require.Equal(t, 2, res.Erros[0].Indice)
	require.Equal(t, 3, res.Erros[1].Indice)

	require.Len(t, repo.bulkUpdates, 1)
	require.EqualValues(t, 10, repo.bulkUpdates[0].ID)
	require.Equal(t, "d123456", repo.bulkUpdates[0].AtualizadoPor)
	require.True(t, repo.bulkUpdates[0].CriadoEm.IsZero())

	require.Len(t, repo.bulkInserts, 1)
	require.Equal(t, "TC/001/2025", repo.bulkInserts[0].TermoID)
	require.Equal(t, "d123456", repo.bulkInserts[0].CriadoPor)
	require.Equal(t, fixo, repo.bulkInserts[0].CriadoEm)

	require.Equal(t, []int64{55}, repo.bulkDeletes)
}

type fakeIdem struct {
	checked  []string
	deleted  []string
	checkErr error
}

func (f *fakeIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	f.checked = append(f.checked, key)
	return f.checkErr
}

func (f *fakeIdem) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

// A failed store run rolled back, so the consumed key is released and the
// client's retry is not answered with a conflict.
func TestBulkUpsertLiberaChaveQuandoStoreFalha(t *testing.T) {
	repo := newFakeRepo()
	repo.bulkErr = errors.New("conexão perdida")
	guard := &fakeIdem{}
	svc := newTestService(repo, nil)
	svc.idem = guard

	vig := Data{Time: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)}
	entradas := []ParcelaInput{{TermoID: "TC/001/2025", VigenciaInicial: vig, ValorPrevisto: 100}}

	_, err := svc.BulkUpsert(ctxComOperador(), "TC/001/2025", entradas, nil, "4fa6ecaf-0000-0000-0000-000000000001")
	require.Error(t, err)
	require.Equal(t, []string{"4fa6ecaf-0000-0000-0000-000000000001"}, guard.checked)
	require.Equal(t, []string{"4fa6ecaf-0000-0000-0000-000000000001"}, guard.deleted)
}

func TestBulkUpsertMantemChaveQuandoAplica(t *testing.T) {
	repo := newFakeRepo()
	guard := &fakeIdem{}
	svc := newTestService(repo, nil)
	svc.idem = guard

	vig := Data{Time: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)}
	entradas := []ParcelaInput{{TermoID: "TC/001/2025", VigenciaInicial: vig, ValorPrevisto: 100}}

	_, err := svc.BulkUpsert(ctxComOperador(), "TC/001/2025", entradas, nil, "4fa6ecaf-0000-0000-0000-000000000002")
	require.NoError(t, err)
	require.Empty(t, guard.deleted)
}

func TestBulkUpsertChaveRepetida(t *testing.T) {
	repo := newFakeRepo()
	guard := &fakeIdem{checkErr: shared.ErrIdempotencyConflict}
	svc := newTestService(repo, nil)
	svc.idem = guard

	_, err := svc.BulkUpsert(ctxComOperador(), "TC/001/2025", nil, nil, "4fa6ecaf-0000-0000-0000-000000000003")
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Empty(t, repo.bulkTermo)
	require.Empty(t, guard.deleted)
}

func TestBulkUpsertTermoObrigatorio(t *testing.T) {
	svc := newTestService(newFakeRepo(), nil)
	_, err := svc.BulkUpsert(ctxComOperador(), "", nil, nil, "")
	require.ErrorIs(t, err, shared.ErrTermoRequired)
}

func TestInserirLoteAplicaPadroes(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	vig := Data{Time: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	res, err := svc.InserirLote(ctxComOperador(), []ParcelaInput{
		{ID: 42, TermoID: "TC/002/2025", VigenciaInicial: vig, ValorPrevisto: 700},
		{VigenciaInicial: vig},
	}, true)
	require.NoError(t, err)
	require.Equal(t, 1, res.Inseridas)
	require.Len(t, res.Erros, 1)

	require.True(t, repo.loteUpsert)
	p := repo.loteRows[0]
	require.Zero(t, p.ID)
	require.Equal(t, StatusNaoPago, p.ParcelaStatus)
	require.Equal(t, TipoProgramada, p.ParcelaTipo)
	require.Equal(t, "d123456", p.CriadoPor)
}

func TestExcluirNaoEncontrada(t *testing.T) {
	repo := newFakeRepo()
	repo.deleteErr = shared.ErrNotFound
	svc := newTestService(repo, nil)
	require.ErrorIs(t, svc.Excluir(ctxComOperador(), 1), ErrParcelaNotFound)
}

func TestObter(t *testing.T) {
	repo := newFakeRepo()
	repo.parcelas[9] = parcelaBase(9, "TC/003/2025")
	svc := newTestService(repo, nil)

	p, err := svc.Obter(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, "TC/003/2025", p.TermoID)

	_, err = svc.Obter(context.Background(), 10)
	require.ErrorIs(t, err, ErrParcelaNotFound)
}
