// Package parcelas owns the parcel store and the operator-facing query
// surface: CRUD, bulk edits by termo, the paginated listings with
// reconciliation and cascade folded in, and the CSV export.
package parcelas

import (
	"time"

	"github.com/smdhc/parcerias/internal/cascade"
	"github.com/smdhc/parcerias/internal/reconcile"
)

// Canonical status values. Comparisons are case- and accent-insensitive so
// legacy rows typed by hand still match.
const (
	StatusNaoPago     = "Não Pago"
	StatusEncaminhado = "Encaminhado para Pagamento"
	StatusPago        = "Pago"
)

// Parcel types. Programada rows make up the termo's planned total; Projetada
// rows project disbursements beyond the current vigency.
const (
	TipoProgramada = "Programada"
	TipoProjetada  = "Projetada"
)

// Administrative sub-statuses hidden by default from the Não Pago table.
var SubStatusOcultosNaoPago = []string{"Antigos", "Rescisão"}

// Parcela is one scheduled disbursement line.
type Parcela struct {
	ID                      int64      `json:"id"`
	TermoID                 string     `json:"termo_id"`
	VigenciaInicial         time.Time  `json:"vigencia_inicial"`
	VigenciaFinal           time.Time  `json:"vigencia_final"`
	ParcelaTipo             string     `json:"parcela_tipo"`
	ParcelaNumero           string     `json:"parcela_numero"`
	ValorElemento23         float64    `json:"valor_elemento_23"`
	ValorElemento24         float64    `json:"valor_elemento_24"`
	ValorPrevisto           float64    `json:"valor_previsto"`
	ValorSubtraido          float64    `json:"valor_subtraido"`
	ValorEncaminhado        float64    `json:"valor_encaminhado"`
	ValorPago               float64    `json:"valor_pago"`
	ParcelaStatus           string     `json:"parcela_status"`
	ParcelaStatusSecundario *string    `json:"parcela_status_secundario"`
	DataPagamento           *time.Time `json:"data_pagamento"`
	Observacoes             string     `json:"observacoes"`
	CriadoPor               string     `json:"criado_por"`
	CriadoEm                time.Time  `json:"criado_em"`
	AtualizadoPor           string     `json:"atualizado_por"`
	AtualizadoEm            time.Time  `json:"atualizado_em"`
}

// AnoFiscal is the fiscal year a parcel belongs to.
func (p Parcela) AnoFiscal() int {
	return p.VigenciaInicial.Year()
}

// TermoResumo carries the parent-termo metadata folded into expanded listings.
type TermoResumo struct {
	OSC      string `json:"osc"`
	CNPJ     string `json:"cnpj"`
	Projeto  string `json:"projeto"`
	SeiCeleb string `json:"sei_celeb"`
	SeiPC    string `json:"sei_pc"`
}

// Row is a listed parcel with the termo aggregates the engines need, straight
// from the listing query.
type Row struct {
	Parcela
	CodSof         string
	TotalPrevisto  float64
	SomaProgramada float64
	TemTermo       bool
	TermoResumo    TermoResumo
}

// ParcelaDetalhada is the operator-facing projection: the stored row plus the
// reconciliation verdict and the cascade attribution.
type ParcelaDetalhada struct {
	Parcela
	Classificacao reconcile.Resultado `json:"classificacao"`
	Atribuicao    cascade.Atribuicao  `json:"atribuicao"`
	Termo         *TermoResumo        `json:"termo,omitempty"`
}

// Secao selects one of the three operator tables.
type Secao string

const (
	SecaoNaoPago     Secao = "nao_pago"
	SecaoEncaminhado Secao = "encaminhado"
	SecaoPago        Secao = "pago"
)

// Status translates the section to its status predicate value.
func (s Secao) Status() string {
	switch s {
	case SecaoNaoPago:
		return StatusNaoPago
	case SecaoEncaminhado:
		return StatusEncaminhado
	case SecaoPago:
		return StatusPago
	}
	return ""
}

// Filtros are the listing filters of the query surface.
type Filtros struct {
	Secao            Secao
	Termo            string
	ParcelaTipo      string
	ParcelaNumero    string
	Status           string
	StatusSecundario string
	// OcultarSubStatus suppresses the administrative sub-statuses in the
	// Não Pago table unless the operator filters one explicitly.
	OcultarSubStatus  []string
	VigenciaDia       *time.Time
	VigenciaMes       int
	VigenciaAno       int
	PagamentoDe       *time.Time
	PagamentoAte      *time.Time
	Observacoes       string
	TipoTermo         string
	AnoTermino        int
	Cor               *reconcile.Cor
	ColunasExpandidas bool
}

// StatusEfetivo resolves the explicit status filter or the section default.
func (f Filtros) StatusEfetivo() string {
	if f.Status != "" {
		return f.Status
	}
	return f.Secao.Status()
}

// Contadores are the per-page attribute counts returned with each listing.
type Contadores struct {
	TotalPendencias         int `json:"total_pendencias"`
	TotalNecessitaPagamento int `json:"total_necessita_pagamento"`
	TotalEmpenhoCobre       int `json:"total_empenho_cobre"`
	TotalPagoIntegral       int `json:"total_pago_integral"`
	TotalPagoParcial        int `json:"total_pago_parcial"`
}

// Listagem is the assembled page.
type Listagem struct {
	Data         []ParcelaDetalhada
	Total        int
	Pagina       int
	PorPagina    int
	TotalPaginas int
	Contadores   Contadores
	Aviso        string
}

// camposEditaveis is the whitelist of mutable columns. Deltas carrying any
// other key have that key silently dropped.
var camposEditaveis = map[string]bool{
	"vigencia_inicial":          true,
	"vigencia_final":            true,
	"parcela_tipo":              true,
	"parcela_numero":            true,
	"valor_elemento_23":         true,
	"valor_elemento_24":         true,
	"valor_previsto":            true,
	"valor_subtraido":           true,
	"valor_encaminhado":         true,
	"valor_pago":                true,
	"parcela_status":            true,
	"parcela_status_secundario": true,
	"data_pagamento":            true,
	"observacoes":               true,
}

// Delta is a partial update keyed by column name, as received from the API.
type Delta map[string]any

// ErroLinha records a per-row validation failure in bulk operations.
type ErroLinha struct {
	Indice int    `json:"indice"`
	Erro   string `json:"erro"`
}
