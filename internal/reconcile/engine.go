// Package reconcile classifies parcels against the scheduling invariants and
// the empenho mirror. The classification is deterministic and pure; the same
// rules are mirrored in SQL by the parcel listing so color filters paginate
// correctly.
package reconcile

import (
	"fmt"
	"math"
	"time"

	"github.com/smdhc/parcerias/internal/brl"
	"github.com/smdhc/parcerias/internal/empenhos"
	"github.com/smdhc/parcerias/internal/shared"
)

const (
	// TolCentavos is the monetary tolerance of every invariant check.
	TolCentavos = 0.01
	// PrazoRegularizacaoDias: an unpaid parcel whose vigency started more
	// than this many days ago without empenho cover needs regularization.
	PrazoRegularizacaoDias = 5
)

// Cor is the severity color of a parcel, priority order first match wins.
type Cor string

const (
	CorAmarela     Cor = "amarela"
	CorVerdeClaro  Cor = "verde_claro"
	CorVerdeEscuro Cor = "verde_escuro"
	CorNenhuma     Cor = ""
)

// MsgElementosDivergentes is the pendência attached when the element split
// does not add up to the predicted value.
const MsgElementosDivergentes = "Elementos 53/23+24 ≠ Previsto"

// MsgSomaDivergente renders the termo-level pendência.
func MsgSomaDivergente(somaParcelas, totalTermo float64) string {
	return fmt.Sprintf("Soma das parcelas (%s) ≠ Total do termo (%s)", brl.Money(somaParcelas), brl.Money(totalTermo))
}

// Row is the projection of a parcel the engine needs.
type Row struct {
	ID              int64
	Termo           string
	CodSof          string
	Ano             int
	Status          string
	Tipo            string
	Valor23         float64
	Valor24         float64
	ValorPrevisto   float64
	VigenciaInicial time.Time
}

// TermoTotais carries the termo-level aggregate joined once per termo, not
// recomputed per row.
type TermoTotais struct {
	SomaProgramada float64
	TotalPrevisto  float64
}

// Resultado is the classification attached to each listed parcel.
type Resultado struct {
	TemInconsistencia      bool     `json:"tem_inconsistencia"`
	NecessitaRegularizacao bool     `json:"necessita_regularizacao"`
	EmpenhoCobreValor      bool     `json:"empenho_cobre_valor"`
	Pendencias             []string `json:"pendencias"`
	Cor                    Cor      `json:"cor"`
}

var (
	statusNaoPago     = shared.Normalize("Não Pago")
	statusEncaminhado = shared.Normalize("Encaminhado para Pagamento")
)

func statusAberto(status string) bool {
	n := shared.Normalize(status)
	return n == statusNaoPago || n == statusEncaminhado
}

func divergente(a, b float64) bool {
	return math.Abs(a-b) > TolCentavos
}

// Classify evaluates every row against the severity lattice. Buckets may be
// empty (mirror degraded); rows then never reach the green shades.
func Classify(rows []Row, totais map[string]TermoTotais, buckets map[empenhos.Chave]empenhos.Bucket, hoje time.Time) map[int64]Resultado {
	out := make(map[int64]Resultado, len(rows))
	limite := hoje.AddDate(0, 0, -PrazoRegularizacaoDias)

	for _, row := range rows {
		res := Resultado{Pendencias: []string{}}

		if statusAberto(row.Status) && divergente(row.Valor23+row.Valor24, row.ValorPrevisto) {
			res.TemInconsistencia = true
			res.Pendencias = append(res.Pendencias, MsgElementosDivergentes)
		}
		if tot, ok := totais[row.Termo]; ok && divergente(tot.SomaProgramada, tot.TotalPrevisto) {
			res.TemInconsistencia = true
			res.Pendencias = append(res.Pendencias, MsgSomaDivergente(tot.SomaProgramada, tot.TotalPrevisto))
		}

		if res.TemInconsistencia {
			res.Cor = CorAmarela
			out[row.ID] = res
			continue
		}

		if shared.Normalize(row.Status) == statusNaoPago {
			bucket, temBucket := buckets[empenhos.Chave{CodSof: row.CodSof, Ano: row.Ano}]
			cobre := temBucket && row.CodSof != "" && bucket.Disponivel >= row.ValorPrevisto
			switch {
			case cobre:
				res.EmpenhoCobreValor = true
				res.Cor = CorVerdeEscuro
			case row.VigenciaInicial.Before(limite):
				res.NecessitaRegularizacao = true
				res.Cor = CorVerdeClaro
			}
		}

		out[row.ID] = res
	}
	return out
}

// JoinPendencias renders the display form of multiple pendências.
func JoinPendencias(pendencias []string) string {
	out := ""
	for i, p := range pendencias {
		if i > 0 {
			out += " | "
		}
		out += p
	}
	return out
}
