// Package cascade distributes the amounts actually paid on each empenho
// bucket over the parcels queued for payment. The distribution is a pure
// view-time projection: it is recomputed per listing and never persisted, so
// the mirror and the parcel store never need to advance in lockstep.
package cascade

import (
	"sort"
	"time"

	"github.com/smdhc/parcerias/internal/empenhos"
	"github.com/smdhc/parcerias/internal/shared"
)

// tolerance under which a parcel counts as fully paid.
const tolCentavos = 0.01

// Row is the projection of a parcel the cascade needs. Amarela carries the
// reconciliation verdict: inconsistent parcels must not silently consume
// payment capacity.
type Row struct {
	ID              int64
	Termo           string
	CodSof          string
	Ano             int
	Status          string
	Amarela         bool
	VigenciaInicial time.Time
	Valor23         float64
	Valor24         float64
}

// Atribuicao is the per-parcel share of the bucket's paid totals.
type Atribuicao struct {
	ValorPago23  float64 `json:"valor_pago_23"`
	ValorPago24  float64 `json:"valor_pago_24"`
	PagoIntegral bool    `json:"pago_integral"`
	PagoParcial  bool    `json:"pago_parcial"`
}

var statusEncaminhado = shared.Normalize("Encaminhado para Pagamento")

type chaveGrupo struct {
	termo string
	ano   int
}

// Distribute attributes each bucket's paid totals in strict vigency order.
// The first parcel of the order consumes first; element 23 and 24 run
// independently. Parcels already Pago carry their own historical values and
// are not part of the input contract.
func Distribute(rows []Row, buckets map[empenhos.Chave]empenhos.Bucket) map[int64]Atribuicao {
	grupos := make(map[chaveGrupo][]Row)
	for _, row := range rows {
		if row.Amarela || shared.Normalize(row.Status) != statusEncaminhado {
			continue
		}
		chave := chaveGrupo{termo: row.Termo, ano: row.Ano}
		grupos[chave] = append(grupos[chave], row)
	}

	out := make(map[int64]Atribuicao)
	for _, grupo := range grupos {
		sort.Slice(grupo, func(i, j int) bool {
			if !grupo[i].VigenciaInicial.Equal(grupo[j].VigenciaInicial) {
				return grupo[i].VigenciaInicial.Before(grupo[j].VigenciaInicial)
			}
			if grupo[i].Termo != grupo[j].Termo {
				return grupo[i].Termo < grupo[j].Termo
			}
			return grupo[i].ID < grupo[j].ID
		})

		bucket := buckets[empenhos.Chave{CodSof: grupo[0].CodSof, Ano: grupo[0].Ano}]
		restante23 := bucket.Pago23
		restante24 := bucket.Pago24

		for _, p := range grupo {
			take23 := min(restante23, p.Valor23)
			take24 := min(restante24, p.Valor24)
			restante23 -= take23
			restante24 -= take24

			atr := Atribuicao{ValorPago23: take23, ValorPago24: take24}
			total := take23 + take24
			devido := p.Valor23 + p.Valor24
			switch {
			case total >= devido-tolCentavos && devido > 0:
				atr.PagoIntegral = true
			case total > 0:
				atr.PagoParcial = true
			}
			out[p.ID] = atr
		}
	}
	return out
}
