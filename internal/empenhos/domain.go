// Package empenhos reads the SOF budget-encumbrance mirror. The mirror is
// owned by an out-of-band loader; the core only aggregates it into
// per-(processo, ano) buckets consumed by the reconciliation and cascade
// engines.
package empenhos

import "strings"

// Budget elements of despesa 53 tracked by the secretariat.
const (
	Elemento23 = "23"
	Elemento24 = "24"
)

// Entrada is one ledger line of the empenho mirror.
type Entrada struct {
	CodEph         string  `json:"cod_eph"`
	CodNroPcssSof  string  `json:"cod_nro_pcss_sof"`
	AnoEph         int     `json:"ano_eph"`
	ValTotEph      float64 `json:"val_tot_eph"`
	ValTotCancEph  float64 `json:"val_tot_canc_eph"`
	ValTotPagoEph  float64 `json:"val_tot_pago_eph"`
	CodItemDespSof string  `json:"cod_item_desp_sof"`
}

// Disponivel is the remaining encumbrance of one line. Liquidation is never
// deducted; only cancelled and paid reduce availability.
func (e Entrada) Disponivel() float64 {
	return e.ValTotEph - e.ValTotCancEph - e.ValTotPagoEph
}

// Chave identifies one empenho bucket.
type Chave struct {
	CodSof string `json:"cod_sof"`
	Ano    int    `json:"ano"`
}

// Bucket aggregates every mirror line of one (processo SOF, ano) pair.
type Bucket struct {
	Disponivel float64 `json:"disponivel"`
	Pago23     float64 `json:"pago_23"`
	Pago24     float64 `json:"pago_24"`
	Linhas     int     `json:"linhas"`
}

const sofStrip = "./-"

// CodSof derives the SOF process code from a SEI number by stripping
// formatting characters.
func CodSof(seiCeleb string) string {
	if seiCeleb == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(seiCeleb))
	for _, r := range seiCeleb {
		if strings.ContainsRune(sofStrip, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
