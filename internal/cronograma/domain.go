// Package cronograma holds the monthly plan of a termo: the authoring
// surface from which parcels are materialized. Rows are replaced wholesale
// per termo; parcels live independently once created.
package cronograma

import (
	"time"
)

// InfoAlteracaoBase marks rows authored before any amendment.
const InfoAlteracaoBase = "Base"

// Mes is one stored cronogram row. NomeMes is always the first day of its
// calendar month; rows sharing a ParcelaNumero belong to the same future
// parcel.
type Mes struct {
	ID            int64     `json:"id"`
	TermoID       string    `json:"termo_id"`
	NomeMes       time.Time `json:"nome_mes"`
	ValorMes23    float64   `json:"valor_mes_23"`
	ValorMes24    float64   `json:"valor_mes_24"`
	ValorMes      float64   `json:"valor_mes"`
	ParcelaNumero string    `json:"parcela_numero"`
	InfoAlteracao string    `json:"info_alteracao"`
}

// ResultadoCronograma reports what a save replaced.
type ResultadoCronograma struct {
	Excluidas int `json:"excluidas"`
	Inseridas int `json:"inseridas"`
}
