// Package termos reads the termo master table. Termos are owned by the
// partnership-management collaborator; the core never writes them.
package termos

import "time"

// Termo is a partnership agreement, the top-level funding instrument.
type Termo struct {
	NumeroTermo   string    `json:"numero_termo"`
	OSC           string    `json:"osc"`
	CNPJ          string    `json:"cnpj"`
	Projeto       string    `json:"projeto"`
	Inicio        time.Time `json:"inicio"`
	Final         time.Time `json:"final"`
	TotalPrevisto float64   `json:"total_previsto"`
	SeiCeleb      string    `json:"sei_celeb"`
	SeiPC         string    `json:"sei_pc"`
	TipoTermo     string    `json:"tipo_termo"`
}

// Disponibilidade compares a termo's adjusted vigency window against its
// materialized Programada parcels.
type Disponibilidade struct {
	Termo                Termo `json:"termo"`
	MesesEsperados       int   `json:"meses_esperados"`
	MesesMaterializados  int   `json:"meses_materializados"`
	MesesFaltantes       int   `json:"meses_faltantes"`
	NecessitaProrrogacao bool  `json:"necessita_prorrogacao"`
	// Revisar flags termos exactly at the tolerance boundary for operator
	// review instead of silently deciding either way.
	Revisar bool `json:"revisar"`
}
