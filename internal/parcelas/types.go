package parcelas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smdhc/parcerias/internal/shared"
)

// ParseData accepts the two date spellings the operators use: ISO and
// dd/mm/yyyy.
func ParseData(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("02/01/2006", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: data %q", shared.ErrValidation, s)
}

// ParseDinheiro accepts a plain decimal or Brazilian notation ("1.234,56").
func ParseDinheiro(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: valor %q", shared.ErrValidation, s)
	}
	return v, nil
}

// Data is a JSON date accepting "", ISO or dd/mm/yyyy.
type Data struct {
	time.Time
}

func (d *Data) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		d.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: data", shared.ErrValidation)
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := ParseData(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Data) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format("2006-01-02"))
}

// Dinheiro is a JSON monetary value accepting a number or a Brazilian-format
// string.
type Dinheiro float64

func (m *Dinheiro) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*m = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("%w: valor", shared.ErrValidation)
		}
		if s == "" {
			*m = 0
			return nil
		}
		v, err := ParseDinheiro(s)
		if err != nil {
			return err
		}
		*m = Dinheiro(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: valor", shared.ErrValidation)
	}
	*m = Dinheiro(v)
	return nil
}

// ParcelaInput is one incoming parcel row from the bulk-upsert and
// materialization payloads.
type ParcelaInput struct {
	ID                      int64    `json:"id"`
	TermoID                 string   `json:"termo_id" validate:"required"`
	VigenciaInicial         Data     `json:"vigencia_inicial" validate:"required"`
	VigenciaFinal           Data     `json:"vigencia_final"`
	ParcelaTipo             string   `json:"parcela_tipo"`
	ParcelaNumero           string   `json:"parcela_numero"`
	ValorElemento23         Dinheiro `json:"valor_elemento_23"`
	ValorElemento24         Dinheiro `json:"valor_elemento_24"`
	ValorPrevisto           Dinheiro `json:"valor_previsto"`
	ValorSubtraido          Dinheiro `json:"valor_subtraido"`
	ValorEncaminhado        Dinheiro `json:"valor_encaminhado"`
	ValorPago               Dinheiro `json:"valor_pago"`
	ParcelaStatus           string   `json:"parcela_status"`
	ParcelaStatusSecundario *string  `json:"parcela_status_secundario"`
	DataPagamento           *Data    `json:"data_pagamento"`
	Observacoes             string   `json:"observacoes"`
}

// Parcela converts the input to the stored shape, without audit stamps.
func (in ParcelaInput) Parcela() Parcela {
	p := Parcela{
		ID:                      in.ID,
		TermoID:                 strings.TrimSpace(in.TermoID),
		VigenciaInicial:         in.VigenciaInicial.Time,
		VigenciaFinal:           in.VigenciaFinal.Time,
		ParcelaTipo:             in.ParcelaTipo,
		ParcelaNumero:           in.ParcelaNumero,
		ValorElemento23:         float64(in.ValorElemento23),
		ValorElemento24:         float64(in.ValorElemento24),
		ValorPrevisto:           float64(in.ValorPrevisto),
		ValorSubtraido:          float64(in.ValorSubtraido),
		ValorEncaminhado:        float64(in.ValorEncaminhado),
		ValorPago:               float64(in.ValorPago),
		ParcelaStatus:           in.ParcelaStatus,
		ParcelaStatusSecundario: in.ParcelaStatusSecundario,
		Observacoes:             in.Observacoes,
	}
	if in.DataPagamento != nil && !in.DataPagamento.IsZero() {
		t := in.DataPagamento.Time
		p.DataPagamento = &t
	}
	return p
}
