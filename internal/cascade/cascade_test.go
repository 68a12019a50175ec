package cascade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smdhc/parcerias/internal/empenhos"
)

func mes(m int) time.Time {
	return time.Date(2024, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
}

func encaminhadas() []Row {
	var rows []Row
	for i := 1; i <= 3; i++ {
		rows = append(rows, Row{
			ID:              int64(i),
			Termo:           "Z/003/2024",
			CodSof:          "6025z2024",
			Ano:             2024,
			Status:          "Encaminhado para Pagamento",
			VigenciaInicial: mes(i),
			Valor23:         1000,
			Valor24:         500,
		})
	}
	return rows
}

func bucketPago(pago23, pago24 float64) map[empenhos.Chave]empenhos.Bucket {
	return map[empenhos.Chave]empenhos.Bucket{
		{CodSof: "6025z2024", Ano: 2024}: {Pago23: pago23, Pago24: pago24},
	}
}

func TestDistribuiEmOrdemDeVigencia(t *testing.T) {
	out := Distribute(encaminhadas(), bucketPago(2300, 700))

	require.InDelta(t, 1000.0, out[1].ValorPago23, 0.001)
	require.InDelta(t, 500.0, out[1].ValorPago24, 0.001)
	require.True(t, out[1].PagoIntegral)
	require.False(t, out[1].PagoParcial)

	require.InDelta(t, 1000.0, out[2].ValorPago23, 0.001)
	require.InDelta(t, 200.0, out[2].ValorPago24, 0.001)
	require.True(t, out[2].PagoParcial)
	require.False(t, out[2].PagoIntegral)

	require.InDelta(t, 300.0, out[3].ValorPago23, 0.001)
	require.InDelta(t, 0.0, out[3].ValorPago24, 0.001)
	require.True(t, out[3].PagoParcial)
}

func TestCumulativoNuncaExcedeTotalPago(t *testing.T) {
	out := Distribute(encaminhadas(), bucketPago(2300, 700))

	var soma23, soma24 float64
	for _, atr := range out {
		soma23 += atr.ValorPago23
		soma24 += atr.ValorPago24
	}
	require.LessOrEqual(t, soma23, 2300.0)
	require.LessOrEqual(t, soma24, 700.0)
}

func TestIdempotente(t *testing.T) {
	rows := encaminhadas()
	buckets := bucketPago(2300, 700)
	require.Equal(t, Distribute(rows, buckets), Distribute(rows, buckets))
}

func TestAmarelaNaoConsomeCapacidade(t *testing.T) {
	rows := encaminhadas()
	rows[0].Amarela = true

	out := Distribute(rows, bucketPago(2300, 700))

	_, atribuida := out[1]
	require.False(t, atribuida)
	// Capacity flows straight to the second parcel.
	require.True(t, out[2].PagoIntegral)
	require.InDelta(t, 1000.0, out[3].ValorPago23, 0.001)
	require.InDelta(t, 200.0, out[3].ValorPago24, 0.001)
}

func TestNaoPagoForaDaCascata(t *testing.T) {
	rows := encaminhadas()
	rows[2].Status = "Não Pago"

	out := Distribute(rows, bucketPago(2300, 700))
	_, atribuida := out[3]
	require.False(t, atribuida)
}

func TestEmpateDesempataPorID(t *testing.T) {
	rows := []Row{
		{ID: 2, Termo: "Z/003/2024", CodSof: "z", Ano: 2024, Status: "encaminhado para pagamento", VigenciaInicial: mes(1), Valor23: 100},
		{ID: 1, Termo: "Z/003/2024", CodSof: "z", Ano: 2024, Status: "encaminhado para pagamento", VigenciaInicial: mes(1), Valor23: 100},
	}
	buckets := map[empenhos.Chave]empenhos.Bucket{{CodSof: "z", Ano: 2024}: {Pago23: 100}}

	out := Distribute(rows, buckets)
	require.True(t, out[1].PagoIntegral)
	require.False(t, out[2].PagoIntegral)
	require.InDelta(t, 0.0, out[2].ValorPago23, 0.001)
}

func TestBucketAusenteNadaAtribui(t *testing.T) {
	out := Distribute(encaminhadas(), nil)
	for _, atr := range out {
		require.False(t, atr.PagoIntegral)
		require.False(t, atr.PagoParcial)
		require.InDelta(t, 0.0, atr.ValorPago23, 0.001)
	}
}
