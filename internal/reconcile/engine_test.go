package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smdhc/parcerias/internal/empenhos"
)

var hoje = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

func TestElementosDivergentesFicaAmarela(t *testing.T) {
	rows := []Row{{
		ID:              1,
		Termo:           "X/001/2024",
		Status:          "Não Pago",
		Valor23:         1000,
		Valor24:         500,
		ValorPrevisto:   1400,
		VigenciaInicial: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}

	res := Classify(rows, nil, nil, hoje)

	require.True(t, res[1].TemInconsistencia)
	require.Equal(t, CorAmarela, res[1].Cor)
	require.Equal(t, []string{MsgElementosDivergentes}, res[1].Pendencias)
	require.False(t, res[1].NecessitaRegularizacao)
	require.False(t, res[1].EmpenhoCobreValor)
}

func TestSomaDivergenteSujaTermoInteiro(t *testing.T) {
	var rows []Row
	for i := 0; i < 12; i++ {
		valor := 1000.0
		if i == 11 {
			valor = 999
		}
		rows = append(rows, Row{
			ID:              int64(i + 1),
			Termo:           "Y/002/2024",
			Status:          "Não Pago",
			Tipo:            "Programada",
			Valor23:         valor,
			ValorPrevisto:   valor,
			VigenciaInicial: time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC),
		})
	}
	totais := map[string]TermoTotais{
		"Y/002/2024": {SomaProgramada: 11999, TotalPrevisto: 12000},
	}

	res := Classify(rows, totais, nil, hoje)

	require.Len(t, res, 12)
	for _, r := range res {
		require.Equal(t, CorAmarela, r.Cor)
		require.Contains(t, r.Pendencias, "Soma das parcelas (R$ 11.999,00) ≠ Total do termo (R$ 12.000,00)")
	}
}

func TestEmpenhoCobreValorVenceRegularizacao(t *testing.T) {
	rows := []Row{{
		ID:              1,
		Termo:           "W/004/2024",
		CodSof:          "6025w2024",
		Ano:             2024,
		Status:          "Não Pago",
		Valor23:         5000,
		ValorPrevisto:   5000,
		VigenciaInicial: hoje.AddDate(0, 0, -10),
	}}
	buckets := map[empenhos.Chave]empenhos.Bucket{
		{CodSof: "6025w2024", Ano: 2024}: {Disponivel: 6000},
	}

	res := Classify(rows, nil, buckets, hoje)

	require.Equal(t, CorVerdeEscuro, res[1].Cor)
	require.True(t, res[1].EmpenhoCobreValor)
	require.False(t, res[1].NecessitaRegularizacao)
}

func TestSemCoberturaVencidaNecessitaRegularizacao(t *testing.T) {
	rows := []Row{{
		ID:              1,
		Termo:           "W/004/2024",
		CodSof:          "6025w2024",
		Ano:             2024,
		Status:          "Não Pago",
		Valor23:         5000,
		ValorPrevisto:   5000,
		VigenciaInicial: hoje.AddDate(0, 0, -10),
	}}
	buckets := map[empenhos.Chave]empenhos.Bucket{
		{CodSof: "6025w2024", Ano: 2024}: {Disponivel: 2000},
	}

	res := Classify(rows, nil, buckets, hoje)

	require.Equal(t, CorVerdeClaro, res[1].Cor)
	require.True(t, res[1].NecessitaRegularizacao)
	require.False(t, res[1].EmpenhoCobreValor)
}

func TestVigenciaRecenteNaoRegulariza(t *testing.T) {
	rows := []Row{{
		ID:              1,
		Termo:           "W/004/2024",
		Status:          "Não Pago",
		Valor23:         5000,
		ValorPrevisto:   5000,
		VigenciaInicial: hoje.AddDate(0, 0, -PrazoRegularizacaoDias),
	}}

	res := Classify(rows, nil, nil, hoje)
	require.Equal(t, CorNenhuma, res[1].Cor)
}

func TestAmarelaExcluiVerdes(t *testing.T) {
	rows := []Row{{
		ID:              1,
		Termo:           "X/001/2024",
		CodSof:          "6025x2024",
		Ano:             2024,
		Status:          "Não Pago",
		Valor23:         1000,
		Valor24:         500,
		ValorPrevisto:   1400,
		VigenciaInicial: hoje.AddDate(0, 0, -30),
	}}
	buckets := map[empenhos.Chave]empenhos.Bucket{
		{CodSof: "6025x2024", Ano: 2024}: {Disponivel: 99999},
	}

	res := Classify(rows, nil, buckets, hoje)

	require.Equal(t, CorAmarela, res[1].Cor)
	require.False(t, res[1].EmpenhoCobreValor)
	require.False(t, res[1].NecessitaRegularizacao)
}

func TestStatusPagoNaoVerificaElementos(t *testing.T) {
	rows := []Row{{
		ID:            1,
		Termo:         "X/001/2024",
		Status:        "Pago",
		Valor23:       1000,
		Valor24:       0,
		ValorPrevisto: 1400,
	}}

	res := Classify(rows, nil, nil, hoje)
	require.False(t, res[1].TemInconsistencia)
	require.Equal(t, CorNenhuma, res[1].Cor)
}

func TestToleranciaDeUmCentavo(t *testing.T) {
	rows := []Row{{
		ID:            1,
		Termo:         "X/001/2024",
		Status:        "nao pago",
		Valor23:       700,
		Valor24:       699.99,
		ValorPrevisto: 1400,
	}}

	res := Classify(rows, nil, nil, hoje)
	require.False(t, res[1].TemInconsistencia, "difference of exactly one centavo stays within tolerance")
}

func TestJoinPendencias(t *testing.T) {
	require.Equal(t, "a | b", JoinPendencias([]string{"a", "b"}))
	require.Equal(t, "", JoinPendencias(nil))
}
