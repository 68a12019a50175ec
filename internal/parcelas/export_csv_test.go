package parcelas

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smdhc/parcerias/internal/cascade"
	"github.com/smdhc/parcerias/internal/reconcile"
)

func TestEscreverCSVConvencoes(t *testing.T) {
	pagamento := time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC)
	det := ParcelaDetalhada{
		Parcela: Parcela{
			ID:              1,
			TermoID:         "TC/001/2025",
			VigenciaInicial: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			VigenciaFinal:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
			ParcelaTipo:     TipoProgramada,
			ParcelaNumero:   "3",
			ValorPrevisto:   11999,
			ParcelaStatus:   StatusPago,
			DataPagamento:   &pagamento,
			Observacoes:     "conta; bancária",
		},
		Classificacao: reconcile.Resultado{Pendencias: []string{"Elementos 53/23+24 ≠ Previsto"}},
		Atribuicao:    cascade.Atribuicao{PagoIntegral: true},
		Termo:         &TermoResumo{OSC: "Instituto Alfa", CNPJ: "00.000.000/0001-00"},
	}

	var buf bytes.Buffer
	require.NoError(t, EscreverCSV(&buf, []ParcelaDetalhada{det}))

	raw := buf.Bytes()
	require.True(t, bytes.HasPrefix(raw, utf8BOM))

	linhas := strings.Split(strings.TrimRight(string(raw[len(utf8BOM):]), "\r\n"), "\r\n")
	require.Len(t, linhas, 2)
	require.Equal(t, strings.Join(csvHeader, ";"), linhas[0])

	campos := strings.Split(linhas[1], ";")
	// The semicolon inside Observações is quoted, leaving one extra split.
	require.Contains(t, linhas[1], `"conta; bancária"`)
	require.Equal(t, "TC/001/2025", campos[0])
	require.Equal(t, "Instituto Alfa", campos[1])
	require.Contains(t, linhas[1], "01/03/2025")
	require.Contains(t, linhas[1], "R$ 11.999,00")
	require.Contains(t, linhas[1], "03/07/2025")
	require.Contains(t, linhas[1], "Sim")
	require.Contains(t, linhas[1], "Elementos 53/23+24 ≠ Previsto")
}

func TestEscreverCSVSemLinhas(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EscreverCSV(&buf, nil))
	require.Equal(t, 1, strings.Count(buf.String(), "\r\n"))
}
