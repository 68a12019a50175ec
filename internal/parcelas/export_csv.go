package parcelas

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/smdhc/parcerias/internal/brl"
	"github.com/smdhc/parcerias/internal/reconcile"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

// utf8BOM makes spreadsheet software pick the right encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) (*csvStreamer, error) {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	if _, err := buf.Write(utf8BOM); err != nil {
		return nil, err
	}
	writer := csv.NewWriter(buf)
	writer.Comma = ';'
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}, nil
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

var csvHeader = []string{
	"Termo", "OSC", "CNPJ", "Projeto", "SEI Celebração", "SEI PC",
	"Parcela", "Tipo", "Vigência Inicial", "Vigência Final",
	"Valor Elemento 23", "Valor Elemento 24", "Valor Previsto",
	"Valor Subtraído", "Valor Encaminhado", "Valor Pago",
	"Status", "Status Secundário", "Data Pagamento",
	"Pago Integral", "Pago Parcial", "Pendências", "Observações",
}

func csvLinha(det ParcelaDetalhada) []string {
	var resumo TermoResumo
	if det.Termo != nil {
		resumo = *det.Termo
	}
	statusSec := ""
	if det.ParcelaStatusSecundario != nil {
		statusSec = *det.ParcelaStatusSecundario
	}
	dataPagamento := ""
	if det.DataPagamento != nil {
		dataPagamento = brl.Date(*det.DataPagamento)
	}
	simNao := func(v bool) string {
		if v {
			return "Sim"
		}
		return ""
	}
	return []string{
		det.TermoID, resumo.OSC, resumo.CNPJ, resumo.Projeto, resumo.SeiCeleb, resumo.SeiPC,
		det.ParcelaNumero, det.ParcelaTipo,
		brl.Date(det.VigenciaInicial), brl.Date(det.VigenciaFinal),
		brl.Money(det.ValorElemento23), brl.Money(det.ValorElemento24), brl.Money(det.ValorPrevisto),
		brl.Money(det.ValorSubtraido), brl.Money(det.ValorEncaminhado), brl.Money(det.ValorPago),
		det.ParcelaStatus, statusSec, dataPagamento,
		simNao(det.Atribuicao.PagoIntegral), simNao(det.Atribuicao.PagoParcial),
		reconcile.JoinPendencias(det.Classificacao.Pendencias),
		det.Observacoes,
	}
}

// EscreverCSV streams the full filtered listing in the Brazilian CSV
// conventions: BOM, semicolon, dd/mm/yyyy, "R$ 1.234,56".
func EscreverCSV(w io.Writer, data []ParcelaDetalhada) error {
	streamer, err := newCSVStreamer(w)
	if err != nil {
		return err
	}
	if err := streamer.writeRow(csvHeader); err != nil {
		return err
	}
	for _, det := range data {
		if err := streamer.writeRow(csvLinha(det)); err != nil {
			return fmt.Errorf("parcela %s: %w", strconv.FormatInt(det.ID, 10), err)
		}
	}
	return streamer.Flush()
}
