// Package export writes the items of a stored batch as flat CSV or Parquet
// rows for spreadsheets and analytics tools.
package export

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/parquet-go/parquet-go"

	"github.com/farxc/tiss_wrapper/internal/store"
	"github.com/farxc/tiss_wrapper/internal/tiss/utils"
)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// ItemRow is one lote_itens row flattened with its batch identity. Procedure
// and expense rows repeat their guide's numbers so each line stands alone.
type ItemRow struct {
	BatchID             int     `dataframe:"lote_id" parquet:"lote_id"`
	BatchNumber         string  `dataframe:"numero_lote" parquet:"numero_lote"`
	OperatorRegistry    string  `dataframe:"registro_ans" parquet:"registro_ans"`
	Competence          string  `dataframe:"competencia" parquet:"competencia"`
	ItemID              int     `dataframe:"item_id" parquet:"item_id"`
	ParentID            int     `dataframe:"item_pai_id" parquet:"item_pai_id"`
	ItemType            string  `dataframe:"tipo_item" parquet:"tipo_item"`
	Sequence            int     `dataframe:"sequencial" parquet:"sequencial"`
	ProviderGuideNumber string  `dataframe:"numero_guia_prestador" parquet:"numero_guia_prestador"`
	OperatorGuideNumber string  `dataframe:"numero_guia_operadora" parquet:"numero_guia_operadora"`
	CardNumber          string  `dataframe:"numero_carteira" parquet:"numero_carteira"`
	BeneficiaryName     string  `dataframe:"nome_beneficiario" parquet:"nome_beneficiario"`
	ExecutionDate       string  `dataframe:"data_execucao" parquet:"data_execucao"`
	TableCode           string  `dataframe:"codigo_tabela" parquet:"codigo_tabela"`
	ItemCode            string  `dataframe:"codigo_item" parquet:"codigo_item"`
	Description         string  `dataframe:"descricao" parquet:"descricao"`
	Quantity            float64 `dataframe:"quantidade" parquet:"quantidade"`
	Multiplier          float64 `dataframe:"reducao_acrescimo" parquet:"reducao_acrescimo"`
	UnitPrice           float64 `dataframe:"valor_unitario" parquet:"valor_unitario"`
	TotalPrice          float64 `dataframe:"valor_total" parquet:"valor_total"`
	ExpenseCode         string  `dataframe:"codigo_despesa" parquet:"codigo_despesa"`
	ExpenseCategory     string  `dataframe:"categoria_despesa" parquet:"categoria_despesa"`
	ExecutorName        string  `dataframe:"nome_profissional_executante" parquet:"nome_profissional_executante"`
	ExecutorCouncilNum  string  `dataframe:"numero_conselho_executante" parquet:"numero_conselho_executante"`
	DeclaredGuideTotal  float64 `dataframe:"valor_total_guia" parquet:"valor_total_guia"`
	PaymentStatus       string  `dataframe:"status_pagamento" parquet:"status_pagamento"`
	AmountPaid          float64 `dataframe:"valor_pago" parquet:"valor_pago"`
}

// Rows flattens items in the order given.
func Rows(batch store.Batch, items []store.Item) []ItemRow {
	guides := make(map[int64]store.Item)
	for _, it := range items {
		if it.ItemType == store.ItemTypeGuide {
			guides[it.ID] = it
		}
	}

	rows := make([]ItemRow, 0, len(items))
	for _, it := range items {
		row := ItemRow{
			BatchID:             int(batch.ID),
			BatchNumber:         batch.Number,
			OperatorRegistry:    batch.OperatorRegistry,
			Competence:          batch.Competence,
			ItemID:              int(it.ID),
			ItemType:            it.ItemType,
			Sequence:            it.Sequence,
			ProviderGuideNumber: it.ProviderGuideNumber,
			OperatorGuideNumber: it.OperatorGuideNumber,
			CardNumber:          it.CardNumber,
			BeneficiaryName:     it.BeneficiaryName,
			ExecutionDate:       formatDate(it.ExecutionDate),
			TableCode:           it.TableCode,
			ItemCode:            it.ItemCode,
			Description:         it.Description,
			Quantity:            it.Quantity,
			Multiplier:          it.Multiplier,
			UnitPrice:           it.UnitPrice,
			TotalPrice:          it.TotalPrice,
			ExpenseCode:         it.ExpenseCode,
			ExpenseCategory:     it.ExpenseCategory,
			ExecutorName:        it.TeamName,
			ExecutorCouncilNum:  it.TeamCouncilNumber,
			DeclaredGuideTotal:  it.DeclaredGuideTotal,
			PaymentStatus:       it.PaymentStatus,
			AmountPaid:          it.AmountPaid,
		}
		if it.ParentID != nil {
			row.ParentID = int(*it.ParentID)
			if g, ok := guides[*it.ParentID]; ok {
				row.ProviderGuideNumber = g.ProviderGuideNumber
				row.OperatorGuideNumber = g.OperatorGuideNumber
				row.CardNumber = g.CardNumber
				row.BeneficiaryName = g.BeneficiaryName
				row.DeclaredGuideTotal = g.DeclaredGuideTotal
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

// Columns lists the CSV header in output order.
func Columns() []string {
	t := reflect.TypeOf(ItemRow{})
	cols := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("dataframe"), ",")
		cols = append(cols, name)
	}
	return cols
}

// WriteCSV writes rows with a header line. An empty slice still produces the
// header.
func WriteCSV(w io.Writer, rows []ItemRow) error {
	var df dataframe.DataFrame
	if len(rows) == 0 {
		cols := Columns()
		empty := make([]series.Series, 0, len(cols))
		for _, c := range cols {
			empty = append(empty, series.New([]string{}, series.String, c))
		}
		df = dataframe.New(empty...)
	} else {
		df = dataframe.LoadStructs(rows, dataframe.NaNValues(nil))
	}
	if df.Err != nil {
		return fmt.Errorf("failed to build dataframe: %w", df.Err)
	}
	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// ReadCSV loads rows written by WriteCSV. Unknown columns are ignored and
// missing ones keep their zero value.
func ReadCSV(r io.Reader) ([]ItemRow, error) {
	df := dataframe.ReadCSV(r,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", df.Err)
	}

	rows := make([]ItemRow, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		rows = append(rows, dfRowToItemRow(df, i))
	}
	return rows, nil
}

func dfRowToItemRow(df dataframe.DataFrame, rowIdx int) ItemRow {
	return ItemRow{
		BatchID:             getInt("lote_id", rowIdx, &df),
		BatchNumber:         getStr("numero_lote", rowIdx, &df),
		OperatorRegistry:    getStr("registro_ans", rowIdx, &df),
		Competence:          getStr("competencia", rowIdx, &df),
		ItemID:              getInt("item_id", rowIdx, &df),
		ParentID:            getInt("item_pai_id", rowIdx, &df),
		ItemType:            getStr("tipo_item", rowIdx, &df),
		Sequence:            getInt("sequencial", rowIdx, &df),
		ProviderGuideNumber: getStr("numero_guia_prestador", rowIdx, &df),
		OperatorGuideNumber: getStr("numero_guia_operadora", rowIdx, &df),
		CardNumber:          getStr("numero_carteira", rowIdx, &df),
		BeneficiaryName:     getStr("nome_beneficiario", rowIdx, &df),
		ExecutionDate:       getStr("data_execucao", rowIdx, &df),
		TableCode:           getStr("codigo_tabela", rowIdx, &df),
		ItemCode:            getStr("codigo_item", rowIdx, &df),
		Description:         getStr("descricao", rowIdx, &df),
		Quantity:            getFloat("quantidade", rowIdx, &df),
		Multiplier:          getFloat("reducao_acrescimo", rowIdx, &df),
		UnitPrice:           getFloat("valor_unitario", rowIdx, &df),
		TotalPrice:          getFloat("valor_total", rowIdx, &df),
		ExpenseCode:         getStr("codigo_despesa", rowIdx, &df),
		ExpenseCategory:     getStr("categoria_despesa", rowIdx, &df),
		ExecutorName:        getStr("nome_profissional_executante", rowIdx, &df),
		ExecutorCouncilNum:  getStr("numero_conselho_executante", rowIdx, &df),
		DeclaredGuideTotal:  getFloat("valor_total_guia", rowIdx, &df),
		PaymentStatus:       getStr("status_pagamento", rowIdx, &df),
		AmountPaid:          getFloat("valor_pago", rowIdx, &df),
	}
}

func hasColumn(df *dataframe.DataFrame, col string) bool {
	for _, name := range df.Names() {
		if name == col {
			return true
		}
	}
	return false
}

func getStr(col string, rowIdx int, df *dataframe.DataFrame) string {
	if df == nil || !hasColumn(df, col) {
		return ""
	}
	e := df.Col(col).Elem(rowIdx)
	if e.IsNA() {
		return ""
	}
	return e.String()
}

func getInt(col string, rowIdx int, df *dataframe.DataFrame) int {
	return utils.ParseInt(getStr(col, rowIdx, df))
}

func getFloat(col string, rowIdx int, df *dataframe.DataFrame) float64 {
	return utils.ParseDecimal(getStr(col, rowIdx, df))
}

const parquetFlushInterval = 10_000

// WriteParquet writes rows as a Snappy compressed Parquet file.
func WriteParquet(w io.Writer, rows []ItemRow) error {
	writer := parquet.NewGenericWriter[ItemRow](w,
		parquet.Compression(&parquet.Snappy),
	)

	for start := 0; start < len(rows); start += parquetFlushInterval {
		end := min(start+parquetFlushInterval, len(rows))
		if _, err := writer.Write(rows[start:end]); err != nil {
			writer.Close()
			return fmt.Errorf("failed to write parquet records: %w", err)
		}
		if err := writer.Flush(); err != nil {
			writer.Close()
			return fmt.Errorf("failed to flush parquet row group: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// Write dispatches on format.
func Write(w io.Writer, format string, rows []ItemRow) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, rows)
	case FormatParquet:
		return WriteParquet(w, rows)
	}
	return fmt.Errorf("unknown export format %q", format)
}
