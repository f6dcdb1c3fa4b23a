// Package export renders report data for download. Money columns come from
// the invoice lines' historical price snapshots, so an export taken after a
// repricing matches one taken before it.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"scanpos/internal/domain"
)

func WriteDailyReportCSV(w io.Writer, rows []domain.DailyReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "invoices", "revenue", "cost", "profit"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Date,
			strconv.FormatInt(row.InvoiceCount, 10),
			formatMoney(row.Revenue),
			formatMoney(row.Cost),
			formatMoney(row.Profit),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
