package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"scanpos/internal/domain"
)

func TestWriteDailyReportCSV(t *testing.T) {
	rows := []domain.DailyReportRow{
		{Date: "2026-03-15", InvoiceCount: 2, Revenue: 30.00, Cost: 12.00, Profit: 18.00},
		{Date: "2026-03-14", InvoiceCount: 1, Revenue: 15.00, Cost: 6.00, Profit: 9.00},
	}

	var buf bytes.Buffer
	if err := WriteDailyReportCSV(&buf, rows); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if got := strings.Join(records[0], ","); got != "date,invoices,revenue,cost,profit" {
		t.Fatalf("unexpected header %q", got)
	}
	if got := strings.Join(records[1], ","); got != "2026-03-15,2,30.00,12.00,18.00" {
		t.Fatalf("unexpected first row %q", got)
	}
	if got := strings.Join(records[2], ","); got != "2026-03-14,1,15.00,6.00,9.00" {
		t.Fatalf("unexpected second row %q", got)
	}
}

func TestWriteDailyReportCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDailyReportCSV(&buf, nil); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "date,invoices,revenue,cost,profit" {
		t.Fatalf("expected header only, got %q", buf.String())
	}
}
