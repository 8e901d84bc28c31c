package export

import (
	"bytes"
	"fmt"

	"github.com/jrsteele09/korebog/ledger"
	"github.com/jung-kurt/gofpdf"
)

var columnWidths = []float64{22, 58, 58, 52, 18, 20, 18, 24}

// PDF renders a landscape A4 report with an optional title.
func PDF(trips []ledger.TripRecord, title string) ([]byte, error) {
	report := Build(trips)

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	header := func() {
		pdf.SetFont("Arial", "B", 10)
		for i, h := range Headers {
			pdf.CellFormat(columnWidths[i], 8, tr(h), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}
	header()

	pdf.SetFont("Arial", "", 9)
	for _, row := range report.Rows {
		if pdf.GetY() > 185 {
			pdf.AddPage()
			header()
			pdf.SetFont("Arial", "", 9)
		}
		writeRow(pdf, tr, row)
	}

	pdf.SetFont("Arial", "B", 9)
	writeRow(pdf, tr, report.Total())

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(pdf *gofpdf.Fpdf, tr func(string) string, row []string) {
	for i, value := range row {
		align := ""
		if i >= 4 {
			align = "R"
		}
		w := columnWidths[i]
		pdf.CellFormat(w, 7, truncate(pdf, tr(value), w-2), "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
}

// truncate shortens s until it fits width mm in the current font.
func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
