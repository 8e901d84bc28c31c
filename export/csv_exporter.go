package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jrsteele09/korebog/ledger"
)

// CSV writes a semicolon separated report, the form Danish spreadsheets open directly.
func CSV(w io.Writer, trips []ledger.TripRecord) error {
	report := Build(trips)

	writer := csv.NewWriter(w)
	writer.Comma = ';'
	if err := writer.Write(Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range report.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := writer.Write(report.Total()); err != nil {
		return fmt.Errorf("write csv total: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
