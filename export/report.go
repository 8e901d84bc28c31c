// Package export renders trips as mileage reports for a period.
package export

import (
	"strconv"
	"strings"

	"github.com/jrsteele09/korebog/ledger"
)

// Columns of every report, in order.
var Headers = []string{"Dato", "Fra", "Til", "Formål", "Km", "Tur/retur", "Sats", "Beløb"}

// Report is the tabular content shared by the CSV and PDF renderers.
type Report struct {
	Rows          [][]string
	TotalDistance float64
	TotalAmount   float64
}

// Build collects the trips with a calculated distance and sums them. Input
// order is kept.
func Build(trips []ledger.TripRecord) Report {
	var r Report
	for _, t := range trips {
		if t.Draft() {
			continue
		}
		roundTrip := "Nej"
		if t.RoundTrip {
			roundTrip = "Ja"
		}
		r.Rows = append(r.Rows, []string{
			t.Date,
			t.Origin,
			t.Destination,
			t.Purpose,
			number(t.TotalDistance(), 1),
			roundTrip,
			number(t.Rate, 2),
			number(t.Amount, 2),
		})
		r.TotalDistance += t.TotalDistance()
		r.TotalAmount += t.Amount
	}
	return r
}

// Total is the closing line of the report.
func (r Report) Total() []string {
	return []string{"I alt", "", "", "", number(r.TotalDistance, 1), "", "", number(r.TotalAmount, 2)}
}

// number formats with a decimal comma.
func number(v float64, decimals int) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', decimals, 64), ".", ",", 1)
}
