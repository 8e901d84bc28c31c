package export_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jrsteele09/korebog/export"
	"github.com/jrsteele09/korebog/ledger"
	"github.com/stretchr/testify/require"
)

func reportTrips() []ledger.TripRecord {
	return []ledger.TripRecord{
		{ID: "t1", Date: "2026-03-02", Origin: "Vestergade 1", Destination: "Kunde A/S", Purpose: "Møde", Distance: 12.5, Rate: 3.79, RoundTrip: true, Amount: 94.75},
		{ID: "t2", Date: "2026-03-03", Origin: "Vestergade 1", Destination: "Lager", Distance: 0, Rate: 3.79},
		{ID: "t3", Date: "2026-03-04", Origin: "Lager", Destination: "Kunde B", Purpose: "Levering", Distance: 20, Rate: 2.5, Amount: 50},
	}
}

func TestBuild(t *testing.T) {
	r := export.Build(reportTrips())

	require.Len(t, r.Rows, 2, "drafts are left out")
	require.Equal(t, []string{"2026-03-02", "Vestergade 1", "Kunde A/S", "Møde", "25,0", "Ja", "3,79", "94,75"}, r.Rows[0])
	require.Equal(t, 45.0, r.TotalDistance)
	require.InDelta(t, 144.75, r.TotalAmount, 1e-9)
	require.Equal(t, []string{"I alt", "", "", "", "45,0", "", "", "144,75"}, r.Total())
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.CSV(&buf, reportTrips()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "Dato;Fra;Til;Formål;Km;Tur/retur;Sats;Beløb", lines[0])
	require.Equal(t, "2026-03-04;Lager;Kunde B;Levering;20,0;Nej;2,50;50,00", lines[2])
	require.Equal(t, "I alt;;;;45,0;;;144,75", lines[3])

	t.Run("Empty period", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, export.CSV(&buf, nil))
		require.Equal(t, "Dato;Fra;Til;Formål;Km;Tur/retur;Sats;Beløb\nI alt;;;;0,0;;;0,00\n", buf.String())
	})
}

func TestPDF(t *testing.T) {
	trips := reportTrips()
	for i := 0; i < 60; i++ {
		trips = append(trips, trips[0])
	}

	data, err := export.PDF(trips, "Kørebog marts 2026")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	empty, err := export.PDF(nil, "")
	require.NoError(t, err)
	require.Less(t, len(empty), len(data))
}
