package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/internal/utils"
	"github.com/jrsteele09/korebog/ledger"
	"github.com/stretchr/testify/require"
)

func TestFrequentAddresses(t *testing.T) {
	t.Run("upserted from both ends", func(t *testing.T) {
		f := setupTestFixture(t)
		f.create(t, tripInput("2024-05-01", "Vesterbrogade 3", "Rådhuspladsen 1", 2))
		f.create(t, tripInput("2024-04-01", "vesterbrogade  3", "Strøget 10", 2))
		f.create(t, tripInput("2024-05-03", "Rådhuspladsen 1", "Nyhavn 5", 2))

		addrs, err := f.ledger.FrequentAddresses(context.Background())
		require.NoError(t, err)
		require.Equal(t, []string{"nyhavn 5", "rådhuspladsen 1", "vesterbrogade 3", "strøget 10"}, addressKeys(addrs))

		for _, a := range addrs {
			if a.Key == "vesterbrogade 3" {
				require.Equal(t, "Vesterbrogade 3", a.Address)
				require.Equal(t, "2024-05-01", a.LastVisited)
			}
		}
	})

	t.Run("update touches the new address", func(t *testing.T) {
		f := setupTestFixture(t)
		rec := f.create(t, tripInput("2024-05-01", "A", "B", 2))
		_, err := f.ledger.Update(context.Background(), rec.ID, ledger.TripPatch{Destination: utils.Ptr("C")})
		require.NoError(t, err)

		addrs, err := f.ledger.FrequentAddresses(context.Background())
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"a", "b", "c"}, addressKeys(addrs))
	})

	t.Run("describe and delete", func(t *testing.T) {
		f := setupTestFixture(t)
		f.create(t, tripInput("2024-05-01", "Kontoret", "Kunden", 2))
		addrs, err := f.ledger.FrequentAddresses(context.Background())
		require.NoError(t, err)
		require.Len(t, addrs, 2)

		described, err := f.ledger.DescribeFrequentAddress(context.Background(), addrs[0].ID, " Hovedkontor ")
		require.NoError(t, err)
		require.Equal(t, "Hovedkontor", described.Description)

		require.NoError(t, f.ledger.DeleteFrequentAddress(context.Background(), addrs[0].ID))
		require.ErrorIs(t, f.ledger.DeleteFrequentAddress(context.Background(), addrs[0].ID), kerrors.ErrNotFound)
		_, err = f.ledger.DescribeFrequentAddress(context.Background(), "nope", "x")
		require.ErrorIs(t, err, kerrors.ErrNotFound)

		addrs, err = f.ledger.FrequentAddresses(context.Background())
		require.NoError(t, err)
		require.Len(t, addrs, 1)
	})
}

func TestKnownDistance(t *testing.T) {
	f := setupTestFixture(t)
	f.create(t, tripInput("2024-05-01", "Odense C", "Aarhus C", 140))
	f.advance(time.Hour)
	f.create(t, tripInput("2024-05-02", "aarhus c", "Odense  C", 145))
	f.create(t, tripInput("2024-05-03", "Odense C", "Vejle", 0))

	d, ok := f.ledger.KnownDistance("Odense C", "Aarhus C")
	require.True(t, ok)
	require.Equal(t, 145.0, d)

	_, ok = f.ledger.KnownDistance("Odense C", "Vejle")
	require.False(t, ok)
}

func TestSixtyDayReport(t *testing.T) {
	f := setupTestFixture(t)
	asOf := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	start := asOf.AddDate(0, 0, -364)

	for i := 0; i < 61; i++ {
		date := start.AddDate(0, 0, i).Format(ledger.DateLayout)
		f.create(t, tripInput(date, "Kontoret", "Byggeplads Nord", 10))
	}
	// a second trip on a day already counted
	f.create(t, tripInput(start.Format(ledger.DateLayout), "Hjem", "byggeplads nord", 10))
	for i := 0; i < 52; i++ {
		date := start.AddDate(0, 0, 100+i).Format(ledger.DateLayout)
		f.create(t, tripInput(date, "Kontoret", "Lageret", 10))
	}
	for i := 0; i < 10; i++ {
		date := start.AddDate(0, 0, 200+i).Format(ledger.DateLayout)
		f.create(t, tripInput(date, "Kontoret", "Kunden", 10))
	}
	// outside the window
	f.create(t, tripInput(start.AddDate(0, 0, -1).Format(ledger.DateLayout), "Kontoret", "Kunden", 10))

	report, err := f.ledger.SixtyDayReport(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, report, 2)

	require.Equal(t, "byggeplads nord", report[0].Key)
	require.Equal(t, 61, report[0].Days)
	require.True(t, report[0].Exceeded)
	require.Equal(t, start.Format(ledger.DateLayout), report[0].FirstDate)

	require.Equal(t, "lageret", report[1].Key)
	require.Equal(t, 52, report[1].Days)
	require.False(t, report[1].Exceeded)

	t.Run("custom warning level", func(t *testing.T) {
		g := setupTestFixture(t, ledger.WithSixtyDayWarnAt(3))
		for i := 0; i < 3; i++ {
			g.create(t, tripInput(fmt.Sprintf("2024-06-0%d", i+1), "A", "B", 1))
		}
		report, err := g.ledger.SixtyDayReport(context.Background(), asOf)
		require.NoError(t, err)
		require.Len(t, report, 1)
		require.Equal(t, 3, report[0].Days)
	})
}

func addressKeys(addrs []ledger.FrequentAddress) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Key)
	}
	return out
}
