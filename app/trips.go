package app

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/jrsteele09/korebog/distance"
	"github.com/jrsteele09/korebog/export"
	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/ledger"
)

// Format of an exported report.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// CreateTrip records a trip. An empty origin and a zero rate are taken from the settings.
func (a *App) CreateTrip(ctx context.Context, in ledger.TripInput) (ledger.TripRecord, error) {
	s := a.settings.Get()
	if in.Rate == 0 {
		in.Rate = s.DefaultRate
	}
	if in.Origin == "" {
		in.Origin = s.DefaultOrigin
	}

	trip, err := a.ledger.Create(ctx, in)
	if err != nil {
		return trip, err
	}
	a.syncAfterSave(trip)
	return trip, nil
}

func (a *App) UpdateTrip(ctx context.Context, id string, patch ledger.TripPatch) (ledger.TripRecord, error) {
	trip, err := a.ledger.Update(ctx, id, patch)
	if err != nil {
		return trip, err
	}
	a.syncAfterSave(trip)
	return trip, nil
}

func (a *App) DeleteTrip(ctx context.Context, id string) error {
	return a.ledger.Delete(ctx, id)
}

func (a *App) Trip(ctx context.Context, id string) (ledger.TripRecord, error) {
	return a.ledger.Get(ctx, id)
}

func (a *App) Trips(ctx context.Context, opts ledger.ListOptions) ([]ledger.TripRecord, error) {
	return a.ledger.List(ctx, opts)
}

func (a *App) FrequentAddresses(ctx context.Context) ([]ledger.FrequentAddress, error) {
	return a.ledger.FrequentAddresses(ctx)
}

func (a *App) DescribeAddress(ctx context.Context, id, description string) (ledger.FrequentAddress, error) {
	return a.ledger.DescribeFrequentAddress(ctx, id, description)
}

func (a *App) DeleteAddress(ctx context.Context, id string) error {
	return a.ledger.DeleteFrequentAddress(ctx, id)
}

// CalculateDistance returns the driving distance, or an estimate from earlier
// trips when the provider cannot be reached.
func (a *App) CalculateDistance(ctx context.Context, origin, destination string) (distance.Result, error) {
	return a.distance.Distance(ctx, origin, destination)
}

// SixtyDayWarnings is empty when the user turned the warning off.
func (a *App) SixtyDayWarnings(ctx context.Context, asOf time.Time) ([]ledger.SixtyDayWarning, error) {
	if !a.settings.Get().WarnSixtyDayRule {
		return nil, nil
	}
	return a.ledger.SixtyDayReport(ctx, asOf)
}

// Export writes the trips matching opts, oldest first, as a report.
func (a *App) Export(ctx context.Context, w io.Writer, format Format, opts ledger.ListOptions, title string) error {
	trips, err := a.ledger.List(ctx, opts)
	if err != nil {
		return err
	}
	sort.SliceStable(trips, func(i, j int) bool {
		return trips[i].Date < trips[j].Date
	})

	switch format {
	case FormatCSV:
		return export.CSV(w, trips)
	case FormatPDF:
		data, err := export.PDF(trips, title)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return kerrors.NewValidationError(kerrors.FieldError{Field: "format", Rule: "oneof=csv pdf"})
	}
}
