// Package sheets stores trips as rows of a Google Sheets spreadsheet, one row per
// trip keyed by the trip ID in column A.
package sheets

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/ledger"
	"github.com/jrsteele09/korebog/syncer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

var _ syncer.RemoteStore = (*Store)(nil)

const (
	DefaultSheetName       = "Kørsler"
	DefaultWritesPerMinute = 60

	valueInputRaw = "RAW"
)

// Header is the first row of the sheet.
var Header = []interface{}{
	"ID", "Dato", "Fra", "Til", "Formål", "Km", "Tur/retur", "Sats", "Beløb", "Oprettet", "Ændret",
}

type Config struct {
	SpreadsheetID   string
	SheetName       string
	WritesPerMinute int
	Logger          *zerolog.Logger
}

// Store is the remote ledger backed by one sheet of a spreadsheet.
type Store struct {
	values  *sheetsapi.SpreadsheetsValuesService
	service *sheetsapi.Service
	id      string
	sheet   string
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu          sync.Mutex
	headerReady bool
}

// New creates a store. ts supplies the user's credential; extra options are
// passed to the Sheets client (tests point it at a local server).
func New(ctx context.Context, cfg Config, ts oauth2.TokenSource, opts ...option.ClientOption) (*Store, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("[sheets.New] spreadsheet id is required")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = DefaultSheetName
	}
	if cfg.WritesPerMinute <= 0 {
		cfg.WritesPerMinute = DefaultWritesPerMinute
	}

	clientOpts := make([]option.ClientOption, 0, len(opts)+1)
	if ts != nil {
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	}
	clientOpts = append(clientOpts, opts...)

	service, err := sheetsapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "[sheets.New] create service")
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	perSecond := rate.Limit(float64(cfg.WritesPerMinute) / 60.0)
	burst := cfg.WritesPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &Store{
		values:  service.Spreadsheets.Values,
		service: service,
		id:      cfg.SpreadsheetID,
		sheet:   cfg.SheetName,
		limiter: rate.NewLimiter(perSecond, burst),
		logger:  logger.With().Str("spreadsheet_id", cfg.SpreadsheetID).Logger(),
	}, nil
}

// Title returns the spreadsheet title, which also proves access to it.
func (s *Store) Title(ctx context.Context) (string, error) {
	sp, err := s.service.Spreadsheets.Get(s.id).Fields("properties.title").Context(ctx).Do()
	if err != nil {
		return "", classify(err)
	}
	if sp.Properties == nil {
		return "", nil
	}
	return sp.Properties.Title, nil
}

// Write upserts the row of trip.
func (s *Store) Write(ctx context.Context, trip ledger.TripRecord) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return kerrors.Wrapf(kerrors.ErrNetworkUnavailable, "rate limit wait: %v", err)
	}
	if err := s.ensureHeader(ctx); err != nil {
		return err
	}

	rowNum, err := s.findRow(ctx, trip.ID)
	if err != nil {
		return err
	}

	vr := &sheetsapi.ValueRange{Values: [][]interface{}{Row(trip)}}
	if rowNum > 0 {
		_, err = s.values.Update(s.id, s.a1(fmt.Sprintf("A%d", rowNum)), vr).
			ValueInputOption(valueInputRaw).Context(ctx).Do()
	} else {
		_, err = s.values.Append(s.id, s.a1("A1"), vr).
			ValueInputOption(valueInputRaw).InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	}
	if err != nil {
		return classify(err)
	}

	s.logger.Debug().Str("trip_id", trip.ID).Int("row", rowNum).Msg("trip row written")
	return nil
}

func (s *Store) ensureHeader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headerReady {
		return nil
	}

	first, err := s.values.Get(s.id, s.a1("A1:K1")).Context(ctx).Do()
	if err != nil {
		return classify(err)
	}
	if len(first.Values) == 0 || len(first.Values[0]) == 0 {
		vr := &sheetsapi.ValueRange{Values: [][]interface{}{Header}}
		if _, err := s.values.Update(s.id, s.a1("A1"), vr).ValueInputOption(valueInputRaw).Context(ctx).Do(); err != nil {
			return classify(err)
		}
		s.logger.Info().Str("sheet", s.sheet).Msg("header row written")
	}
	s.headerReady = true
	return nil
}

// findRow returns the 1-based row holding id, or 0.
func (s *Store) findRow(ctx context.Context, id string) (int, error) {
	col, err := s.values.Get(s.id, s.a1("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, classify(err)
	}
	for i, row := range col.Values {
		if len(row) > 0 && fmt.Sprint(row[0]) == id {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (s *Store) a1(cells string) string {
	return "'" + strings.ReplaceAll(s.sheet, "'", "''") + "'!" + cells
}

// Row is the sheet representation of a trip, in Header order.
func Row(t ledger.TripRecord) []interface{} {
	roundTrip := "Nej"
	if t.RoundTrip {
		roundTrip = "Ja"
	}
	return []interface{}{
		t.ID,
		t.Date,
		t.Origin,
		t.Destination,
		t.Purpose,
		strconv.FormatFloat(t.Distance, 'f', -1, 64),
		roundTrip,
		strconv.FormatFloat(t.Rate, 'f', -1, 64),
		strconv.FormatFloat(t.Amount, 'f', 2, 64),
		t.CreatedAt.UTC().Format(time.RFC3339),
		t.ModifiedAt.UTC().Format(time.RFC3339),
	}
}

// classify maps Sheets API failures onto the sync failure taxonomy.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return kerrors.Wrapf(kerrors.ErrNotAuthenticated, "sheets %d", gerr.Code)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError:
			return kerrors.Wrapf(kerrors.ErrNetworkUnavailable, "sheets %d", gerr.Code)
		default:
			return kerrors.Rejected("sheets %d: %s", gerr.Code, gerr.Message)
		}
	}

	// anything else is treated as transient
	return kerrors.Wrapf(kerrors.ErrNetworkUnavailable, "sheets: %v", err)
}
