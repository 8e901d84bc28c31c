package sheets_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/ledger"
	"github.com/jrsteele09/korebog/sheets"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const testSpreadsheetID = "sheet-1"

// fakeSheet serves the subset of the Sheets v4 values API the store uses.
type fakeSheet struct {
	t        *testing.T
	mu       sync.Mutex
	rows     [][]string
	requests []string
	failNext int
}

func (fs *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	prefix := "/v4/spreadsheets/" + testSpreadsheetID
	path := strings.TrimPrefix(r.URL.Path, prefix)
	w.Header().Set("Content-Type", "application/json")

	if fs.failNext != 0 {
		code := fs.failNext
		fs.failNext = 0
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": code, "message": http.StatusText(code)},
		})
		return
	}

	if path == "" {
		fs.requests = append(fs.requests, "GET spreadsheet")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"properties": map[string]interface{}{"title": "Kørebog 2024"}})
		return
	}

	rng := strings.TrimPrefix(path, "/values/")
	require.True(fs.t, strings.HasPrefix(rng, "'Kørsler'!"), rng)
	cells := strings.TrimPrefix(rng, "'Kørsler'!")
	fs.requests = append(fs.requests, r.Method+" "+cells)

	switch {
	case r.Method == http.MethodGet && cells == "A1:K1":
		var values [][]string
		if len(fs.rows) > 0 {
			values = fs.rows[:1]
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"values": values})

	case r.Method == http.MethodGet && cells == "A:A":
		values := make([][]string, 0, len(fs.rows))
		for _, row := range fs.rows {
			values = append(values, row[:1])
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"values": values})

	case r.Method == http.MethodPut:
		require.Equal(fs.t, "RAW", r.URL.Query().Get("valueInputOption"))
		row := fs.decodeRow(r)
		n, err := strconv.Atoi(strings.TrimPrefix(cells, "A"))
		require.NoError(fs.t, err)
		for len(fs.rows) < n {
			fs.rows = append(fs.rows, nil)
		}
		fs.rows[n-1] = row
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"updatedRows": 1})

	case r.Method == http.MethodPost && strings.HasSuffix(cells, ":append"):
		require.Equal(fs.t, "RAW", r.URL.Query().Get("valueInputOption"))
		fs.rows = append(fs.rows, fs.decodeRow(r))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{})

	default:
		http.Error(w, `{"error":{"code":404,"message":"unexpected"}}`, http.StatusNotFound)
	}
}

func (fs *fakeSheet) decodeRow(r *http.Request) []string {
	var body struct {
		Values [][]interface{} `json:"values"`
	}
	require.NoError(fs.t, json.NewDecoder(r.Body).Decode(&body))
	require.Len(fs.t, body.Values, 1)
	row := make([]string, 0, len(body.Values[0]))
	for _, v := range body.Values[0] {
		row = append(row, fmt.Sprint(v))
	}
	return row
}

func (fs *fakeSheet) snapshot() ([][]string, []string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	reqs := fs.requests
	fs.requests = nil
	return fs.rows, reqs
}

func (fs *fakeSheet) fail(code int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.failNext = code
}

func setupStore(t *testing.T, fs *fakeSheet) *sheets.Store {
	t.Helper()
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	store, err := sheets.New(context.Background(),
		sheets.Config{SpreadsheetID: testSpreadsheetID, WritesPerMinute: 6000},
		nil,
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return store
}

func testTrip(id, purpose string) ledger.TripRecord {
	created := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	return ledger.TripRecord{
		ID:          id,
		Date:        "2024-05-01",
		Origin:      "Kontoret",
		Destination: "Kunden",
		Purpose:     purpose,
		Distance:    10,
		Rate:        3.79,
		RoundTrip:   true,
		Amount:      75.8,
		CreatedAt:   created,
		ModifiedAt:  created,
	}
}

func TestWrite(t *testing.T) {
	fs := &fakeSheet{t: t}
	store := setupStore(t, fs)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, testTrip("trip_1", "Møde")))
	rows, reqs := fs.snapshot()
	require.Equal(t, []string{"GET A1:K1", "PUT A1", "GET A:A", "POST A1:append"}, reqs)
	require.Len(t, rows, 2)
	require.Equal(t, "ID", rows[0][0])
	require.Equal(t, []string{
		"trip_1", "2024-05-01", "Kontoret", "Kunden", "Møde", "10", "Ja", "3.79", "75.80",
		"2024-05-01T08:30:00Z", "2024-05-01T08:30:00Z",
	}, rows[1])

	require.NoError(t, store.Write(ctx, testTrip("trip_2", "Lager")))
	rows, reqs = fs.snapshot()
	require.Equal(t, []string{"GET A:A", "POST A1:append"}, reqs)
	require.Len(t, rows, 3)

	t.Run("existing row is updated in place", func(t *testing.T) {
		require.NoError(t, store.Write(ctx, testTrip("trip_1", "Opfølgning")))
		rows, reqs := fs.snapshot()
		require.Equal(t, []string{"GET A:A", "PUT A2"}, reqs)
		require.Len(t, rows, 3)
		require.Equal(t, "Opfølgning", rows[1][4])
		require.Equal(t, "trip_2", rows[2][0])
	})
}

func TestWriteKeepsExistingHeader(t *testing.T) {
	fs := &fakeSheet{t: t, rows: [][]string{{"ID", "Dato"}}}
	store := setupStore(t, fs)

	require.NoError(t, store.Write(context.Background(), testTrip("trip_1", "Møde")))
	rows, reqs := fs.snapshot()
	require.Equal(t, []string{"GET A1:K1", "GET A:A", "POST A1:append"}, reqs)
	require.Equal(t, []string{"ID", "Dato"}, rows[0])
}

func TestWriteErrors(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusUnauthorized, kerrors.ErrNotAuthenticated},
		{http.StatusForbidden, kerrors.ErrNotAuthenticated},
		{http.StatusBadRequest, kerrors.ErrRemoteRejected},
		{http.StatusTooManyRequests, kerrors.ErrNetworkUnavailable},
		{http.StatusServiceUnavailable, kerrors.ErrNetworkUnavailable},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.code), func(t *testing.T) {
			fs := &fakeSheet{t: t}
			store := setupStore(t, fs)
			fs.fail(tc.code)

			err := store.Write(context.Background(), testTrip("trip_1", "Møde"))
			require.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("rejected carries reason", func(t *testing.T) {
		fs := &fakeSheet{t: t}
		store := setupStore(t, fs)
		fs.fail(http.StatusBadRequest)

		err := store.Write(context.Background(), testTrip("trip_1", "Møde"))
		var rejected *kerrors.RemoteRejectedError
		require.True(t, kerrors.As(err, &rejected))
		require.Contains(t, rejected.Reason, "400")
	})

	t.Run("server gone", func(t *testing.T) {
		srv := httptest.NewServer(&fakeSheet{t: t})
		store, err := sheets.New(context.Background(),
			sheets.Config{SpreadsheetID: testSpreadsheetID},
			nil,
			option.WithHTTPClient(srv.Client()),
			option.WithEndpoint(srv.URL+"/"),
		)
		require.NoError(t, err)
		srv.Close()

		err = store.Write(context.Background(), testTrip("trip_1", "Møde"))
		require.ErrorIs(t, err, kerrors.ErrNetworkUnavailable)
	})
}

func TestTitle(t *testing.T) {
	fs := &fakeSheet{t: t}
	store := setupStore(t, fs)

	title, err := store.Title(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Kørebog 2024", title)
}

func TestNewRequiresSpreadsheet(t *testing.T) {
	_, err := sheets.New(context.Background(), sheets.Config{}, nil)
	require.Error(t, err)
}
