package app_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/korebog/app"
	"github.com/jrsteele09/korebog/distance"
	"github.com/jrsteele09/korebog/internal/config"
	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/internal/utils"
	"github.com/jrsteele09/korebog/kv"
	"github.com/jrsteele09/korebog/kv/kvfake"
	"github.com/jrsteele09/korebog/ledger"
	"github.com/jrsteele09/korebog/session"
	"github.com/jrsteele09/korebog/session/providerfake"
	"github.com/jrsteele09/korebog/settings"
	"github.com/jrsteele09/korebog/syncer"
	"github.com/jrsteele09/korebog/syncer/remotefake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeIdentity struct {
	*providerfake.FakeProvider
	LoginErr   error
	LoginHints []string
}

func (f *fakeIdentity) Login(_ context.Context, loginHint string) (session.Grant, error) {
	f.LoginHints = append(f.LoginHints, loginHint)
	if f.LoginErr != nil {
		return session.Grant{}, f.LoginErr
	}
	return f.Grant, nil
}

type testFixture struct {
	kv       *kvfake.FakeStore
	identity *fakeIdentity
	remote   *remotefake.FakeRemote
	app      *app.App

	lock    sync.Mutex
	now     time.Time
	opened  []string
	expired []session.Profile
}

func testGrant() session.Grant {
	return session.Grant{
		AccessToken:  "access-1",
		ExpiresIn:    3600,
		RefreshToken: "refresh-1",
		Profile:      &session.Profile{Subject: "1001", Name: "Kim Hansen", Email: "kim@example.dk"},
	}
}

func setupTestFixture(t *testing.T, values map[string]interface{}) *testFixture {
	t.Helper()

	f := &testFixture{
		kv:       kvfake.NewFakeStore(),
		identity: &fakeIdentity{FakeProvider: providerfake.NewFakeProvider(testGrant())},
		remote:   remotefake.NewFakeRemote(),
		now:      time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}

	v := viper.New()
	v.Set("SPREADSHEET_ID", "sheet-1")
	for k, val := range values {
		v.Set(k, val)
	}

	a, err := app.New(context.Background(), config.FromViper(v), app.Deps{
		KV:       f.kv,
		Identity: f.identity,
		Remote: func(_ context.Context, spreadsheetID string, ts oauth2.TokenSource) (syncer.RemoteStore, error) {
			f.lock.Lock()
			defer f.lock.Unlock()
			f.opened = append(f.opened, spreadsheetID)
			return f.remote, nil
		},
		Registerer: prometheus.NewRegistry(),
		OnSessionExpired: func(last session.Profile) {
			f.lock.Lock()
			defer f.lock.Unlock()
			f.expired = append(f.expired, last)
		},
		NowTime: func() time.Time {
			f.lock.Lock()
			defer f.lock.Unlock()
			return f.now
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	f.app = a
	return f
}

func (f *testFixture) advance(d time.Duration) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.now = f.now.Add(d)
}

func (f *testFixture) openedSheets() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.opened...)
}

func (f *testFixture) login(t *testing.T) {
	t.Helper()
	st, err := f.app.Login(context.Background(), "kim@example.dk")
	require.NoError(t, err)
	require.Equal(t, session.Authenticated, st.State)
}

func (f *testFixture) quietSync(t *testing.T) {
	t.Helper()
	_, err := f.app.UpdateSettings(settings.Patch{SyncAfterSave: utils.Ptr(false)})
	require.NoError(t, err)
}

func tripInput(date, destination string, km float64) ledger.TripInput {
	return ledger.TripInput{Date: date, Destination: destination, Purpose: "Kundebesøg", Distance: km}
}

func TestLogin(t *testing.T) {
	t.Run("Starts a session", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.login(t)

		st, err := f.app.State(context.Background())
		require.NoError(t, err)
		require.Equal(t, session.Authenticated, st.State)
		require.Equal(t, "kim@example.dk", st.Profile.Email)
		require.Equal(t, []string{"kim@example.dk"}, f.identity.LoginHints)
	})

	t.Run("Failed login leaves no session", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.identity.LoginErr = kerrors.ErrInvalidState

		_, err := f.app.Login(context.Background(), "")
		require.ErrorIs(t, err, kerrors.ErrInvalidState)

		st, err := f.app.State(context.Background())
		require.NoError(t, err)
		require.Equal(t, session.Absent, st.State)
	})

	t.Run("No identity provider", func(t *testing.T) {
		a, err := app.New(context.Background(), config.FromViper(viper.New()), app.Deps{KV: kvfake.NewFakeStore()})
		require.NoError(t, err)
		defer a.Close()

		_, err = a.Login(context.Background(), "")
		require.ErrorIs(t, err, kerrors.ErrUnsupported)
	})
}

func TestStateRenewsStaleSession(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	f.identity.Grant = session.Grant{AccessToken: "access-2", ExpiresIn: 3600}

	f.advance(2 * time.Hour)
	st, err := f.app.State(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.Authenticated, st.State)
	require.Equal(t, 1, f.identity.RenewCalls())

	t.Run("Renewal failure signs out", func(t *testing.T) {
		f.identity.RenewErr = kerrors.ErrRenewUnavailable
		f.advance(2 * time.Hour)

		st, err := f.app.State(context.Background())
		require.NoError(t, err)
		require.Equal(t, session.Absent, st.State)

		f.lock.Lock()
		defer f.lock.Unlock()
		require.Len(t, f.expired, 1)
		require.Equal(t, "kim@example.dk", f.expired[0].Email)
	})
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)

	st, err := f.app.Logout(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.Absent, st.State)
	require.Equal(t, []string{"refresh-1"}, f.identity.Revoked)

	_, err = f.app.CreateTrip(context.Background(), tripInput("2026-03-02", "Kunde A/S", 10))
	require.ErrorIs(t, err, kerrors.ErrNotAuthenticated)
}

func TestCreateTrip(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)

	_, err := f.app.UpdateSettings(settings.Patch{DefaultOrigin: utils.Ptr("Vestergade 1, Aarhus")})
	require.NoError(t, err)

	trip, err := f.app.CreateTrip(context.Background(), tripInput("2026-03-02", "Kunde A/S", 10))
	require.NoError(t, err)
	require.Equal(t, "Vestergade 1, Aarhus", trip.Origin)
	require.Equal(t, settings.DefaultRate, trip.Rate)

	require.Eventually(t, func() bool {
		_, ok := f.remote.Row(trip.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "saved trip is synchronized in the background")

	require.Eventually(t, func() bool {
		got, err := f.app.Trip(context.Background(), trip.ID)
		return err == nil && got.Synchronized
	}, 2*time.Second, 10*time.Millisecond)

	t.Run("Drafts are not pushed", func(t *testing.T) {
		draft, err := f.app.CreateTrip(context.Background(), tripInput("2026-03-03", "Lager", 0))
		require.NoError(t, err)
		require.True(t, draft.Draft())
		require.NoError(t, f.app.Close())
		require.NotContains(t, f.remote.Writes(), draft.ID)
	})
}

func TestCloseWhileSaving(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.app.CreateTrip(context.Background(), tripInput("2026-03-02", fmt.Sprintf("Kunde %d", i), 10))
			assert.NoError(t, err)
		}(i)
	}
	require.NoError(t, f.app.Close())
	wg.Wait()

	writes := len(f.remote.Writes())
	_, err := f.app.CreateTrip(context.Background(), tripInput("2026-03-03", "Lager", 5))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.Len(t, f.remote.Writes(), writes, "no background pass starts after Close")
}

func TestSyncNow(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	f.quietSync(t)

	a, err := f.app.CreateTrip(context.Background(), tripInput("2026-03-02", "Kunde A/S", 10))
	require.NoError(t, err)
	b, err := f.app.CreateTrip(context.Background(), tripInput("2026-03-03", "Kunde B", 20))
	require.NoError(t, err)
	require.Empty(t, f.remote.Writes())

	st, err := f.app.SyncStatus()
	require.NoError(t, err)
	require.Equal(t, 2, st.Pending)

	f.remote.FailWith(b.ID, kerrors.Rejected("row locked"))
	res, err := f.app.SyncNow(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Attempted)
	require.Equal(t, 1, res.Succeeded)
	require.Len(t, res.Failures, 1)
	require.Equal(t, b.ID, res.Failures[0].ID)
	require.Equal(t, syncer.FailureRejected, res.Failures[0].Kind)

	st, err = f.app.SyncStatus()
	require.NoError(t, err)
	require.Equal(t, 1, st.Pending)
	require.False(t, st.LastAttempted.IsZero())
	require.True(t, st.LastSucceeded.IsZero())

	_, ok := f.remote.Row(a.ID)
	require.True(t, ok)
	require.Equal(t, []string{"sheet-1"}, f.openedSheets())

	t.Run("Spreadsheet setting takes over", func(t *testing.T) {
		f.remote.FailWith(b.ID, nil)
		_, err := f.app.UpdateSettings(settings.Patch{SpreadsheetID: utils.Ptr("sheet-2")})
		require.NoError(t, err)

		res, err := f.app.SyncNow(context.Background())
		require.NoError(t, err)
		require.True(t, res.Complete())
		require.Equal(t, []string{"sheet-1", "sheet-2"}, f.openedSheets())
	})
}

func TestSyncNowWithoutSpreadsheet(t *testing.T) {
	f := setupTestFixture(t, map[string]interface{}{"SPREADSHEET_ID": ""})
	f.login(t)

	_, err := f.app.SyncNow(context.Background())
	require.ErrorIs(t, err, kerrors.ErrValidation)

	_, err = f.app.CreateTrip(context.Background(), tripInput("2026-03-02", "Kunde A/S", 10))
	require.NoError(t, err)
	require.NoError(t, f.app.Close())
	require.Empty(t, f.remote.Writes())
}

type stubDistance struct {
	err error
}

func (s stubDistance) Distance(context.Context, string, string) (distance.Result, error) {
	if s.err != nil {
		return distance.Result{}, s.err
	}
	return distance.Result{Kilometers: 33.3, Status: distance.StatusOK}, nil
}

func TestCalculateDistance(t *testing.T) {
	t.Run("Estimate from earlier trips without a maps key", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.login(t)
		f.quietSync(t)

		_, err := f.app.CreateTrip(context.Background(), ledger.TripInput{
			Date: "2026-03-02", Origin: "Vestergade 1", Destination: "Kunde A/S", Distance: 14.2,
		})
		require.NoError(t, err)

		res, err := f.app.CalculateDistance(context.Background(), "kunde a/s", "Vestergade 1")
		require.NoError(t, err)
		require.True(t, res.Estimated)
		require.Equal(t, 14.2, res.Kilometers)

		_, err = f.app.CalculateDistance(context.Background(), "Vestergade 1", "Skagen")
		require.ErrorIs(t, err, kerrors.ErrNetworkUnavailable)
	})

	t.Run("Provider answer", func(t *testing.T) {
		a, err := app.New(context.Background(), config.FromViper(viper.New()), app.Deps{
			KV:       kvfake.NewFakeStore(),
			Distance: stubDistance{},
		})
		require.NoError(t, err)
		defer a.Close()

		res, err := a.CalculateDistance(context.Background(), "Aarhus", "Odense")
		require.NoError(t, err)
		require.False(t, res.Estimated)
		require.Equal(t, 33.3, res.Kilometers)
	})
}

func TestSixtyDayWarnings(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	f.quietSync(t)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < ledger.DefaultSixtyDayWarnAt; i++ {
		_, err := f.app.CreateTrip(context.Background(), tripInput(start.AddDate(0, 0, i).Format(ledger.DateLayout), "Kunde A/S", 10))
		require.NoError(t, err)
	}
	asOf := start.AddDate(0, 0, 90)

	warnings, err := f.app.SixtyDayWarnings(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Equal(t, ledger.DefaultSixtyDayWarnAt, warnings[0].Days)
	require.False(t, warnings[0].Exceeded)

	_, err = f.app.UpdateSettings(settings.Patch{WarnSixtyDayRule: utils.Ptr(false)})
	require.NoError(t, err)
	warnings, err = f.app.SixtyDayWarnings(context.Background(), asOf)
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestExport(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	f.quietSync(t)

	for _, in := range []ledger.TripInput{
		tripInput("2026-03-05", "Kunde B", 20),
		tripInput("2026-03-02", "Kunde A", 10),
		tripInput("2026-04-01", "Kunde C", 5),
	} {
		_, err := f.app.CreateTrip(context.Background(), in)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	err := f.app.Export(context.Background(), &buf, app.FormatCSV, ledger.ListOptions{From: "2026-03-01", To: "2026-03-31"}, "")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[1], "2026-03-02;"))
	require.True(t, strings.HasPrefix(lines[2], "2026-03-05;"))
	require.True(t, strings.HasPrefix(lines[3], "I alt;"))

	buf.Reset()
	require.NoError(t, f.app.Export(context.Background(), &buf, app.FormatPDF, ledger.ListOptions{}, "Kørebog"))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	err = f.app.Export(context.Background(), &buf, app.Format("xlsx"), ledger.ListOptions{}, "")
	require.ErrorIs(t, err, kerrors.ErrValidation)
}

func TestOpenKV(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			v := viper.New()
			v.Set("DATA_DIR", t.TempDir())
			v.Set("KV_BACKEND", backend)
			v.Set("SESSION_PASSPHRASE", "hemmelig")

			store, err := app.OpenKV(config.FromViper(v))
			require.NoError(t, err)
			require.NoError(t, store.Set(kv.KeyTrips, "[]"))
			got, ok, err := store.Get(kv.KeyTrips)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "[]", got)
		})
	}

	t.Run("Unknown backend", func(t *testing.T) {
		v := viper.New()
		v.Set("KV_BACKEND", "redis")
		_, err := app.OpenKV(config.FromViper(v))
		require.ErrorIs(t, err, kerrors.ErrUnsupported)
	})
}
