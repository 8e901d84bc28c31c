package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/jrsteele09/korebog/app"
	"github.com/jrsteele09/korebog/internal/config"
	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/kv/kvfake"
	"github.com/jrsteele09/korebog/ledger"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func setupTestEnv(t *testing.T) (*environment, *bytes.Buffer) {
	t.Helper()
	cfg := config.FromViper(viper.New())
	a, err := app.New(context.Background(), cfg, app.Deps{KV: kvfake.NewFakeStore()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	out := &bytes.Buffer{}
	return &environment{cfg: cfg, app: a, out: out}, out
}

func TestDescribe(t *testing.T) {
	tests := map[string]struct {
		err  error
		want string
	}{
		"validation": {
			err:  kerrors.NewValidationError(kerrors.FieldError{Field: "rate", Rule: "gt"}),
			want: "Invalid input: rate must satisfy gt",
		},
		"not authenticated": {
			err:  kerrors.Wrapf(kerrors.ErrNotAuthenticated, "sync pass"),
			want: "Not signed in, run 'korebog login' first",
		},
		"other": {
			err:  kerrors.New("boom"),
			want: "boom",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, describe(tc.err))
		})
	}
}

func TestSettingsCmd(t *testing.T) {
	env, out := setupTestEnv(t)

	require.NoError(t, settingsCmd(context.Background(), env, []string{"-rate", "2.5", "-syncsave=false"}))
	require.Contains(t, out.String(), "rate         2.50")
	require.Contains(t, out.String(), "syncsave     false")
	require.Equal(t, 2.5, env.app.Settings().DefaultRate)
	require.True(t, env.app.Settings().WarnSixtyDayRule)

	err := settingsCmd(context.Background(), env, []string{"-rate", "-1"})
	require.ErrorIs(t, err, kerrors.ErrValidation)
}

func TestAddCmdRequiresLogin(t *testing.T) {
	env, _ := setupTestEnv(t)

	err := addCmd(context.Background(), env, []string{"-to", "Kunde A/S", "-km", "10"})
	require.ErrorIs(t, err, kerrors.ErrNotAuthenticated)
}

func TestPrintTrips(t *testing.T) {
	var buf bytes.Buffer
	printTrips(&buf, []ledger.TripRecord{
		{ID: "trip_1", Date: "2026-03-02", Origin: "A", Destination: "B", Distance: 10, RoundTrip: true, Amount: 75.8},
		{ID: "trip_2", Date: "2026-03-03", Origin: "A", Destination: "C"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "20.0")
	require.Contains(t, lines[1], "75.80")
	require.Contains(t, lines[2], "kladde")
}
