package app

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jrsteele09/korebog/distance"
	"github.com/jrsteele09/korebog/identity"
	"github.com/jrsteele09/korebog/internal/config"
	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/kv"
	"github.com/jrsteele09/korebog/session"
	"github.com/jrsteele09/korebog/sheets"
	"github.com/jrsteele09/korebog/syncer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/oauth2"
)

const sqliteFile = "korebog.db"

// OpenKV opens the configured backend under the data folder. With a session
// passphrase the session blob is sealed.
func OpenKV(cfg config.StorageConfig) (kv.Store, error) {
	var store kv.Store
	switch strings.ToLower(cfg.GetKVBackend()) {
	case "", "file":
		fs, err := kv.NewFileStore(afero.NewOsFs(), cfg.GetDataFolder())
		if err != nil {
			return nil, err
		}
		store = fs
	case "sqlite":
		db, err := kv.OpenSQLite(filepath.Join(cfg.GetDataFolder(), sqliteFile))
		if err != nil {
			return nil, err
		}
		store = db
	default:
		return nil, kerrors.Wrapf(kerrors.ErrUnsupported, "kv backend %q", cfg.GetKVBackend())
	}

	if pass := cfg.GetSessionPassphrase(); pass != "" {
		sealed, err := kv.NewSealed(store, pass, kv.KeySession)
		if err != nil {
			return nil, errors.Wrap(err, "[OpenKV] seal session")
		}
		return sealed, nil
	}
	return store, nil
}

// lazyIdentity defers provider discovery to first use so the ledger stays
// usable offline. A failed discovery is retried on the next call.
type lazyIdentity struct {
	cfg    config.GoogleConfig
	open   func(string) error
	logger zerolog.Logger

	mu     sync.Mutex
	client *identity.Client
}

func newLazyIdentity(cfg config.GoogleConfig, open func(string) error, logger zerolog.Logger) *lazyIdentity {
	return &lazyIdentity{cfg: cfg, open: open, logger: logger}
}

func (l *lazyIdentity) get(ctx context.Context) (*identity.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}

	c, err := identity.NewClient(ctx, identity.ClientConfig{
		ClientID:     l.cfg.GetClientID(),
		ClientSecret: l.cfg.GetClientSecret(),
		Issuer:       l.cfg.GetIssuer(),
		Scopes:       l.cfg.GetScopes(),
	}, identity.WithLogger(l.logger))
	if err != nil {
		return nil, err
	}
	l.client = c
	return c, nil
}

func (l *lazyIdentity) Login(ctx context.Context, loginHint string) (session.Grant, error) {
	c, err := l.get(ctx)
	if err != nil {
		return session.Grant{}, err
	}
	if l.open == nil {
		return session.Grant{}, kerrors.Wrapf(kerrors.ErrUnsupported, "login: no browser launcher")
	}
	return identity.LoopbackLogin(ctx, c, l.cfg.GetLoopbackAddr(), loginHint, l.open)
}

func (l *lazyIdentity) Renew(ctx context.Context, hint session.RenewHint) (session.Grant, error) {
	c, err := l.get(ctx)
	if err != nil {
		return session.Grant{}, err
	}
	return c.Renew(ctx, hint)
}

func (l *lazyIdentity) Revoke(ctx context.Context, token string) error {
	c, err := l.get(ctx)
	if err != nil {
		return err
	}
	return c.Revoke(ctx, token)
}

// newDistance layers caching and the ledger fallback over the Maps provider.
// Without an API key only estimates from earlier trips are available.
func newDistance(cfg config.Config, primary distance.Provider, est distance.Estimator, logger zerolog.Logger) (distance.Provider, error) {
	if primary == nil {
		if key := cfg.GetMapsAPIKey(); key != "" {
			maps, err := distance.NewGoogleMaps(key, distance.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			primary = maps
		} else {
			primary = offlineDistance{}
		}
	}
	cached := distance.NewCached(primary, cfg.GetDistanceCacheTTL())
	return distance.WithFallback(cached, est, distance.WithFallbackLogger(logger)), nil
}

type offlineDistance struct{}

func (offlineDistance) Distance(context.Context, string, string) (distance.Result, error) {
	return distance.Result{}, kerrors.Wrapf(kerrors.ErrNetworkUnavailable, "no maps api key configured")
}

func sheetsFactory(cfg config.Config, logger zerolog.Logger) RemoteFactory {
	return func(ctx context.Context, spreadsheetID string, ts oauth2.TokenSource) (syncer.RemoteStore, error) {
		return sheets.New(ctx, sheets.Config{
			SpreadsheetID:   spreadsheetID,
			SheetName:       cfg.GetSheetName(),
			WritesPerMinute: cfg.GetSyncWritesPerMinute(),
			Logger:          &logger,
		}, ts)
	}
}
