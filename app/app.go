// Package app wires the mileage log components into one context object that a
// presentation layer drives.
package app

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/jrsteele09/korebog/distance"
	"github.com/jrsteele09/korebog/internal/config"
	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/kv"
	"github.com/jrsteele09/korebog/ledger"
	"github.com/jrsteele09/korebog/session"
	"github.com/jrsteele09/korebog/settings"
	"github.com/jrsteele09/korebog/syncer"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Identity is the interactive side of the identity provider plus what the
// session store needs for renewal and revocation.
type Identity interface {
	session.Renewer
	session.Revoker
	Login(ctx context.Context, loginHint string) (session.Grant, error)
}

// RemoteFactory builds the remote ledger store for a spreadsheet.
type RemoteFactory func(ctx context.Context, spreadsheetID string, ts oauth2.TokenSource) (syncer.RemoteStore, error)

// Deps overrides the components New would otherwise build from configuration.
type Deps struct {
	KV       kv.Store
	Identity Identity
	Distance distance.Provider
	Remote   RemoteFactory

	Registerer       prometheus.Registerer
	OpenBrowser      func(url string) error
	OnSessionExpired session.ExpiredNotifier
	NowTime          func() time.Time
	Logger           *zerolog.Logger
}

// App owns every component for the lifetime of the process.
type App struct {
	cfg      config.Config
	kv       kv.Store
	identity Identity
	sessions *session.Store
	ledger   *ledger.Ledger
	settings *settings.Store
	distance distance.Provider
	remote   *remoteResolver
	sync     *syncer.Coordinator
	logger   zerolog.Logger

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
	bgMu     sync.Mutex
	closed   bool
}

func New(ctx context.Context, cfg config.Config, deps Deps) (*App, error) {
	logger := log.Logger
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	nowTime := deps.NowTime
	if nowTime == nil {
		nowTime = time.Now
	}

	a := &App{cfg: cfg, logger: logger}

	var err error
	if a.kv = deps.KV; a.kv == nil {
		if a.kv, err = OpenKV(cfg); err != nil {
			return nil, errors.Wrap(err, "[app.New] open kv store")
		}
	}

	if a.identity = deps.Identity; a.identity == nil && cfg.GetClientID() != "" {
		a.identity = newLazyIdentity(cfg, deps.OpenBrowser, logger)
	}

	var renewer session.Renewer
	var revoker session.Revoker
	if a.identity != nil {
		renewer, revoker = a.identity, a.identity
	}
	a.sessions, err = session.NewStore(a.kv, renewer, revoker,
		session.WithNowTime(nowTime),
		session.WithLogger(logger),
		session.WithExpiredNotifier(deps.OnSessionExpired),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[app.New] session store")
	}

	if a.settings, err = settings.Load(a.kv); err != nil {
		return nil, errors.Wrap(err, "[app.New] settings")
	}

	a.ledger, err = ledger.Open(a.kv, a.sessions, ledger.WithNowTime(nowTime), ledger.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "[app.New] ledger")
	}

	if a.distance, err = newDistance(cfg, deps.Distance, a.ledger, logger); err != nil {
		return nil, errors.Wrap(err, "[app.New] distance provider")
	}

	factory := deps.Remote
	if factory == nil {
		factory = sheetsFactory(cfg, logger)
	}
	a.remote = &remoteResolver{
		factory:       factory,
		tokens:        a.sessions.TokenSource,
		spreadsheetID: a.spreadsheetID,
	}

	syncOpts := []syncer.Option{syncer.WithNowTime(nowTime), syncer.WithLogger(logger)}
	if deps.Registerer != nil {
		syncOpts = append(syncOpts, syncer.WithMetrics(syncer.NewMetrics(deps.Registerer)))
	}
	a.sync = syncer.New(a.ledger, a.remote, a.sessions, a.kv, syncOpts...)

	a.bgCtx, a.bgCancel = context.WithCancel(context.WithoutCancel(ctx))
	return a, nil
}

// Close stops background passes and waits for them before closing storage.
func (a *App) Close() error {
	a.bgMu.Lock()
	a.closed = true
	a.bgMu.Unlock()

	a.bgCancel()
	a.bg.Wait()
	a.sync.Wait()
	if c, ok := a.kv.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// State restores the persisted session, renewing it silently when stale.
func (a *App) State(ctx context.Context) (session.Status, error) {
	st, err := a.sessions.Restore()
	if err != nil {
		return st, err
	}
	if st.State == session.Stale {
		return a.sessions.Renew(ctx)
	}
	return st, nil
}

// Login runs the interactive sign-in and starts a session from its grant.
func (a *App) Login(ctx context.Context, loginHint string) (session.Status, error) {
	if a.identity == nil {
		return session.Status{State: session.Absent}, kerrors.Wrapf(kerrors.ErrUnsupported, "login: no identity provider configured")
	}
	grant, err := a.identity.Login(ctx, loginHint)
	if err != nil {
		return session.Status{State: session.Absent}, err
	}
	return a.sessions.Begin(grant)
}

func (a *App) Logout(ctx context.Context) (session.Status, error) {
	return a.sessions.End(ctx)
}

func (a *App) Settings() settings.Settings {
	return a.settings.Get()
}

func (a *App) UpdateSettings(p settings.Patch) (settings.Settings, error) {
	return a.settings.Update(p)
}

// spreadsheetID prefers the user's setting over configuration.
func (a *App) spreadsheetID() string {
	if id := a.settings.Get().SpreadsheetID; id != "" {
		return id
	}
	return a.cfg.GetSpreadsheetID()
}
