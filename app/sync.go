package app

import (
	"context"
	"sync"

	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/ledger"
	"github.com/jrsteele09/korebog/syncer"
	"golang.org/x/oauth2"
)

// remoteResolver builds the remote store for the current spreadsheet on first
// write and rebuilds it when the spreadsheet setting changes.
type remoteResolver struct {
	factory       RemoteFactory
	tokens        func(context.Context) oauth2.TokenSource
	spreadsheetID func() string

	mu    sync.Mutex
	id    string
	store syncer.RemoteStore
}

func (r *remoteResolver) Write(ctx context.Context, trip ledger.TripRecord) error {
	store, err := r.resolve(ctx)
	if err != nil {
		return err
	}
	return store.Write(ctx, trip)
}

func (r *remoteResolver) resolve(ctx context.Context) (syncer.RemoteStore, error) {
	id := r.spreadsheetID()
	if id == "" {
		return nil, kerrors.Rejected("no spreadsheet configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil && r.id == id {
		return r.store, nil
	}
	// the token source outlives the pass that created it
	store, err := r.factory(ctx, id, r.tokens(context.WithoutCancel(ctx)))
	if err != nil {
		return nil, kerrors.Wrapf(kerrors.ErrNetworkUnavailable, "open spreadsheet %s: %v", id, err)
	}
	r.id, r.store = id, store
	return store, nil
}

// SyncNow runs a synchronization pass, or joins the running one.
func (a *App) SyncNow(ctx context.Context) (syncer.SyncResult, error) {
	if a.spreadsheetID() == "" {
		return syncer.SyncResult{}, kerrors.Wrapf(kerrors.ErrValidation, "no spreadsheet configured")
	}
	return a.sync.SyncNow(ctx)
}

func (a *App) SyncStatus() (syncer.Status, error) {
	return a.sync.Status()
}

// Watch synchronizes on the configured interval until ctx ends.
func (a *App) Watch(ctx context.Context) error {
	if a.spreadsheetID() == "" {
		return kerrors.Wrapf(kerrors.ErrValidation, "no spreadsheet configured")
	}
	return a.sync.Run(ctx, a.cfg.GetSyncInterval())
}

// syncAfterSave starts a background pass for a saved trip when the user asked
// for it. Concurrent saves share the running pass.
func (a *App) syncAfterSave(trip ledger.TripRecord) {
	if trip.Draft() || !a.settings.Get().SyncAfterSave || a.spreadsheetID() == "" {
		return
	}

	// bg.Add must not race the Wait in Close
	a.bgMu.Lock()
	defer a.bgMu.Unlock()
	if a.closed {
		return
	}
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		res, err := a.sync.SyncNow(a.bgCtx)
		if err != nil {
			a.logger.Info().Err(err).Str("trip_id", trip.ID).Msg("background sync did not complete")
			return
		}
		a.logger.Debug().Str("pass_id", res.PassID).Int("succeeded", res.Succeeded).Msg("background sync finished")
	}()
}
