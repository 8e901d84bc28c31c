package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/kv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Store tracks whether the client holds a usable credential.
type Store struct {
	kv      kv.Store
	key     string
	renewer Renewer
	revoker Revoker
	nowTime func() time.Time
	logger  zerolog.Logger
	notify  ExpiredNotifier

	mu         sync.Mutex
	generation uint64 // bumped by Begin, End and completed renewals
	renewals   singleflight.Group
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithExpiredNotifier registers the callback fired when renewal fails for good.
func WithExpiredNotifier(n ExpiredNotifier) StoreOption {
	return func(s *Store) {
		s.notify = n
	}
}

// WithKey overrides the persisted key (default kv.KeySession).
func WithKey(key string) StoreOption {
	return func(s *Store) {
		s.key = key
	}
}

// NewStore creates a session store. renewer and revoker may be nil, in which case
// renewal always fails and logout skips revocation.
func NewStore(store kv.Store, renewer Renewer, revoker Revoker, options ...StoreOption) (*Store, error) {
	if store == nil {
		return nil, errors.New("[NewStore] kv store is required")
	}

	s := &Store{
		kv:      store,
		key:     kv.KeySession,
		renewer: renewer,
		revoker: revoker,
		nowTime: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Restore reports the persisted session state. It never writes.
func (s *Store) Restore() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Begin installs a new session from a credential exchange.
func (s *Store) Begin(grant Grant) (Status, error) {
	if err := validateGrant(grant, true); err != nil {
		return Status{State: Absent}, errors.Wrap(err, "[Store.Begin]")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowTime()
	sess := Session{
		Profile:      *grant.Profile,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(grant.ExpiresIn) * time.Second),
		CreatedAt:    now,
	}
	if err := s.saveLocked(sess); err != nil {
		return Status{State: Absent}, errors.Wrap(err, "[Store.Begin] save")
	}
	s.generation++

	s.logger.Info().Str("email", sess.Profile.Email).Time("expires_at", sess.ExpiresAt).Msg("session started")
	return statusOf(sess, now), nil
}

// Renew attempts a silent renewal. Failure ends the session: persisted state is
// cleared, the expired notifier fires and Absent is returned without an error.
// A renewal overtaken by Begin or End is discarded. Concurrent calls share one attempt.
func (s *Store) Renew(ctx context.Context) (Status, error) {
	v, err, _ := s.renewals.Do("renew", func() (interface{}, error) {
		return s.renew(ctx)
	})
	if err != nil {
		return Status{State: Absent}, err
	}
	return v.(Status), nil
}

func (s *Store) renew(ctx context.Context) (Status, error) {
	s.mu.Lock()
	current, ok, err := s.loadLocked()
	gen := s.generation
	s.mu.Unlock()

	if err != nil {
		return Status{State: Absent}, errors.Wrap(err, "[Store.Renew] load")
	}
	if !ok {
		return Status{State: Absent}, nil
	}

	var grant Grant
	renewErr := kerrors.ErrRenewUnavailable
	if s.renewer != nil {
		grant, renewErr = s.renewer.Renew(ctx, RenewHint{
			RefreshToken: current.RefreshToken,
			LoginHint:    current.Profile.Email,
		})
		if renewErr == nil {
			renewErr = validateGrant(grant, false)
		}
	}
	if renewErr != nil && ctx.Err() != nil {
		return Status{State: Absent}, ctx.Err()
	}

	s.mu.Lock()
	if s.generation != gen {
		st, err := s.statusLocked()
		s.mu.Unlock()
		s.logger.Debug().Msg("renewal superseded, result discarded")
		return st, err
	}

	if renewErr != nil {
		clearErr := s.kv.Remove(s.key)
		s.generation++
		s.mu.Unlock()

		s.logger.Warn().Err(renewErr).Str("email", current.Profile.Email).Msg("session renewal failed")
		if clearErr != nil {
			s.logger.Error().Err(clearErr).Msg("clear session after failed renewal")
		}
		if s.notify != nil {
			s.notify(current.Profile)
		}
		return Status{State: Absent, Profile: current.Profile}, nil
	}

	now := s.nowTime()
	renewed := current
	renewed.AccessToken = grant.AccessToken
	renewed.ExpiresAt = now.Add(time.Duration(grant.ExpiresIn) * time.Second)
	renewed.RenewedAt = now
	if grant.RefreshToken != "" {
		renewed.RefreshToken = grant.RefreshToken
	}
	if grant.Profile != nil {
		renewed.Profile = *grant.Profile
	}
	if err := s.saveLocked(renewed); err != nil {
		s.mu.Unlock()
		return Status{State: Absent}, errors.Wrap(err, "[Store.Renew] save")
	}
	s.generation++
	s.mu.Unlock()

	s.logger.Info().Str("email", renewed.Profile.Email).Time("expires_at", renewed.ExpiresAt).Msg("session renewed")
	return statusOf(renewed, now), nil
}

// End clears the session and then revokes the credential on a best-effort basis.
func (s *Store) End(ctx context.Context) (Status, error) {
	s.mu.Lock()
	current, ok, _ := s.loadLocked()
	removeErr := s.kv.Remove(s.key)
	s.generation++
	s.mu.Unlock()

	if ok && s.revoker != nil {
		token := current.RefreshToken
		if token == "" {
			token = current.AccessToken
		}
		if err := s.revoker.Revoke(ctx, token); err != nil {
			s.logger.Warn().Err(err).Str("email", current.Profile.Email).Msg("credential revocation failed")
		}
	}

	if removeErr != nil {
		return Status{State: Absent}, errors.Wrap(removeErr, "[Store.End] remove")
	}
	s.logger.Info().Msg("session ended")
	return Status{State: Absent}, nil
}

// Authorized returns nil when an authenticated operation may proceed. A stale
// session is renewed on the spot.
func (s *Store) Authorized(ctx context.Context) error {
	st, err := s.Restore()
	if err != nil {
		return err
	}
	if st.State == Stale {
		if st, err = s.Renew(ctx); err != nil {
			return err
		}
	}
	if st.State != Authenticated {
		return kerrors.ErrNotAuthenticated
	}
	return nil
}

// credential returns the usable access token, renewing a stale one.
func (s *Store) credential(ctx context.Context) (string, time.Time, error) {
	if err := s.Authorized(ctx); err != nil {
		return "", time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok, err := s.loadLocked()
	if err != nil {
		return "", time.Time{}, err
	}
	if !ok {
		return "", time.Time{}, kerrors.ErrNotAuthenticated
	}
	return current.AccessToken, current.ExpiresAt, nil
}

func (s *Store) statusLocked() (Status, error) {
	current, ok, err := s.loadLocked()
	if err != nil {
		return Status{State: Absent}, err
	}
	if !ok {
		return Status{State: Absent}, nil
	}
	return statusOf(current, s.nowTime()), nil
}

func (s *Store) loadLocked() (Session, bool, error) {
	raw, ok, err := s.kv.Get(s.key)
	if errors.Is(err, kv.ErrSealed) {
		s.logger.Warn().Err(err).Msg("ignoring session sealed with another passphrase")
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, errors.Wrap(err, "[Store] kv.Get")
	}
	if !ok {
		return Session{}, false, nil
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		s.logger.Warn().Err(err).Msg("ignoring unreadable session blob")
		return Session{}, false, nil
	}
	if sess.AccessToken == "" || sess.ExpiresAt.IsZero() {
		return Session{}, false, nil
	}
	return sess, true, nil
}

func (s *Store) saveLocked(sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.kv.Set(s.key, string(data))
}

func statusOf(sess Session, now time.Time) Status {
	st := Status{State: Authenticated, Profile: sess.Profile, ExpiresAt: sess.ExpiresAt}
	if sess.Expired(now) {
		st.State = Stale
	}
	return st
}

func validateGrant(g Grant, requireProfile bool) error {
	var fields []kerrors.FieldError
	if g.AccessToken == "" {
		fields = append(fields, kerrors.FieldError{Field: "access_token", Rule: "required"})
	}
	if g.ExpiresIn <= 0 {
		fields = append(fields, kerrors.FieldError{Field: "expires_in", Rule: "gt=0"})
	}
	if requireProfile && g.Profile == nil {
		fields = append(fields, kerrors.FieldError{Field: "profile", Rule: "required"})
	}
	if len(fields) > 0 {
		return kerrors.NewValidationError(fields...)
	}
	return nil
}
