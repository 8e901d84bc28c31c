package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/kv"
	"github.com/jrsteele09/korebog/ledger"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RemoteStore writes one trip to the remote ledger. It returns an error matching
// ErrNotAuthenticated, ErrRemoteRejected or ErrNetworkUnavailable on failure.
type RemoteStore interface {
	Write(ctx context.Context, trip ledger.TripRecord) error
}

// Ledger is the part of the trip ledger the coordinator needs.
type Ledger interface {
	UnsyncedSubset() []ledger.TripRecord
	MarkSynchronized(id string, modifiedAt time.Time) (bool, error)
	PendingCount() int
}

type markers struct {
	LastAttempted time.Time `json:"last_attempted"`
	LastSucceeded time.Time `json:"last_succeeded"`
}

// Coordinator pushes unsynchronized trips to the remote store. At most one pass
// runs at a time; callers arriving during a pass share its result.
type Coordinator struct {
	ledger  Ledger
	remote  RemoteStore
	gate    ledger.Gate
	kv      kv.Store
	metrics *Metrics
	nowTime func() time.Time
	logger  zerolog.Logger

	mu      sync.Mutex
	running *flight
}

// flight is one pass and the callers waiting for it. The pass is abandoned
// only when every waiter's context is done.
type flight struct {
	waiters []context.Context
	stopped bool
	done    chan struct{}
	res     SyncResult
	err     error
}

type Option func(*Coordinator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Coordinator) {
		c.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func New(l Ledger, remote RemoteStore, gate ledger.Gate, store kv.Store, options ...Option) *Coordinator {
	c := &Coordinator{
		ledger:  l,
		remote:  remote,
		gate:    gate,
		kv:      store,
		nowTime: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// SyncNow runs a pass, or joins the one already running. Per-record failures
// are reported in the result, not as an error. The error is ErrNotAuthenticated
// when the pass could not run or was cut short for lack of a session, or the
// context error when the pass was abandoned.
func (c *Coordinator) SyncNow(ctx context.Context) (SyncResult, error) {
	fl, err := c.join(ctx)
	if err != nil {
		return SyncResult{Aborted: true}, err
	}

	select {
	case <-fl.done:
		return fl.res, fl.err
	case <-ctx.Done():
		return SyncResult{Aborted: true}, ctx.Err()
	}
}

// join attaches ctx to the running pass or starts one. A pass that has already
// given up is waited out first so two passes never overlap.
func (c *Coordinator) join(ctx context.Context) (*flight, error) {
	for {
		c.mu.Lock()
		fl := c.running
		if fl != nil && fl.stopped {
			c.mu.Unlock()
			select {
			case <-fl.done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if fl == nil {
			fl = &flight{done: make(chan struct{})}
			c.running = fl
			// the pass outlives the caller that started it
			go c.fly(context.WithoutCancel(ctx), fl)
		}
		fl.waiters = append(fl.waiters, ctx)
		c.mu.Unlock()
		return fl, nil
	}
}

func (c *Coordinator) fly(ctx context.Context, fl *flight) {
	fl.res, fl.err = c.pass(ctx, func() bool { return c.abandoned(fl) })

	c.mu.Lock()
	if c.running == fl {
		c.running = nil
	}
	c.mu.Unlock()
	close(fl.done)
}

// Wait blocks until the running pass, if any, has stopped. A pass keeps going for
// a moment after its last caller leaves, to settle the write in flight.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	fl := c.running
	c.mu.Unlock()
	if fl != nil {
		<-fl.done
	}
}

// abandoned reports whether nobody waits for fl any more, and if so stops it.
func (c *Coordinator) abandoned(fl *flight) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range fl.waiters {
		if w.Err() == nil {
			return false
		}
	}
	fl.stopped = true
	return true
}

func (c *Coordinator) pass(ctx context.Context, abandoned func() bool) (SyncResult, error) {
	start := time.Now()
	res := SyncResult{
		PassID:    uuid.NewString(),
		StartedAt: c.nowTime(),
		Failures:  []Failure{},
	}
	logger := c.logger.With().Str("pass_id", res.PassID).Logger()

	if err := c.gate.Authorized(ctx); err != nil {
		res.Aborted = true
		res.FinishedAt = c.nowTime()
		if c.metrics != nil {
			c.metrics.Passes.WithLabelValues("unauthenticated").Inc()
		}
		logger.Info().Err(err).Msg("sync skipped, not authenticated")
		return res, kerrors.Wrapf(kerrors.ErrNotAuthenticated, "sync pass")
	}

	snapshot := c.ledger.UnsyncedSubset()
	logger.Debug().Int("records", len(snapshot)).Msg("sync pass started")

	var passErr error
	for _, trip := range snapshot {
		if abandoned() {
			res.Aborted = true
			passErr = context.Canceled
			logger.Info().Int("remaining", len(snapshot)-res.Attempted-res.Skipped).Msg("sync pass abandoned")
			break
		}
		if trip.Draft() {
			res.Skipped++
			continue
		}

		res.Attempted++
		if err := c.remote.Write(ctx, trip); err != nil {
			kind := classify(err)
			res.Failures = append(res.Failures, Failure{ID: trip.ID, Reason: err.Error(), Kind: kind})
			logger.Warn().Err(err).Str("trip_id", trip.ID).Str("kind", string(kind)).Msg("trip not synchronized")

			if kind == FailureUnauthenticated {
				res.Aborted = true
				passErr = kerrors.Wrapf(kerrors.ErrNotAuthenticated, "sync pass")
				break
			}
			continue
		}

		if _, err := c.ledger.MarkSynchronized(trip.ID, trip.ModifiedAt); err != nil && !kerrors.Is(err, kerrors.ErrNotFound) {
			res.Failures = append(res.Failures, Failure{ID: trip.ID, Reason: err.Error(), Kind: FailureStorage})
			logger.Error().Err(err).Str("trip_id", trip.ID).Msg("mark trip synchronized")
			continue
		}
		res.Succeeded++
	}

	res.FinishedAt = c.nowTime()
	if err := c.record(res); err != nil {
		logger.Error().Err(err).Msg("persist sync markers")
	}

	pending := c.ledger.PendingCount()
	c.metrics.observe(res, start, pending)

	logger.Info().
		Int("attempted", res.Attempted).
		Int("succeeded", res.Succeeded).
		Int("failed", len(res.Failures)).
		Int("skipped", res.Skipped).
		Bool("aborted", res.Aborted).
		Msg("sync pass finished")
	return res, passErr
}

// record runs inside the running pass only.
func (c *Coordinator) record(res SyncResult) error {
	m, err := c.loadMarkers()
	if err != nil {
		m = markers{}
	}
	m.LastAttempted = res.FinishedAt
	if res.Complete() {
		m.LastSucceeded = res.FinishedAt
	}

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.kv.Set(kv.KeySync, string(data))
}

func (c *Coordinator) loadMarkers() (markers, error) {
	var m markers
	raw, ok, err := c.kv.Get(kv.KeySync)
	if err != nil {
		return m, err
	}
	if !ok || raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return markers{}, err
	}
	return m, nil
}

// Status reports the pass markers and how many trips are waiting.
func (c *Coordinator) Status() (Status, error) {
	m, err := c.loadMarkers()
	if err != nil {
		return Status{}, kerrors.Wrapf(err, "load sync markers")
	}
	return Status{
		LastAttempted: m.LastAttempted,
		LastSucceeded: m.LastSucceeded,
		Pending:       c.ledger.PendingCount(),
	}, nil
}

// Run performs a pass straight away and then every interval until ctx ends.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return kerrors.Wrapf(kerrors.ErrValidation, "sync interval %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.SyncNow(ctx); err != nil && ctx.Err() == nil {
			c.logger.Info().Err(err).Msg("scheduled sync did not run")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
