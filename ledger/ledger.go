package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/korebog/ids"
	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/internal/validation"
	"github.com/jrsteele09/korebog/kv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const tripIDPrefix = "trip"

// Gate decides whether authenticated operations may run.
type Gate interface {
	Authorized(ctx context.Context) error
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context) error

func (f GateFunc) Authorized(ctx context.Context) error {
	return f(ctx)
}

// Ledger is the authoritative local collection of trips and frequent addresses.
// Mutations are serialized; a failed write leaves memory as it was.
type Ledger struct {
	kv       kv.Store
	gate     Gate
	validate *validator.Validate
	nowTime  func() time.Time
	newID    func() string
	logger   zerolog.Logger
	warnAt   int

	mu        sync.Mutex
	trips     []TripRecord
	addresses []FrequentAddress
	issued    map[string]struct{}
}

type Option func(*Ledger)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(l *Ledger) {
		l.nowTime = nowFunc
	}
}

// WithIDGenerator replaces the trip identifier source.
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) {
		l.newID = newID
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithSixtyDayWarnAt sets the day count from which SixtyDayReport lists a destination.
func WithSixtyDayWarnAt(days int) Option {
	return func(l *Ledger) {
		if days > 0 {
			l.warnAt = days
		}
	}
}

// Open loads the ledger from store. Unreadable persisted data is an error, never
// replaced by an empty ledger.
func Open(store kv.Store, gate Gate, options ...Option) (*Ledger, error) {
	if store == nil || gate == nil {
		return nil, kerrors.New("[ledger.Open] store and gate are required")
	}

	l := &Ledger{
		kv:       store,
		gate:     gate,
		validate: validation.New(),
		nowTime:  time.Now,
		newID:    func() string { return ids.WithPrefix(tripIDPrefix) },
		logger:   log.Logger,
		warnAt:   DefaultSixtyDayWarnAt,
		issued:   make(map[string]struct{}),
	}
	for _, opt := range options {
		opt(l)
	}

	if err := loadJSON(store, kv.KeyTrips, &l.trips); err != nil {
		return nil, err
	}
	if err := loadJSON(store, kv.KeyAddresses, &l.addresses); err != nil {
		return nil, err
	}
	for _, t := range l.trips {
		l.issued[t.ID] = struct{}{}
	}

	l.logger.Debug().Int("trips", len(l.trips)).Int("addresses", len(l.addresses)).Msg("ledger opened")
	return l, nil
}

func loadJSON(store kv.Store, key string, into interface{}) error {
	raw, ok, err := store.Get(key)
	if err != nil {
		return kerrors.Wrapf(err, "[ledger.Open] read %s", key)
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		return kerrors.Wrapf(err, "[ledger.Open] decode %s", key)
	}
	return nil
}

// Create validates and appends a new trip. A zero distance is accepted and
// leaves the trip as a draft.
func (l *Ledger) Create(ctx context.Context, in TripInput) (TripRecord, error) {
	if err := l.gate.Authorized(ctx); err != nil {
		return TripRecord{}, err
	}
	in = in.trimmed()
	if err := validation.Struct(l.validate, in); err != nil {
		return TripRecord{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowTime()
	rec := TripRecord{
		ID:          l.issueIDLocked(),
		Date:        in.Date,
		Origin:      in.Origin,
		Destination: in.Destination,
		Purpose:     in.Purpose,
		Distance:    in.Distance,
		Rate:        in.Rate,
		RoundTrip:   in.RoundTrip,
		Amount:      Amount(in.Distance, in.Rate, in.RoundTrip),
		CreatedAt:   now,
		ModifiedAt:  now,
	}

	undo := l.checkpointLocked()
	l.trips = append(l.trips, rec)
	l.touchAddressesLocked(rec)
	if err := l.persistLocked(undo); err != nil {
		return TripRecord{}, err
	}

	l.logger.Debug().Str("trip_id", rec.ID).Bool("draft", rec.Draft()).Msg("trip created")
	return rec, nil
}

// Update merges patch into the trip, recomputes the amount and marks it unsynchronized.
func (l *Ledger) Update(ctx context.Context, id string, patch TripPatch) (TripRecord, error) {
	if err := l.gate.Authorized(ctx); err != nil {
		return TripRecord{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexLocked(id)
	if idx < 0 {
		return TripRecord{}, kerrors.Wrapf(kerrors.ErrNotFound, "trip %s", id)
	}

	in := patch.apply(l.trips[idx])
	if err := validation.Struct(l.validate, in); err != nil {
		return TripRecord{}, err
	}

	rec := l.trips[idx]
	rec.Date = in.Date
	rec.Origin = in.Origin
	rec.Destination = in.Destination
	rec.Purpose = in.Purpose
	rec.Distance = in.Distance
	rec.Rate = in.Rate
	rec.RoundTrip = in.RoundTrip
	rec.Amount = Amount(in.Distance, in.Rate, in.RoundTrip)
	rec.Synchronized = false
	rec.ModifiedAt = l.advanceLocked(rec.ModifiedAt)

	undo := l.checkpointLocked()
	l.trips[idx] = rec
	l.touchAddressesLocked(rec)
	if err := l.persistLocked(undo); err != nil {
		return TripRecord{}, err
	}

	l.logger.Debug().Str("trip_id", rec.ID).Msg("trip updated")
	return rec, nil
}

// Delete removes a trip. Its identifier is never issued again by this ledger.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	if err := l.gate.Authorized(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexLocked(id)
	if idx < 0 {
		return kerrors.Wrapf(kerrors.ErrNotFound, "trip %s", id)
	}

	undo := l.checkpointLocked()
	l.trips = append(l.trips[:idx:idx], l.trips[idx+1:]...)
	if err := l.persistLocked(undo); err != nil {
		return err
	}

	l.logger.Debug().Str("trip_id", id).Msg("trip deleted")
	return nil
}

func (l *Ledger) Get(ctx context.Context, id string) (TripRecord, error) {
	if err := l.gate.Authorized(ctx); err != nil {
		return TripRecord{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexLocked(id)
	if idx < 0 {
		return TripRecord{}, kerrors.Wrapf(kerrors.ErrNotFound, "trip %s", id)
	}
	return l.trips[idx], nil
}

// List returns the trips matching opts in ledger order, or newest date first
// when SortByDateDesc is set. Equal dates keep ledger order.
func (l *Ledger) List(ctx context.Context, opts ListOptions) ([]TripRecord, error) {
	if err := l.gate.Authorized(ctx); err != nil {
		return nil, err
	}
	if err := validation.Struct(l.validate, opts); err != nil {
		return nil, err
	}

	l.mu.Lock()
	out := make([]TripRecord, 0, len(l.trips))
	for _, t := range l.trips {
		if opts.match(t) {
			out = append(out, t)
		}
	}
	l.mu.Unlock()

	if opts.SortByDateDesc {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Date > out[j].Date
		})
	}
	return out, nil
}

// UnsyncedSubset returns every unsynchronized trip in ledger order.
func (l *Ledger) UnsyncedSubset() []TripRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]TripRecord, 0)
	for _, t := range l.trips {
		if !t.Synchronized {
			out = append(out, t)
		}
	}
	return out
}

// PendingCount is the number of unsynchronized trips that are not drafts.
func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, t := range l.trips {
		if !t.Synchronized && !t.Draft() {
			n++
		}
	}
	return n
}

// MarkSynchronized records a confirmed remote write of the version of trip id
// last modified at modifiedAt. It returns false without changes when the trip
// was modified after that version was written.
func (l *Ledger) MarkSynchronized(id string, modifiedAt time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexLocked(id)
	if idx < 0 {
		return false, kerrors.Wrapf(kerrors.ErrNotFound, "trip %s", id)
	}
	if !l.trips[idx].ModifiedAt.Equal(modifiedAt) {
		return false, nil
	}
	if l.trips[idx].Synchronized {
		return true, nil
	}

	undo := l.checkpointLocked()
	l.trips[idx].Synchronized = true
	if err := l.persistLocked(undo); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) indexLocked(id string) int {
	for i := range l.trips {
		if l.trips[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) issueIDLocked() string {
	for {
		id := l.newID()
		if _, used := l.issued[id]; !used {
			l.issued[id] = struct{}{}
			return id
		}
	}
}

// advanceLocked returns a modification time strictly after prev.
func (l *Ledger) advanceLocked(prev time.Time) time.Time {
	now := l.nowTime()
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return now
}

type checkpoint struct {
	trips     []TripRecord
	addresses []FrequentAddress
}

func (l *Ledger) checkpointLocked() checkpoint {
	return checkpoint{
		trips:     append([]TripRecord(nil), l.trips...),
		addresses: append([]FrequentAddress(nil), l.addresses...),
	}
}

// persistLocked writes both collections. On failure memory is restored from undo
// and the previous state is written back as far as possible.
func (l *Ledger) persistLocked(undo checkpoint) error {
	err := l.writeLocked()
	if err == nil {
		return nil
	}

	l.trips = undo.trips
	l.addresses = undo.addresses
	if rbErr := l.writeLocked(); rbErr != nil {
		l.logger.Error().Err(rbErr).Msg("restore ledger after failed write")
	}
	return kerrors.Wrapf(err, "persist ledger")
}

func (l *Ledger) writeLocked() error {
	trips := l.trips
	if trips == nil {
		trips = []TripRecord{}
	}
	data, err := json.Marshal(trips)
	if err != nil {
		return err
	}
	if err := l.kv.Set(kv.KeyTrips, string(data)); err != nil {
		return err
	}

	addresses := l.addresses
	if addresses == nil {
		addresses = []FrequentAddress{}
	}
	data, err = json.Marshal(addresses)
	if err != nil {
		return err
	}
	return l.kv.Set(kv.KeyAddresses, string(data))
}
