package remotefake

import (
	"context"
	"sync"

	"github.com/jrsteele09/korebog/ledger"
	"github.com/jrsteele09/korebog/syncer"
)

var _ syncer.RemoteStore = (*FakeRemote)(nil)

// FakeRemote records writes and fails the ones it is told to.
type FakeRemote struct {
	lock sync.Mutex

	rows   map[string]ledger.TripRecord
	writes []string
	errs   map[string]error

	// Block, when set, holds every write until it is closed.
	Block chan struct{}
	// OnWrite runs after a write has been recorded, outside the lock.
	OnWrite func(trip ledger.TripRecord)
}

func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		rows: make(map[string]ledger.TripRecord),
		errs: make(map[string]error),
	}
}

// FailWith makes writes of trip id return err until cleared with a nil err.
func (r *FakeRemote) FailWith(id string, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if err == nil {
		delete(r.errs, id)
		return
	}
	r.errs[id] = err
}

func (r *FakeRemote) Write(_ context.Context, trip ledger.TripRecord) error {
	r.lock.Lock()
	r.writes = append(r.writes, trip.ID)
	block := r.Block
	r.lock.Unlock()

	if block != nil {
		<-block
	}

	r.lock.Lock()
	err := r.errs[trip.ID]
	if err == nil {
		r.rows[trip.ID] = trip
	}
	hook := r.OnWrite
	r.lock.Unlock()

	if hook != nil {
		hook(trip)
	}
	return err
}

// Writes returns the ids of every attempted write in order.
func (r *FakeRemote) Writes() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.writes...)
}

// Row returns the last successfully written version of a trip.
func (r *FakeRemote) Row(id string) (ledger.TripRecord, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	row, ok := r.rows[id]
	return row, ok
}
