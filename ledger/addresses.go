package ledger

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	kerrors "github.com/jrsteele09/korebog/internal/errors"
)

// FrequentAddress is a deduplicated address used to prefill trip forms.
type FrequentAddress struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Address     string `json:"address"`
	Description string `json:"description,omitempty"`
	LastVisited string `json:"last_visited"` // DateLayout
}

// NormalizeAddress is the deduplication key of an address: lower case with
// whitespace collapsed.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// FrequentAddresses returns the address book, most recently visited first.
func (l *Ledger) FrequentAddresses(ctx context.Context) ([]FrequentAddress, error) {
	if err := l.gate.Authorized(ctx); err != nil {
		return nil, err
	}

	l.mu.Lock()
	out := append([]FrequentAddress(nil), l.addresses...)
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastVisited != out[j].LastVisited {
			return out[i].LastVisited > out[j].LastVisited
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// DescribeFrequentAddress sets the user's label for an address.
func (l *Ledger) DescribeFrequentAddress(ctx context.Context, id, description string) (FrequentAddress, error) {
	if err := l.gate.Authorized(ctx); err != nil {
		return FrequentAddress{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.addressIndexLocked(id)
	if idx < 0 {
		return FrequentAddress{}, kerrors.Wrapf(kerrors.ErrNotFound, "address %s", id)
	}

	undo := l.checkpointLocked()
	l.addresses[idx].Description = strings.TrimSpace(description)
	if err := l.persistLocked(undo); err != nil {
		return FrequentAddress{}, err
	}
	return l.addresses[idx], nil
}

func (l *Ledger) DeleteFrequentAddress(ctx context.Context, id string) error {
	if err := l.gate.Authorized(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.addressIndexLocked(id)
	if idx < 0 {
		return kerrors.Wrapf(kerrors.ErrNotFound, "address %s", id)
	}

	undo := l.checkpointLocked()
	l.addresses = append(l.addresses[:idx:idx], l.addresses[idx+1:]...)
	return l.persistLocked(undo)
}

// KnownDistance returns the most recently recorded distance between two
// addresses, in either direction.
func (l *Ledger) KnownDistance(origin, destination string) (float64, bool) {
	from, to := NormalizeAddress(origin), NormalizeAddress(destination)

	l.mu.Lock()
	defer l.mu.Unlock()

	var best *TripRecord
	for i := range l.trips {
		t := &l.trips[i]
		if t.Draft() {
			continue
		}
		o, d := NormalizeAddress(t.Origin), NormalizeAddress(t.Destination)
		if !(o == from && d == to) && !(o == to && d == from) {
			continue
		}
		if best == nil || t.ModifiedAt.After(best.ModifiedAt) {
			best = t
		}
	}
	if best == nil {
		return 0, false
	}
	return best.Distance, true
}

func (l *Ledger) addressIndexLocked(id string) int {
	for i := range l.addresses {
		if l.addresses[i].ID == id {
			return i
		}
	}
	return -1
}

// touchAddressesLocked upserts both ends of a trip. The last visited date only moves forward.
func (l *Ledger) touchAddressesLocked(t TripRecord) {
	l.upsertAddressLocked(t.Origin, t.Date)
	l.upsertAddressLocked(t.Destination, t.Date)
}

func (l *Ledger) upsertAddressLocked(address, date string) {
	key := NormalizeAddress(address)
	if key == "" {
		return
	}
	for i := range l.addresses {
		if l.addresses[i].Key == key {
			if date > l.addresses[i].LastVisited {
				l.addresses[i].LastVisited = date
			}
			return
		}
	}
	l.addresses = append(l.addresses, FrequentAddress{
		ID:          uuid.NewString(),
		Key:         key,
		Address:     strings.TrimSpace(address),
		LastVisited: date,
	})
}
