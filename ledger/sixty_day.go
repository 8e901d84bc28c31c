package ledger

import (
	"context"
	"sort"
	"time"
)

const (
	// SixtyDayLimit is the number of days within twelve months after which a
	// destination counts as a regular workplace.
	SixtyDayLimit         = 60
	DefaultSixtyDayWarnAt = 50
)

// SixtyDayWarning reports a destination approaching or past the limit.
type SixtyDayWarning struct {
	Destination string
	Key         string
	Days        int
	FirstDate   string
	LastDate    string
	Exceeded    bool
}

// SixtyDayReport counts distinct trip dates per destination in the 365 days up to
// and including asOf, and returns the destinations at or past the warning level,
// highest count first.
func (l *Ledger) SixtyDayReport(ctx context.Context, asOf time.Time) ([]SixtyDayWarning, error) {
	if err := l.gate.Authorized(ctx); err != nil {
		return nil, err
	}

	last := asOf.Format(DateLayout)
	first := asOf.AddDate(0, 0, -364).Format(DateLayout)

	type tally struct {
		destination string
		dates       map[string]struct{}
	}
	byKey := make(map[string]*tally)

	l.mu.Lock()
	for _, t := range l.trips {
		if t.Date < first || t.Date > last {
			continue
		}
		key := NormalizeAddress(t.Destination)
		tl, ok := byKey[key]
		if !ok {
			tl = &tally{destination: t.Destination, dates: make(map[string]struct{})}
			byKey[key] = tl
		}
		tl.dates[t.Date] = struct{}{}
	}
	warnAt := l.warnAt
	l.mu.Unlock()

	var out []SixtyDayWarning
	for key, tl := range byKey {
		if len(tl.dates) < warnAt {
			continue
		}
		w := SixtyDayWarning{Destination: tl.destination, Key: key, Days: len(tl.dates)}
		for d := range tl.dates {
			if w.FirstDate == "" || d < w.FirstDate {
				w.FirstDate = d
			}
			if d > w.LastDate {
				w.LastDate = d
			}
		}
		w.Exceeded = w.Days >= SixtyDayLimit
		out = append(out, w)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Days != out[j].Days {
			return out[i].Days > out[j].Days
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}
