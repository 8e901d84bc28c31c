package ledger

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format of trip dates.
const DateLayout = "2006-01-02"

// TripRecord is a single mileage reimbursement claim.
type TripRecord struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	Purpose     string  `json:"purpose"`
	Distance    float64 `json:"distance"` // km, one way
	Rate        float64 `json:"rate"`     // currency per km
	RoundTrip   bool    `json:"round_trip"`
	Amount      float64 `json:"amount"`

	Synchronized bool      `json:"synchronized"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// Draft reports whether the distance is still uncalculated. Drafts are kept
// locally but never synchronized.
func (t TripRecord) Draft() bool {
	return t.Distance <= 0
}

// TotalDistance is the driven distance, doubled for a round trip.
func (t TripRecord) TotalDistance() float64 {
	if t.RoundTrip {
		return t.Distance * 2
	}
	return t.Distance
}

// Amount computes the reimbursement for a trip.
func Amount(distance, rate float64, roundTrip bool) float64 {
	if roundTrip {
		return distance * 2 * rate
	}
	return distance * rate
}

// TripInput is what the user enters for a new trip.
type TripInput struct {
	Date        string  `json:"date" validate:"required,datetime=2006-01-02"`
	Origin      string  `json:"origin" validate:"required,max=500"`
	Destination string  `json:"destination" validate:"required,max=500"`
	Purpose     string  `json:"purpose" validate:"max=500"`
	Distance    float64 `json:"distance" validate:"finite,gte=0"`
	Rate        float64 `json:"rate" validate:"finite,gt=0"`
	RoundTrip   bool    `json:"round_trip"`
}

func (in TripInput) trimmed() TripInput {
	in.Date = strings.TrimSpace(in.Date)
	in.Origin = strings.TrimSpace(in.Origin)
	in.Destination = strings.TrimSpace(in.Destination)
	in.Purpose = strings.TrimSpace(in.Purpose)
	return in
}

// TripPatch changes the non-nil fields of an existing trip.
type TripPatch struct {
	Date        *string
	Origin      *string
	Destination *string
	Purpose     *string
	Distance    *float64
	Rate        *float64
	RoundTrip   *bool
}

func (p TripPatch) apply(t TripRecord) TripInput {
	in := TripInput{
		Date:        t.Date,
		Origin:      t.Origin,
		Destination: t.Destination,
		Purpose:     t.Purpose,
		Distance:    t.Distance,
		Rate:        t.Rate,
		RoundTrip:   t.RoundTrip,
	}
	if p.Date != nil {
		in.Date = *p.Date
	}
	if p.Origin != nil {
		in.Origin = *p.Origin
	}
	if p.Destination != nil {
		in.Destination = *p.Destination
	}
	if p.Purpose != nil {
		in.Purpose = *p.Purpose
	}
	if p.Distance != nil {
		in.Distance = *p.Distance
	}
	if p.Rate != nil {
		in.Rate = *p.Rate
	}
	if p.RoundTrip != nil {
		in.RoundTrip = *p.RoundTrip
	}
	return in.trimmed()
}

// ListOptions filters and orders List. Dates use DateLayout; empty means unbounded.
type ListOptions struct {
	Date           string `validate:"omitempty,datetime=2006-01-02"`
	From           string `validate:"omitempty,datetime=2006-01-02"`
	To             string `validate:"omitempty,datetime=2006-01-02"`
	SortByDateDesc bool
}

func (o ListOptions) match(t TripRecord) bool {
	if o.Date != "" && t.Date != o.Date {
		return false
	}
	if o.From != "" && t.Date < o.From {
		return false
	}
	if o.To != "" && t.Date > o.To {
		return false
	}
	return true
}
