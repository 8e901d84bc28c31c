package distance

import (
	"context"
	"strings"
	"time"

	kerrors "github.com/jrsteele09/korebog/internal/errors"
)

const (
	StatusOK       = "OK"
	StatusEstimate = "ESTIMATE"
)

// Result is one calculated driving distance.
type Result struct {
	Kilometers float64
	Duration   time.Duration
	Status     string
	Estimated  bool // true when the figure came from earlier trips, not the provider
}

// Provider calculates the driving distance between two free-text addresses.
type Provider interface {
	Distance(ctx context.Context, origin, destination string) (Result, error)
}

func validateAddresses(origin, destination string) error {
	var fields []kerrors.FieldError
	if strings.TrimSpace(origin) == "" {
		fields = append(fields, kerrors.FieldError{Field: "origin", Rule: "required"})
	}
	if strings.TrimSpace(destination) == "" {
		fields = append(fields, kerrors.FieldError{Field: "destination", Rule: "required"})
	}
	if len(fields) > 0 {
		return kerrors.NewValidationError(fields...)
	}
	return nil
}
