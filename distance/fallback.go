package distance

import (
	"context"

	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Estimator knows distances from earlier trips.
type Estimator interface {
	KnownDistance(origin, destination string) (float64, bool)
}

type fallback struct {
	primary   Provider
	estimator Estimator
	logger    zerolog.Logger
}

type FallbackOption func(*fallback)

func WithFallbackLogger(logger zerolog.Logger) FallbackOption {
	return func(f *fallback) {
		f.logger = logger
	}
}

// WithFallback returns a provider that answers with an estimate from est when
// primary is unavailable. Unknown addresses and invalid input are not masked.
func WithFallback(primary Provider, est Estimator, options ...FallbackOption) Provider {
	f := &fallback{primary: primary, estimator: est, logger: log.Logger}
	for _, opt := range options {
		opt(f)
	}
	return f
}

func (f *fallback) Distance(ctx context.Context, origin, destination string) (Result, error) {
	res, err := f.primary.Distance(ctx, origin, destination)
	if err == nil {
		return res, nil
	}
	if kerrors.Is(err, kerrors.ErrValidation) || kerrors.Is(err, kerrors.ErrNotFound) {
		return Result{}, err
	}

	if km, ok := f.estimator.KnownDistance(origin, destination); ok {
		f.logger.Warn().Err(err).Float64("km", km).Msg("distance provider unavailable, using estimate")
		return Result{Kilometers: km, Status: StatusEstimate, Estimated: true}, nil
	}
	if kerrors.Is(err, kerrors.ErrNetworkUnavailable) {
		return Result{}, err
	}
	return Result{}, kerrors.Wrapf(kerrors.ErrNetworkUnavailable, "distance: %v", err)
}
