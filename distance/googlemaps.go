package distance

import (
	"context"
	"math"
	"net/http"
	"strings"

	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"googlemaps.github.io/maps"
)

// GoogleMaps uses the Distance Matrix API with driving directions.
type GoogleMaps struct {
	client *maps.Client
	logger zerolog.Logger
}

type GoogleMapsOption func(*googleMapsSettings)

type googleMapsSettings struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// WithBaseURL points the client at another Maps API host.
func WithBaseURL(u string) GoogleMapsOption {
	return func(s *googleMapsSettings) {
		s.baseURL = u
	}
}

func WithHTTPClient(c *http.Client) GoogleMapsOption {
	return func(s *googleMapsSettings) {
		s.httpClient = c
	}
}

func WithLogger(logger zerolog.Logger) GoogleMapsOption {
	return func(s *googleMapsSettings) {
		s.logger = logger
	}
}

func NewGoogleMaps(apiKey string, options ...GoogleMapsOption) (*GoogleMaps, error) {
	settings := googleMapsSettings{logger: log.Logger}
	for _, opt := range options {
		opt(&settings)
	}

	clientOpts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if settings.baseURL != "" {
		clientOpts = append(clientOpts, maps.WithBaseURL(settings.baseURL))
	}
	if settings.httpClient != nil {
		clientOpts = append(clientOpts, maps.WithHTTPClient(settings.httpClient))
	}

	client, err := maps.NewClient(clientOpts...)
	if err != nil {
		return nil, kerrors.Wrapf(err, "[NewGoogleMaps] create client")
	}
	return &GoogleMaps{client: client, logger: settings.logger}, nil
}

func (g *GoogleMaps) Distance(ctx context.Context, origin, destination string) (Result, error) {
	if err := validateAddresses(origin, destination); err != nil {
		return Result{}, err
	}

	resp, err := g.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      []string{origin},
		Destinations: []string{destination},
		Mode:         maps.TravelModeDriving,
		Units:        maps.UnitsMetric,
		Language:     "da",
		Region:       "dk",
	})
	if err != nil {
		return Result{}, classify(err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return Result{}, kerrors.Wrapf(kerrors.ErrNotFound, "no route from %q to %q", origin, destination)
	}

	el := resp.Rows[0].Elements[0]
	if el.Status != StatusOK {
		return Result{}, kerrors.Wrapf(kerrors.ErrNotFound, "route %s", el.Status)
	}

	km := math.Round(float64(el.Distance.Meters)/100) / 10
	g.logger.Debug().Str("origin", origin).Str("destination", destination).Float64("km", km).Msg("distance calculated")
	return Result{Kilometers: km, Duration: el.Duration, Status: StatusOK}, nil
}

// classify sorts Maps client errors into request problems and transient failures.
func classify(err error) error {
	msg := err.Error()
	for _, status := range []string{"REQUEST_DENIED", "INVALID_REQUEST", "MAX_ELEMENTS_EXCEEDED", "MAX_DIMENSIONS_EXCEEDED"} {
		if strings.Contains(msg, status) {
			return kerrors.Rejected("maps: %s", msg)
		}
	}
	return kerrors.Wrapf(kerrors.ErrNetworkUnavailable, "maps: %v", err)
}
