package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"field-service-router/internal/domain"
	"field-service-router/internal/platform/obs"
	"field-service-router/internal/ports"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL     = "https://api.openrouteservice.org"
	DefaultCountry     = "BR"
	DefaultRatePerSec  = 5
	defaultMaxAttempts = 4
	defaultBackoff     = 200 * time.Millisecond
)

var (
	ErrEmptyAddress = errors.New("address is empty")
	ErrNoResult     = errors.New("no geocode result")
)

var _ ports.Geocoder = (*ORSGeocoder)(nil)

// Cache stores address -> coordinate lookups. Keys are normalized addresses.
type Cache interface {
	GetMany(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error)
	PutMany(ctx context.Context, results map[string]domain.Coordinates) error
}

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// ORSGeocoder resolves addresses with the OpenRouteService search endpoint.
//
// It coordinates:
//   - Address normalization
//   - Persistent caching (optional)
//   - Client-side rate limiting
//   - Retry with backoff on transient failures
//
// The geocoder is safe for concurrent use.
type ORSGeocoder struct {
	session     *http.Client
	apiKey      string
	baseURL     string
	country     string
	cache       Cache
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
}

type Option func(*ORSGeocoder)

func WithBaseURL(u string) Option {
	return func(g *ORSGeocoder) { g.baseURL = strings.TrimRight(u, "/") }
}

// WithCountry restricts results to an ISO 3166-1 alpha-2 country. Empty disables the filter.
func WithCountry(code string) Option {
	return func(g *ORSGeocoder) { g.country = code }
}

func WithCache(c Cache) Option {
	return func(g *ORSGeocoder) { g.cache = c }
}

func WithRateLimit(perSecond float64, burst int) Option {
	return func(g *ORSGeocoder) {
		if perSecond <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(g *ORSGeocoder) {
		if maxAttempts >= 1 {
			g.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			g.backoff = backoff
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(g *ORSGeocoder) { g.session = c }
}

func NewORSGeocoder(apiKey string, opts ...Option) (*ORSGeocoder, error) {
	if apiKey == "" {
		return nil, errors.New("ORS api key is empty")
	}

	g := &ORSGeocoder{
		session:     &http.Client{Timeout: 10 * time.Second},
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		country:     DefaultCountry,
		limiter:     rate.NewLimiter(rate.Limit(DefaultRatePerSec), 1),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Normalize collapses whitespace and lower-cases the address so equivalent
// inputs share a cache key.
func Normalize(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// Geocode returns the first match for the address, consulting the cache first.
// Cache failures are logged and never fail the lookup.
func (g *ORSGeocoder) Geocode(ctx context.Context, address string) (_ domain.Coordinates, err error) {
	defer obs.Time(ctx, "ors.Geocode")(&err)

	norm := Normalize(address)
	if norm == "" {
		return domain.Coordinates{}, ErrEmptyAddress
	}

	if g.cache != nil {
		hits, err := g.cache.GetMany(ctx, []string{norm})
		if err != nil {
			log.Printf("geocode cache lookup failed request_id=%s address=%q err=%v", obs.RequestID(ctx), norm, err)
		} else if c, ok := hits[norm]; ok {
			obs.GeocodeRequests.WithLabelValues("cache", "hit").Inc()
			return c, nil
		}
	}

	c, err := g.search(ctx, norm)
	if err != nil {
		obs.GeocodeRequests.WithLabelValues("ors", "error").Inc()
		return domain.Coordinates{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	obs.GeocodeRequests.WithLabelValues("ors", "ok").Inc()

	if g.cache != nil {
		if err := g.cache.PutMany(ctx, map[string]domain.Coordinates{norm: c}); err != nil {
			log.Printf("geocode cache store failed request_id=%s address=%q err=%v", obs.RequestID(ctx), norm, err)
		}
	}
	return c, nil
}

func (g *ORSGeocoder) search(ctx context.Context, norm string) (domain.Coordinates, error) {
	endpoint := g.baseURL + "/geocode/search"
	query := map[string]string{"text": norm, "size": "1"}
	if g.country != "" {
		query["boundary.country"] = g.country
	}

	resp, err := g.doWithRetry(ctx, func() (*http.Request, error) {
		return g.newRequest(ctx, endpoint, query)
	})
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.Coordinates{}, fmt.Errorf("decode geocode response: %w", err)
	}

	if len(decoded.Features) == 0 {
		return domain.Coordinates{}, ErrNoResult
	}

	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) < 2 {
		return domain.Coordinates{}, fmt.Errorf("invalid coordinate format: %v", coords)
	}

	c := domain.Coordinates{Lon: coords[0], Lat: coords[1]}
	if !c.Valid() {
		return domain.Coordinates{}, domain.ErrInvalidCoordinates
	}
	return c, nil
}
