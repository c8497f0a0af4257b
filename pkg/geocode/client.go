// Package geocode resolves GPS coordinates to street addresses via the
// Nominatim reverse geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/civicsight/civicsight/internal/resilience"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// Client reverse-geocodes coordinates.
type Client interface {
	// Reverse resolves a coordinate pair to a street address. A coordinate
	// the provider cannot resolve returns Matched=false, not an error.
	Reverse(ctx context.Context, lat, lon float64) (*Result, error)
}

// Result holds the reverse geocoding output.
type Result struct {
	Street      string `json:"street"`
	City        string `json:"city"`
	State       string `json:"state"`
	ZipCode     string `json:"zip_code"`
	DisplayName string `json:"display_name"`
	Matched     bool   `json:"matched"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.hc = hc
	}
}

// WithUserAgent sets the User-Agent header. Nominatim requires an
// identifying agent.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithRateLimit sets the requests-per-second limit. Nominatim's usage
// policy caps anonymous clients at 1 req/s.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	hc        *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a Nominatim client with the given options.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: "civicsight/1.0",
		hc:        &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// nominatimResponse mirrors the wire format of /reverse?format=json.
type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		HouseNumber string `json:"house_number"`
		Road        string `json:"road"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		State       string `json:"state"`
		Postcode    string `json:"postcode"`
	} `json:"address"`
}

func (c *httpClient) Reverse(ctx context.Context, lat, lon float64) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit wait")
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lon))
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geocode: reverse request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("geocode: reverse returned %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var nr nominatimResponse
	if err := json.Unmarshal(body, &nr); err != nil {
		return nil, eris.Wrap(err, "geocode: decode response")
	}

	// Nominatim reports an unresolvable coordinate as {"error": "..."}
	// with HTTP 200.
	if nr.Error != "" {
		return &Result{Matched: false}, nil
	}

	return &Result{
		Street:      joinStreet(nr.Address.HouseNumber, nr.Address.Road),
		City:        firstNonEmpty(nr.Address.City, nr.Address.Town, nr.Address.Village),
		State:       nr.Address.State,
		ZipCode:     nr.Address.Postcode,
		DisplayName: nr.DisplayName,
		Matched:     true,
	}, nil
}

func joinStreet(houseNumber, road string) string {
	switch {
	case houseNumber != "" && road != "":
		return houseNumber + " " + road
	case road != "":
		return road
	default:
		return houseNumber
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
