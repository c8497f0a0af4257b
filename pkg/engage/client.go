// Package engage fetches top-performing civic posts from the engagement
// analytics API. The pipeline mines them for posting-style signals.
package engage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/civicsight/civicsight/internal/resilience"
)

const defaultBaseURL = "https://api.applovin.com/v1"

// Client fetches engagement samples for a city and topic.
type Client interface {
	TopPosts(ctx context.Context, city, topic string, limit int) ([]Post, error)
}

// Post is one sampled social post with its engagement counts.
type Post struct {
	Text       string   `json:"text"`
	Likes      int      `json:"likes"`
	Shares     int      `json:"shares"`
	Hashtags   []string `json:"hashtags,omitempty"`
	Engagement float64  `json:"engagement_rate"`
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

type httpClient struct {
	apiKey  string
	baseURL string
	hc      *http.Client
}

// NewClient creates an engagement analytics client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		hc:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type postsResponse struct {
	Posts []Post `json:"posts"`
}

func (c *httpClient) TopPosts(ctx context.Context, city, topic string, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 20
	}

	q := url.Values{}
	q.Set("city", city)
	q.Set("topic", topic)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", "engagement")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/analytics/posts?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "engage: build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "engage: request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "engage: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("engage: top posts returned %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var pr postsResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, eris.Wrap(err, "engage: decode response")
	}
	return pr.Posts, nil
}
