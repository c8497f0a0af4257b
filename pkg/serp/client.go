// Package serp runs web searches through the Bright Data SERP dataset API.
// Searches are asynchronous: a trigger call returns a snapshot ID, and the
// snapshot endpoint returns 202 until collection finishes.
package serp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsight/civicsight/internal/resilience"
)

const (
	defaultBaseURL      = "https://api.brightdata.com/datasets/v3"
	defaultPollInterval = 3 * time.Second
	defaultMaxAttempts  = 30
)

// ErrSnapshotPending is returned by Snapshot while collection is running.
var ErrSnapshotPending = errors.New("serp: snapshot still processing")

// Client defines the search operations used by form discovery.
type Client interface {
	// Trigger starts an asynchronous search and returns the snapshot ID.
	Trigger(ctx context.Context, query string) (string, error)

	// Snapshot fetches results for a snapshot. Returns ErrSnapshotPending
	// while the collection is still running.
	Snapshot(ctx context.Context, snapshotID string) ([]Result, error)

	// Search triggers a query and polls until results arrive or the
	// attempt budget is exhausted.
	Search(ctx context.Context, query string) ([]Result, error)
}

// Result is one organic search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Rank    int    `json:"rank"`
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

// WithDatasetID overrides the SERP dataset ID.
func WithDatasetID(id string) Option {
	return func(c *httpClient) {
		c.datasetID = id
	}
}

// WithPollInterval sets the delay between snapshot polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *httpClient) {
		c.pollInterval = d
	}
}

// WithMaxAttempts sets the snapshot poll budget.
func WithMaxAttempts(n int) Option {
	return func(c *httpClient) {
		c.maxAttempts = n
	}
}

type httpClient struct {
	apiKey       string
	baseURL      string
	datasetID    string
	pollInterval time.Duration
	maxAttempts  int
	hc           *http.Client
}

// NewClient creates a Bright Data SERP client.
func NewClient(apiKey, datasetID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		datasetID:    datasetID,
		pollInterval: defaultPollInterval,
		maxAttempts:  defaultMaxAttempts,
		hc:           &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type triggerResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// snapshotRecord mirrors one collected search page in the snapshot payload.
type snapshotRecord struct {
	Organic []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Description string `json:"description"`
		Rank        int    `json:"rank"`
	} `json:"organic"`
}

func (c *httpClient) Trigger(ctx context.Context, query string) (string, error) {
	payload, err := json.Marshal([]map[string]string{{"keyword": query}})
	if err != nil {
		return "", eris.Wrap(err, "serp: marshal trigger payload")
	}

	q := url.Values{}
	q.Set("dataset_id", c.datasetID)
	q.Set("include_errors", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/trigger?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "serp: build trigger request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		err := eris.Errorf("serp: trigger returned %d: %s", status, string(body))
		if resilience.IsTransientHTTPStatus(status) {
			return "", resilience.NewTransientError(err, status)
		}
		return "", err
	}

	var tr triggerResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", eris.Wrap(err, "serp: decode trigger response")
	}
	if tr.SnapshotID == "" {
		return "", eris.New("serp: trigger response missing snapshot_id")
	}
	return tr.SnapshotID, nil
}

func (c *httpClient) Snapshot(ctx context.Context, snapshotID string) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/snapshot/"+snapshotID+"?format=json", nil)
	if err != nil {
		return nil, eris.Wrap(err, "serp: build snapshot request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusAccepted:
		return nil, ErrSnapshotPending
	case status != http.StatusOK:
		err := eris.Errorf("serp: snapshot returned %d: %s", status, string(body))
		if resilience.IsTransientHTTPStatus(status) {
			return nil, resilience.NewTransientError(err, status)
		}
		return nil, err
	}

	var records []snapshotRecord
	if err := json.Unmarshal(body, &records); err != nil {
		// Some snapshots come back as a single object rather than an array.
		var single snapshotRecord
		if err2 := json.Unmarshal(body, &single); err2 != nil {
			return nil, eris.Wrap(err, "serp: decode snapshot")
		}
		records = []snapshotRecord{single}
	}

	var results []Result
	for _, rec := range records {
		for i, o := range rec.Organic {
			rank := o.Rank
			if rank == 0 {
				rank = i + 1
			}
			results = append(results, Result{
				Title:   o.Title,
				URL:     o.Link,
				Snippet: o.Description,
				Rank:    rank,
			})
		}
	}
	return results, nil
}

func (c *httpClient) Search(ctx context.Context, query string) ([]Result, error) {
	snapshotID, err := c.Trigger(ctx, query)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("search triggered",
		zap.String("query", query),
		zap.String("snapshot_id", snapshotID),
	)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "serp: search canceled")
		case <-ticker.C:
		}

		results, err := c.Snapshot(ctx, snapshotID)
		if errors.Is(err, ErrSnapshotPending) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return results, nil
	}

	return nil, resilience.NewTransientError(
		eris.Errorf("serp: snapshot %s not ready after %d attempts", snapshotID, c.maxAttempts), 0)
}

func (c *httpClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, resilience.NewTransientError(eris.Wrap(err, "serp: request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, eris.Wrap(err, "serp: read response")
	}
	return body, resp.StatusCode, nil
}
