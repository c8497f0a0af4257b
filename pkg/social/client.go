// Package social publishes posts with photo attachments to the platform
// API. Publishing is two-step: upload the media, then create the post
// referencing the returned media ID.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/rotisserie/eris"

	"github.com/civicsight/civicsight/internal/resilience"
)

const (
	defaultBaseURL       = "https://api.twitter.com/2"
	defaultUploadBaseURL = "https://upload.twitter.com/1.1"
)

// Client publishes posts.
type Client interface {
	// UploadMedia uploads a photo and returns its media ID.
	UploadMedia(ctx context.Context, data []byte, filename string) (string, error)

	// CreatePost publishes a post, optionally attaching uploaded media.
	CreatePost(ctx context.Context, text string, mediaIDs []string) (*Post, error)
}

// Post is a published post.
type Post struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Credentials holds the four-part user-context credential set.
type Credentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithUploadBaseURL overrides the media upload base URL.
func WithUploadBaseURL(u string) Option {
	return func(c *httpClient) {
		c.uploadBaseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.hc = hc
	}
}

type httpClient struct {
	baseURL       string
	uploadBaseURL string
	hc            *http.Client
}

// NewClient creates a posting client. Every request is OAuth1-signed by the
// transport; WithHTTPClient supplies the base client the signing transport
// wraps.
func NewClient(creds Credentials, opts ...Option) Client {
	c := &httpClient{
		baseURL:       defaultBaseURL,
		uploadBaseURL: defaultUploadBaseURL,
		hc:            &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	signing := cfg.Client(context.WithValue(oauth1.NoContext, oauth1.HTTPClient, c.hc), token)
	signing.Timeout = c.hc.Timeout
	c.hc = signing
	return c
}

type mediaUploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

func (c *httpClient) UploadMedia(ctx context.Context, data []byte, filename string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", filename)
	if err != nil {
		return "", eris.Wrap(err, "social: build multipart form")
	}
	if _, err := part.Write(data); err != nil {
		return "", eris.Wrap(err, "social: write media part")
	}
	if err := mw.Close(); err != nil {
		return "", eris.Wrap(err, "social: close multipart form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.uploadBaseURL+"/media/upload.json", &buf)
	if err != nil {
		return "", eris.Wrap(err, "social: build upload request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		err := eris.Errorf("social: media upload returned %d: %s", status, string(body))
		if resilience.IsTransientHTTPStatus(status) {
			return "", resilience.NewTransientError(err, status)
		}
		return "", err
	}

	var mr mediaUploadResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return "", eris.Wrap(err, "social: decode upload response")
	}
	if mr.MediaIDString == "" {
		return "", eris.New("social: upload response missing media_id_string")
	}
	return mr.MediaIDString, nil
}

type createPostRequest struct {
	Text  string `json:"text"`
	Media *struct {
		MediaIDs []string `json:"media_ids"`
	} `json:"media,omitempty"`
}

type createPostResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (c *httpClient) CreatePost(ctx context.Context, text string, mediaIDs []string) (*Post, error) {
	reqBody := createPostRequest{Text: text}
	if len(mediaIDs) > 0 {
		reqBody.Media = &struct {
			MediaIDs []string `json:"media_ids"`
		}{MediaIDs: mediaIDs}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "social: marshal post")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/tweets", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "social: build post request")
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		err := eris.Errorf("social: create post returned %d: %s", status, string(body))
		if resilience.IsTransientHTTPStatus(status) {
			return nil, resilience.NewTransientError(err, status)
		}
		return nil, err
	}

	var cr createPostResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, eris.Wrap(err, "social: decode post response")
	}
	if cr.Data.ID == "" {
		return nil, eris.New("social: create post response missing id")
	}

	return &Post{
		ID:   cr.Data.ID,
		Text: cr.Data.Text,
		URL:  "https://twitter.com/i/web/status/" + cr.Data.ID,
	}, nil
}

func (c *httpClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, resilience.NewTransientError(eris.Wrap(err, "social: request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, eris.Wrap(err, "social: read response")
	}
	return body, resp.StatusCode, nil
}
