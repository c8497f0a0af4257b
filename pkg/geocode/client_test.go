package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsight/civicsight/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRateLimit(1000),
	)
}

func TestReverse_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("addressdetails"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		w.Write([]byte(`{
			"display_name": "123 Market Street, San Francisco, California, 94103, United States",
			"address": {
				"house_number": "123",
				"road": "Market Street",
				"city": "San Francisco",
				"state": "California",
				"postcode": "94103"
			}
		}`))
	})

	res, err := c.Reverse(context.Background(), 37.7749, -122.4194)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, "123 Market Street", res.Street)
	assert.Equal(t, "San Francisco", res.City)
	assert.Equal(t, "California", res.State)
	assert.Equal(t, "94103", res.ZipCode)
}

func TestReverse_TownFallback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"display_name": "Main St, Mill Valley",
			"address": {"road": "Main St", "town": "Mill Valley", "state": "California"}
		}`))
	})

	res, err := c.Reverse(context.Background(), 37.9, -122.5)
	require.NoError(t, err)
	assert.Equal(t, "Mill Valley", res.City)
	assert.Equal(t, "Main St", res.Street)
}

func TestReverse_UnresolvableCoordinate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "Unable to geocode"}`))
	})

	res, err := c.Reverse(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestReverse_ServerErrorIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Reverse(context.Background(), 37.7749, -122.4194)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestReverse_ClientErrorIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad request"}`))
	})

	_, err := c.Reverse(context.Background(), 37.7749, -122.4194)
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestReverse_MalformedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, err := c.Reverse(context.Background(), 37.7749, -122.4194)
	assert.Error(t, err)
}

func TestJoinStreet(t *testing.T) {
	assert.Equal(t, "123 Market Street", joinStreet("123", "Market Street"))
	assert.Equal(t, "Market Street", joinStreet("", "Market Street"))
	assert.Equal(t, "123", joinStreet("123", ""))
	assert.Equal(t, "", joinStreet("", ""))
}
