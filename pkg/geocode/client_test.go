package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/places-import/internal/resilience"
)

func TestClient_Lookup_Match(t *testing.T) {
	var gotQuery, gotUA, gotEmail string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotEmail = r.URL.Query().Get("email")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{
			"lat": "35.6595",
			"lon": "139.7005",
			"display_name": "Shibuya Crossing, Shibuya, Tokyo, Japan",
			"address": {"town": "Shibuya", "country": "Japan"}
		}]`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL+"/"), WithUserAgent("test-agent"), WithEmail("ops@example.com"))
	res, err := c.Lookup(context.Background(), "  Shibuya Crossing ")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "Shibuya Crossing", gotQuery)
	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, "ops@example.com", gotEmail)
	assert.InDelta(t, 35.6595, res.Latitude, 1e-9)
	assert.InDelta(t, 139.7005, res.Longitude, 1e-9)
	assert.Equal(t, "Shibuya", res.City)
	assert.Equal(t, "Japan", res.Country)
	assert.Contains(t, res.DisplayName, "Shibuya Crossing")
}

func TestClient_Lookup_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	res, err := NewClient(WithBaseURL(srv.URL)).Lookup(context.Background(), "nowhere at all")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestClient_Lookup_EmptyQuery(t *testing.T) {
	res, err := NewClient(WithBaseURL("http://127.0.0.1:1")).Lookup(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestClient_Lookup_TransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Lookup(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "status 429")
}

func TestClient_Lookup_PermanentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Lookup(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestClient_Lookup_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"not":"an array"`)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Lookup(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")
}

func TestClient_Lookup_BadCoordinate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"lat":"north","lon":"1"}]`)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Lookup(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse latitude")
}
