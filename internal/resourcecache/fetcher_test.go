package resourcecache

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedFetcher(maxBody int64) (*HTTPFetcher, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	return NewHTTPFetcher(FetcherOptions{Transport: transport, MaxBodyBytes: maxBody}), transport
}

// outbound builds a client request; server requests from httptest carry a
// RequestURI that http.Client rejects
func outbound(t *testing.T, target string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	return req
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	f, transport := newMockedFetcher(0)
	transport.RegisterResponder(http.MethodGet, "https://up.example/assets/css/main.css",
		httpmock.NewStringResponder(http.StatusOK, "body{}").HeaderSet(http.Header{"Content-Type": []string{"text/css"}}))
	transport.RegisterResponder(http.MethodGet, "https://up.example/missing",
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))

	resp, err := f.Fetch(outbound(t, "https://up.example/assets/css/main.css"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "body{}", string(resp.Body))
	assert.Equal(t, "text/css", resp.Header.Get("Content-Type"))
	assert.Equal(t, SourceNetwork, resp.Source)
	assert.True(t, resp.Cacheable())

	// an HTTP error status is still a successful fetch
	resp, err = f.Fetch(outbound(t, "https://up.example/missing"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.False(t, resp.Cacheable())
}

func TestHTTPFetcher_PartialContentIsNotCacheable(t *testing.T) {
	f, transport := newMockedFetcher(0)
	transport.RegisterResponder(http.MethodGet, "https://up.example/media/intro.mp4",
		httpmock.NewStringResponder(http.StatusPartialContent, "chunk"))

	resp, err := f.Fetch(outbound(t, "https://up.example/media/intro.mp4"))
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.False(t, resp.Cacheable())
}

func TestHTTPFetcher_TransportErrorIsNetworkError(t *testing.T) {
	f, transport := newMockedFetcher(0)
	transport.RegisterResponder(http.MethodGet, "https://up.example/api/stats",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := f.Fetch(outbound(t, "https://up.example/api/stats"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestHTTPFetcher_BreakerOpensPerHost(t *testing.T) {
	f, transport := newMockedFetcher(0)
	transport.RegisterResponder(http.MethodGet, "https://down.example/x",
		httpmock.NewErrorResponder(errors.New("connection refused")))
	transport.RegisterResponder(http.MethodGet, "https://up.example/x",
		httpmock.NewStringResponder(http.StatusOK, "ok"))

	for i := 0; i < 5; i++ {
		_, err := f.Fetch(outbound(t, "https://down.example/x"))
		require.Error(t, err)
	}
	assert.Equal(t, 5, transport.GetTotalCallCount())

	_, err := f.Fetch(outbound(t, "https://down.example/x"))
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, 5, transport.GetTotalCallCount(), "open circuit must not reach the transport")

	resp, err := f.Fetch(outbound(t, "https://up.example/x"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestHTTPFetcher_StreamsOversizedBodies(t *testing.T) {
	f, transport := newMockedFetcher(4)
	transport.RegisterResponder(http.MethodGet, "https://up.example/big.bin",
		httpmock.NewStringResponder(http.StatusOK, "0123456789"))

	resp, err := f.Fetch(outbound(t, "https://up.example/big.bin"))
	require.NoError(t, err)
	assert.False(t, resp.Cacheable())
	assert.Empty(t, resp.Body)

	rec := httptest.NewRecorder()
	require.NoError(t, resp.WriteTo(rec))
	assert.Equal(t, "0123456789", rec.Body.String())
	assert.Equal(t, "network", rec.Header().Get("X-Cache-Source"))
}

func TestResponse_WriteToDropsHopHeaders(t *testing.T) {
	resp := &Response{
		Status: http.StatusOK,
		Header: http.Header{
			"Connection":     []string{"keep-alive"},
			"Content-Length": []string{"999"},
			"Cache-Control":  []string{"max-age=60"},
		},
		Body:   []byte("hi"),
		Source: SourceCache,
	}

	rec := httptest.NewRecorder()
	require.NoError(t, resp.WriteTo(rec))
	assert.Empty(t, rec.Header().Get("Connection"))
	assert.Empty(t, rec.Header().Get("Content-Length"))
	assert.Equal(t, "max-age=60", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "cache", rec.Header().Get("X-Cache-Source"))
	assert.Equal(t, "hi", rec.Body.String())
}
