package resourcecache

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const origin = "https://site.example"

// fakeFetcher serves canned bodies by URL; unknown URLs get a 404
type fakeFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	status  map[string]int
	offline bool
	calls   map[string]int
	methods []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: map[string]string{}, status: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeFetcher) serve(u, body string) {
	f.mu.Lock()
	f.bodies[u] = body
	f.mu.Unlock()
}

func (f *fakeFetcher) setStatus(u string, status int) {
	f.mu.Lock()
	f.status[u] = status
	f.mu.Unlock()
}

func (f *fakeFetcher) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func (f *fakeFetcher) callCount(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[u]
}

func (f *fakeFetcher) Fetch(req *http.Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := req.URL.String()
	f.calls[u]++
	f.methods = append(f.methods, req.Method)
	if f.offline {
		return nil, fmt.Errorf("%w: dial tcp: connection refused", ErrNetwork)
	}
	body, ok := f.bodies[u]
	status := http.StatusOK
	if s, set := f.status[u]; set {
		status = s
	} else if !ok {
		status = http.StatusNotFound
	}
	return &Response{
		URL:    u,
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(body),
		Source: SourceNetwork,
	}, nil
}

func newTestController(t *testing.T, fetcher Fetcher, storage CacheStorage, opts ...func(*Options)) *Controller {
	t.Helper()
	base, err := url.Parse(origin)
	require.NoError(t, err)
	o := Options{
		Version:  "1.0.0",
		Origin:   base,
		Storage:  storage,
		Fetcher:  fetcher,
		Manifest: []string{"/", "/assets/css/main.css", "/assets/js/router.js"},
	}
	for _, fn := range opts {
		fn(&o)
	}
	c, err := New(o)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func serveShell(f *fakeFetcher) {
	f.serve(origin+"/", "<html>home</html>")
	f.serve(origin+"/assets/css/main.css", "body{}")
	f.serve(origin+"/assets/js/router.js", "router()")
}

func get(target string, headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

var documentRequest = map[string]string{"Sec-Fetch-Dest": "document", "Accept": "text/html"}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	relative, _ := url.Parse("/relative")
	_, err = New(Options{Storage: NewMemoryStorage(), Fetcher: newFakeFetcher(), Origin: relative})
	assert.Error(t, err)
}

func TestController_InstallAndActivate(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	serveShell(fetcher)
	storage := NewMemoryStorage()

	old := &Response{Status: 200, Body: []byte("old")}
	require.NoError(t, storage.Put(ctx, "safety-static-v0.9.0", origin+"/", old))
	require.NoError(t, storage.Put(ctx, "unrelated-cache", origin+"/x", old))
	require.NoError(t, storage.Put(ctx, "safety-api-v1.0.0", origin+"/api/stats", old))

	c := newTestController(t, fetcher, storage)
	assert.False(t, c.Active())

	require.NoError(t, c.Install(ctx))
	assert.True(t, c.Active())

	names, err := storage.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"safety-api-v1.0.0", "safety-static-v1.0.0"}, names)

	for _, p := range []string{"/", "/assets/css/main.css", "/assets/js/router.js"} {
		resp, err := storage.Match(ctx, "safety-static-v1.0.0", origin+p)
		require.NoError(t, err)
		require.NotNil(t, resp, p)
	}
}

func TestController_InstallIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	serveShell(fetcher)
	fetcher.setStatus(origin+"/assets/js/router.js", http.StatusInternalServerError)
	storage := NewMemoryStorage()

	c := newTestController(t, fetcher, storage)
	assert.Error(t, c.Install(ctx))
	assert.False(t, c.Active())

	names, err := storage.Names(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestController_CacheFirstServesCacheAndRefreshes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	fetcher := newFakeFetcher()
	serveShell(fetcher)
	storage := NewMemoryStorage()
	c := newTestController(t, fetcher, storage)
	require.NoError(t, c.Install(ctx))

	fetcher.serve(origin+"/assets/css/main.css", "body{color:red}")

	resp := c.Respond(get("/assets/css/main.css", nil))
	assert.Equal(t, SourceCache, resp.Source)
	assert.Equal(t, "body{}", string(resp.Body))

	c.Wait()
	refreshed, err := storage.Match(ctx, "safety-static-v1.0.0", origin+"/assets/css/main.css")
	require.NoError(t, err)
	assert.Equal(t, "body{color:red}", string(refreshed.Body))

	resp = c.Respond(get("/assets/css/main.css", nil))
	assert.Equal(t, "body{color:red}", string(resp.Body))
	c.Close()
}

func TestController_CacheFirstMissFetchesAndStores(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	serveShell(fetcher)
	fetcher.serve(origin+"/img/logo.png", "png-bytes")
	storage := NewMemoryStorage()
	c := newTestController(t, fetcher, storage)
	require.NoError(t, c.Install(ctx))

	resp := c.Respond(get("/img/logo.png", nil))
	assert.Equal(t, SourceNetwork, resp.Source)
	assert.Equal(t, "png-bytes", string(resp.Body))

	stored, err := storage.Match(ctx, "safety-static-v1.0.0", origin+"/img/logo.png")
	require.NoError(t, err)
	require.NotNil(t, stored)

	// a failed miss is not cached
	resp = c.Respond(get("/img/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, resp.Status)
	stored, err = storage.Match(ctx, "safety-static-v1.0.0", origin+"/img/missing.png")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestController_NetworkFirstFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	serveShell(fetcher)
	fetcher.serve(origin+"/api/stats?userId=u1", `{"success":true}`)
	c := newTestController(t, fetcher, NewMemoryStorage())
	require.NoError(t, c.Install(ctx))

	online := c.Respond(get("/api/stats?userId=u1", nil))
	assert.Equal(t, SourceNetwork, online.Source)

	fetcher.setOffline(true)
	offline := c.Respond(get("/api/stats?userId=u1", nil))
	assert.Equal(t, SourceCache, offline.Source)
	assert.Equal(t, http.StatusOK, offline.Status)
	assert.Equal(t, `{"success":true}`, string(offline.Body))

	// a different query string is a different entry
	other := c.Respond(get("/api/stats?userId=u2", nil))
	assert.Equal(t, http.StatusServiceUnavailable, other.Status)
}

func TestController_NetworkFirstDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	serveShell(fetcher)
	fetcher.serve(origin+"/api/stats", `{"success":false}`)
	fetcher.setStatus(origin+"/api/stats", http.StatusInternalServerError)
	storage := NewMemoryStorage()
	c := newTestController(t, fetcher, storage)
	require.NoError(t, c.Install(ctx))

	resp := c.Respond(get("/api/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Status)

	stored, err := storage.Match(ctx, "safety-api-v1.0.0", origin+"/api/stats")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestController_OfflineFallbacks(t *testing.T) {
	tests := []struct {
		name       string
		install    bool
		headers    map[string]string
		target     string
		wantStatus int
		wantBody   string
		wantType   string
	}{
		{
			name:       "Document gets cached home page",
			install:    true,
			headers:    documentRequest,
			target:     "/video1",
			wantStatus: http.StatusOK,
			wantBody:   "<html>home</html>",
		},
		{
			name:       "Document without cached home gets offline page",
			headers:    documentRequest,
			target:     "/video1",
			wantStatus: http.StatusOK,
			wantBody:   "离线模式",
			wantType:   "text/html; charset=utf-8",
		},
		{
			name:       "Navigation mode without Sec-Fetch-Dest counts as document",
			headers:    map[string]string{"Sec-Fetch-Mode": "navigate"},
			target:     "/quiz1",
			wantStatus: http.StatusOK,
			wantBody:   "离线模式",
		},
		{
			name:       "Script gets network error",
			install:    true,
			headers:    map[string]string{"Sec-Fetch-Dest": "script", "Accept": "text/html"},
			target:     "/assets/js/unknown.js",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "网络错误",
		},
		{
			name:       "API call gets network error",
			install:    true,
			target:     "/api/user",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "网络错误",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fetcher := newFakeFetcher()
			serveShell(fetcher)
			c := newTestController(t, fetcher, NewMemoryStorage())
			if tt.install {
				require.NoError(t, c.Install(ctx))
			} else {
				require.NoError(t, c.Activate(ctx))
			}

			fetcher.setOffline(true)
			resp := c.Respond(get(tt.target, tt.headers))

			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Contains(t, string(resp.Body), tt.wantBody)
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, resp.Header.Get("Content-Type"))
			}
		})
	}
}

func TestController_PassThrough(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	serveShell(fetcher)
	fetcher.serve(origin+"/api/stats", `{"success":true}`)
	storage := NewMemoryStorage()
	c := newTestController(t, fetcher, storage)

	// before activation nothing is intercepted
	resp := c.Respond(get("/assets/css/main.css", nil))
	assert.Equal(t, SourceNetwork, resp.Source)
	names, _ := storage.Names(ctx)
	assert.Empty(t, names)

	require.NoError(t, c.Install(ctx))

	post := httptest.NewRequest(http.MethodPost, "/api/stats", strings.NewReader(`{"userId":"u1","action":"x"}`))
	resp = c.Respond(post)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, fetcher.methods, http.MethodPost)

	stored, err := storage.Match(ctx, "safety-api-v1.0.0", origin+"/api/stats")
	require.NoError(t, err)
	assert.Nil(t, stored)

	fetcher.setOffline(true)
	resp = c.Respond(httptest.NewRequest(http.MethodDelete, "/api/stats", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
}

func TestController_RefreshFailureEviction(t *testing.T) {
	tests := []struct {
		name       string
		evictAfter int
		wantKept   bool
	}{
		{name: "Disabled keeps stale entry", evictAfter: 0, wantKept: true},
		{name: "Evicts after two failures", evictAfter: 2, wantKept: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fetcher := newFakeFetcher()
			serveShell(fetcher)
			storage := NewMemoryStorage()
			c := newTestController(t, fetcher, storage, func(o *Options) { o.EvictAfterFailures = tt.evictAfter })
			require.NoError(t, c.Install(ctx))

			fetcher.setOffline(true)
			for i := 0; i < 2; i++ {
				resp := c.Respond(get("/assets/css/main.css", nil))
				assert.Equal(t, SourceCache, resp.Source)
				c.Wait()
			}

			stored, err := storage.Match(ctx, "safety-static-v1.0.0", origin+"/assets/css/main.css")
			require.NoError(t, err)
			assert.Equal(t, tt.wantKept, stored != nil)
		})
	}
}

func TestController_ServeHTTP(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	serveShell(fetcher)
	c := newTestController(t, fetcher, NewMemoryStorage())
	require.NoError(t, c.Install(ctx))

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, get("/", documentRequest))
	c.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>home</html>", rec.Body.String())
	assert.Equal(t, "cache", rec.Header().Get("X-Cache-Source"))
}

func TestController_Commands(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	serveShell(fetcher)
	fetcher.serve(origin+"/video1", "<html>video</html>")
	storage := NewMemoryStorage()
	c := newTestController(t, fetcher, storage)
	require.NoError(t, c.Install(ctx))

	reply := c.Handle(ctx, GetVersion{})
	assert.Equal(t, "safety-app-v1.0.0", reply.Version)

	reply = c.Handle(ctx, CacheURLs{URLs: []string{"/video1"}})
	assert.True(t, reply.Success)
	stored, err := storage.Match(ctx, "safety-dynamic-v1.0.0", origin+"/video1")
	require.NoError(t, err)
	require.NotNil(t, stored)

	reply = c.Handle(ctx, CacheURLs{URLs: []string{"/does-not-exist"}})
	assert.False(t, reply.Success)
	assert.NotEmpty(t, reply.Error)

	reply = c.Handle(ctx, SkipWaiting{})
	assert.True(t, reply.Success)

	reply = c.Handle(ctx, ClearCache{})
	assert.True(t, reply.Success)
	names, err := storage.Names(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		msg     Message
		want    Command
		wantErr bool
	}{
		{msg: Message{Type: "SKIP_WAITING"}, want: SkipWaiting{}},
		{msg: Message{Type: "GET_VERSION"}, want: GetVersion{}},
		{msg: Message{Type: "CLEAR_CACHE"}, want: ClearCache{}},
		{msg: Message{Type: "CACHE_URLS", Payload: []byte(`["/a","/b"]`)}, want: CacheURLs{URLs: []string{"/a", "/b"}}},
		{msg: Message{Type: "CACHE_URLS", Payload: []byte(`"/a"`)}, wantErr: true},
		{msg: Message{Type: "PUSH"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.msg.Type, func(t *testing.T) {
			got, err := DecodeCommand(tt.msg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestController_MessageHandler(t *testing.T) {
	c := newTestController(t, newFakeFetcher(), NewMemoryStorage())
	h := c.MessageHandler()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{name: "Version", body: `{"type":"GET_VERSION"}`, wantStatus: http.StatusOK, wantBody: `"version":"safety-app-v1.0.0"`},
		{name: "Unknown", body: `{"type":"NOPE"}`, wantStatus: http.StatusBadRequest, wantBody: "unknown command"},
		{name: "Garbage", body: `{`, wantStatus: http.StatusBadRequest, wantBody: "invalid message body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/__sw/message", strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
