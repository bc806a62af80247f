package resourcecache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"safety-app/pkg/logger"
)

// ErrNetwork marks a request that never produced an HTTP response:
// transport failure, timeout, or an open circuit
var ErrNetwork = errors.New("network request failed")

// Fetcher performs outbound requests
type Fetcher interface {
	Fetch(req *http.Request) (*Response, error)
}

// FetcherOptions configures an HTTPFetcher
type FetcherOptions struct {
	// Timeout bounds a whole request including reading the body
	Timeout time.Duration
	// MaxBodyBytes is the largest body that is buffered; larger bodies stream
	MaxBodyBytes int64
	Transport    http.RoundTripper
	Logger       *logger.Logger
}

// HTTPFetcher is a Fetcher over net/http with one circuit breaker per
// upstream host, so a dead font CDN does not take the origin down with it.
type HTTPFetcher struct {
	client  *http.Client
	maxBody int64
	log     *logger.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*Response]
}

// NewHTTPFetcher creates a fetcher
func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 32 << 20
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		maxBody:  opts.MaxBodyBytes,
		log:      opts.Logger.Component("fetcher"),
		breakers: make(map[string]*gobreaker.CircuitBreaker[*Response]),
	}
}

// Fetch sends req. Any HTTP status is a successful fetch; only requests
// that produced no response fail, wrapped in ErrNetwork.
func (f *HTTPFetcher) Fetch(req *http.Request) (*Response, error) {
	cb := f.breaker(req.URL.Host)
	resp, err := cb.Execute(func() (*Response, error) {
		return f.do(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			upstreamRequests.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, req.URL.Host, err)
		}
		upstreamRequests.WithLabelValues("failure").Inc()
		return nil, err
	}
	upstreamRequests.WithLabelValues("success").Inc()
	return resp, nil
}

func (f *HTTPFetcher) do(req *http.Request) (*Response, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: reading body: %v", ErrNetwork, err)
	}

	out := &Response{
		URL:      req.URL.String(),
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		StoredAt: time.Now(),
		Source:   SourceNetwork,
	}

	if int64(len(buf)) > f.maxBody {
		out.stream = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(buf), resp.Body), resp.Body}
		return out, nil
	}

	resp.Body.Close()
	out.Body = buf
	return out, nil
}

func (f *HTTPFetcher) breaker(host string) *gobreaker.CircuitBreaker[*Response] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := f.breakers[host]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        host,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.log.Warn("upstream circuit state changed",
				zap.String("host", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	f.breakers[host] = cb
	return cb
}
