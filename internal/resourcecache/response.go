package resourcecache

import (
	"io"
	"net/http"
	"strings"
	"time"
)

// Source says where a response came from
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
	SourceOffline Source = "offline"
)

// Response is a fully buffered HTTP response, the unit stored in a tier.
// Bodies over the fetcher's size limit are streamed instead and are never
// stored.
type Response struct {
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`

	Source Source `json:"-"`
	stream io.ReadCloser
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Cacheable reports whether the response may be stored: buffered, 2xx and
// not partial content.
func (r *Response) Cacheable() bool {
	return r.stream == nil && r.OK() && r.Status != http.StatusPartialContent
}

// Close releases a streamed body
func (r *Response) Close() error {
	if r.stream != nil {
		return r.stream.Close()
	}
	return nil
}

// Clone deep-copies a buffered response
func (r *Response) Clone() *Response {
	out := *r
	out.Header = r.Header.Clone()
	out.Body = append([]byte(nil), r.Body...)
	return &out
}

// WriteTo writes the response to w, dropping hop-by-hop headers
func (r *Response) WriteTo(w http.ResponseWriter) error {
	dst := w.Header()
	for k, vs := range r.Header {
		if isHopHeader(k) || strings.EqualFold(k, "Content-Length") {
			continue
		}
		dst[k] = append([]string(nil), vs...)
	}
	dst.Set("X-Cache-Source", string(r.Source))
	w.WriteHeader(r.Status)

	if r.stream != nil {
		defer r.stream.Close()
		_, err := io.Copy(w, r.stream)
		return err
	}
	_, err := w.Write(r.Body)
	return err
}

var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

const offlinePage = `<!DOCTYPE html>
<html lang="zh-CN">
<head><meta charset="utf-8"><title>离线模式</title></head>
<body><h1>离线模式</h1><p>网络连接不可用，请检查网络后重试。</p></body>
</html>
`

func offlineResponse(now time.Time) *Response {
	return &Response{
		URL:      "/",
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:     []byte(offlinePage),
		StoredAt: now,
		Source:   SourceOffline,
	}
}

func networkErrorResponse(now time.Time) *Response {
	return &Response{
		Status:   http.StatusServiceUnavailable,
		Header:   http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:     []byte("网络错误"),
		StoredAt: now,
		Source:   SourceOffline,
	}
}
