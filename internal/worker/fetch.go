package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/starford/vaultlinks/internal/cachestore"
	"github.com/starford/vaultlinks/internal/checksum"
	"github.com/starford/vaultlinks/internal/sse"
)

// Response is a fully buffered response. Buffering lets a strategy return the
// live response and store a clone of it at the same time.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	// Type is cachestore.TypeBasic for same-origin responses and
	// cachestore.TypeCORS otherwise.
	Type string
	// Cache names the cache the response was served from, empty for live
	// network responses.
	Cache string
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	c := *r
	c.Header = r.Header.Clone()
	c.Body = append([]byte(nil), r.Body...)
	return &c
}

func (r *Response) entry(key string) cachestore.Entry {
	return cachestore.Entry{
		Key:    key,
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   r.Body,
		Type:   r.Type,
	}
}

func fromEntry(e *cachestore.Entry) *Response {
	h := e.Header
	if h == nil {
		h = http.Header{}
	}
	if h.Get("ETag") == "" && e.Checksum != "" {
		h.Set("ETag", checksum.ETag(e.Checksum))
	}
	return &Response{
		Status: e.Status,
		Header: h,
		Body:   e.Body,
		Type:   e.Type,
		Cache:  e.Cache,
	}
}

// write sends r to the client.
func (r *Response) write(w http.ResponseWriter) {
	dst := w.Header()
	for k, vv := range r.Header {
		if isHopByHop(k) || strings.EqualFold(k, "Content-Length") {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	if r.Cache != "" {
		dst.Set("X-Cache", "HIT")
	}
	dst.Set("Content-Length", strconv.Itoa(len(r.Body)))
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(r.Body)
}

var hopByHop = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

func isHopByHop(name string) bool {
	for _, h := range hopByHop {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}

// resolve turns a configured target into an absolute URL. Absolute targets
// are kept (precache may list CDN assets); paths resolve against the origin.
func (w *Worker) resolve(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return w.target(u).String()
}

func (w *Worker) target(u *url.URL) *url.URL {
	if u.IsAbs() {
		return u
	}
	return w.cfg.Origin.ResolveReference(&url.URL{Path: u.Path, RawQuery: u.RawQuery})
}

// inbound pins an intercepted request to the origin. The scheme and host of
// an absolute-form request line are ignored, so callers can never make the
// worker fetch a host of their choosing.
func (w *Worker) inbound(r *http.Request) *http.Request {
	u := w.cfg.Origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
	out := r.Clone(r.Context())
	out.URL = u
	out.Host = u.Host
	out.RequestURI = ""
	return out
}

// Key returns the cache key for r: its absolute URL.
func (w *Worker) Key(r *http.Request) string {
	return w.target(r.URL).String()
}

// Fetch sends r to the network and buffers the response. Transport errors and
// body read errors are both reported as network failures.
func (w *Worker) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	target := w.target(r.URL)

	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, fmt.Errorf("worker: build request: %w", err)
	}
	for k, vv := range r.Header {
		if isHopByHop(k) {
			continue
		}
		for _, v := range vv {
			out.Header.Add(k, v)
		}
	}
	out.ContentLength = r.ContentLength

	resp, err := w.client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("worker: fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("worker: read %s: %w", target, err)
	}

	typ := cachestore.TypeCORS
	if sameOrigin(target, w.cfg.Origin) {
		typ = cachestore.TypeBasic
	}
	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
		Type:   typ,
	}, nil
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// Lookup returns the cached response for key, or nil. An empty cache name
// searches every cache. Storage errors are logged and treated as a miss.
func (w *Worker) Lookup(ctx context.Context, cache, key string) *Response {
	var (
		e   *cachestore.Entry
		err error
	)
	if cache == "" {
		e, err = w.store.MatchAny(ctx, key)
	} else {
		e, err = w.store.Match(ctx, cache, key)
	}
	if err != nil {
		w.logger.Warn("worker: cache lookup failed", slog.String("key", key), slog.String("error", err.Error()))
		return nil
	}
	if e == nil {
		return nil
	}
	return fromEntry(e)
}

// PutLater stores resp under key in the background. The caller does not wait
// for the write; Wait drains pending writes.
func (w *Worker) PutLater(ctx context.Context, cache, key string, resp *Response) {
	entry := resp.entry(key)
	bg := context.WithoutCancel(ctx)

	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		if err := w.store.Put(bg, cache, entry); err != nil {
			w.logger.Warn("worker: cache put failed",
				slog.String("cache", cache),
				slog.String("key", key),
				slog.String("error", err.Error()))
			return
		}
		w.events.PublishCacheEvent(sse.CacheStored, cache, key)
	}()
}

// ServeHTTP intercepts a request. It always writes a response.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r = w.inbound(r)

	var resp *Response
	if w.State() != StateActivated {
		resp = w.passthrough(ctx, r)
	} else {
		route := w.route(r)
		w.logger.Debug("worker: fetch", slog.String("route", route.Name), slog.String("method", r.Method), slog.String("path", r.URL.Path))
		resp = route.Strategy.Handle(ctx, w, r)
	}
	if resp == nil {
		resp = offlineText()
	}
	resp.write(rw)
}

// passthrough forwards r without touching any cache. Used while the worker
// does not control clients yet.
func (w *Worker) passthrough(ctx context.Context, r *http.Request) *Response {
	resp, err := w.Fetch(ctx, r)
	if err != nil {
		w.logger.Warn("worker: passthrough failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		return offlineText()
	}
	return resp
}
