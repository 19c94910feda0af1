package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/starford/vaultlinks/internal/cachestore"
)

const offlineMessage = "You are offline. Please check your internet connection."

// Env is what a caching strategy needs from the worker. *Worker implements it;
// tests can supply their own.
type Env interface {
	Fetch(ctx context.Context, r *http.Request) (*Response, error)
	Key(r *http.Request) string
	Lookup(ctx context.Context, cache, key string) *Response
	PutLater(ctx context.Context, cache, key string, resp *Response)
}

// Strategy produces a response for an intercepted request. It must never
// return nil.
type Strategy interface {
	Handle(ctx context.Context, env Env, r *http.Request) *Response
}

// NetworkFirst prefers the network and falls back to Cache when the network
// fails. Successful GET responses with status 200 are stored in Cache.
type NetworkFirst struct {
	Cache string
}

// Handle implements Strategy.
func (s NetworkFirst) Handle(ctx context.Context, env Env, r *http.Request) *Response {
	key := env.Key(r)

	resp, err := env.Fetch(ctx, r)
	if err == nil {
		if r.Method == http.MethodGet && resp.Status == http.StatusOK {
			env.PutLater(ctx, s.Cache, key, resp.Clone())
		}
		return resp
	}

	if r.Method == http.MethodGet {
		if cached := env.Lookup(ctx, s.Cache, key); cached != nil {
			return cached
		}
	}
	return offlineJSON()
}

// CacheFirst serves any cached copy without touching the network. On a miss
// it fetches, and stores successful same-origin responses in Cache.
// FallbackKey is the cached document returned to navigations while offline.
type CacheFirst struct {
	Cache       string
	FallbackKey string
}

// Handle implements Strategy.
func (s CacheFirst) Handle(ctx context.Context, env Env, r *http.Request) *Response {
	key := env.Key(r)

	if r.Method == http.MethodGet {
		if cached := env.Lookup(ctx, "", key); cached != nil {
			return cached
		}
	}

	resp, err := env.Fetch(ctx, r)
	if err != nil {
		if !IsNavigation(r) {
			return offlineText()
		}
		if s.FallbackKey != "" {
			if root := env.Lookup(ctx, "", s.FallbackKey); root != nil {
				return root
			}
		}
		return offlineHTML()
	}

	if resp.Status != http.StatusOK || resp.Type != cachestore.TypeBasic || r.Method != http.MethodGet {
		return resp
	}
	env.PutLater(ctx, s.Cache, key, resp.Clone())
	return resp
}

// NetworkOnly forwards the request and never caches.
type NetworkOnly struct{}

// Handle implements Strategy.
func (NetworkOnly) Handle(ctx context.Context, env Env, r *http.Request) *Response {
	resp, err := env.Fetch(ctx, r)
	if err != nil {
		return offlineText()
	}
	return resp
}

// IsNavigation reports whether r loads a top-level document.
func IsNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

func offlineJSON() *Response {
	body, _ := json.Marshal(map[string]any{
		"error":   offlineMessage,
		"offline": true,
	})
	return synthesized("application/json", body)
}

func offlineHTML() *Response {
	return synthesized("text/html", []byte("You are offline"))
}

func offlineText() *Response {
	return synthesized("text/plain; charset=utf-8", []byte("You are offline"))
}

func synthesized(contentType string, body []byte) *Response {
	h := http.Header{}
	h.Set("Content-Type", contentType)
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: h,
		Body:   body,
		Type:   cachestore.TypeBasic,
	}
}
