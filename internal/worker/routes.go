package worker

import (
	"net/http"
	"strings"
)

// Route pairs a request predicate with a caching strategy. Routes are tried
// in order and the first match wins.
type Route struct {
	Name     string
	Match    func(r *http.Request) bool
	Strategy Strategy
}

// APIPrefix is the path prefix of requests handled network-first.
const APIPrefix = "/api/"

// PathPrefix matches requests whose path starts with prefix.
func PathPrefix(prefix string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		return strings.HasPrefix(r.URL.Path, prefix)
	}
}

// Any matches every request.
func Any(*http.Request) bool { return true }

// DefaultRoutes returns the standard table: API calls network-first into the
// API cache, everything else cache-first into the app shell cache.
// rootKey is the cache key of the root document used as offline fallback.
func DefaultRoutes(cfg Config, rootKey string) []Route {
	return []Route{
		{Name: "api", Match: PathPrefix(APIPrefix), Strategy: NetworkFirst{Cache: cfg.APICacheName()}},
		{Name: "shell", Match: Any, Strategy: CacheFirst{Cache: cfg.ShellCacheName(), FallbackKey: rootKey}},
	}
}

// route returns the first route matching r. A table without a catch-all
// falls back to NetworkOnly.
func (w *Worker) route(r *http.Request) Route {
	for _, rt := range w.routes {
		if rt.Match(r) {
			return rt
		}
	}
	return Route{Name: "network", Strategy: NetworkOnly{}}
}
