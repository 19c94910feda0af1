// Package worker implements the offline cache worker: an http.Handler placed
// in front of the app origin that serves the app shell cache-first and API
// calls network-first with a cache fallback.
//
// The worker has a lifecycle (installing, installed, activating, activated).
// Until it is activated it does not control requests and simply forwards them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/starford/vaultlinks/internal/cachestore"
	"github.com/starford/vaultlinks/internal/sse"
)

// State is a worker lifecycle state.
type State string

// Lifecycle states.
const (
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

// Control message types.
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageGetVersion  = "GET_VERSION"
)

// ErrUnknownMessage is returned by Message for unsupported message types.
var ErrUnknownMessage = errors.New("worker: unknown message type")

// Doer performs outbound HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Publisher receives worker events. *sse.Broker satisfies it.
type Publisher interface {
	Publish(event sse.Event)
	PublishCacheEvent(kind, cache, key string)
}

// Config describes one worker version.
type Config struct {
	// Origin is the app origin the worker sits in front of.
	Origin *url.URL
	// CachePrefix and Version build the cache names.
	CachePrefix string
	Version     string
	// Precache lists the app shell URLs fetched on install. Relative URLs
	// resolve against Origin.
	Precache []string
}

// ShellCacheName returns the versioned app shell cache name.
func (c Config) ShellCacheName() string {
	return c.CachePrefix + "-" + c.Version
}

// APICacheName returns the versioned API response cache name.
func (c Config) APICacheName() string {
	return c.CachePrefix + "-api-" + c.Version
}

// Message is a control message sent to the worker.
type Message struct {
	Type string `json:"type"`
}

// Reply is the answer to a control message.
type Reply struct {
	Version string `json:"version,omitempty"`
}

// Info is a point-in-time view of the worker.
type Info struct {
	State    State    `json:"state"`
	Version  string   `json:"version"`
	APICache string   `json:"api_cache"`
	Caches   []string `json:"caches"`
}

// Option configures a Worker.
type Option func(*Worker)

// WithHTTPClient sets the client used for network requests.
func WithHTTPClient(c Doer) Option {
	return func(w *Worker) { w.client = c }
}

// WithPublisher sets the event sink for lifecycle, cache and notification events.
func WithPublisher(p Publisher) Option {
	return func(w *Worker) { w.events = p }
}

// WithLogger sets the worker logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithRoutes replaces the default route table.
func WithRoutes(routes ...Route) Option {
	return func(w *Worker) { w.routes = routes }
}

// Worker is the offline cache worker.
type Worker struct {
	cfg    Config
	store  cachestore.Storage
	client Doer
	events Publisher
	logger *slog.Logger
	routes []Route

	mu          sync.Mutex
	state       State
	skipWaiting bool

	pending sync.WaitGroup
}

// New creates a worker for cfg backed by store. The worker starts in the
// installing state; call Install to populate the app shell cache.
func New(cfg Config, store cachestore.Storage, opts ...Option) (*Worker, error) {
	if cfg.Origin == nil || cfg.Origin.Host == "" {
		return nil, fmt.Errorf("worker: origin is required")
	}
	if cfg.CachePrefix == "" || cfg.Version == "" {
		return nil, fmt.Errorf("worker: cache prefix and version are required")
	}
	if store == nil {
		return nil, fmt.Errorf("worker: cache storage is required")
	}

	w := &Worker{
		cfg:    cfg,
		store:  store,
		client: &http.Client{Timeout: 30 * time.Second},
		events: noopPublisher{},
		logger: slog.Default(),
		state:  StateInstalling,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.routes == nil {
		w.routes = DefaultRoutes(cfg, w.resolve("/"))
	}
	return w, nil
}

// Config returns the worker configuration.
func (w *Worker) Config() Config {
	return w.cfg
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	w.logger.Info("worker: state changed", slog.String("state", string(s)), slog.String("version", w.cfg.ShellCacheName()))
	w.events.Publish(sse.Event{Type: "worker.state", Data: map[string]string{
		"state":   string(s),
		"version": w.cfg.ShellCacheName(),
	}})
}

// Install opens the app shell cache and stores every precache URL. A URL that
// fails to fetch is logged and skipped. Install then requests skip-waiting,
// so the worker moves straight on to activation.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)
	w.logger.Info("worker: caching app shell", slog.Int("urls", len(w.cfg.Precache)))

	shell := w.cfg.ShellCacheName()
	if err := w.store.Open(ctx, shell); err != nil {
		w.logger.Warn("worker: cache open failed", slog.String("cache", shell), slog.String("error", err.Error()))
	}

	cached := 0
	for _, raw := range w.cfg.Precache {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.precache(ctx, shell, raw); err != nil {
			w.logger.Warn("worker: precache failed", slog.String("url", raw), slog.String("error", err.Error()))
			continue
		}
		cached++
	}
	w.logger.Info("worker: app shell cached", slog.Int("cached", cached), slog.Int("total", len(w.cfg.Precache)))

	w.setState(StateInstalled)
	return w.SkipWaiting(ctx)
}

func (w *Worker) precache(ctx context.Context, cache, raw string) error {
	ref, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	target := w.cfg.Origin.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	resp, err := w.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.Status)
	}
	if err := w.store.Put(ctx, cache, resp.entry(target.String())); err != nil {
		return err
	}
	w.events.PublishCacheEvent(sse.CacheStored, cache, target.String())
	return nil
}

// SkipWaiting lets an installed worker activate without waiting. Called
// before installation finishes, it takes effect once install completes.
func (w *Worker) SkipWaiting(ctx context.Context) error {
	w.mu.Lock()
	w.skipWaiting = true
	ready := w.state == StateInstalled
	w.mu.Unlock()

	if !ready {
		return nil
	}
	return w.Activate(ctx)
}

// Activate deletes every cache other than the current shell and API caches
// and then claims clients.
func (w *Worker) Activate(ctx context.Context) error {
	w.setState(StateActivating)

	keep := []string{w.cfg.ShellCacheName(), w.cfg.APICacheName()}
	names, err := w.store.Names(ctx)
	if err != nil {
		w.logger.Warn("worker: list caches failed", slog.String("error", err.Error()))
	}
	for _, name := range names {
		if slices.Contains(keep, name) {
			continue
		}
		w.logger.Info("worker: deleting old cache", slog.String("cache", name))
		if _, err := w.store.DeleteCache(ctx, name); err != nil {
			w.logger.Warn("worker: delete cache failed", slog.String("cache", name), slog.String("error", err.Error()))
			continue
		}
		w.events.PublishCacheEvent(sse.CacheDeleted, name, "")
	}
	for _, name := range keep {
		if err := w.store.Open(ctx, name); err != nil {
			w.logger.Warn("worker: cache open failed", slog.String("cache", name), slog.String("error", err.Error()))
		}
	}

	w.setState(StateActivated)
	w.claim()
	return nil
}

// claim tells connected clients that this version now controls them.
func (w *Worker) claim() {
	w.events.Publish(sse.Event{Type: "worker.activated", Data: map[string]string{
		"version": w.cfg.ShellCacheName(),
	}})
}

// Message handles a control message.
func (w *Worker) Message(ctx context.Context, m Message) (*Reply, error) {
	w.logger.Info("worker: message received", slog.String("type", m.Type))
	switch m.Type {
	case MessageSkipWaiting:
		if err := w.SkipWaiting(ctx); err != nil {
			return nil, err
		}
		return &Reply{}, nil
	case MessageGetVersion:
		return &Reply{Version: w.cfg.ShellCacheName()}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
	}
}

// Info returns the worker state and the live cache names.
func (w *Worker) Info(ctx context.Context) (*Info, error) {
	names, err := w.store.Names(ctx)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return &Info{
		State:    w.State(),
		Version:  w.cfg.ShellCacheName(),
		APICache: w.cfg.APICacheName(),
		Caches:   names,
	}, nil
}

// Wait blocks until every background cache write has finished.
func (w *Worker) Wait() {
	w.pending.Wait()
}

// Close waits for background writes and marks the worker redundant.
func (w *Worker) Close() {
	w.Wait()
	w.setState(StateRedundant)
}

type noopPublisher struct{}

func (noopPublisher) Publish(sse.Event)                {}
func (noopPublisher) PublishCacheEvent(_, _, _ string) {}
