package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/vaultlinks/internal/models"
)

// FakeAPI is an in-memory VaultLinks backend mounted under /api.
type FakeAPI struct {
	srv *httptest.Server

	failing atomic.Bool
	delay   atomic.Int64

	mu       sync.Mutex
	sessions map[string]models.User // identity session_id -> user
	tokens   map[string]models.User // session_token -> user
	links    []models.VaultLink
	calls    map[string]int
}

// NewFakeAPI starts a fake backend that is closed with the test.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		sessions: make(map[string]models.User),
		tokens:   make(map[string]models.User),
		calls:    make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(f.middleware)
	r.Route("/api", func(r chi.Router) {
		r.Get("/auth/me", f.handleMe)
		r.Post("/auth/profile", f.handleProfile)
		r.Get("/vault-links", f.handleList)
		r.Post("/vault-links", f.handleCreate)
		r.Delete("/vault-links/{id}", f.handleDelete)
	})

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

// URL is the API base URL, ending in /api.
func (f *FakeAPI) URL() string {
	return f.srv.URL + "/api"
}

// Origin is the server root.
func (f *FakeAPI) Origin() string {
	return f.srv.URL
}

// SetFailing makes every endpoint answer 500.
func (f *FakeAPI) SetFailing(v bool) {
	f.failing.Store(v)
}

// SetDelay delays every response by d.
func (f *FakeAPI) SetDelay(d time.Duration) {
	f.delay.Store(int64(d))
}

// AddIdentitySession registers a one-time identity session id for user.
func (f *FakeAPI) AddIdentitySession(sessionID string, user models.User) {
	f.mu.Lock()
	f.sessions[sessionID] = user
	f.mu.Unlock()
}

// IssueToken creates a session token for user directly.
func (f *FakeAPI) IssueToken(user models.User) string {
	tok := uuid.NewString()
	f.mu.Lock()
	f.tokens[tok] = user
	f.mu.Unlock()
	return tok
}

// RevokeToken invalidates a session token.
func (f *FakeAPI) RevokeToken(token string) {
	f.mu.Lock()
	delete(f.tokens, token)
	f.mu.Unlock()
}

// Links returns the stored links of a user.
func (f *FakeAPI) Links(userID string) []models.VaultLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.VaultLink
	for _, l := range f.links {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out
}

// Calls returns how many requests hit "METHOD /path" (route pattern).
func (f *FakeAPI) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *FakeAPI) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		if strings.HasPrefix(r.URL.Path, "/api/vault-links/") {
			key = r.Method + " /api/vault-links/{id}"
		}
		f.mu.Lock()
		f.calls[key]++
		f.mu.Unlock()

		if d := time.Duration(f.delay.Load()); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		if f.failing.Load() {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "internal error"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeAPI) user(r *http.Request) (models.User, bool) {
	tok := r.URL.Query().Get("session_token")
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.tokens[tok]
	return u, ok
}

func (f *FakeAPI) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := f.user(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid session"})
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (f *FakeAPI) handleProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	f.mu.Lock()
	u, ok := f.sessions[body.SessionID]
	delete(f.sessions, body.SessionID)
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid session ID"})
		return
	}
	tok := f.IssueToken(u)
	writeJSON(w, http.StatusOK, models.AuthResult{
		User:         u,
		SessionToken: tok,
		ExpiresAt:    time.Now().Add(7 * 24 * time.Hour).UTC(),
	})
}

func (f *FakeAPI) handleList(w http.ResponseWriter, r *http.Request) {
	u, ok := f.user(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
		return
	}
	links := f.Links(u.ID)
	if links == nil {
		links = []models.VaultLink{}
	}
	writeJSON(w, http.StatusOK, links)
}

func (f *FakeAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := f.user(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
		return
	}
	var in models.LinkInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	link := models.VaultLink{
		ID:          uuid.NewString(),
		UserID:      u.ID,
		URL:         in.URL,
		Name:        in.Name,
		AccessLevel: in.AccessLevel,
		CreatedAt:   time.Now().UTC(),
	}
	f.mu.Lock()
	f.links = append(f.links, link)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, link)
}

func (f *FakeAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	u, ok := f.user(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
		return
	}
	id := chi.URLParam(r, "id")
	f.mu.Lock()
	idx := slices.IndexFunc(f.links, func(l models.VaultLink) bool {
		return l.ID == id && l.UserID == u.ID
	})
	if idx >= 0 {
		f.links = slices.Delete(f.links, idx, idx+1)
	}
	f.mu.Unlock()
	if idx < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Link not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Link deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
