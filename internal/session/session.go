// Package session owns the client's authentication state: the persisted
// session token, the resolved user and the identity-provider callback.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/starford/vaultlinks/internal/models"
)

// State is the authentication state of a Session.
type State string

// Session states.
const (
	StateLoading         State = "loading"
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
)

// Authenticator is the subset of the API used for authentication.
type Authenticator interface {
	Me(ctx context.Context, token string) (*models.User, error)
	CreateProfile(ctx context.Context, sessionID string) (*models.AuthResult, error)
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	State      State
	Token      string
	User       *models.User
	Generation uint64
}

// Authenticated reports whether the snapshot holds a resolved user.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.User != nil
}

// Session is the authentication context handed to the link manager and the
// CLI. It is safe for concurrent use; network calls run outside the lock.
type Session struct {
	auth        Authenticator
	store       TokenStore
	identityURL string
	logger      *slog.Logger

	mu    sync.Mutex
	state State
	token string
	user  *models.User
	gen   uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates a session in the loading state.
func New(auth Authenticator, store TokenStore, identityURL string, opts ...Option) *Session {
	s := &Session{
		auth:        auth,
		store:       store,
		identityURL: strings.TrimRight(identityURL, "/"),
		logger:      slog.Default(),
		state:       StateLoading,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var u *models.User
	if s.user != nil {
		cp := *s.user
		u = &cp
	}
	return Snapshot{State: s.state, Token: s.token, User: u, Generation: s.gen}
}

// Generation returns the transition counter.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// set moves to a new state and bumps the generation. Callers hold mu.
func (s *Session) set(state State, token string, user *models.User) {
	s.state = state
	s.token = token
	s.user = user
	s.gen++
}

// Resume validates the stored token. A rejected or unverifiable token is
// cleared and the session becomes unauthenticated without an error; only a
// failure to read local storage is returned.
func (s *Session) Resume(ctx context.Context) error {
	token, err := s.store.Token()
	if err != nil {
		return fmt.Errorf("session: read token: %w", err)
	}

	s.mu.Lock()
	start := s.gen
	if token == "" {
		s.set(StateUnauthenticated, "", nil)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	user, meErr := s.auth.Me(ctx, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != start {
		s.logger.Debug("session: resume superseded")
		return nil
	}
	if meErr != nil {
		s.logger.Info("session: stored token rejected", slog.String("error", meErr.Error()))
		if err := s.clearIfUnchanged(token); err != nil {
			s.logger.Warn("session: clear token failed", slog.String("error", err.Error()))
		}
		s.set(StateUnauthenticated, "", nil)
		return nil
	}
	s.set(StateAuthenticated, token, user)
	return nil
}

// clearIfUnchanged removes the stored token unless another process has
// replaced it since it was read.
func (s *Session) clearIfUnchanged(token string) error {
	cur, err := s.store.Token()
	if err != nil {
		return err
	}
	if cur != token {
		return nil
	}
	return s.store.ClearToken()
}

// LoginURL returns the identity provider URL that redirects back to origin.
func (s *Session) LoginURL(origin string) string {
	return s.identityURL + "/?redirect=" + url.QueryEscape(origin)
}

// HandleCallback completes a login from the identity provider's return URL.
// Without a session_id fragment the URL is returned unchanged. On success
// the returned URL has its fragment stripped.
func (s *Session) HandleCallback(ctx context.Context, returnURL string) (string, error) {
	u, err := url.Parse(returnURL)
	if err != nil {
		return returnURL, fmt.Errorf("session: parse callback url: %w", err)
	}
	frag, err := url.ParseQuery(u.EscapedFragment())
	if err != nil {
		return returnURL, nil
	}
	sessionID := frag.Get("session_id")
	if sessionID == "" {
		return returnURL, nil
	}

	res, err := s.auth.CreateProfile(ctx, sessionID)
	if err != nil {
		s.logger.Error("session: create profile failed", slog.String("error", err.Error()))
		return returnURL, fmt.Errorf("session: create profile: %w", err)
	}
	if err := s.store.SetToken(res.SessionToken); err != nil {
		s.logger.Error("session: persist token failed", slog.String("error", err.Error()))
		return returnURL, fmt.Errorf("session: persist token: %w", err)
	}

	user := res.User
	s.mu.Lock()
	s.set(StateAuthenticated, res.SessionToken, &user)
	s.mu.Unlock()
	s.logger.Info("session: logged in", slog.String("user_id", user.ID))

	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// Logout forgets the token locally. The server is not contacted.
func (s *Session) Logout() error {
	err := s.store.ClearToken()
	s.mu.Lock()
	s.set(StateUnauthenticated, "", nil)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("session: clear token: %w", err)
	}
	return nil
}
