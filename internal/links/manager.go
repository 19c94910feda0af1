// Package links is the link management screen model: the link list, the
// create form with its submit state, and delete/open actions, all bound to
// an explicit session.
package links

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/starford/vaultlinks/internal/apperr"
	"github.com/starford/vaultlinks/internal/models"
	"github.com/starford/vaultlinks/internal/session"
)

// SubmitState tracks the create form.
type SubmitState string

// Submit states.
const (
	SubmitIdle       SubmitState = "idle"
	SubmitSubmitting SubmitState = "submitting"
	SubmitSuccess    SubmitState = "idle-success"
	SubmitError      SubmitState = "idle-error"
)

var (
	// ErrSubmitting rejects a submit while another one is in flight.
	ErrSubmitting = errors.New("links: submit already in progress")
	// ErrCancelled is returned when a delete is not confirmed.
	ErrCancelled = errors.New("links: delete cancelled")
)

// API is the subset of the REST client the manager uses.
type API interface {
	ListLinks(ctx context.Context, token string) ([]models.VaultLink, error)
	CreateLink(ctx context.Context, token string, in models.LinkInput) (*models.VaultLink, error)
	DeleteLink(ctx context.Context, token, id string) error
}

// Confirmer asks the user to confirm deleting the link with the given id.
type Confirmer func(id string) bool

// View is a copy of the screen state.
type View struct {
	Links   []models.VaultLink
	Form    models.LinkInput
	Submit  SubmitState
	Message string
}

// Manager holds the link list and form for one session.
type Manager struct {
	api    API
	sess   *session.Session
	opener Opener
	logger *slog.Logger

	mu      sync.Mutex
	links   []models.VaultLink
	form    models.LinkInput
	submit  SubmitState
	message string
}

// Option configures a Manager.
type Option func(*Manager)

// WithOpener replaces the browser opener.
func WithOpener(o Opener) Option {
	return func(m *Manager) { m.opener = o }
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager bound to sess.
func NewManager(api API, sess *session.Session, opts ...Option) *Manager {
	m := &Manager{
		api:    api,
		sess:   sess,
		opener: BrowserOpener{},
		logger: slog.Default(),
		links:  []models.VaultLink{},
		form:   models.EmptyLinkInput(),
		submit: SubmitIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// View returns the current screen state.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return View{
		Links:   slices.Clone(m.links),
		Form:    m.form,
		Submit:  m.submit,
		Message: m.message,
	}
}

// Links returns the last fetched list.
func (m *Manager) Links() []models.VaultLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.links)
}

// Message returns the inline error message, if any.
func (m *Manager) Message() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.message
}

// Form returns the create form.
func (m *Manager) Form() models.LinkInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.form
}

// SetForm replaces the create form.
func (m *Manager) SetForm(in models.LinkInput) {
	m.mu.Lock()
	m.form = in
	m.mu.Unlock()
}

// SubmitState returns the form submit state.
func (m *Manager) SubmitState() SubmitState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submit
}

func (m *Manager) setMessage(msg string) {
	m.mu.Lock()
	m.message = msg
	m.mu.Unlock()
}

// credentials returns the session token and generation, or ErrUnauthorized.
func (m *Manager) credentials() (string, uint64, error) {
	snap := m.sess.Snapshot()
	if !snap.Authenticated() {
		return "", 0, apperr.ErrUnauthorized
	}
	return snap.Token, snap.Generation, nil
}

// List fetches the links and replaces the list wholesale. On failure the
// previous list is kept. A response that arrives after the session changed
// is discarded with apperr.ErrStale.
func (m *Manager) List(ctx context.Context) ([]models.VaultLink, error) {
	token, gen, err := m.credentials()
	if err != nil {
		return nil, err
	}

	links, err := m.api.ListLinks(ctx, token)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.Generation() != gen {
		m.logger.Debug("links: discarding stale list", slog.Uint64("generation", gen))
		return nil, apperr.ErrStale
	}
	if err != nil {
		m.logger.Error("links: list failed", slog.String("error", err.Error()))
		m.message = MsgLoadFailed
		return nil, fmt.Errorf("links: list: %w", err)
	}
	m.links = links
	return slices.Clone(links), nil
}

// Submit validates the form and creates the link. On success the form is
// reset and the list fetched again.
func (m *Manager) Submit(ctx context.Context) (*models.VaultLink, error) {
	m.mu.Lock()
	if m.submit == SubmitSubmitting {
		m.mu.Unlock()
		return nil, ErrSubmitting
	}
	in, verr := Validate(m.form)
	if verr != nil {
		m.message = verr.Error()
		m.submit = SubmitError
		m.mu.Unlock()
		return nil, verr
	}
	m.submit = SubmitSubmitting
	m.message = ""
	m.mu.Unlock()

	link, err := m.create(ctx, in)

	m.mu.Lock()
	if err != nil {
		m.submit = SubmitError
		m.message = MsgSaveFailed
		m.mu.Unlock()
		return nil, err
	}
	m.submit = SubmitSuccess
	m.form = models.EmptyLinkInput()
	m.mu.Unlock()

	if _, err := m.List(ctx); err != nil && !errors.Is(err, apperr.ErrStale) {
		m.logger.Warn("links: refresh after create failed", slog.String("error", err.Error()))
	}
	return link, nil
}

func (m *Manager) create(ctx context.Context, in models.LinkInput) (*models.VaultLink, error) {
	token, _, err := m.credentials()
	if err != nil {
		return nil, err
	}
	link, err := m.api.CreateLink(ctx, token, in)
	if err != nil {
		m.logger.Error("links: create failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("links: create: %w", err)
	}
	m.logger.Info("links: created", slog.String("id", link.ID))
	return link, nil
}

// Create sets the form to in and submits it.
func (m *Manager) Create(ctx context.Context, in models.LinkInput) (*models.VaultLink, error) {
	m.mu.Lock()
	if m.submit == SubmitSubmitting {
		m.mu.Unlock()
		return nil, ErrSubmitting
	}
	m.form = in
	m.mu.Unlock()
	return m.Submit(ctx)
}

// Delete removes a link after confirm approves it, then fetches the list
// again. Nothing is sent when confirm is nil or declines.
func (m *Manager) Delete(ctx context.Context, id string, confirm Confirmer) error {
	if confirm == nil || !confirm(id) {
		return ErrCancelled
	}
	token, _, err := m.credentials()
	if err != nil {
		return err
	}

	if err := m.api.DeleteLink(ctx, token, id); err != nil {
		m.logger.Error("links: delete failed", slog.String("id", id), slog.String("error", err.Error()))
		m.setMessage(MsgDeleteFailed)
		return fmt.Errorf("links: delete: %w", err)
	}
	m.logger.Info("links: deleted", slog.String("id", id))

	if _, err := m.List(ctx); err != nil && !errors.Is(err, apperr.ErrStale) {
		m.logger.Warn("links: refresh after delete failed", slog.String("error", err.Error()))
	}
	return nil
}

// Open launches url in a new browser process.
func (m *Manager) Open(rawURL string) error {
	if err := CheckOpenURL(rawURL); err != nil {
		return err
	}
	if err := m.opener.Open(rawURL); err != nil {
		return fmt.Errorf("links: open: %w", err)
	}
	return nil
}
