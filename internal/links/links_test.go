package links

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/starford/vaultlinks/internal/apperr"
	"github.com/starford/vaultlinks/internal/models"
	"github.com/starford/vaultlinks/internal/session"
	"github.com/starford/vaultlinks/internal/testutil"
	"github.com/starford/vaultlinks/internal/vaultapi"
)

var carol = models.User{ID: "u-carol", Email: "carol@example.com", Name: "Carol"}

type linksEnv struct {
	api    *testutil.FakeAPI
	client *vaultapi.Client
	sess   *session.Session
	store  *session.FileTokenStore
	opened []string
	m      *Manager
}

func newLinksEnv(t *testing.T, login bool) *linksEnv {
	t.Helper()
	api := testutil.NewFakeAPI(t)
	client, err := vaultapi.New(api.URL())
	if err != nil {
		t.Fatal(err)
	}
	_, fs := testutil.TestStateDir(t)
	store := session.NewFileTokenStore(fs)
	if login {
		if err := store.SetToken(api.IssueToken(carol)); err != nil {
			t.Fatal(err)
		}
	}
	sess := session.New(client, store, "https://auth.example.com", session.WithLogger(testutil.Logger()))
	if err := sess.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	e := &linksEnv{api: api, client: client, sess: sess, store: store}
	e.m = NewManager(client, sess,
		WithLogger(testutil.Logger()),
		WithOpener(OpenerFunc(func(u string) error {
			e.opened = append(e.opened, u)
			return nil
		})))
	return e
}

func yes(string) bool { return true }
func no(string) bool  { return false }

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		in   models.LinkInput
		msg  string
	}{
		{"empty url", models.LinkInput{Name: "x"}, MsgRequired},
		{"blank name", models.LinkInput{URL: "https://a", Name: "   "}, MsgRequired},
		{"ftp", models.LinkInput{URL: "ftp://files", Name: "x"}, MsgURLScheme},
		{"bad level", models.LinkInput{URL: "https://a", Name: "x", AccessLevel: "Secret"}, MsgAccessLevel},
		{"ok", models.LinkInput{URL: "https://a", Name: "x", AccessLevel: models.AccessPublic}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(tc.in)
			if tc.msg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Message != tc.msg {
				t.Fatalf("err = %v, want %q", err, tc.msg)
			}
			if !errors.Is(err, apperr.ErrValidation) {
				t.Error("validation error should wrap ErrValidation")
			}
		})
	}
}

func TestValidate_DefaultsAccessLevel(t *testing.T) {
	out, err := Validate(models.LinkInput{URL: " https://drive.google.com/x ", Name: " Docs "})
	if err != nil {
		t.Fatal(err)
	}
	if out.AccessLevel != models.AccessRestricted {
		t.Errorf("access level = %q", out.AccessLevel)
	}
	if out.URL != "https://drive.google.com/x" || out.Name != "Docs" {
		t.Errorf("not trimmed: %+v", out)
	}
}

func TestList_RequiresAuth(t *testing.T) {
	e := newLinksEnv(t, false)
	if _, err := e.m.List(context.Background()); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	if e.api.Calls("GET /api/vault-links") != 0 {
		t.Error("no request expected while unauthenticated")
	}
}

func TestSubmit_ValidationSendsNothing(t *testing.T) {
	e := newLinksEnv(t, true)
	e.m.SetForm(models.LinkInput{URL: "drive.google.com/x", Name: "Docs"})

	_, err := e.m.Submit(context.Background())
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	if e.m.Message() != MsgURLScheme {
		t.Errorf("message = %q", e.m.Message())
	}
	if e.api.Calls("POST /api/vault-links") != 0 {
		t.Error("validation failure must not reach the network")
	}
	if e.m.Form().URL != "drive.google.com/x" {
		t.Error("form should be kept on validation failure")
	}
}

func TestSubmit_CreatesAndRefreshes(t *testing.T) {
	e := newLinksEnv(t, true)
	ctx := context.Background()
	if _, err := e.m.List(ctx); err != nil {
		t.Fatal(err)
	}
	before := len(e.m.Links())

	e.m.SetForm(models.LinkInput{URL: "https://drive.google.com/drive/folders/1", Name: "Q3 Reports"})
	link, err := e.m.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if link.AccessLevel != models.AccessRestricted {
		t.Errorf("default access level = %q", link.AccessLevel)
	}

	v := e.m.View()
	if len(v.Links) != before+1 {
		t.Fatalf("links = %d, want %d", len(v.Links), before+1)
	}
	if v.Links[len(v.Links)-1].Name != "Q3 Reports" {
		t.Errorf("new link missing from list: %+v", v.Links)
	}
	if v.Form != models.EmptyLinkInput() {
		t.Errorf("form not reset: %+v", v.Form)
	}
	if v.Submit != SubmitSuccess {
		t.Errorf("submit = %q", v.Submit)
	}
}

func TestSubmit_NetworkFailure(t *testing.T) {
	e := newLinksEnv(t, true)
	in := models.LinkInput{URL: "https://a.example", Name: "A", AccessLevel: models.AccessPublic}
	e.m.SetForm(in)
	e.api.SetFailing(true)

	if _, err := e.m.Submit(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	v := e.m.View()
	if v.Message != MsgSaveFailed || v.Submit != SubmitError {
		t.Errorf("view = %+v", v)
	}
	if v.Form != in {
		t.Error("form should be kept after a failed save")
	}
}

// blockingAPI parks ListLinks/CreateLink until released.
type blockingAPI struct {
	API
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingAPI) wait() {
	b.once.Do(func() { close(b.entered) })
	<-b.release
}

func (b *blockingAPI) ListLinks(ctx context.Context, token string) ([]models.VaultLink, error) {
	b.wait()
	return b.API.ListLinks(ctx, token)
}

func (b *blockingAPI) CreateLink(ctx context.Context, token string, in models.LinkInput) (*models.VaultLink, error) {
	b.wait()
	return b.API.CreateLink(ctx, token, in)
}

func TestSubmit_RejectsConcurrent(t *testing.T) {
	e := newLinksEnv(t, true)
	api := &blockingAPI{API: e.client, entered: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(api, e.sess, WithLogger(testutil.Logger()))
	m.SetForm(models.LinkInput{URL: "https://a.example", Name: "A"})

	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background())
		done <- err
	}()
	<-api.entered

	if m.SubmitState() != SubmitSubmitting {
		t.Errorf("state = %q", m.SubmitState())
	}
	if _, err := m.Submit(context.Background()); !errors.Is(err, ErrSubmitting) {
		t.Errorf("second submit err = %v", err)
	}
	close(api.release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if e.api.Calls("POST /api/vault-links") != 1 {
		t.Errorf("creates = %d", e.api.Calls("POST /api/vault-links"))
	}
}

func TestList_FailureKeepsPrevious(t *testing.T) {
	e := newLinksEnv(t, true)
	ctx := context.Background()
	if _, err := e.m.Create(ctx, models.LinkInput{URL: "https://a.example", Name: "A"}); err != nil {
		t.Fatal(err)
	}
	prev := e.m.Links()

	e.api.SetFailing(true)
	if _, err := e.m.List(ctx); err == nil {
		t.Fatal("expected error")
	}
	if e.m.Message() != MsgLoadFailed {
		t.Errorf("message = %q", e.m.Message())
	}
	if got := e.m.Links(); len(got) != len(prev) || got[0].ID != prev[0].ID {
		t.Errorf("list changed: %+v", got)
	}
}

func TestList_StaleResponseDiscarded(t *testing.T) {
	e := newLinksEnv(t, true)
	api := &blockingAPI{API: e.client, entered: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(api, e.sess, WithLogger(testutil.Logger()))

	done := make(chan error, 1)
	go func() {
		_, err := m.List(context.Background())
		done <- err
	}()
	<-api.entered
	if err := e.sess.Logout(); err != nil {
		t.Fatal(err)
	}
	close(api.release)

	if err := <-done; !errors.Is(err, apperr.ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
	if len(m.Links()) != 0 || m.Message() != "" {
		t.Error("stale response must not touch state")
	}
}

func TestDelete(t *testing.T) {
	e := newLinksEnv(t, true)
	ctx := context.Background()
	link, err := e.m.Create(ctx, models.LinkInput{URL: "https://a.example", Name: "A"})
	if err != nil {
		t.Fatal(err)
	}

	if err := e.m.Delete(ctx, link.ID, no); !errors.Is(err, ErrCancelled) {
		t.Fatalf("declined delete err = %v", err)
	}
	if err := e.m.Delete(ctx, link.ID, nil); !errors.Is(err, ErrCancelled) {
		t.Fatalf("nil confirmer err = %v", err)
	}
	if e.api.Calls("DELETE /api/vault-links/{id}") != 0 {
		t.Fatal("unconfirmed delete reached the network")
	}

	if err := e.m.Delete(ctx, link.ID, yes); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(e.m.Links()) != 0 {
		t.Errorf("list not refreshed: %+v", e.m.Links())
	}

	if err := e.m.Delete(ctx, "missing", yes); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing delete err = %v", err)
	}
	if e.m.Message() != MsgDeleteFailed {
		t.Errorf("message = %q", e.m.Message())
	}
}

func TestOpen(t *testing.T) {
	e := newLinksEnv(t, true)
	if err := e.m.Open("https://drive.google.com/x"); err != nil {
		t.Fatal(err)
	}
	if err := e.m.Open("javascript:alert(1)"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v", err)
	}
	if len(e.opened) != 1 || e.opened[0] != "https://drive.google.com/x" {
		t.Errorf("opened = %v", e.opened)
	}
}

func TestEndToEnd_LoginCreateListLogout(t *testing.T) {
	e := newLinksEnv(t, false)
	ctx := context.Background()
	e.api.AddIdentitySession("sid-e2e", carol)

	if _, err := e.sess.HandleCallback(ctx, "http://localhost:3000/#session_id=sid-e2e"); err != nil {
		t.Fatal(err)
	}
	links, err := e.m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	n := len(links)

	if _, err := e.m.Create(ctx, models.LinkInput{URL: "https://sharepoint.example/s/1", Name: "Share", AccessLevel: models.AccessAnyoneWithURL}); err != nil {
		t.Fatal(err)
	}
	if got := len(e.m.Links()); got != n+1 {
		t.Errorf("links = %d, want %d", got, n+1)
	}

	if err := e.sess.Logout(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.m.List(ctx); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("list after logout err = %v", err)
	}
}
