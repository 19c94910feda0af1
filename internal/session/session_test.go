package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/vaultlinks/internal/models"
	"github.com/starford/vaultlinks/internal/testutil"
	"github.com/starford/vaultlinks/internal/vaultapi"
)

var bob = models.User{ID: "u-bob", Email: "bob@example.com", Name: "Bob"}

type sessionEnv struct {
	api   *testutil.FakeAPI
	store *FileTokenStore
	s     *Session
}

func newSessionEnv(t *testing.T) *sessionEnv {
	t.Helper()
	api := testutil.NewFakeAPI(t)
	_, fs := testutil.TestStateDir(t)
	client, err := vaultapi.New(api.URL())
	if err != nil {
		t.Fatal(err)
	}
	store := NewFileTokenStore(fs)
	s := New(client, store, "https://auth.example.com/", WithLogger(testutil.Logger()))
	return &sessionEnv{api: api, store: store, s: s}
}

func TestInitialStateLoading(t *testing.T) {
	e := newSessionEnv(t)
	if got := e.s.Snapshot().State; got != StateLoading {
		t.Errorf("state = %q, want loading", got)
	}
}

func TestResume_NoToken(t *testing.T) {
	e := newSessionEnv(t)
	if err := e.s.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap := e.s.Snapshot()
	if snap.State != StateUnauthenticated || snap.User != nil {
		t.Errorf("snapshot = %+v", snap)
	}
	if e.api.Calls("GET /api/auth/me") != 0 {
		t.Error("Me should not be called without a token")
	}
}

func TestResume_ValidToken(t *testing.T) {
	e := newSessionEnv(t)
	tok := e.api.IssueToken(bob)
	if err := e.store.SetToken(tok); err != nil {
		t.Fatal(err)
	}
	if err := e.s.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap := e.s.Snapshot()
	if !snap.Authenticated() || snap.User.ID != bob.ID || snap.Token != tok {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestResume_RejectedTokenClearedSilently(t *testing.T) {
	e := newSessionEnv(t)
	if err := e.store.SetToken("expired"); err != nil {
		t.Fatal(err)
	}
	if err := e.s.Resume(context.Background()); err != nil {
		t.Fatalf("Resume should not surface auth failures: %v", err)
	}
	if e.s.Snapshot().State != StateUnauthenticated {
		t.Error("expected unauthenticated")
	}
	tok, _ := e.store.Token()
	if tok != "" {
		t.Errorf("token not cleared: %q", tok)
	}
}

func TestResume_NetworkFailureLogsOut(t *testing.T) {
	e := newSessionEnv(t)
	tok := e.api.IssueToken(bob)
	_ = e.store.SetToken(tok)
	e.api.SetFailing(true)

	if err := e.s.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	if e.s.Snapshot().State != StateUnauthenticated {
		t.Error("expected unauthenticated")
	}
	if got, _ := e.store.Token(); got != "" {
		t.Error("token should be cleared")
	}
}

func TestLoginURL(t *testing.T) {
	e := newSessionEnv(t)
	before := e.s.Snapshot()
	got := e.s.LoginURL("http://localhost:3000/app?x=1")
	want := "https://auth.example.com/?redirect=http%3A%2F%2Flocalhost%3A3000%2Fapp%3Fx%3D1"
	if got != want {
		t.Errorf("LoginURL = %q, want %q", got, want)
	}
	if e.s.Snapshot() != before {
		t.Error("LoginURL must not change state")
	}
}

func TestHandleCallback_NoFragment(t *testing.T) {
	e := newSessionEnv(t)
	in := "http://localhost:3000/#other=1"
	out, err := e.s.HandleCallback(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("url changed: %q", out)
	}
	if e.api.Calls("POST /api/auth/profile") != 0 {
		t.Error("profile exchange should not run")
	}
}

func TestHandleCallback_Success(t *testing.T) {
	e := newSessionEnv(t)
	e.api.AddIdentitySession("sid-42", bob)
	gen := e.s.Generation()

	out, err := e.s.HandleCallback(context.Background(), "http://localhost:3000/dashboard?tab=1#session_id=sid-42")
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if out != "http://localhost:3000/dashboard?tab=1" {
		t.Errorf("stripped url = %q", out)
	}
	snap := e.s.Snapshot()
	if !snap.Authenticated() || snap.User.Email != bob.Email {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Generation <= gen {
		t.Error("generation should advance")
	}
	stored, _ := e.store.Token()
	if stored == "" || stored != snap.Token {
		t.Errorf("stored token = %q, session token = %q", stored, snap.Token)
	}
}

func TestHandleCallback_FragmentDecodedOnce(t *testing.T) {
	e := newSessionEnv(t)
	e.api.AddIdentitySession("a+b", bob)

	if _, err := e.s.HandleCallback(context.Background(), "http://localhost:3000/#session_id=a%2Bb"); err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if snap := e.s.Snapshot(); !snap.Authenticated() {
		t.Errorf("session id %q should be exchanged as %q", "a%2Bb", "a+b")
	}
}

func TestHandleCallback_FailureLeavesState(t *testing.T) {
	e := newSessionEnv(t)
	_ = e.s.Resume(context.Background())
	before := e.s.Snapshot()

	in := "http://localhost:3000/#session_id=unknown"
	out, err := e.s.HandleCallback(context.Background(), in)
	if err == nil {
		t.Fatal("expected error")
	}
	if out != in {
		t.Errorf("url = %q", out)
	}
	if e.s.Snapshot() != before {
		t.Error("state changed on failure")
	}
}

func TestLogout(t *testing.T) {
	e := newSessionEnv(t)
	tok := e.api.IssueToken(bob)
	_ = e.store.SetToken(tok)
	_ = e.s.Resume(context.Background())

	if err := e.s.Logout(); err != nil {
		t.Fatal(err)
	}
	snap := e.s.Snapshot()
	if snap.State != StateUnauthenticated || snap.Token != "" || snap.User != nil {
		t.Errorf("snapshot = %+v", snap)
	}
	if _, err := os.Stat(e.store.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Error("token file should be removed")
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatch_ExternalLoginAndLogout(t *testing.T) {
	e := newSessionEnv(t)
	_ = e.s.Resume(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.s.Watch(ctx, e.store.Path())
	time.Sleep(100 * time.Millisecond)

	// Another process logs in.
	tok := e.api.IssueToken(bob)
	if err := e.store.SetToken(tok); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return e.s.Snapshot().Authenticated()
	}, "external login not picked up")

	// And logs out again.
	if err := e.store.ClearToken(); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return e.s.Snapshot().State == StateUnauthenticated
	}, "external logout not picked up")
}
