package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestWorkerConfig_RequiresOriginAndVersion(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Worker.Origin = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty origin should fail")
	}

	cfg = NewDefaultConfig()
	cfg.Worker.Version = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty version should fail")
	}

	cfg = NewDefaultConfig()
	cfg.Worker.Origin = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Error("malformed origin should fail")
	}
}

func TestWorkerConfig_OriginURL(t *testing.T) {
	cfg := NewDefaultConfig()
	u, err := cfg.Worker.OriginURL()
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "localhost:3000" {
		t.Errorf("host = %q", u.Host)
	}
}

func TestClientConfig_RequiresStateDir(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Client.StateDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty state dir should fail")
	}
}

func TestDefaultConfig_PrecacheIncludesCDNStylesheet(t *testing.T) {
	cfg := NewDefaultConfig()
	var abs []string
	for _, p := range cfg.Worker.Precache {
		if strings.HasPrefix(p, "https://") {
			abs = append(abs, p)
		}
	}
	if len(abs) != 1 || abs[0] != "https://cdn.tailwindcss.com/3.4.17/tailwind.min.css" {
		t.Errorf("absolute precache entries = %v", abs)
	}
	if cfg.Worker.Precache[0] != "/" {
		t.Errorf("first precache entry = %q, want root document", cfg.Worker.Precache[0])
	}
}
