package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Owner string `yaml:"owner"`
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("VAULTLINKS_TEST_OWNER", "ops")
	p := writeFile(t, "port: 9090\nowner: ${VAULTLINKS_TEST_OWNER}\n")

	s := sample{Name: "default", Port: 1}
	if err := Load(p, &s); err != nil {
		t.Fatal(err)
	}
	if s.Port != 9090 || s.Owner != "ops" || s.Name != "default" {
		t.Errorf("loaded = %+v", s)
	}
}

func TestLoad_ValidationFails(t *testing.T) {
	p := writeFile(t, "port: 0\n")
	s := sample{}
	if err := Load(p, &s); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	p := writeFile(t, "port: [\n")
	s := sample{Port: 1}
	if err := Load(p, &s); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadIfExists_MissingFileUsesDefaults(t *testing.T) {
	s := sample{Port: 8080}
	found, err := LoadIfExists(filepath.Join(t.TempDir(), "nope.yaml"), &s)
	if err != nil {
		t.Fatal(err)
	}
	if found || s.Port != 8080 {
		t.Errorf("found = %v, loaded = %+v", found, s)
	}

	s = sample{}
	if _, err := LoadIfExists(filepath.Join(t.TempDir(), "nope.yaml"), &s); err == nil {
		t.Error("defaults should still be validated")
	}
}
