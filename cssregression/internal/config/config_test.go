package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewModule_Defaults(t *testing.T) {
	m := NewModule(Settings{})

	if m.TestDataTemplate() != DefaultTestDataTemplate {
		t.Errorf("TestDataTemplate: got %q", m.TestDataTemplate())
	}
	if m.ReferenceImageTemplate() != DefaultReferenceImageTemplate {
		t.Errorf("ReferenceImageTemplate: got %q", m.ReferenceImageTemplate())
	}
	if m.TestImageTemplate() != DefaultTestImageTemplate {
		t.Errorf("TestImageTemplate: got %q", m.TestImageTemplate())
	}
	if m.DifferenceImageTemplate() != DefaultDifferenceImageTemplate {
		t.Errorf("DifferenceImageTemplate: got %q", m.DifferenceImageTemplate())
	}
	want := []int{320, 768, 1024, 1280}
	got := m.ViewportWidths()
	if len(got) != len(want) {
		t.Fatalf("ViewportWidths: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ViewportWidths: got %v, want %v", got, want)
		}
	}
	if m.DifferenceThreshold() != 100 {
		t.Errorf("DifferenceThreshold: got %d, want 100", m.DifferenceThreshold())
	}
	if m.Sensitivity() != 0.1 {
		t.Errorf("Sensitivity: got %v, want 0.1", m.Sensitivity())
	}
	if m.ServerBaseURL() != "http://localhost:3000" {
		t.Errorf("ServerBaseURL: got %q", m.ServerBaseURL())
	}
}

func TestNewModule_Immutable(t *testing.T) {
	widths := []int{100, 200}
	m := NewModule(Settings{ViewportWidths: widths})

	widths[0] = 999
	got := m.ViewportWidths()
	if got[0] != 100 {
		t.Fatalf("module shares caller slice: got %v", got)
	}

	got[1] = 999
	if m.ViewportWidths()[1] != 200 {
		t.Fatal("ViewportWidths returned internal slice")
	}
}

func TestNewModule_ServerBaseURL(t *testing.T) {
	cases := map[string]string{
		"":                      "http://localhost:3000",
		"false":                 "http://localhost:3000",
		"http://example.test/":  "http://example.test",
		"https://preview.local": "https://preview.local",
	}
	for in, want := range cases {
		m := NewModule(Settings{ServerBaseURL: in})
		if m.ServerBaseURL() != want {
			t.Errorf("ServerBaseURL(%q): got %q, want %q", in, m.ServerBaseURL(), want)
		}
	}
}

func TestNewModule_ZeroThreshold(t *testing.T) {
	zero := 0
	m := NewModule(Settings{DifferenceThreshold: &zero})
	if m.DifferenceThreshold() != 0 {
		t.Fatalf("DifferenceThreshold: got %d, want 0", m.DifferenceThreshold())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cssregression.yaml")
	data := `
cssregression:
  viewportWidths: [375, 1440]
  differenceThreshold: 25
  sensitivity: 0.2
  serverBaseUrl: false
paths:
  root: /srv/catalog
browser:
  navigationTimeout: 8s
  stealth: true
  block: ["*google-analytics*"]
store:
  path: /tmp/history.db
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	m := cfg.Module()
	if w := m.ViewportWidths(); len(w) != 2 || w[0] != 375 || w[1] != 1440 {
		t.Errorf("ViewportWidths: got %v", w)
	}
	if m.DifferenceThreshold() != 25 {
		t.Errorf("DifferenceThreshold: got %d, want 25", m.DifferenceThreshold())
	}
	if m.Sensitivity() != 0.2 {
		t.Errorf("Sensitivity: got %v, want 0.2", m.Sensitivity())
	}
	if m.ServerBaseURL() != DefaultServerBaseURL {
		t.Errorf("ServerBaseURL: got %q", m.ServerBaseURL())
	}
	if cfg.Paths.Root != "/srv/catalog" {
		t.Errorf("Paths.Root: got %q", cfg.Paths.Root)
	}
	if cfg.Paths.Cache != "${root}/cache" {
		t.Errorf("Paths.Cache default: got %q", cfg.Paths.Cache)
	}
	if cfg.Browser.NavigationTimeout != 8*time.Second {
		t.Errorf("NavigationTimeout: got %v", cfg.Browser.NavigationTimeout)
	}
	if cfg.Browser.ViewportHeight != 100 {
		t.Errorf("ViewportHeight default: got %d", cfg.Browser.ViewportHeight)
	}
	if !cfg.Browser.Stealth || len(cfg.Browser.Block) != 1 {
		t.Errorf("Browser: got %+v", cfg.Browser)
	}
	if cfg.Store.Path != "/tmp/history.db" {
		t.Errorf("Store.Path: got %q", cfg.Store.Path)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		EnvServerBaseURL: "http://ci:8080",
		EnvBrowserRemote: "ws://chrome:9222",
		EnvStorePath:     "",
	}
	cfg.Store.Path = "history.db"
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if cfg.Module().ServerBaseURL() != "http://ci:8080" {
		t.Errorf("ServerBaseURL: got %q", cfg.Module().ServerBaseURL())
	}
	if cfg.Browser.Remote != "ws://chrome:9222" {
		t.Errorf("Browser.Remote: got %q", cfg.Browser.Remote)
	}
	if cfg.Store.Path != "" {
		t.Errorf("Store.Path: got %q, want empty (disabled by env)", cfg.Store.Path)
	}
}
