package paths

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/cssregression/cssregression/internal/config"
	"github.com/hazyhaar/cssregression/cssregression/internal/model"
)

func testResolver() *Templates {
	return New(config.Default().Paths)
}

func TestResolve_ReferenceTemplate(t *testing.T) {
	r := testResolver()
	got, err := r.Resolve(config.DefaultReferenceImageTemplate, Vars{
		"site":           "base",
		"entityCategory": "modules",
		"entityId":       "m-teaser",
		"name":           "overview",
		"os":             "linux",
		"width":          "320",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := filepath.FromSlash("sites/base/modules/m-teaser/tests/cssregression/overview-linux-@320.png")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolve_CallVarsWin(t *testing.T) {
	r := testResolver()
	got, err := r.Resolve("${cache}/x.png", Vars{"cache": "/tmp/c"})
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.FromSlash("/tmp/c/x.png") {
		t.Errorf("got %q", got)
	}
}

func TestResolve_Pure(t *testing.T) {
	r := testResolver()
	vars := Vars{"site": "base", "name": "overview", "os": "linux", "width": "768"}
	a, err := r.Resolve(config.DefaultTestImageTemplate, vars)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := r.Resolve(config.DefaultTestImageTemplate, vars)
	if a != b {
		t.Fatalf("not deterministic: %q vs %q", a, b)
	}
}

func TestResolve_UnknownVariable(t *testing.T) {
	r := testResolver()
	_, err := r.Resolve("${cache}/${nope}.png", nil)
	if err == nil {
		t.Fatal("expected error for unknown variable")
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestResolve_Cycle(t *testing.T) {
	r := New(config.PathsConfig{Root: "${sites}", Sites: "${root}", Cache: "c", EntityTemplate: "e"})
	if _, err := r.Resolve("${root}/x", nil); err == nil {
		t.Fatal("expected error for cyclic templates")
	}
}

func TestForEntity_KeepsSiteFolderName(t *testing.T) {
	id := &model.EntityID{Site: "Base", Category: "modules", Name: "m-teaser"}
	vars := ForEntity("Base", id)
	vars["name"], vars["os"], vars["width"] = "overview", "linux", "320"

	got, err := testResolver().Resolve(config.DefaultReferenceImageTemplate, vars)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.FromSlash("sites/Base/modules/m-teaser/tests/cssregression/overview-linux-@320.png")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestUrlify(t *testing.T) {
	for in, want := range map[string]string{
		"Base":         "base",
		"My  Site":     "my-site",
		" trailing ":   "trailing",
		"already-done": "already-done",
	} {
		if got := Urlify(in); got != want {
			t.Errorf("Urlify(%q): got %q, want %q", in, got, want)
		}
	}
}
