// Package paths resolves ${name} path templates against configured
// directories and per-call variables.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/cssregression/cssregression/internal/config"
)

// maxDepth bounds nested templates (entityTemplate -> sites -> root).
const maxDepth = 8

// Vars maps template variable names to values.
type Vars map[string]string

// Resolver turns a template into a concrete path. Implementations must be
// pure: the same template and variables always yield the same path.
type Resolver interface {
	Resolve(template string, vars Vars) (string, error)
}

// Templates is the default Resolver. It knows root, sites, cache and
// entityTemplate from configuration; call variables take precedence.
type Templates struct {
	base Vars
}

// New creates a Templates resolver from the paths section.
func New(cfg config.PathsConfig) *Templates {
	return &Templates{base: Vars{
		"root":           cfg.Root,
		"sites":          cfg.Sites,
		"cache":          cfg.Cache,
		"entityTemplate": cfg.EntityTemplate,
	}}
}

// Resolve expands template. Unknown variables are an error rather than an
// empty string so a typo never writes images to the filesystem root.
func (t *Templates) Resolve(template string, vars Vars) (string, error) {
	var missing []string
	lookup := func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		if v, ok := t.base[name]; ok {
			return v
		}
		missing = append(missing, name)
		return ""
	}

	s := template
	for i := 0; i < maxDepth && strings.Contains(s, "$"); i++ {
		s = os.Expand(s, lookup)
		if len(missing) > 0 {
			return "", fmt.Errorf("paths: unknown variable %q in %q", missing[0], template)
		}
	}
	if strings.Contains(s, "${") {
		return "", fmt.Errorf("paths: template %q nests deeper than %d levels", template, maxDepth)
	}
	return filepath.Clean(filepath.FromSlash(s)), nil
}
