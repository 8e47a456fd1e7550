// CLAUDE:SUMMARY Expands per-entity test declarations into concrete test cases and upserts the entity's suite.
// Package derive turns test declarations into concrete test cases.
package derive

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"runtime"
	"strconv"
	"strings"

	"github.com/hazyhaar/cssregression/cssregression/internal/config"
	"github.com/hazyhaar/cssregression/cssregression/internal/model"
	"github.com/hazyhaar/cssregression/cssregression/internal/paths"
)

// DefaultURL is used by declarations without a url.
const DefaultURL = "examples/overview"

// StaticMarker forces deterministic rendering on the preview server.
const StaticMarker = "static=true"

// Declarations supplies the test declarations of an (entity, site) pair.
type Declarations interface {
	TestDeclarations(e *model.Entity, site string) ([]model.TestDeclaration, error)
}

// Deriver builds test suites from declarations and path templates.
type Deriver struct {
	module   *config.Module
	resolver paths.Resolver
	decls    Declarations
	os       string
	logger   *slog.Logger
}

// Option customises a Deriver.
type Option func(*Deriver)

// WithOS overrides the ${os} variable (runtime.GOOS by default).
func WithOS(name string) Option { return func(d *Deriver) { d.os = name } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(d *Deriver) { d.logger = l } }

// New creates a Deriver.
func New(module *config.Module, resolver paths.Resolver, decls Declarations, opts ...Option) *Deriver {
	d := &Deriver{
		module:   module,
		resolver: resolver,
		decls:    decls,
		os:       runtime.GOOS,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// DeriveFor builds the suite of entity for site (the entity's own site
// when empty). It returns false, without side effects, for an entity
// without identity, and true when there is nothing to derive. On a path
// resolution error the existing suite is left as it was.
func (d *Deriver) DeriveFor(ctx context.Context, e *model.Entity, site string) (bool, error) {
	if !e.HasIdentity() {
		return false, nil
	}
	if site == "" {
		site = e.ID.Site
	}

	decls, err := d.decls.TestDeclarations(e, site)
	if err != nil {
		return false, fmt.Errorf("derive: %s: %w", e.PathString(), err)
	}
	if len(decls) == 0 {
		return true, nil
	}

	var cases []*model.TestCase
	for _, decl := range decls {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		built, err := d.expand(e, site, decl)
		if err != nil {
			return false, fmt.Errorf("derive: %s: %w", e.PathString(), err)
		}
		cases = append(cases, built...)
	}

	suite := e.FindSuite(model.SuiteName, site)
	if suite == nil {
		d.logger.Info("derive: creating suite", "entity", e.PathString(), "site", site)
		suite = model.NewTestSuite(site)
		e.AddSuite(suite)
	} else {
		d.logger.Info("derive: updating suite", "entity", e.PathString(), "site", site)
		suite.Clear()
		suite.Restored = false
	}
	suite.Tests = append(suite.Tests, cases...)
	return true, nil
}

func (d *Deriver) expand(e *model.Entity, site string, decl model.TestDeclaration) ([]*model.TestCase, error) {
	url := strings.TrimPrefix(decl.URL, "/")
	if url == "" {
		url = DefaultURL
	}
	name := decl.Name
	if name == "" {
		name = BaseName(url)
	}
	widths := decl.ViewportWidths
	if len(widths) == 0 {
		widths = d.module.ViewportWidths()
	}

	var out []*model.TestCase
	for _, width := range widths {
		if width <= 0 {
			d.logger.Warn("derive: skip invalid viewport width",
				"entity", e.PathString(), "name", name, "width", width)
			continue
		}

		vars := paths.ForEntity(site, e.ID)
		vars["width"] = strconv.Itoa(width)
		vars["name"] = name
		vars["os"] = d.os

		tc := &model.TestCase{
			Name:          name,
			URL:           StaticURL(url),
			ViewportWidth: width,
		}
		var err error
		if tc.ReferenceImagePath, err = d.resolver.Resolve(d.module.ReferenceImageTemplate(), vars); err != nil {
			return nil, err
		}
		if tc.TestImagePath, err = d.resolver.Resolve(d.module.TestImageTemplate(), vars); err != nil {
			return nil, err
		}
		if tc.DifferenceImagePath, err = d.resolver.Resolve(d.module.DifferenceImageTemplate(), vars); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, nil
}

// TemplateExt is stripped from url basenames when deriving case names.
const TemplateExt = ".j2"

// BaseName is the last path element of url without query and without the
// template extension: "examples/overview.j2" -> "overview". Other
// extensions are kept ("page.html" stays "page.html").
func BaseName(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return strings.TrimSuffix(path.Base(url), TemplateExt)
}

// StaticURL makes url server-root relative and appends the static marker.
func StaticURL(url string) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return "/" + strings.TrimPrefix(url, "/") + sep + StaticMarker
}
