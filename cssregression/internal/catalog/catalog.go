// CLAUDE:SUMMARY Filesystem entity catalog: scans sites/category/entity folders, selects by query, reads test declarations.
// Package catalog loads catalog entities from the sites directory and
// answers the two questions the pipeline asks of it: which entities does a
// query select, and which test declarations does an entity carry for a site.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/cssregression/cssregression/internal/model"
	"github.com/hazyhaar/cssregression/cssregression/internal/paths"
)

// entityFiles are tried in order inside each entity folder. yaml.v3 reads
// the JSON variant too.
var entityFiles = []string{"entity.yaml", "entity.yml", "entity.json"}

// entityFile is the on-disk shape of an entity definition.
type entityFile struct {
	UsedBy     []string       `yaml:"usedBy"`
	Properties map[string]any `yaml:"properties"`
}

// Catalog is an in-memory view of <sites>/<site>/<category>/<entity>.
type Catalog struct {
	dir      string
	entities []*model.Entity
	logger   *slog.Logger
}

// Load scans dir. Folders without an entity file are ignored; unreadable
// entity files are logged and skipped.
func Load(dir string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{dir: dir, logger: logger}

	sites, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read sites dir: %w", err)
	}
	for _, site := range sites {
		if !site.IsDir() {
			continue
		}
		categories, err := os.ReadDir(filepath.Join(dir, site.Name()))
		if err != nil {
			return nil, fmt.Errorf("catalog: read site %s: %w", site.Name(), err)
		}
		for _, cat := range categories {
			if !cat.IsDir() {
				continue
			}
			entries, err := os.ReadDir(filepath.Join(dir, site.Name(), cat.Name()))
			if err != nil {
				return nil, fmt.Errorf("catalog: read category %s/%s: %w", site.Name(), cat.Name(), err)
			}
			for _, ent := range entries {
				if !ent.IsDir() {
					continue
				}
				entDir := filepath.Join(dir, site.Name(), cat.Name(), ent.Name())
				e, err := loadEntity(entDir, &model.EntityID{
					Site:     site.Name(),
					Category: cat.Name(),
					Name:     ent.Name(),
				})
				if err != nil {
					logger.Warn("catalog: skip entity", "dir", entDir, "error", err)
					continue
				}
				if e != nil {
					c.entities = append(c.entities, e)
				}
			}
		}
	}

	logger.Debug("catalog: loaded", "dir", dir, "entities", len(c.entities))
	return c, nil
}

func loadEntity(dir string, id *model.EntityID) (*model.Entity, error) {
	for _, name := range entityFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var f entityFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return &model.Entity{
			ID:         id,
			UsedBy:     f.UsedBy,
			Dir:        dir,
			Properties: model.Properties(f.Properties),
		}, nil
	}
	return nil, nil
}

// Entities returns every loaded entity in scan order.
func (c *Catalog) Entities() []*model.Entity { return c.entities }

// Select returns the entities matching query. "" and "*" select all;
// otherwise the query is "site", "site/category" or "site/category/entity"
// with path.Match globs per segment. A single segment also matches entity
// names, so "m-teaser" works on its own.
func (c *Catalog) Select(query string) ([]*model.Entity, error) {
	q := strings.Trim(strings.TrimSpace(query), "/")
	if q == "" || q == "*" {
		return c.entities, nil
	}
	segs := strings.Split(q, "/")
	if len(segs) > 3 {
		return nil, fmt.Errorf("catalog: query %q has more than 3 segments", query)
	}

	var out []*model.Entity
	for _, e := range c.entities {
		ok, err := matches(segs, e.ID)
		if err != nil {
			return nil, fmt.Errorf("catalog: query %q: %w", query, err)
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func matches(segs []string, id *model.EntityID) (bool, error) {
	fields := []string{id.Site, id.Category, id.Name}
	if len(segs) == 1 {
		site, err := path.Match(segs[0], id.Site)
		if err != nil || site {
			return site, err
		}
		return path.Match(segs[0], id.Name)
	}
	for i, s := range segs {
		ok, err := path.Match(s, fields[i])
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// TestDeclarations reads "<site>.test.cssregression" from the entity's
// properties. A missing path yields no declarations and no error.
func (c *Catalog) TestDeclarations(e *model.Entity, site string) ([]model.TestDeclaration, error) {
	return Declarations(e, site)
}

// Declarations is TestDeclarations without a catalog, for entities built
// in memory.
func Declarations(e *model.Entity, site string) ([]model.TestDeclaration, error) {
	raw := e.Properties.GetByPath(paths.Urlify(site) + ".test.cssregression")
	if raw == nil {
		return nil, nil
	}
	if _, ok := raw.([]any); !ok {
		return nil, fmt.Errorf("catalog: %s: %s.test.cssregression is not a list", e.PathString(), site)
	}

	// Round-trip through YAML to get typed declarations out of the
	// generic tree.
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: encode declarations: %w", e.PathString(), err)
	}
	var decls []model.TestDeclaration
	if err := yaml.Unmarshal(data, &decls); err != nil {
		return nil, fmt.Errorf("catalog: %s: decode declarations: %w", e.PathString(), err)
	}
	return decls, nil
}

// LoadStates re-attaches the last persisted state blob of every suite.
// template is the module's test data template. It returns the number of
// suites restored.
func (c *Catalog) LoadStates(r paths.Resolver, template string) int {
	n := 0
	for _, e := range c.entities {
		for _, site := range e.Sites() {
			p, err := r.Resolve(template, paths.ForEntity(site, e.ID))
			if err != nil {
				c.logger.Warn("catalog: resolve state path", "entity", e.PathString(), "error", err)
				continue
			}
			st, err := model.ReadState(p)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				c.logger.Warn("catalog: load state", "entity", e.PathString(), "path", p, "error", err)
				continue
			}
			if st.Site == "" {
				st.Site = site
			}
			if e.FindSuite(model.SuiteName, site) == nil {
				e.AddSuite(st.Suite())
				n++
			}
		}
	}
	return n
}
