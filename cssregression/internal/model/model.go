// CLAUDE:SUMMARY Catalog entity, test suite and test case types shared by derivation, capture and comparison.
// Package model holds the catalog entity and visual test result types.
//
// Suites and cases are mutated in place by a single sequential run; no
// locking is done here.
package model

import (
	"fmt"
	"strings"
)

// SuiteName is the identity name of every visual regression suite.
const SuiteName = "cssregression"

// EntityID identifies a catalog entity.
type EntityID struct {
	Site     string `json:"site"`
	Category string `json:"category"`
	Name     string `json:"name"`
}

// String returns "site/category/name".
func (id EntityID) String() string {
	return id.Site + "/" + id.Category + "/" + id.Name
}

// Entity is a catalog component or page.
type Entity struct {
	ID         *EntityID
	UsedBy     []string
	Dir        string
	Properties Properties
	TestSuites []*TestSuite
}

// HasIdentity reports whether the entity can be addressed.
func (e *Entity) HasIdentity() bool {
	return e != nil && e.ID != nil && e.ID.Name != "" && e.ID.Site != ""
}

// PathString is used in log lines.
func (e *Entity) PathString() string {
	if !e.HasIdentity() {
		return "<anonymous>"
	}
	return e.ID.String()
}

// Sites lists the entity's own site followed by the sites using it.
func (e *Entity) Sites() []string {
	if !e.HasIdentity() {
		return nil
	}
	out := []string{e.ID.Site}
	for _, s := range e.UsedBy {
		if s != "" && s != e.ID.Site {
			out = append(out, s)
		}
	}
	return out
}

// FindSuite returns the suite with the given identity, or nil.
func (e *Entity) FindSuite(name, site string) *TestSuite {
	for _, s := range e.TestSuites {
		if s.Name == name && s.Site == site {
			return s
		}
	}
	return nil
}

// AddSuite attaches s to the entity.
func (e *Entity) AddSuite(s *TestSuite) {
	e.TestSuites = append(e.TestSuites, s)
}

// TestSuite groups the visual test cases of one (entity, site) pair.
type TestSuite struct {
	Name    string
	Site    string
	OK      int
	Failed  int
	IsValid bool
	Tests   []*TestCase

	// Restored marks a suite rebuilt from a persisted state blob that no
	// derivation has refreshed yet. Its cases may no longer be declared.
	Restored bool
}

// NewTestSuite creates an empty cssregression suite for site.
func NewTestSuite(site string) *TestSuite {
	return &TestSuite{Name: SuiteName, Site: site, IsValid: true}
}

// Clear drops all test cases. Counters are left to the comparator.
func (s *TestSuite) Clear() {
	s.Tests = s.Tests[:0]
}

// Total is the number of test cases.
func (s *TestSuite) Total() int { return len(s.Tests) }

// Reset prepares the counters for a comparison pass.
func (s *TestSuite) Reset() {
	s.IsValid = true
	s.OK = 0
	s.Failed = 0
}

// Pass records a passing case.
func (s *TestSuite) Pass(tc *TestCase) {
	tc.IsValid = true
	tc.Failure = ""
	s.OK++
}

// Fail records a failing case with reason.
func (s *TestSuite) Fail(tc *TestCase, reason string) {
	tc.IsValid = false
	tc.Failure = reason
	s.Failed++
	s.IsValid = false
}

// TestCase is one (url, viewport width) visual check.
type TestCase struct {
	Name                string
	URL                 string
	ViewportWidth       int
	ReferenceImagePath  string
	TestImagePath       string
	DifferenceImagePath string
	IsValid             bool

	// Difference is the differing-pixel count of the last comparison.
	Difference int
	// Failure is empty on pass.
	Failure string
}

// Label is used in log lines: "overview@320".
func (tc *TestCase) Label() string {
	return fmt.Sprintf("%s@%d", tc.Name, tc.ViewportWidth)
}

// TestDeclaration is one entry of the "<site>.test.cssregression" list.
type TestDeclaration struct {
	URL            string `yaml:"url,omitempty" json:"url,omitempty"`
	Name           string `yaml:"name,omitempty" json:"name,omitempty"`
	ViewportWidths []int  `yaml:"viewportWidths,omitempty" json:"viewportWidths,omitempty"`
}

// Properties is the nested property tree of an entity.
type Properties map[string]any

// GetByPath walks a dot separated path. It returns nil when any segment is
// missing or not a map.
func (p Properties) GetByPath(path string) any {
	var cur any = map[string]any(p)
	for _, key := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case map[string]any:
			cur = m[key]
		case Properties:
			cur = m[key]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}
