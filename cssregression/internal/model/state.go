package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the JSON blob persisted per (entity, site) after a comparison,
// read back when the catalog is loaded.
type State struct {
	Site      string      `json:"site"`
	Total     int         `json:"total"`
	OK        int         `json:"ok"`
	Failed    int         `json:"failed"`
	Tests     []CaseState `json:"tests"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// CaseState is the persisted form of a TestCase.
type CaseState struct {
	Name                string `json:"name"`
	URL                 string `json:"url"`
	ViewportWidth       int    `json:"viewportWidth"`
	IsValid             bool   `json:"isValid"`
	Difference          int    `json:"difference"`
	Failure             string `json:"failure,omitempty"`
	ReferenceImagePath  string `json:"referenceImagePath"`
	TestImagePath       string `json:"testImagePath"`
	DifferenceImagePath string `json:"differenceImagePath"`
}

// NewState snapshots a compared suite.
func NewState(s *TestSuite, now time.Time) *State {
	st := &State{
		Site:      s.Site,
		Total:     s.Total(),
		OK:        s.OK,
		Failed:    s.Failed,
		Tests:     make([]CaseState, 0, len(s.Tests)),
		UpdatedAt: now.UTC(),
	}
	for _, tc := range s.Tests {
		st.Tests = append(st.Tests, CaseState{
			Name:                tc.Name,
			URL:                 tc.URL,
			ViewportWidth:       tc.ViewportWidth,
			IsValid:             tc.IsValid,
			Difference:          tc.Difference,
			Failure:             tc.Failure,
			ReferenceImagePath:  tc.ReferenceImagePath,
			TestImagePath:       tc.TestImagePath,
			DifferenceImagePath: tc.DifferenceImagePath,
		})
	}
	return st
}

// Suite rebuilds a TestSuite from the persisted state.
func (st *State) Suite() *TestSuite {
	s := &TestSuite{
		Name:     SuiteName,
		Site:     st.Site,
		OK:       st.OK,
		Failed:   st.Failed,
		IsValid:  st.Failed == 0,
		Restored: true,
	}
	for _, c := range st.Tests {
		s.Tests = append(s.Tests, &TestCase{
			Name:                c.Name,
			URL:                 c.URL,
			ViewportWidth:       c.ViewportWidth,
			IsValid:             c.IsValid,
			Difference:          c.Difference,
			Failure:             c.Failure,
			ReferenceImagePath:  c.ReferenceImagePath,
			TestImagePath:       c.TestImagePath,
			DifferenceImagePath: c.DifferenceImagePath,
		})
	}
	return s
}

// WriteState writes st as indented JSON, creating parent directories.
func WriteState(path string, st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("model: marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("model: create state dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("model: write state: %w", err)
	}
	return nil
}

// ReadState loads a state blob. For a missing file the error satisfies
// errors.Is(err, os.ErrNotExist).
func ReadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("model: parse state %s: %w", path, err)
	}
	return &st, nil
}
