package config

import "strings"

// Defaults for the cssregression section.
const (
	DefaultTestDataTemplate        = "${entityTemplate}/tests/cssregression.json"
	DefaultReferenceImageTemplate  = "${entityTemplate}/tests/cssregression/${name}-${os}-@${width}.png"
	DefaultTestImageTemplate       = "${cache}/tests/cssregression/${site}-${name}-${os}-@${width}.png"
	DefaultDifferenceImageTemplate = "${cache}/tests/cssregression/${site}-${name}-${os}-@${width}-difference.png"
	DefaultDifferenceThreshold     = 100
	DefaultSensitivity             = 0.1
	DefaultServerBaseURL           = "http://localhost:3000"
)

// DefaultViewportWidths is used when neither the settings nor a test
// declaration name widths.
var DefaultViewportWidths = []int{320, 768, 1024, 1280}

// Settings is the raw cssregression section as read from the file. Nil or
// empty fields take the documented defaults in NewModule.
type Settings struct {
	TestDataTemplate        string   `yaml:"testDataTemplate"`
	ReferenceImageTemplate  string   `yaml:"referenceImageTemplate"`
	TestImageTemplate       string   `yaml:"testImageTemplate"`
	DifferenceImageTemplate string   `yaml:"differenceImageTemplate"`
	ViewportWidths          []int    `yaml:"viewportWidths"`
	DifferenceThreshold     *int     `yaml:"differenceThreshold"`
	Sensitivity             *float64 `yaml:"sensitivity"`

	// ServerBaseURL accepts "false" for "use the default".
	ServerBaseURL string `yaml:"serverBaseUrl"`
}

// Module is the read-only module configuration shared by the deriver,
// capturer and comparator. Build it once with NewModule.
type Module struct {
	testDataTemplate        string
	referenceImageTemplate  string
	testImageTemplate       string
	differenceImageTemplate string
	viewportWidths          []int
	differenceThreshold     int
	sensitivity             float64
	serverBaseURL           string
}

// NewModule fills defaults into s and freezes the result.
func NewModule(s Settings) *Module {
	m := &Module{
		testDataTemplate:        orDefault(s.TestDataTemplate, DefaultTestDataTemplate),
		referenceImageTemplate:  orDefault(s.ReferenceImageTemplate, DefaultReferenceImageTemplate),
		testImageTemplate:       orDefault(s.TestImageTemplate, DefaultTestImageTemplate),
		differenceImageTemplate: orDefault(s.DifferenceImageTemplate, DefaultDifferenceImageTemplate),
		differenceThreshold:     DefaultDifferenceThreshold,
		sensitivity:             DefaultSensitivity,
		serverBaseURL:           DefaultServerBaseURL,
	}

	widths := s.ViewportWidths
	if len(widths) == 0 {
		widths = DefaultViewportWidths
	}
	m.viewportWidths = append([]int(nil), widths...)

	if s.DifferenceThreshold != nil && *s.DifferenceThreshold >= 0 {
		m.differenceThreshold = *s.DifferenceThreshold
	}
	if s.Sensitivity != nil && *s.Sensitivity >= 0 && *s.Sensitivity <= 1 {
		m.sensitivity = *s.Sensitivity
	}
	if u := strings.TrimSpace(s.ServerBaseURL); u != "" && u != "false" {
		m.serverBaseURL = strings.TrimRight(u, "/")
	}
	return m
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (m *Module) TestDataTemplate() string        { return m.testDataTemplate }
func (m *Module) ReferenceImageTemplate() string  { return m.referenceImageTemplate }
func (m *Module) TestImageTemplate() string       { return m.testImageTemplate }
func (m *Module) DifferenceImageTemplate() string { return m.differenceImageTemplate }

// ViewportWidths returns a copy of the default widths.
func (m *Module) ViewportWidths() []int { return append([]int(nil), m.viewportWidths...) }

// DifferenceThreshold is the maximum differing-pixel count a case may have
// and still pass.
func (m *Module) DifferenceThreshold() int { return m.differenceThreshold }

// Sensitivity is the per-pixel color distance threshold (0..1) handed to
// the pixel matcher.
func (m *Module) Sensitivity() float64 { return m.sensitivity }

// ServerBaseURL has no trailing slash.
func (m *Module) ServerBaseURL() string { return m.serverBaseURL }
