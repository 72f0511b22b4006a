package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/console-reconciler/internal/locator"
	"github.com/dvloznov/console-reconciler/internal/ui"
)

//go:embed profiles/default.yaml
var defaultProfile []byte

// StrategySpec is one strategy entry of a concept.
type StrategySpec struct {
	Kind    string        `yaml:"kind"`
	Expr    string        `yaml:"expr"`
	Role    string        `yaml:"role"`
	Name    string        `yaml:"name"`
	Tag     string        `yaml:"tag"`
	Text    string        `yaml:"text"`
	Visible bool          `yaml:"visible"`
	Timeout time.Duration `yaml:"timeout"`
	// Once makes the strategy a single attempt instead of the element wait.
	Once bool `yaml:"once"`
}

// Columns are zero-based cell indexes of the transaction grid.
type Columns struct {
	OrderID         int `yaml:"order_id"`
	Phone           int `yaml:"phone"`
	Amount          int `yaml:"amount"`
	Fee             int `yaml:"fee"`
	Time            int `yaml:"time"`
	TimeMinCells    int `yaml:"time_min_cells"`
	Gateway         int `yaml:"gateway"`
	GatewayMinCells int `yaml:"gateway_min_cells"`
	MinCells        int `yaml:"min_cells"`
}

// Profile is the vendor-specific part of the console: selectors and layout.
type Profile struct {
	Overlays      []string                  `yaml:"overlays"`
	SummaryLabels []string                  `yaml:"summary_labels"`
	Columns       Columns                   `yaml:"columns"`
	TimeLayouts   []string                  `yaml:"time_layouts"`
	Concepts      map[string][]StrategySpec `yaml:"concepts"`
}

// DefaultProfile parses the embedded profile.
func DefaultProfile() (*Profile, error) {
	return ParseProfile(defaultProfile)
}

// LoadProfile reads a profile from path, or the embedded one when path is empty.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadProfile: reading %s: %w", path, err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("ParseProfile: decoding yaml: %w", err)
	}
	if len(p.Concepts) == 0 {
		return nil, fmt.Errorf("ParseProfile: no concepts defined")
	}
	if p.Columns.MinCells <= 0 {
		return nil, fmt.Errorf("ParseProfile: columns.min_cells must be positive")
	}
	// Validate every strategy now rather than on first use.
	if _, err := p.Registry(DefaultWaits()); err != nil {
		return nil, err
	}
	return &p, nil
}

// OverlaySelectors returns the overlay indicators as CSS selectors.
func (p *Profile) OverlaySelectors() []ui.Selector {
	out := make([]ui.Selector, 0, len(p.Overlays))
	for _, o := range p.Overlays {
		out = append(out, ui.ByCSS(o))
	}
	return out
}

// Registry builds a locator registry from the profile's concepts. Strategies
// without a timeout get waits.Element.
func (p *Profile) Registry(waits Waits) (*locator.Registry, error) {
	reg := locator.NewRegistry()

	names := make([]string, 0, len(p.Concepts))
	for name := range p.Concepts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for i, spec := range p.Concepts[name] {
			s, err := spec.strategy()
			if err != nil {
				return nil, fmt.Errorf("Registry: concept %s strategy %d: %w", name, i+1, err)
			}
			reg.Register(locator.Concept(name), locator.Rule{Strategy: s, Timeout: spec.timeout(waits)})
		}
	}
	return reg, nil
}

func (s StrategySpec) timeout(waits Waits) time.Duration {
	switch {
	case s.Once:
		return 0
	case s.Timeout > 0:
		return s.Timeout
	}
	return waits.Element
}

func (s StrategySpec) strategy() (locator.Strategy, error) {
	var out locator.Strategy
	switch s.Kind {
	case "css":
		if s.Expr == "" {
			return nil, fmt.Errorf("css strategy needs expr")
		}
		out = locator.CSS(s.Expr)
	case "xpath":
		if s.Expr == "" {
			return nil, fmt.Errorf("xpath strategy needs expr")
		}
		out = locator.XPath(s.Expr)
	case "role":
		if s.Role == "" {
			return nil, fmt.Errorf("role strategy needs role")
		}
		out = locator.Role(s.Role, s.Name)
	case "text":
		if s.Text == "" {
			return nil, fmt.Errorf("text strategy needs text")
		}
		out = locator.Text(s.Tag, s.Text)
	default:
		return nil, fmt.Errorf("unknown strategy kind %q", s.Kind)
	}
	if s.Visible {
		out = locator.Visible(out)
	}
	return out, nil
}
