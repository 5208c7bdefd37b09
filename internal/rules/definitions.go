package rules

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxDefinitionsFileSize = 1024 * 1024 // 1MB

// NamingDefinitions configures the role-suffix conventions.
type NamingDefinitions struct {
	// ParentSuffix is required on parent-aggregator identities.
	ParentSuffix string `koanf:"parent_suffix"`

	// AggregatorSuffix is required on pure-aggregator identities.
	AggregatorSuffix string `koanf:"aggregator_suffix"`

	// ExemptRoot exempts the tree root from the aggregator suffix rule.
	ExemptRoot bool `koanf:"exempt_root"`
}

// Definitions is the declarative rule configuration.
type Definitions struct {
	Naming NamingDefinitions `koanf:"naming"`

	// SeverityOverrides maps rule id to a severity replacing the default.
	SeverityOverrides map[string]Severity `koanf:"severity_overrides"`

	// Disabled lists rule ids that must not be evaluated.
	Disabled []string `koanf:"disabled"`
}

// DefaultDefinitions returns the built-in conventions.
func DefaultDefinitions() *Definitions {
	return &Definitions{
		Naming: NamingDefinitions{
			ParentSuffix:     "-parent",
			AggregatorSuffix: "-aggregator",
			ExemptRoot:       true,
		},
	}
}

// ParseDefinitions parses a YAML rule document, applying defaults for
// missing values.
func ParseDefinitions(content []byte) (*Definitions, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing rule definitions: %w", err)
	}

	defs := DefaultDefinitions()
	if err := k.Unmarshal("", defs); err != nil {
		return nil, fmt.Errorf("unmarshaling rule definitions: %w", err)
	}
	if defs.Naming.ParentSuffix == "" {
		defs.Naming.ParentSuffix = "-parent"
	}
	if defs.Naming.AggregatorSuffix == "" {
		defs.Naming.AggregatorSuffix = "-aggregator"
	}

	if err := defs.Validate(); err != nil {
		return nil, err
	}
	return defs, nil
}

// LoadDefinitions reads a YAML rule document from disk. An empty path
// yields the defaults.
func LoadDefinitions(path string) (*Definitions, error) {
	if path == "" {
		return DefaultDefinitions(), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule definitions: %w", err)
	}
	if info.Size() > maxDefinitionsFileSize {
		return nil, fmt.Errorf("rule definitions too large: %d bytes (max %d)", info.Size(), maxDefinitionsFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule definitions: %w", err)
	}
	return ParseDefinitions(content)
}

// Validate checks the definitions for errors.
func (d *Definitions) Validate() error {
	for id, sev := range d.SeverityOverrides {
		switch sev {
		case SeverityInfo, SeverityWarning, SeverityError:
		default:
			return fmt.Errorf("invalid severity %q for rule %q", sev, id)
		}
	}
	return nil
}

// Enabled reports whether a rule id is enabled.
func (d *Definitions) Enabled(ruleID string) bool {
	for _, id := range d.Disabled {
		if id == ruleID {
			return false
		}
	}
	return true
}

// SeverityFor returns the severity for a rule, honoring overrides.
func (d *Definitions) SeverityFor(ruleID string, def Severity) Severity {
	if sev, ok := d.SeverityOverrides[ruleID]; ok {
		return sev
	}
	return def
}
