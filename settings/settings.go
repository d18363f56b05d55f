// Package settings loads the recorder's domain tables: history digest, host name,
// link patterns and extra label rules.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum-optimism/infra/op-recorder/engine"
	"github.com/ethereum-optimism/infra/op-recorder/identity"
	"github.com/ethereum-optimism/infra/op-recorder/listener"
	"gopkg.in/yaml.v3"
)

var ErrUnknownFormat = errors.New("unknown settings format")

// Settings is the content of a settings file
type Settings struct {
	HistoryDigest string            `yaml:"historyDigest" toml:"historyDigest"`
	Host          string            `yaml:"host" toml:"host"`
	Links         map[string]string `yaml:"links" toml:"links"`
	Labels        []LabelRule       `yaml:"labels" toml:"labels"`
}

// LabelRule adds a label category filled from annotations of the given type
type LabelRule struct {
	Category   string `yaml:"category" toml:"category"`
	Annotation string `yaml:"annotation" toml:"annotation"`
}

// Default returns the settings used when no file is given
func Default() *Settings {
	return &Settings{HistoryDigest: identity.DefaultDigest}
}

// Load reads settings from a yaml or toml file, chosen by extension. An empty path
// yields Default.
func Load(path string) (*Settings, error) {
	if path == "" {
		return Default(), nil
	}
	s := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parsing settings file: %w", err)
		}
	case ".toml":
		md, err := toml.DecodeFile(path, s)
		if err != nil {
			return nil, fmt.Errorf("parsing settings file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown settings keys: %v", undecoded)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the digest is available and label rules are complete and unique
func (s *Settings) Validate() error {
	if _, err := identity.New(s.digest()); err != nil {
		return err
	}
	seen := make(map[LabelRule]struct{})
	for i, rule := range s.Labels {
		if rule.Category == "" || rule.Annotation == "" {
			return fmt.Errorf("label rule %d: category and annotation are required", i)
		}
		if _, dup := seen[rule]; dup {
			return fmt.Errorf("label rule %d: duplicate rule %s/%s", i, rule.Category, rule.Annotation)
		}
		seen[rule] = struct{}{}
	}
	for linkType, pattern := range s.Links {
		if !strings.Contains(pattern, "{}") {
			return fmt.Errorf("link pattern for %q has no {} placeholder", linkType)
		}
	}
	return nil
}

// Assigner builds the identity assigner for the configured digest
func (s *Settings) Assigner() (*identity.Assigner, error) {
	return identity.New(s.digest())
}

// LabelRules returns the default rules followed by the configured ones
func (s *Settings) LabelRules() []listener.LabelRule {
	rules := make([]listener.LabelRule, 0, len(listener.DefaultLabelRules)+len(s.Labels))
	rules = append(rules, listener.DefaultLabelRules...)
	for _, r := range s.Labels {
		rules = append(rules, listener.LabelRule{Category: r.Category, Annotation: engine.AnnotationType(r.Annotation)})
	}
	return rules
}

func (s *Settings) digest() string {
	if s.HistoryDigest == "" {
		return identity.DefaultDigest
	}
	return s.HistoryDigest
}
