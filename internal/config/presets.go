package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"example.com/bmffgate/internal/rules"
)

// DefaultPreset enables every rule.
const DefaultPreset = "default"

var ErrUnknownPreset = errors.New("config: unknown preset")

//go:embed presets.yaml
var builtinPresets []byte

type RuleToggle struct {
	RuleID  string `yaml:"ruleId" json:"ruleId"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

// Preset toggles rules by identifier. Rules it does not mention stay enabled.
type Preset struct {
	ID      string       `yaml:"id" json:"id"`
	Name    string       `yaml:"name" json:"name"`
	Summary string       `yaml:"summary" json:"summary"`
	Rules   []RuleToggle `yaml:"rules" json:"rules"`
}

// Enabled reports whether ruleID passes the preset. The last toggle for a
// rule wins.
func (p Preset) Enabled(ruleID string) bool {
	enabled := true
	for _, t := range p.Rules {
		if t.RuleID == ruleID {
			enabled = t.Enabled
		}
	}
	return enabled
}

func parsePresets(data []byte) ([]Preset, error) {
	var out []Preset
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	for i, p := range out {
		if p.ID == "" {
			return nil, fmt.Errorf("preset %d has no id", i)
		}
		for _, t := range p.Rules {
			if _, ok := rules.Lookup(t.RuleID); !ok {
				return nil, fmt.Errorf("preset %s: unknown rule %q", p.ID, t.RuleID)
			}
		}
	}
	return out, nil
}

// Builtin returns the embedded presets.
func Builtin() []Preset {
	out, err := parsePresets(builtinPresets)
	if err != nil {
		panic(fmt.Sprintf("config: builtin presets: %v", err))
	}
	return out
}

// Presets returns the built-in presets followed by those in path, if any.
// A file preset replaces a built-in one with the same id.
func Presets(path string) ([]Preset, error) {
	all := Builtin()
	if path == "" {
		return all, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	extra, err := parsePresets(data)
	if err != nil {
		return nil, fmt.Errorf("presets %s: %w", path, err)
	}
	for _, p := range extra {
		if i := slices.IndexFunc(all, func(q Preset) bool { return q.ID == p.ID }); i >= 0 {
			all[i] = p
		} else {
			all = append(all, p)
		}
	}
	return all, nil
}

// FindPreset looks id up among the presets available with path.
func FindPreset(path, id string) (Preset, error) {
	if id == "" {
		id = DefaultPreset
	}
	all, err := Presets(path)
	if err != nil {
		return Preset{}, err
	}
	for _, p := range all {
		if p.ID == id {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w %q", ErrUnknownPreset, id)
}
