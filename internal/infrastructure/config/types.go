package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// StringList is a list of strings that may be written in YAML either as a
// single scalar or as a sequence:
//
//	exclude_entities: "sensor.*"
//	exclude_entities: ["sensor.*", "switch.guest_*"]
//
// Only the shape is validated; entries are not interpreted here.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*l = nil
			return nil
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return fmt.Errorf("line %d: expected a list of strings: %w", value.Line, err)
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}

// Theme is the colour scheme the dashboard cards render with.
//
// It is a closed set. Free-form values, and in particular anything that looks
// like script source, are rejected during validation.
type Theme string

// Supported themes.
const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

// Valid reports whether t is one of the supported themes.
func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeAuto:
		return true
	default:
		return false
	}
}

// ParseTheme normalises s into a Theme. Matching is case-insensitive and
// ignores surrounding whitespace; an empty string yields ThemeAuto.
func ParseTheme(s string) (Theme, error) {
	t := Theme(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return ThemeAuto, nil
	}
	if !t.Valid() {
		return "", fmt.Errorf("unsupported theme %q", s)
	}
	return t, nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Unknown values are kept verbatim
// so Validate can report them alongside other errors.
func (t *Theme) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: theme must be a string", value.Line)
	}
	parsed, err := ParseTheme(value.Value)
	if err != nil {
		*t = Theme(value.Value)
		return nil
	}
	*t = parsed
	return nil
}
