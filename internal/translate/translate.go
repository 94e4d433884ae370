// Package translate looks up the participant-facing strings of the experiment.
package translate

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Func produces a localized string from the call arguments.
type Func func(args ...any) string

// Translator maps message keys to localized strings or Funcs. Missing keys fall
// back to the key itself. A nil *Translator is valid and returns keys unchanged.
type Translator struct {
	entries map[string]any
}

var placeholder = regexp.MustCompile(`\{([^}]*)\}`)

// New builds a translator over the given entries. Values must be string or Func.
func New(entries map[string]any) *Translator {
	t := &Translator{entries: make(map[string]any, len(entries))}
	for k, v := range entries {
		t.entries[k] = v
	}
	return t
}

// Default returns the built-in English strings.
func Default() *Translator {
	return New(English)
}

// LoadFile reads a flat key/value file (JSON or YAML) and layers it over base.
func LoadFile(path string, base *Translator) (*Translator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read translations file: %w", err)
	}
	var flat map[string]string
	if err := yaml.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("failed to unmarshal translations: %w", err)
	}
	t := New(nil)
	if base != nil {
		for k, v := range base.entries {
			t.entries[k] = v
		}
	}
	for k, v := range flat {
		t.entries[k] = v
	}
	return t, nil
}

// Set adds or replaces one entry.
func (t *Translator) Set(key string, value any) {
	t.entries[key] = value
}

// T translates key. Funcs receive args directly; strings get `{0}`, `{1}`...
// replaced by the matching argument, and a bare `{}` by the first one.
func (t *Translator) T(key string, args ...any) string {
	if t == nil {
		return key
	}
	value, ok := t.entries[key]
	if !ok || value == nil {
		return key
	}
	switch v := value.(type) {
	case Func:
		return v(args...)
	case func(args ...any) string:
		return v(args...)
	case string:
		if len(args) == 0 {
			return v
		}
		return Format(v, args...)
	default:
		return key
	}
}

// Format substitutes positional placeholders. Placeholders without a matching
// argument are left as they are.
func Format(s string, args ...any) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1 : len(m)-1]
		idx := 0
		if name != "" {
			n, err := strconv.Atoi(name)
			if err != nil {
				return m
			}
			idx = n
		}
		if idx < 0 || idx >= len(args) {
			return m
		}
		return fmt.Sprint(args[idx])
	})
}
