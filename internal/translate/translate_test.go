package translate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	tr := New(map[string]any{
		"greeting": "Hello {0}, you are {1}",
		"retries":  "Failed after {} attempts",
		"plural": Func(func(args ...any) string {
			if len(args) == 1 && args[0] == 1 {
				return "one trial"
			}
			return "many trials"
		}),
	})

	tests := []struct {
		name string
		key  string
		args []any
		want string
	}{
		{name: "positional", key: "greeting", args: []any{"Ada", 36}, want: "Hello Ada, you are 36"},
		{name: "bare placeholder", key: "retries", args: []any{3}, want: "Failed after 3 attempts"},
		{name: "no args keeps placeholders", key: "retries", want: "Failed after {} attempts"},
		{name: "func", key: "plural", args: []any{1}, want: "one trial"},
		{name: "func other", key: "plural", args: []any{4}, want: "many trials"},
		{name: "missing key falls back", key: "nope", want: "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.T(tt.key, tt.args...))
		})
	}
}

func TestNilTranslator(t *testing.T) {
	var tr *Translator
	assert.Equal(t, "ok_button_label", tr.T(OKButton))
}

func TestFormatMissingArgument(t *testing.T) {
	assert.Equal(t, "a {1} {x}", Format("{0} {1} {x}", "a"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "translations.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ok_button_label": "Tamam"}`), 0o644))

	tr, err := LoadFile(path, Default())
	require.NoError(t, err)
	assert.Equal(t, "Tamam", tr.T(OKButton))
	assert.Equal(t, "Continue", tr.T(ContinueButton))

	_, err = LoadFile(filepath.Join(dir, "missing.json"), nil)
	assert.Error(t, err)
}
