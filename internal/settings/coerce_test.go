package settings

import (
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/tapline/internal/manifest"
)

func TestCoerce(t *testing.T) {
	t.Parallel()

	options := []manifest.SettingOption{{Label: "United States", Value: "US"}, {Label: "Europe", Value: "EU"}}

	tests := []struct {
		name    string
		setting manifest.Setting
		raw     any
		want    any
	}{
		{"string passthrough", manifest.Setting{}, "abc", "abc"},
		{"string from int", manifest.Setting{Kind: manifest.KindString}, 42, "42"},
		{"password", manifest.Setting{Kind: manifest.KindPassword}, "s3cret", "s3cret"},
		{"integer from string", manifest.Setting{Kind: manifest.KindInteger}, "250", 250},
		{"integer from float", manifest.Setting{Kind: manifest.KindInteger}, 250.0, 250},
		{"boolean from env", manifest.Setting{Kind: manifest.KindBoolean}, "on", true},
		{"boolean native", manifest.Setting{Kind: manifest.KindBoolean}, false, false},
		{"date", manifest.Setting{Kind: manifest.KindDate}, " 2024-01-01 ", "2024-01-01"},
		{"timestamp", manifest.Setting{Kind: manifest.KindDate}, "2024-01-01T10:00:00Z", "2024-01-01T10:00:00Z"},
		{"date from time", manifest.Setting{Kind: manifest.KindDate}, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "2024-03-01"},
		{"date from toml", manifest.Setting{Kind: manifest.KindDate}, toml.LocalDate{Year: 2024, Month: 3, Day: 1}, "2024-03-01"},
		{"option", manifest.Setting{Kind: manifest.KindOptions, Options: options}, "EU", "EU"},
		{"array from json", manifest.Setting{Kind: manifest.KindArray}, `["a", 1]`, []any{"a", float64(1)}},
		{"array native", manifest.Setting{Kind: manifest.KindArray}, []any{"a"}, []any{"a"}},
		{"object from json", manifest.Setting{Kind: manifest.KindObject}, `{"a": true}`, map[string]any{"a": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Coerce(&tt.setting, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceRejects(t *testing.T) {
	t.Parallel()

	options := []manifest.SettingOption{{Label: "United States", Value: "US"}}

	tests := []struct {
		name    string
		setting manifest.Setting
		raw     any
	}{
		{"integer", manifest.Setting{Kind: manifest.KindInteger}, "ten"},
		{"boolean", manifest.Setting{Kind: manifest.KindBoolean}, "perhaps"},
		{"boolean type", manifest.Setting{Kind: manifest.KindBoolean}, 1.5},
		{"date", manifest.Setting{Kind: manifest.KindDate}, "yesterday"},
		{"date type", manifest.Setting{Kind: manifest.KindDate}, 20240101},
		{"option", manifest.Setting{Kind: manifest.KindOptions, Options: options}, "EU"},
		{"array", manifest.Setting{Kind: manifest.KindArray}, `{"a": 1}`},
		{"object", manifest.Setting{Kind: manifest.KindObject}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Coerce(&tt.setting, tt.raw)
			assert.ErrorIs(t, err, ErrInvalidValue)
		})
	}
}
