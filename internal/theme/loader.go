package theme

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/MrSnakeDoc/vsdesk/internal/domain"
)

// ErrInvalidThemeFormat is returned for documents without a non-empty
// colors object.
var ErrInvalidThemeFormat = errors.New("invalid theme format")

// DefaultThemeID is the fallback when the active theme is unknown or deleted.
const DefaultThemeID = "dark-plus"

//go:embed builtin/*.json
var builtinFS embed.FS

// builtinIDs fixes the listing order of built-in themes.
var builtinIDs = []string{"dark-plus", "light-plus", "monokai"}

// document is the subset of a VS Code color theme that is kept.
type document struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Colors map[string]any `json:"colors"`
}

// parse reads a theme document. Comments and trailing commas are accepted.
func parse(data []byte) (domain.Theme, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return domain.Theme{}, fmt.Errorf("%w: %w", ErrInvalidThemeFormat, err)
	}
	var doc document
	if err := json.Unmarshal(std, &doc); err != nil {
		return domain.Theme{}, fmt.Errorf("%w: %w", ErrInvalidThemeFormat, err)
	}

	colors := make(map[string]string, len(doc.Colors))
	for token, v := range doc.Colors {
		if s, ok := v.(string); ok && s != "" {
			colors[token] = s
		}
	}
	if len(colors) == 0 {
		return domain.Theme{}, fmt.Errorf("%w: colors must map tokens to color strings", ErrInvalidThemeFormat)
	}
	return domain.Theme{Name: strings.TrimSpace(doc.Name), Base: resolveBase(doc.Type), Colors: colors}, nil
}

func resolveBase(kind string) domain.Base {
	switch kind {
	case "light", "hc-light", "vs":
		return domain.BaseLight
	default:
		return domain.BaseDark
	}
}

func loadBuiltins() ([]domain.Theme, error) {
	out := make([]domain.Theme, 0, len(builtinIDs))
	for _, id := range builtinIDs {
		data, err := builtinFS.ReadFile("builtin/" + id + ".json")
		if err != nil {
			return nil, err
		}
		t, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("builtin theme %s: %w", id, err)
		}
		t.ID = id
		t.Builtin = true
		if t.Name == "" {
			t.Name = id
		}
		out = append(out, t)
	}
	return out, nil
}

func clone(t domain.Theme) domain.Theme {
	t.Colors = maps.Clone(t.Colors)
	return t
}
