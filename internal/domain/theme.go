package domain

// Base is the light/dark family a theme derives from.
type Base string

const (
	BaseDark  Base = "dark"
	BaseLight Base = "light"
)

// Theme is a named color-token map. Built-in themes ship with the binary;
// only imported themes are persisted.
type Theme struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Base       Base              `json:"base"`
	Colors     map[string]string `json:"colors"`
	ImportedAt int64             `json:"importedAt,omitempty"`
	Builtin    bool              `json:"builtin,omitempty"`
}
