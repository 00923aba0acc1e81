package homepage

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/vsdesk/internal/tree"
)

var templateVar = regexp.MustCompile(`\{\{[^}]+\}\}`)

// Loader reads a Homepage bookmarks.yaml or services.yaml file as a seed tree
type Loader struct {
	filePath string
}

// NewLoader creates a new Homepage loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the file
func (l *Loader) Load() ([]*tree.Node, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read homepage file: %w", err)
	}
	return Parse(data)
}

// Parse converts a Homepage bookmarks.yaml or services.yaml document into
// folders of links. Node ids are stable per URL and must be reassigned
// before the nodes are stored.
func Parse(data []byte) ([]*tree.Node, error) {
	// Strip Homepage template variables ({{HOMEPAGE_VAR_...}})
	data = stripTemplateVariables(data)

	var bookmarks BookmarksConfig
	bmErr := yaml.Unmarshal(data, &bookmarks)
	if bmErr == nil {
		if nodes := NewMapper().MapBookmarks(bookmarks); len(nodes) > 0 {
			return nodes, nil
		}
	}

	var services ServicesConfig
	svcErr := yaml.Unmarshal(data, &services)
	if svcErr == nil {
		if nodes := NewMapper().MapServices(services); len(nodes) > 0 {
			return nodes, nil
		}
	}

	if bmErr != nil && svcErr != nil {
		return nil, fmt.Errorf("failed to parse homepage yaml: %w", errors.Join(bmErr, svcErr))
	}
	return nil, ErrNoBookmarks
}

// stripTemplateVariables removes Homepage template variables from YAML
// Example: {{HOMEPAGE_VAR_ADGUARD_USER}} -> ""
func stripTemplateVariables(data []byte) []byte {
	return templateVar.ReplaceAll(data, []byte(`""`))
}
