package homepage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"maps"
	"net/url"
	"slices"

	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/tree"
)

// ErrNoBookmarks is returned when a document holds no usable link.
var ErrNoBookmarks = errors.New("no valid bookmarks found in homepage config")

// Mapper converts Homepage configs to folders of links. Keys of a YAML
// mapping have no order of their own, so they are visited sorted.
type Mapper struct{}

// NewMapper creates a new mapper instance
func NewMapper() *Mapper {
	return &Mapper{}
}

// MapBookmarks turns every category into a folder holding its bookmarks
func (m *Mapper) MapBookmarks(config BookmarksConfig) []*tree.Node {
	var folders []*tree.Node
	for _, category := range config {
		for _, categoryName := range slices.Sorted(maps.Keys(category)) {
			folder := newFolder(categoryName)
			for _, bookmarkMap := range category[categoryName] {
				for _, bookmarkName := range slices.Sorted(maps.Keys(bookmarkMap)) {
					// Each bookmark has a list with a single entry
					entryList := bookmarkMap[bookmarkName]
					if len(entryList) == 0 {
						continue
					}
					entry := entryList[0]
					if !validHref(entry.Href) {
						continue
					}
					folder.Children = append(folder.Children, newLink(bookmarkName, entry.Href))
				}
			}
			if len(folder.Children) > 0 {
				folders = append(folders, folder)
			}
		}
	}
	return folders
}

// MapServices turns every service group into a folder of service links
func (m *Mapper) MapServices(config ServicesConfig) []*tree.Node {
	var folders []*tree.Node
	for _, groupMap := range config {
		for _, groupName := range slices.Sorted(maps.Keys(groupMap)) {
			folder := newFolder(groupName)
			for _, serviceMap := range groupMap[groupName] {
				for _, serviceName := range slices.Sorted(maps.Keys(serviceMap)) {
					props := serviceMap[serviceName]
					if !validHref(props.Href) {
						continue
					}
					folder.Children = append(folder.Children, newLink(serviceName, props.Href))
				}
			}
			if len(folder.Children) > 0 {
				folders = append(folders, folder)
			}
		}
	}
	return folders
}

// validHref skips empty, stripped or host-less URLs
func validHref(href string) bool {
	if href == "" {
		return false
	}
	u, err := url.Parse(href)
	return err == nil && u.Hostname() != ""
}

func newFolder(name string) *tree.Node {
	return &tree.Node{
		ID:       generateBookmarkID("folder:" + name),
		Label:    name,
		Kind:     domain.KindFolder,
		Children: []*tree.Node{},
	}
}

func newLink(name, href string) *tree.Node {
	return &tree.Node{
		ID:    generateBookmarkID(href),
		Label: name,
		Kind:  domain.KindLink,
		URL:   href,
	}
}

// generateBookmarkID creates a stable ID from a URL using SHA-256 hash
// This ensures that the same URL always produces the same ID,
// even if the label changes
func generateBookmarkID(key string) string {
	hash := sha256.Sum256([]byte(key))
	// Take first 16 characters of hex encoding (sufficient for uniqueness)
	return hex.EncodeToString(hash[:])[:16]
}
