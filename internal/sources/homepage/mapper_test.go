package homepage

import (
	"testing"
)

func TestMapperMapBookmarks(t *testing.T) {
	config := BookmarksConfig{
		{
			"Developer": []map[string][]BookmarkEntry{
				{"Github": {{Abbr: "GH", Href: "https://github.com/"}}},
				{"Empty": {}},
				{"No Href": {{Abbr: "NH"}}},
			},
		},
	}

	nodes := NewMapper().MapBookmarks(config)
	if len(nodes) != 1 {
		t.Fatalf("MapBookmarks() returned %d folders, want 1", len(nodes))
	}
	if len(nodes[0].Children) != 1 {
		t.Fatalf("MapBookmarks() kept %d links, want 1", len(nodes[0].Children))
	}
	if got := nodes[0].Children[0].ID; got != generateBookmarkID("https://github.com/") {
		t.Errorf("link ID = %v, want the URL hash", got)
	}
}

func TestMapperMapServicesEmptyConfig(t *testing.T) {
	nodes := NewMapper().MapServices(ServicesConfig{})
	if nodes != nil {
		t.Errorf("MapServices() with empty config should return nil, got %v", len(nodes))
	}
}

func TestMapperMapServicesInvalidURL(t *testing.T) {
	config := ServicesConfig{
		{
			"Test": []map[string]ServiceProps{
				{
					"Invalid Service": {
						Icon:        "test.svg",
						Href:        "not-a-valid-url",
						Description: "Invalid URL",
					},
				},
			},
		},
	}

	nodes := NewMapper().MapServices(config)
	if nodes != nil {
		t.Errorf("MapServices() should drop groups without valid services, got %v", len(nodes))
	}
}

func TestMapperMapServicesMultipleGroups(t *testing.T) {
	config := ServicesConfig{
		{
			"Group1": []map[string]ServiceProps{
				{
					"Service1": {
						Href: "https://service1.example.com",
					},
				},
			},
		},
		{
			"Group2": []map[string]ServiceProps{
				{
					"Service2": {
						Href: "https://service2.example.com",
					},
				},
			},
		},
	}

	nodes := NewMapper().MapServices(config)
	if len(nodes) != 2 {
		t.Fatalf("MapServices() returned %v folders, want 2", len(nodes))
	}
	if nodes[0].Label != "Group1" || nodes[1].Label != "Group2" {
		t.Errorf("groups out of order: %v, %v", nodes[0].Label, nodes[1].Label)
	}
}

func TestGenerateBookmarkIDStable(t *testing.T) {
	a := generateBookmarkID("https://example.com")
	b := generateBookmarkID("https://example.com")
	if a != b || len(a) != 16 {
		t.Errorf("generateBookmarkID() = %q, %q", a, b)
	}
}
