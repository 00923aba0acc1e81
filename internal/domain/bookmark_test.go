package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeBookmark(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		kind      Kind
		parent    string
		scope     string
		collapsed bool
		url       string
	}{
		{
			name:      "folder at root",
			input:     `{"id":"f1","label":"Work","kind":"folder","parentId":null,"sortOrder":2,"collapsed":true,"scope":"w1"}`,
			kind:      KindFolder,
			scope:     "w1",
			collapsed: true,
		},
		{
			name:   "link in folder",
			input:  `{"id":"l1","label":"Docs","kind":"link","url":"https://docs.example","parentId":"f1","sortOrder":0,"scope":"w1"}`,
			kind:   KindLink,
			parent: "f1",
			scope:  "w1",
			url:    "https://docs.example",
		},
		{
			name:  "legacy type and workspaceId",
			input: `{"id":"l2","label":"Old","type":"link","url":"https://old.example","workspaceId":"w7"}`,
			kind:  KindLink,
			scope: "w7",
			url:   "https://old.example",
		},
		{
			name:  "legacy record without scope",
			input: `{"id":"f2","label":"Old","type":"folder","parentId":null,"sortOrder":0}`,
			kind:  KindFolder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := DecodeBookmark([]byte(tt.input))
			if err != nil {
				t.Fatalf("DecodeBookmark() error = %v", err)
			}
			if b.Kind() != tt.kind {
				t.Errorf("Kind() = %v, want %v", b.Kind(), tt.kind)
			}
			h := b.Meta()
			if h.ParentID != tt.parent {
				t.Errorf("ParentID = %q, want %q", h.ParentID, tt.parent)
			}
			if h.Scope != tt.scope {
				t.Errorf("Scope = %q, want %q", h.Scope, tt.scope)
			}
			switch v := b.(type) {
			case *Folder:
				if v.Collapsed != tt.collapsed {
					t.Errorf("Collapsed = %v, want %v", v.Collapsed, tt.collapsed)
				}
			case *Link:
				if v.URL != tt.url {
					t.Errorf("URL = %q, want %q", v.URL, tt.url)
				}
			}
		})
	}
}

func TestDecodeBookmarkUnknownKind(t *testing.T) {
	_, err := DecodeBookmark([]byte(`{"id":"x","label":"?","kind":"separator"}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("error = %v, want ErrUnknownKind", err)
	}
	if !strings.Contains(err.Error(), "bookmark x") {
		t.Errorf("error %q should name the record", err)
	}
}

func TestEncodeBookmark(t *testing.T) {
	tests := []struct {
		name string
		in   Bookmark
		want string
	}{
		{
			name: "root folder writes null parent and collapsed",
			in:   &Folder{Header: Header{ID: "f1", Label: "Work", Scope: "w1"}},
			want: `{"id":"f1","label":"Work","kind":"folder","parentId":null,"sortOrder":0,"collapsed":false,"scope":"w1"}`,
		},
		{
			name: "link omits collapsed",
			in:   &Link{Header: Header{ID: "l1", ParentID: "f1", SortOrder: 3, Label: "Docs", Scope: "w1"}, URL: "https://docs.example"},
			want: `{"id":"l1","label":"Docs","kind":"link","url":"https://docs.example","parentId":"f1","sortOrder":3,"scope":"w1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(BookmarkRecord{tt.in})
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := &Link{Header: Header{ID: "l1", Label: "A"}, URL: "https://a.example"}
	c := orig.Clone().(*Link)
	c.Label = "B"
	c.URL = "https://b.example"
	if orig.Label != "A" || orig.URL != "https://a.example" {
		t.Errorf("Clone shares state with original: %+v", orig)
	}
}
