package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tells the two bookmark variants apart.
type Kind string

const (
	KindFolder Kind = "folder"
	KindLink   Kind = "link"
)

// ErrUnknownKind is returned when a record carries neither kind.
var ErrUnknownKind = errors.New("unknown bookmark kind")

// Bookmark is one node of the bookmark hierarchy, persisted as a flat record.
// It is either a *Folder or a *Link.
type Bookmark interface {
	Meta() *Header
	Kind() Kind
	Clone() Bookmark
	sealed()
}

// Header holds what folders and links share.
type Header struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is the record key, unique across every scope.
	ID string

	// ─────────────────────────────
	// Placement
	// ─────────────────────────────

	// ParentID is the containing folder, or "" for the root level.
	// Persisted as null at the root.
	ParentID string

	// SortOrder orders siblings ascending. Gaps are allowed; ties keep
	// insertion order.
	SortOrder int

	// Scope is the owning workspace. Records written before workspaces
	// existed have no scope until they are claimed.
	Scope string

	// ─────────────────────────────
	// Presentation
	// ─────────────────────────────

	// Label is the display name.
	Label string
}

func (h *Header) Meta() *Header { return h }

// Folder groups other bookmarks.
type Folder struct {
	Header

	// Collapsed is purely presentational.
	Collapsed bool
}

func (f *Folder) Kind() Kind { return KindFolder }
func (f *Folder) Clone() Bookmark {
	c := *f
	return &c
}
func (f *Folder) sealed() {}

// Link points at an external URL.
type Link struct {
	Header

	// URL is the navigation target.
	URL string
}

func (l *Link) Kind() Kind { return KindLink }
func (l *Link) Clone() Bookmark {
	c := *l
	return &c
}
func (l *Link) sealed() {}

// NewBookmark builds an empty variant of kind.
func NewBookmark(kind Kind, h Header) (Bookmark, error) {
	switch kind {
	case KindFolder:
		return &Folder{Header: h}, nil
	case KindLink:
		return &Link{Header: h}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// bookmarkJSON is the persisted and exported shape. type and workspaceId
// are only read, for records written by earlier releases.
type bookmarkJSON struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Kind      Kind    `json:"kind"`
	URL       string  `json:"url,omitempty"`
	ParentID  *string `json:"parentId"`
	SortOrder int     `json:"sortOrder"`
	Collapsed *bool   `json:"collapsed,omitempty"`
	Scope     string  `json:"scope,omitempty"`

	Type        Kind   `json:"type,omitempty"`
	WorkspaceID string `json:"workspaceId,omitempty"`
}

func encodeBookmark(b Bookmark) ([]byte, error) {
	h := b.Meta()
	out := bookmarkJSON{
		ID:        h.ID,
		Label:     h.Label,
		Kind:      b.Kind(),
		SortOrder: h.SortOrder,
		Scope:     h.Scope,
	}
	if h.ParentID != "" {
		p := h.ParentID
		out.ParentID = &p
	}
	switch v := b.(type) {
	case *Folder:
		c := v.Collapsed
		out.Collapsed = &c
	case *Link:
		out.URL = v.URL
	}
	return json.Marshal(out)
}

func (f *Folder) MarshalJSON() ([]byte, error) { return encodeBookmark(f) }
func (l *Link) MarshalJSON() ([]byte, error)   { return encodeBookmark(l) }

// DecodeBookmark parses one persisted bookmark record.
func DecodeBookmark(data []byte) (Bookmark, error) {
	var in bookmarkJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	kind := in.Kind
	if kind == "" {
		kind = in.Type
	}
	h := Header{ID: in.ID, Label: in.Label, SortOrder: in.SortOrder, Scope: in.Scope}
	if h.Scope == "" {
		h.Scope = in.WorkspaceID
	}
	if in.ParentID != nil {
		h.ParentID = *in.ParentID
	}

	b, err := NewBookmark(kind, h)
	if err != nil {
		return nil, fmt.Errorf("bookmark %s: %w", in.ID, err)
	}
	switch v := b.(type) {
	case *Folder:
		v.Collapsed = in.Collapsed != nil && *in.Collapsed
	case *Link:
		v.URL = in.URL
	}
	return b, nil
}

// BookmarkRecord adapts the Bookmark interface to JSON encoding, e.g. in
// slices of an export document.
type BookmarkRecord struct {
	Bookmark
}

func (r BookmarkRecord) MarshalJSON() ([]byte, error) {
	if r.Bookmark == nil {
		return []byte("null"), nil
	}
	return encodeBookmark(r.Bookmark)
}

func (r *BookmarkRecord) UnmarshalJSON(data []byte) error {
	b, err := DecodeBookmark(data)
	if err != nil {
		return err
	}
	r.Bookmark = b
	return nil
}

// Records wraps bookmarks for encoding.
func Records(bs []Bookmark) []BookmarkRecord {
	out := make([]BookmarkRecord, len(bs))
	for i, b := range bs {
		out[i] = BookmarkRecord{b}
	}
	return out
}

// Unwrap returns the bookmarks held by records.
func Unwrap(rs []BookmarkRecord) []Bookmark {
	out := make([]Bookmark, 0, len(rs))
	for _, r := range rs {
		if r.Bookmark != nil {
			out = append(out, r.Bookmark)
		}
	}
	return out
}
