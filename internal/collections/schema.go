// Package collections holds one typed accessor per persisted entity kind.
package collections

import "github.com/MrSnakeDoc/vsdesk/internal/recordstore"

// Collection names.
const (
	BookmarksCollection  = "bookmarks"
	UsersCollection      = "users"
	ProfilesCollection   = "profiles"
	WorkspacesCollection = "workspaces"
	ThemesCollection     = "themes"
)

// Index names.
const (
	ParentIndex = "parentId"
	ScopeIndex  = "scope"
	UserIndex   = "userId"
)

// All lists every collection, e.g. for a transaction over the whole store.
var All = []string{BookmarksCollection, UsersCollection, ProfilesCollection, WorkspacesCollection, ThemesCollection}

// Migrations is the schema history. Steps are only ever appended.
var Migrations = []recordstore.Migration{
	{
		Version: 1,
		Name:    "initial collections",
		Apply: func(tx recordstore.EngineTx) error {
			for _, name := range All {
				if err := recordstore.EnsureCollection(tx, name); err != nil {
					return err
				}
			}
			if err := recordstore.EnsureIndex(tx, BookmarksCollection, recordstore.Index{Name: ParentIndex, Field: "parentId"}); err != nil {
				return err
			}
			return recordstore.EnsureIndex(tx, WorkspacesCollection, recordstore.Index{Name: UserIndex, Field: "userId"})
		},
	},
	{
		// rows written before this step gain their entry on the first
		// Bookmarks.ForScope call
		Version: 2,
		Name:    "bookmarks by scope",
		Apply: func(tx recordstore.EngineTx) error {
			return recordstore.EnsureIndex(tx, BookmarksCollection, recordstore.Index{Name: ScopeIndex, Field: "scope"})
		},
	},
}
