package collections

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
)

// Users is the accessor over the users collection.
type Users struct {
	collection[domain.User]
}

func NewUsers(store *recordstore.Store) *Users {
	return &Users{collection[domain.User]{store: store, name: UsersCollection}}
}

// Exists reports whether a user record is stored under id.
func (u *Users) Exists(ctx context.Context, id string) (bool, error) {
	_, err := u.Get(ctx, id)
	if errors.Is(err, recordstore.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Profiles is the accessor over the profiles collection.
type Profiles struct {
	collection[domain.Profile]
}

func NewProfiles(store *recordstore.Store) *Profiles {
	return &Profiles{collection[domain.Profile]{store: store, name: ProfilesCollection}}
}

// ForUser returns the profile of userID. Profiles share their user's id.
func (p *Profiles) ForUser(ctx context.Context, userID string) (domain.Profile, error) {
	return p.Get(ctx, userID)
}

// Workspaces is the accessor over the workspaces collection.
type Workspaces struct {
	collection[domain.Workspace]
}

func NewWorkspaces(store *recordstore.Store) *Workspaces {
	return &Workspaces{collection[domain.Workspace]{store: store, name: WorkspacesCollection}}
}

// ForUser returns the workspaces owned by userID, ordered by id.
func (w *Workspaces) ForUser(ctx context.Context, userID string) ([]domain.Workspace, error) {
	return w.byIndex(ctx, UserIndex, userID)
}

// Themes is the accessor over imported themes.
type Themes struct {
	collection[domain.Theme]
}

func NewThemes(store *recordstore.Store) *Themes {
	return &Themes{collection[domain.Theme]{store: store, name: ThemesCollection}}
}

// Set bundles the accessors of one store.
type Set struct {
	Store      *recordstore.Store
	Bookmarks  *Bookmarks
	Users      *Users
	Profiles   *Profiles
	Workspaces *Workspaces
	Themes     *Themes
}

func New(store *recordstore.Store) *Set {
	return &Set{
		Store:      store,
		Bookmarks:  NewBookmarks(store),
		Users:      NewUsers(store),
		Profiles:   NewProfiles(store),
		Workspaces: NewWorkspaces(store),
		Themes:     NewThemes(store),
	}
}
