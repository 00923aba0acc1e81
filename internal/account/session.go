// Package account mirrors the local user, its profile and its workspaces.
package account

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/vsdesk/internal/collections"
	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/observe"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/scheduler"
)

var (
	ErrNotInitialized    = errors.New("account session not initialized")
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrLastWorkspace     = errors.New("cannot delete the last workspace")
	ErrActiveWorkspace   = errors.New("cannot delete the active workspace")
	ErrInvalidName       = errors.New("workspace name is required")
)

// DefaultWorkspaceName names the workspace created on first launch.
const DefaultWorkspaceName = "Default"

// Snapshot is a copy of the session state.
type Snapshot struct {
	User       domain.User        `json:"user"`
	Profile    domain.Profile     `json:"profile"`
	Workspaces []domain.Workspace `json:"workspaces"`
}

// Active returns the active workspace.
func (s Snapshot) Active() domain.Workspace {
	for _, ws := range s.Workspaces {
		if ws.ID == s.User.ActiveWorkspaceID {
			return ws
		}
	}
	return domain.Workspace{}
}

// ProfileUpdate holds the profile fields to change. Nil fields are kept.
type ProfileUpdate struct {
	DisplayName *string `json:"displayName,omitempty"`
	AvatarURL   *string `json:"avatarUrl,omitempty"`
	Bio         *string `json:"bio,omitempty"`
}

// DeleteHook runs after a workspace was deleted.
type DeleteHook func(ctx context.Context, workspaceID string) error

type Options struct {
	WriteTimeout time.Duration
	Now          func() time.Time
}

// Session is the in-memory account state. Routine edits are persisted in
// the background; creating and deleting workspaces is written before the
// call returns.
type Session struct {
	accounts *collections.Set
	logger   logger.Logger
	queue    *scheduler.WriteQueue
	now      func() time.Time

	// op serializes operations from their checks through the write and the
	// in-memory update. It is taken before mu.
	op sync.Mutex

	mu         sync.Mutex
	ready      bool
	user       domain.User
	profile    domain.Profile
	workspaces []domain.Workspace
	lastErr    error
	onDelete   []DeleteHook

	notifier observe.Notifier[Snapshot]
}

func NewSession(accounts *collections.Set, log logger.Logger, opts Options) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Session{accounts: accounts, logger: log, now: now}
	s.queue = scheduler.NewWriteQueue("account", log, opts.WriteTimeout, func(_ string, err error) {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
	})
	return s
}

// Start runs the write queue.
func (s *Session) Start(ctx context.Context) { s.queue.Start(ctx) }

// Stop drains pending writes.
func (s *Session) Stop() { s.queue.Stop() }

// Flush waits for every write enqueued so far.
func (s *Session) Flush(ctx context.Context) error { return s.queue.Flush(ctx) }

// LastPersistError returns the last background write failure, or nil.
func (s *Session) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Subscribe registers fn for every state change. fn must not call back
// into the session.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return s.notifier.Subscribe(fn)
}

// OnWorkspaceDeleted registers a hook run by DeleteWorkspace.
func (s *Session) OnWorkspaceDeleted(fn DeleteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDelete = append(s.onDelete, fn)
}

// Init loads the account, creating user, profile and a default workspace
// in one transaction on first launch. A stored account whose active
// workspace no longer resolves is repaired.
func (s *Session) Init(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()
	return s.init(ctx)
}

func (s *Session) init(ctx context.Context) error {
	users, err := s.accounts.Users.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	if len(users) == 0 {
		return s.create(ctx)
	}
	return s.load(ctx, users[0])
}

func (s *Session) create(ctx context.Context) error {
	now := domain.Millis(s.now())
	userID := domain.NewID()
	ws := domain.Workspace{ID: domain.NewID(), UserID: userID, Name: DefaultWorkspaceName, CreatedAt: now, LastUsedAt: now}
	user := domain.User{ID: userID, ActiveWorkspaceID: ws.ID, CreatedAt: now}
	profile := domain.Profile{ID: userID, UpdatedAt: now}

	colls := []string{collections.UsersCollection, collections.ProfilesCollection, collections.WorkspacesCollection}
	err := s.accounts.Store.RunTransaction(ctx, colls, recordstore.ReadWrite, func(tx *recordstore.Txn) error {
		if err := tx.Put(collections.UsersCollection, user); err != nil {
			return err
		}
		if err := tx.Put(collections.ProfilesCollection, profile); err != nil {
			return err
		}
		return tx.Put(collections.WorkspacesCollection, ws)
	})
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	s.logger.Info("account created",
		logger.String("user_id", userID),
		logger.String("workspace_id", ws.ID))
	s.set(user, profile, []domain.Workspace{ws})
	return nil
}

func (s *Session) load(ctx context.Context, user domain.User) error {
	profile, err := s.accounts.Profiles.ForUser(ctx, user.ID)
	switch {
	case errors.Is(err, recordstore.ErrRecordNotFound):
		profile = domain.Profile{ID: user.ID, UpdatedAt: domain.Millis(s.now())}
		if err := s.accounts.Profiles.Put(ctx, profile); err != nil {
			return fmt.Errorf("repair profile: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load profile: %w", err)
	}

	workspaces, err := s.accounts.Workspaces.ForUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("load workspaces: %w", err)
	}
	if len(workspaces) == 0 {
		now := domain.Millis(s.now())
		ws := domain.Workspace{ID: domain.NewID(), UserID: user.ID, Name: DefaultWorkspaceName, CreatedAt: now, LastUsedAt: now}
		if err := s.accounts.Workspaces.Put(ctx, ws); err != nil {
			return fmt.Errorf("repair workspaces: %w", err)
		}
		workspaces = append(workspaces, ws)
	}
	sortWorkspaces(workspaces)

	if !slices.ContainsFunc(workspaces, func(ws domain.Workspace) bool { return ws.ID == user.ActiveWorkspaceID }) {
		latest := slices.MaxFunc(workspaces, func(a, b domain.Workspace) int { return cmp.Compare(a.LastUsedAt, b.LastUsedAt) })
		s.logger.Warn("active workspace did not resolve, switching",
			logger.String("stored", user.ActiveWorkspaceID),
			logger.String("workspace_id", latest.ID))
		user.ActiveWorkspaceID = latest.ID
		if err := s.accounts.Users.Put(ctx, user); err != nil {
			return fmt.Errorf("repair active workspace: %w", err)
		}
	}

	s.set(user, profile, workspaces)
	return nil
}

func (s *Session) set(user domain.User, profile domain.Profile, workspaces []domain.Workspace) {
	s.mu.Lock()
	s.user, s.profile, s.workspaces = user, profile, workspaces
	s.ready = true
	snap, seq := s.snapshot(), s.notifier.Stamp()
	s.mu.Unlock()
	s.notifier.PublishStamped(seq, snap)
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return Snapshot{}, ErrNotInitialized
	}
	return s.snapshot(), nil
}

// DefaultWorkspace returns the oldest workspace, which owns bookmarks stored
// before workspaces existed.
func (s *Session) DefaultWorkspace() (domain.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return domain.Workspace{}, ErrNotInitialized
	}
	return s.workspaces[0], nil
}

// SetActiveWorkspace switches the active workspace and stamps its use.
func (s *Session) SetActiveWorkspace(id string) error {
	return s.mutate("activate workspace", func() (func(context.Context) error, error) {
		i := s.indexOf(id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
		}
		s.user.ActiveWorkspaceID = id
		s.workspaces[i].LastUsedAt = domain.Millis(s.now())
		return s.putUserAndWorkspace(s.user, s.workspaces[i]), nil
	})
}

// CreateWorkspace stores a new workspace and makes it active.
func (s *Session) CreateWorkspace(ctx context.Context, name string) (domain.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Workspace{}, ErrInvalidName
	}
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if !ready {
		return domain.Workspace{}, ErrNotInitialized
	}
	if err := s.queue.Flush(ctx); err != nil {
		return domain.Workspace{}, err
	}

	s.mu.Lock()
	now := domain.Millis(s.now())
	ws := domain.Workspace{ID: domain.NewID(), UserID: s.user.ID, Name: name, CreatedAt: now, LastUsedAt: now}
	user := s.user
	user.ActiveWorkspaceID = ws.ID
	s.mu.Unlock()

	if err := s.putUserAndWorkspace(user, ws)(ctx); err != nil {
		return domain.Workspace{}, fmt.Errorf("create workspace: %w", err)
	}

	s.mu.Lock()
	s.workspaces = append(s.workspaces, ws)
	s.user.ActiveWorkspaceID = ws.ID
	snap, seq := s.snapshot(), s.notifier.Stamp()
	s.mu.Unlock()

	s.logger.Info("workspace created",
		logger.String("workspace_id", ws.ID),
		logger.String("name", name))
	s.notifier.PublishStamped(seq, snap)
	return ws, nil
}

// RenameWorkspace changes a workspace name.
func (s *Session) RenameWorkspace(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	return s.mutate("rename workspace", func() (func(context.Context) error, error) {
		i := s.indexOf(id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
		}
		s.workspaces[i].Name = name
		ws := s.workspaces[i]
		return func(ctx context.Context) error { return s.accounts.Workspaces.Put(ctx, ws) }, nil
	})
}

// DeleteWorkspace removes a workspace that is neither the last nor the
// active one, then runs the delete hooks.
func (s *Session) DeleteWorkspace(ctx context.Context, id string) error {
	hooks, err := s.deleteWorkspace(ctx, id)
	if err != nil {
		return err
	}

	var errs []error
	for _, hook := range hooks {
		if err := hook(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) deleteWorkspace(ctx context.Context, id string) ([]DeleteHook, error) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	switch {
	case s.indexOf(id) < 0:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
	case len(s.workspaces) == 1:
		s.mu.Unlock()
		return nil, ErrLastWorkspace
	case s.user.ActiveWorkspaceID == id:
		s.mu.Unlock()
		return nil, ErrActiveWorkspace
	}
	s.mu.Unlock()

	if err := s.queue.Flush(ctx); err != nil {
		return nil, err
	}
	if err := s.accounts.Workspaces.DeleteByKey(ctx, id); err != nil {
		return nil, fmt.Errorf("delete workspace: %w", err)
	}

	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 {
		s.workspaces = slices.Delete(s.workspaces, i, i+1)
	}
	hooks := slices.Clone(s.onDelete)
	snap, seq := s.snapshot(), s.notifier.Stamp()
	s.mu.Unlock()

	s.logger.Info("workspace deleted", logger.String("workspace_id", id))
	s.notifier.PublishStamped(seq, snap)
	return hooks, nil
}

// UpdateProfile applies the non-nil fields of u.
func (s *Session) UpdateProfile(u ProfileUpdate) error {
	return s.mutate("update profile", func() (func(context.Context) error, error) {
		if u.DisplayName != nil {
			s.profile.DisplayName = *u.DisplayName
		}
		if u.AvatarURL != nil {
			s.profile.AvatarURL = *u.AvatarURL
		}
		if u.Bio != nil {
			s.profile.Bio = *u.Bio
		}
		s.profile.UpdatedAt = domain.Millis(s.now())
		profile := s.profile
		return func(ctx context.Context) error { return s.accounts.Profiles.Put(ctx, profile) }, nil
	})
}

func (s *Session) CompleteOnboarding() error { return s.setOnboarding(true) }
func (s *Session) ResetOnboarding() error    { return s.setOnboarding(false) }

func (s *Session) setOnboarding(done bool) error {
	return s.mutate("onboarding", func() (func(context.Context) error, error) {
		s.user.OnboardingCompleted = done
		user := s.user
		return func(ctx context.Context) error { return s.accounts.Users.Put(ctx, user) }, nil
	})
}

// ActiveTheme returns the theme id of the active workspace, "" when unset
// or before Init.
func (s *Session) ActiveTheme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(s.user.ActiveWorkspaceID); i >= 0 {
		return s.workspaces[i].Theme
	}
	return ""
}

// SetWorkspaceTheme stores themeID on the active workspace.
func (s *Session) SetWorkspaceTheme(themeID string) error {
	return s.mutate("set theme", func() (func(context.Context) error, error) {
		i := s.indexOf(s.user.ActiveWorkspaceID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, s.user.ActiveWorkspaceID)
		}
		s.workspaces[i].Theme = themeID
		ws := s.workspaces[i]
		return func(ctx context.Context) error { return s.accounts.Workspaces.Put(ctx, ws) }, nil
	})
}

// Reload re-reads the account after the store was replaced by an import.
func (s *Session) Reload(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()
	if err := s.queue.Flush(ctx); err != nil {
		return err
	}
	return s.init(ctx)
}

// mutate applies fn under the lock, publishes the new state and queues the
// write fn returned.
func (s *Session) mutate(op string, fn func() (func(context.Context) error, error)) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	write, err := fn()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	snap, seq := s.snapshot(), s.notifier.Stamp()
	s.queue.Enqueue(op, write)
	s.mu.Unlock()

	s.notifier.PublishStamped(seq, snap)
	return nil
}

func (s *Session) putUserAndWorkspace(user domain.User, ws domain.Workspace) func(context.Context) error {
	return func(ctx context.Context) error {
		colls := []string{collections.UsersCollection, collections.WorkspacesCollection}
		return s.accounts.Store.RunTransaction(ctx, colls, recordstore.ReadWrite, func(tx *recordstore.Txn) error {
			if err := tx.Put(collections.WorkspacesCollection, ws); err != nil {
				return err
			}
			return tx.Put(collections.UsersCollection, user)
		})
	}
}

func (s *Session) indexOf(id string) int {
	return slices.IndexFunc(s.workspaces, func(ws domain.Workspace) bool { return ws.ID == id })
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{User: s.user, Profile: s.profile, Workspaces: slices.Clone(s.workspaces)}
}

// sortWorkspaces orders by creation, oldest first.
func sortWorkspaces(ws []domain.Workspace) {
	slices.SortStableFunc(ws, func(a, b domain.Workspace) int {
		if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
