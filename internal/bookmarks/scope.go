package bookmarks

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/observe"
	"github.com/MrSnakeDoc/vsdesk/internal/tree"
)

var (
	// ErrInvalidMove is returned when the target is not a folder of the
	// scope or lies inside the moved subtree.
	ErrInvalidMove = errors.New("invalid move")

	// ErrInvalidItem is returned for bookmarks that cannot be created.
	ErrInvalidItem = errors.New("invalid bookmark")
)

// ValidateNew checks user input for a new bookmark.
func ValidateNew(label string, kind domain.Kind, rawURL string) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("%w: label is required", ErrInvalidItem)
	}
	switch kind {
	case domain.KindFolder:
		return nil
	case domain.KindLink:
		u, err := url.Parse(rawURL)
		if err != nil || u.Scheme == "" || (u.Host == "" && u.Opaque == "") {
			return fmt.Errorf("%w: link needs an absolute url", ErrInvalidItem)
		}
		return nil
	default:
		return fmt.Errorf("%w: %w", ErrInvalidItem, domain.ErrUnknownKind)
	}
}

// Scope is the live bookmark state of one workspace. The in-memory view is
// authoritative: mutations apply immediately and are persisted afterwards
// in call order.
type Scope struct {
	id string
	m  *Manager

	mu      sync.Mutex
	records []domain.Bookmark
	nodes   []*tree.Node
	lastErr error

	notifier observe.Notifier[[]*tree.Node]
}

// ID returns the workspace id.
func (s *Scope) ID() string { return s.id }

// Tree returns a copy of the materialized view.
func (s *Scope) Tree() []*tree.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tree.Clone(s.nodes)
}

// Records returns a copy of the flat records.
func (s *Scope) Records() []domain.Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.records)
}

// Subscribe registers fn for every new view.
func (s *Scope) Subscribe(fn func([]*tree.Node)) (unsubscribe func()) {
	return s.notifier.Subscribe(fn)
}

// LastPersistError returns the error of the most recent background write,
// nil when it succeeded.
func (s *Scope) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// AddItem appends a bookmark as the last child of parentID ("" for the
// root level) and returns its id.
func (s *Scope) AddItem(parentID, label string, kind domain.Kind, rawURL string) (string, error) {
	s.mu.Lock()
	if parentID != "" && !s.isFolder(parentID) {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: parent %s is not a folder of this workspace", ErrInvalidItem, parentID)
	}
	bm, err := domain.NewBookmark(kind, domain.Header{
		ID:        domain.NewID(),
		ParentID:  parentID,
		SortOrder: s.nextOrder(parentID),
		Scope:     s.id,
		Label:     label,
	})
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}
	if l, ok := bm.(*domain.Link); ok {
		l.URL = rawURL
	}
	s.records = append(s.records, bm)
	view, seq := s.rebuild()
	s.persist("add", []domain.Bookmark{bm})
	s.mu.Unlock()

	s.notifier.PublishStamped(seq, view)
	return bm.Meta().ID, nil
}

// EditItem relabels a bookmark. rawURL only applies to links and is ignored
// when empty. Unknown ids are ignored.
func (s *Scope) EditItem(id, label, rawURL string) {
	s.mu.Lock()
	bm := s.find(id)
	if bm == nil {
		s.mu.Unlock()
		return
	}
	if label != "" {
		bm.Meta().Label = label
	}
	if l, ok := bm.(*domain.Link); ok && rawURL != "" {
		l.URL = rawURL
	}
	view, seq := s.rebuild()
	s.persist("edit", []domain.Bookmark{bm})
	s.mu.Unlock()

	s.notifier.PublishStamped(seq, view)
}

// RemoveItem deletes a bookmark and, for folders, everything below it.
// Remaining siblings keep their sort order.
func (s *Scope) RemoveItem(id string) {
	s.mu.Lock()
	if s.find(id) == nil {
		s.mu.Unlock()
		return
	}
	ids := append([]string{id}, tree.CollectDescendantIDs(s.records, id)...)
	s.records = slices.DeleteFunc(s.records, func(bm domain.Bookmark) bool {
		return slices.Contains(ids, bm.Meta().ID)
	})
	view, seq := s.rebuild()
	s.enqueue("remove", func(ctx context.Context) error {
		return s.m.store.DeleteMany(ctx, ids)
	})
	s.mu.Unlock()

	s.notifier.PublishStamped(seq, view)
}

// ToggleCollapse flips the collapsed flag of a folder. Links and unknown ids
// are ignored.
func (s *Scope) ToggleCollapse(id string) {
	s.mu.Lock()
	f, ok := s.find(id).(*domain.Folder)
	if !ok {
		s.mu.Unlock()
		return
	}
	f.Collapsed = !f.Collapsed
	view, seq := s.rebuild()
	s.persist("toggle", []domain.Bookmark{f})
	s.mu.Unlock()

	s.notifier.PublishStamped(seq, view)
}

// MoveItem places id at position index among the children of newParentID
// ("" for the root level). The source and target sibling groups are
// renumbered from zero.
func (s *Scope) MoveItem(id, newParentID string, index int) error {
	s.mu.Lock()
	bm := s.find(id)
	if bm == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s not found", ErrInvalidMove, id)
	}
	if newParentID != "" {
		if newParentID == id || !s.isFolder(newParentID) ||
			slices.Contains(tree.CollectDescendantIDs(s.records, id), newParentID) {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s cannot hold %s", ErrInvalidMove, newParentID, id)
		}
	}

	oldParentID := bm.Meta().ParentID
	target := s.siblings(newParentID, id)
	index = min(max(index, 0), len(target))
	target = slices.Insert(target, index, bm)
	bm.Meta().ParentID = newParentID

	changed := renumber(target)
	if oldParentID != newParentID {
		changed = append(changed, renumber(s.siblings(oldParentID, id))...)
	}
	view, seq := s.rebuild()
	s.persist("move", changed)
	s.mu.Unlock()

	s.notifier.PublishStamped(seq, view)
	return nil
}

// ImportTree appends nodes at the root level under fresh ids and returns
// how many bookmarks were added.
func (s *Scope) ImportTree(nodes []*tree.Node) int {
	if len(nodes) == 0 {
		return 0
	}
	s.mu.Lock()
	offset := s.nextOrder("")
	added := tree.Flatten(tree.Reassign(nodes, domain.NewID), s.id)
	for _, bm := range added {
		if bm.Meta().ParentID == "" {
			bm.Meta().SortOrder += offset
		}
	}
	s.records = append(s.records, added...)
	view, seq := s.rebuild()
	s.persist("import", added)
	s.mu.Unlock()

	s.notifier.PublishStamped(seq, view)
	return len(added)
}

func (s *Scope) replace(records []domain.Bookmark) {
	s.mu.Lock()
	s.records = records
	view, seq := s.rebuild()
	s.mu.Unlock()

	s.notifier.PublishStamped(seq, view)
}

// rebuild re-materializes the view and returns a copy for subscribers with
// its publish stamp. Callers hold s.mu.
func (s *Scope) rebuild() ([]*tree.Node, uint64) {
	s.nodes = tree.Build(s.records)
	return tree.Clone(s.nodes), s.notifier.Stamp()
}

func (s *Scope) find(id string) domain.Bookmark {
	for _, bm := range s.records {
		if bm.Meta().ID == id {
			return bm
		}
	}
	return nil
}

func (s *Scope) isFolder(id string) bool {
	_, ok := s.find(id).(*domain.Folder)
	return ok
}

// siblings returns the children of parentID in display order, without
// exclude.
func (s *Scope) siblings(parentID, exclude string) []domain.Bookmark {
	var out []domain.Bookmark
	for _, bm := range s.records {
		h := bm.Meta()
		if h.ParentID == parentID && h.ID != exclude {
			out = append(out, bm)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Bookmark) int {
		return cmp.Compare(a.Meta().SortOrder, b.Meta().SortOrder)
	})
	return out
}

// nextOrder returns a sort order after every current child of parentID.
// Removals leave gaps, so the sibling count could collide with a survivor.
func (s *Scope) nextOrder(parentID string) int {
	next := 0
	for _, bm := range s.records {
		if h := bm.Meta(); h.ParentID == parentID && h.SortOrder >= next {
			next = h.SortOrder + 1
		}
	}
	return next
}

// renumber sets contiguous sort orders and returns the records it touched.
func renumber(group []domain.Bookmark) []domain.Bookmark {
	for i, bm := range group {
		bm.Meta().SortOrder = i
	}
	return group
}

// persist queues a write of copies of records.
func (s *Scope) persist(op string, records []domain.Bookmark) {
	snapshot := cloneAll(records)
	s.enqueue(op, func(ctx context.Context) error {
		return s.m.store.PutMany(ctx, snapshot)
	})
}

func (s *Scope) enqueue(op string, fn func(ctx context.Context) error) {
	s.m.queue.Enqueue(op, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil {
			err = fmt.Errorf("scope %s: %w", s.id, err)
		}
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return err
	})
}

func cloneAll(records []domain.Bookmark) []domain.Bookmark {
	out := make([]domain.Bookmark, len(records))
	for i, bm := range records {
		out[i] = bm.Clone()
	}
	return out
}
