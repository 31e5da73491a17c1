// Package categories owns the user's transaction categories and the map
// from transaction identity to category id.
package categories

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"konto/internal/core"
	"konto/internal/log"
	"konto/internal/storage"
)

// NewCategory is the input for creating a category.
type NewCategory struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CategoryUpdate is a partial update; nil fields stay unchanged.
type CategoryUpdate struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// snapshot is never mutated once published.
type snapshot struct {
	categories  []core.Category
	assignments map[string]string
}

func (s *snapshot) index(id string) int {
	return slices.IndexFunc(s.categories, func(c core.Category) bool { return c.ID == id })
}

// Registry holds the category list and the assignment map.
//
// Every mutation builds the next snapshot from the current one, writes it
// to the store and then publishes it. Concurrent mutations are not
// serialized: the last one to publish wins for the whole map.
//
// A shared registry rereads the store before each mutation, so writes
// committed by another process sharing the store are carried forward.
type Registry struct {
	store  storage.Store
	logger *log.Logger
	now    func() time.Time
	shared bool
	state  atomic.Pointer[snapshot]
}

// NewRegistry returns an empty registry. Call Load to read persisted state.
func NewRegistry(store storage.Store, logger *log.Logger) *Registry {
	r := &Registry{
		store:  store,
		logger: log.OrDefault(logger, log.ComponentCategories),
		now:    time.Now,
	}
	r.state.Store(&snapshot{assignments: map[string]string{}})
	return r
}

// SetShared marks the store as written by other processes too.
func (r *Registry) SetShared(shared bool) {
	r.shared = shared
}

// Load replaces the in-memory state with the persisted one. Assignments
// pointing at categories that no longer exist are dropped.
func (r *Registry) Load(ctx context.Context) error {
	next, err := r.read(ctx)
	if err != nil {
		return err
	}
	r.state.Store(next)
	r.logger.InfoContext(ctx, "Categories loaded",
		log.FieldCount, len(next.categories),
		"assignments", len(next.assignments))
	return nil
}

func (r *Registry) read(ctx context.Context) (*snapshot, error) {
	cats, _, err := storage.GetJSON[[]core.Category](ctx, r.store, storage.KeyCategories)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	assignments, _, err := storage.GetJSON[map[string]string](ctx, r.store, storage.KeyCategoryMap)
	if err != nil {
		return nil, fmt.Errorf("load category map: %w", err)
	}

	next := &snapshot{categories: cats, assignments: make(map[string]string, len(assignments))}
	for tx, id := range assignments {
		if next.index(id) >= 0 {
			next.assignments[tx] = id
		}
	}
	return next, nil
}

// current returns the snapshot a mutation starts from. A shared registry
// refuses to mutate when the store cannot be read.
func (r *Registry) current(ctx context.Context) (*snapshot, error) {
	if !r.shared {
		return r.state.Load(), nil
	}
	next, err := r.read(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to reread categories before write", log.FieldError, err)
		return nil, err
	}
	r.state.Store(next)
	return next, nil
}

// Categories returns the categories in display order.
func (r *Registry) Categories() []core.Category {
	return slices.Clone(r.state.Load().categories)
}

// Assignments returns a copy of the transaction to category map.
func (r *Registry) Assignments() map[string]string {
	return maps.Clone(r.state.Load().assignments)
}

// Get returns the category with id.
func (r *Registry) Get(id string) (core.Category, bool) {
	s := r.state.Load()
	if i := s.index(id); i >= 0 {
		return s.categories[i], true
	}
	return core.Category{}, false
}

// FindByName matches name case-insensitively against existing categories.
func (r *Registry) FindByName(name string) (core.Category, bool) {
	name = strings.TrimSpace(name)
	for _, c := range r.state.Load().categories {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return core.Category{}, false
}

// Resolve returns the category assigned to a transaction identity.
func (r *Registry) Resolve(txID string) (core.Category, bool) {
	s := r.state.Load()
	id, ok := s.assignments[txID]
	if !ok {
		return core.Category{}, false
	}
	if i := s.index(id); i >= 0 {
		return s.categories[i], true
	}
	return core.Category{}, false
}

// Create appends a new category. An empty color picks one from the palette.
func (r *Registry) Create(ctx context.Context, name, color string) (core.Category, error) {
	name, err := core.NormalizeCategoryName(name)
	if err != nil {
		return core.Category{}, err
	}
	if color == "" {
		color = core.RandomCategoryColor()
	}

	cur, err := r.current(ctx)
	if err != nil {
		return core.Category{}, err
	}
	c := core.Category{ID: core.NewCategoryID(r.now()), Name: name, Color: color}
	for cur.index(c.ID) >= 0 {
		c.ID = core.NewCategoryID(r.now())
	}

	next := &snapshot{
		categories:  append(slices.Clone(cur.categories), c),
		assignments: cur.assignments,
	}
	if err := r.saveCategories(ctx, next.categories); err != nil {
		return core.Category{}, err
	}
	r.state.Store(next)
	r.logger.InfoContext(ctx, "Category created", log.FieldCategoryID, c.ID, "name", c.Name)
	return c, nil
}

// BulkCreate appends all entries in one transition. Names are not
// deduplicated; every entry gets its own id.
func (r *Registry) BulkCreate(ctx context.Context, entries []NewCategory) ([]core.Category, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	cur, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(cur.categories)+len(entries))
	for _, c := range cur.categories {
		taken[c.ID] = true
	}

	now := r.now()
	created := make([]core.Category, 0, len(entries))
	for _, e := range entries {
		name, err := core.NormalizeCategoryName(e.Name)
		if err != nil {
			return nil, err
		}
		color := e.Color
		if color == "" {
			color = core.RandomCategoryColor()
		}
		id := core.NewBulkCategoryID(now)
		for taken[id] {
			id = core.NewBulkCategoryID(now)
		}
		taken[id] = true
		created = append(created, core.Category{ID: id, Name: name, Color: color})
	}

	next := &snapshot{
		categories:  append(slices.Clone(cur.categories), created...),
		assignments: cur.assignments,
	}
	if err := r.saveCategories(ctx, next.categories); err != nil {
		return nil, err
	}
	r.state.Store(next)
	r.logger.InfoContext(ctx, "Categories created", log.FieldCount, len(created))
	return slices.Clone(created), nil
}

// Update renames or recolors a category. Unknown ids are ignored and
// reported with ok=false.
func (r *Registry) Update(ctx context.Context, id string, u CategoryUpdate) (core.Category, bool, error) {
	cur, err := r.current(ctx)
	if err != nil {
		return core.Category{}, false, err
	}
	i := cur.index(id)
	if i < 0 {
		return core.Category{}, false, nil
	}

	c := cur.categories[i]
	if u.Name != nil {
		name, err := core.NormalizeCategoryName(*u.Name)
		if err != nil {
			return core.Category{}, true, err
		}
		c.Name = name
	}
	if u.Color != nil {
		c.Color = *u.Color
	}

	cats := slices.Clone(cur.categories)
	cats[i] = c
	if err := r.saveCategories(ctx, cats); err != nil {
		return core.Category{}, true, err
	}
	r.state.Store(&snapshot{categories: cats, assignments: cur.assignments})
	return c, true, nil
}

// Delete removes a category together with every assignment pointing at it.
func (r *Registry) Delete(ctx context.Context, id string) error {
	cur, err := r.current(ctx)
	if err != nil {
		return err
	}
	cats := slices.DeleteFunc(slices.Clone(cur.categories), func(c core.Category) bool { return c.ID == id })

	assignments := maps.Clone(cur.assignments)
	maps.DeleteFunc(assignments, func(_, v string) bool { return v == id })

	if len(cats) == len(cur.categories) && len(assignments) == len(cur.assignments) {
		return nil
	}

	if err := r.saveCategories(ctx, cats); err != nil {
		return err
	}
	// The category list is committed from here on. Stored assignments that
	// still point at it are pruned on the next Load.
	r.state.Store(&snapshot{categories: cats, assignments: assignments})
	if err := r.saveAssignments(ctx, assignments); err != nil {
		r.logger.WarnContext(ctx, "Category deleted but assignment cleanup not persisted",
			log.FieldCategoryID, id, log.FieldError, err)
		return err
	}
	r.logger.InfoContext(ctx, "Category deleted",
		log.FieldCategoryID, id,
		"removed_assignments", len(cur.assignments)-len(assignments))
	return nil
}

// Assign maps txID to categoryID. An empty categoryID removes the mapping.
func (r *Registry) Assign(ctx context.Context, txID, categoryID string) error {
	_, err := r.BulkAssign(ctx, map[string]string{txID: categoryID})
	return err
}

// BulkAssign applies all changes against one snapshot of the map and writes
// once. Empty values remove the mapping. Nothing is written when no entry
// changes anything. It returns the number of entries that changed.
func (r *Registry) BulkAssign(ctx context.Context, changes map[string]string) (int, error) {
	cur, err := r.current(ctx)
	if err != nil {
		return 0, err
	}
	next := maps.Clone(cur.assignments)
	if next == nil {
		next = map[string]string{}
	}

	changed := 0
	for txID, categoryID := range changes {
		if txID == "" {
			continue
		}
		old, had := next[txID]
		if categoryID == "" {
			if had {
				delete(next, txID)
				changed++
			}
			continue
		}
		if cur.index(categoryID) < 0 {
			return 0, fmt.Errorf("assign %q: %w: %s", txID, core.ErrUnknownCategory, categoryID)
		}
		if had && old == categoryID {
			continue
		}
		next[txID] = categoryID
		changed++
	}

	if changed == 0 {
		return 0, nil
	}
	if err := r.saveAssignments(ctx, next); err != nil {
		return 0, err
	}
	r.state.Store(&snapshot{categories: cur.categories, assignments: next})
	r.logger.DebugContext(ctx, "Assignments updated", log.FieldCount, changed)
	return changed, nil
}

func (r *Registry) saveCategories(ctx context.Context, cats []core.Category) error {
	if cats == nil {
		cats = []core.Category{}
	}
	if err := storage.SetJSON(ctx, r.store, storage.KeyCategories, cats); err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist categories", log.FieldError, err)
		return fmt.Errorf("save categories: %w", err)
	}
	return nil
}

func (r *Registry) saveAssignments(ctx context.Context, m map[string]string) error {
	if err := storage.SetJSON(ctx, r.store, storage.KeyCategoryMap, m); err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist category map", log.FieldError, err)
		return fmt.Errorf("save category map: %w", err)
	}
	return nil
}
