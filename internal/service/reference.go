package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain"
	"github.com/tracklane/trackd/internal/domain/reference"
	"github.com/tracklane/trackd/internal/domain/user"
	"github.com/tracklane/trackd/internal/port/database"
)

// ReferenceService is the uniform contract the facade dispatches entry
// operations to. The check flag evaluates authorization; trusted
// internal callers (task packing) suppress it.
type ReferenceService interface {
	Name() string
	Create(ctx context.Context, actor user.Actor, check bool, pkg reference.Package) (*reference.Package, error)
	Get(ctx context.Context, actor user.Actor, check bool, id uuid.UUID, withDeleted bool) (*reference.Package, error)

	// GetMany is partial-success-capable: it returns the packages found
	// plus one not-found error per missing id.
	GetMany(ctx context.Context, actor user.Actor, check bool, ids []uuid.UUID, withDeleted bool) ([]reference.Package, []error)
	Edit(ctx context.Context, actor user.Actor, check bool, pkg reference.Package) (*reference.Package, error)
	Delete(ctx context.Context, actor user.Actor, check bool, id uuid.UUID) error
}

// CollectionService applies single collection item writes during a
// parent package write and reads collections back for packing.
type CollectionService interface {
	Name() string

	// ParentType is the entry type name owning this collection.
	ParentType() string

	// Apply dispatches one raw collection item by its action tag. An
	// absent tag defaults to create so plain package creation needs no
	// explicit tagging.
	Apply(ctx context.Context, actor user.Actor, check bool, parentID uuid.UUID, raw json.RawMessage) error
	ListRaw(ctx context.Context, parentID uuid.UUID) ([]json.RawMessage, error)
}

// validatable is implemented by every reference entity.
type validatable interface {
	Validate() error
}

func referenceAuthz(actor user.Actor, check, write bool) error {
	if !check {
		return nil
	}
	if write {
		if !actor.Role.CanEditReferences() {
			return fmt.Errorf("role %q may not edit references: %w", actor.Role, domain.ErrAccessDenied)
		}
		return nil
	}
	if !actor.Role.Known() {
		return fmt.Errorf("unauthenticated reference read: %w", domain.ErrAccessDenied)
	}
	return nil
}

// EntryService implements ReferenceService for one entry type. The
// behavior is written once; T is the entity and U its partial update.
type EntryService[T interface {
	reference.Identifiable
	validatable
}, U any] struct {
	name        string
	store       database.EntryStore[T, U]
	withID      func(T, uuid.UUID) T
	collections []CollectionService
}

// NewEntryService creates the service for one entry type. collections
// lists the collection services owned by this type; their items are
// attached on every pack.
func NewEntryService[T interface {
	reference.Identifiable
	validatable
}, U any](
	name string,
	store database.EntryStore[T, U],
	withID func(T, uuid.UUID) T,
	collections ...CollectionService,
) *EntryService[T, U] {
	return &EntryService[T, U]{name: name, store: store, withID: withID, collections: collections}
}

// Name returns the dispatch key for this type.
func (s *EntryService[T, U]) Name() string { return s.name }

// pack assembles the entry and its owned collections into a package.
func (s *EntryService[T, U]) pack(ctx context.Context, entity T) (*reference.Package, error) {
	pkg, err := reference.EncodeEntry(s.name, entity)
	if err != nil {
		return nil, err
	}
	for _, c := range s.collections {
		raws, err := c.ListRaw(ctx, entity.EntryID())
		if err != nil {
			return nil, err
		}
		if pkg.Collections == nil {
			pkg.Collections = make(map[string][]json.RawMessage, len(s.collections))
		}
		pkg.Collections[c.Name()] = raws
	}
	return &pkg, nil
}

// Create validates and persists a new entry, then packs it.
func (s *EntryService[T, U]) Create(ctx context.Context, actor user.Actor, check bool, pkg reference.Package) (*reference.Package, error) {
	if err := referenceAuthz(actor, check, true); err != nil {
		return nil, err
	}
	entity, err := reference.DecodeEntry[T](pkg)
	if err != nil {
		return nil, err
	}
	if entity.EntryID() == uuid.Nil {
		entity = s.withID(entity, uuid.New())
	}
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	created, err := s.store.Create(ctx, entity)
	if err != nil {
		return nil, err
	}
	return s.pack(ctx, *created)
}

// Get fetches and packs one entry.
func (s *EntryService[T, U]) Get(ctx context.Context, actor user.Actor, check bool, id uuid.UUID, withDeleted bool) (*reference.Package, error) {
	if err := referenceAuthz(actor, check, false); err != nil {
		return nil, err
	}
	entity, err := s.store.Get(ctx, id, withDeleted)
	if err != nil {
		return nil, err
	}
	return s.pack(ctx, *entity)
}

// GetMany fetches the subset of ids that exist and reports every
// missing id as its own not-found error.
func (s *EntryService[T, U]) GetMany(ctx context.Context, actor user.Actor, check bool, ids []uuid.UUID, withDeleted bool) ([]reference.Package, []error) {
	if err := referenceAuthz(actor, check, false); err != nil {
		return nil, []error{err}
	}
	entities, err := s.store.GetMany(ctx, ids, withDeleted)
	if err != nil {
		return nil, []error{err}
	}

	found := make(map[uuid.UUID]bool, len(entities))
	packages := make([]reference.Package, 0, len(entities))
	var errs []error
	for _, entity := range entities {
		pkg, err := s.pack(ctx, entity)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		found[entity.EntryID()] = true
		packages = append(packages, *pkg)
	}
	for _, id := range ids {
		if !found[id] {
			errs = append(errs, fmt.Errorf("%s %s: %w", s.name, id, domain.ErrNotFound))
		}
	}
	return packages, errs
}

// Edit applies a partial update taken from the supplied fields of the
// package entry, then packs the result.
func (s *EntryService[T, U]) Edit(ctx context.Context, actor user.Actor, check bool, pkg reference.Package) (*reference.Package, error) {
	if err := referenceAuthz(actor, check, true); err != nil {
		return nil, err
	}
	entity, err := reference.DecodeEntry[T](pkg)
	if err != nil {
		return nil, err
	}
	id := entity.EntryID()
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: %s id is required for edit", domain.ErrValidation, s.name)
	}

	var upd U
	if err := json.Unmarshal(pkg.Entry, &upd); err != nil {
		return nil, fmt.Errorf("%w: decode %s update: %v", domain.ErrValidation, s.name, err)
	}
	updated, err := s.store.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	return s.pack(ctx, *updated)
}

// Delete soft-deletes one entry.
func (s *EntryService[T, U]) Delete(ctx context.Context, actor user.Actor, check bool, id uuid.UUID) error {
	if err := referenceAuthz(actor, check, true); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

// CollectionEntryService implements CollectionService for one
// parent-owned type.
type CollectionEntryService[T interface {
	reference.CollectionMember
	validatable
}, U any] struct {
	name       string
	parentType string
	store      database.CollectionStore[T, U]
	withID     func(T, uuid.UUID) T
}

// NewCollectionService creates the service for one collection type.
func NewCollectionService[T interface {
	reference.CollectionMember
	validatable
}, U any](
	name, parentType string,
	store database.CollectionStore[T, U],
	withID func(T, uuid.UUID) T,
) *CollectionEntryService[T, U] {
	return &CollectionEntryService[T, U]{name: name, parentType: parentType, store: store, withID: withID}
}

// Name returns the dispatch key for this collection type.
func (s *CollectionEntryService[T, U]) Name() string { return s.name }

// ParentType returns the owning entry type name.
func (s *CollectionEntryService[T, U]) ParentType() string { return s.parentType }

// Apply dispatches one raw item by its action tag.
func (s *CollectionEntryService[T, U]) Apply(ctx context.Context, actor user.Actor, check bool, parentID uuid.UUID, raw json.RawMessage) error {
	if err := referenceAuthz(actor, check, true); err != nil {
		return err
	}
	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		return fmt.Errorf("%w: decode %s item: %v", domain.ErrValidation, s.name, err)
	}
	action := item.ItemAction()
	if !action.Known() {
		return fmt.Errorf("%w: unknown action %q for %s", domain.ErrValidation, action, s.name)
	}

	switch action {
	case reference.ActionNone, reference.ActionCreate:
		if item.EntryID() == uuid.Nil {
			item = s.withID(item, uuid.New())
		}
		if err := item.Validate(); err != nil {
			return err
		}
		_, err := s.store.Create(ctx, parentID, item)
		return err
	case reference.ActionEdit:
		if item.EntryID() == uuid.Nil {
			return fmt.Errorf("%w: %s id is required for edit", domain.ErrValidation, s.name)
		}
		var upd U
		if err := json.Unmarshal(raw, &upd); err != nil {
			return fmt.Errorf("%w: decode %s update: %v", domain.ErrValidation, s.name, err)
		}
		_, err := s.store.Update(ctx, parentID, item.EntryID(), upd)
		return err
	case reference.ActionDelete:
		return s.store.Delete(ctx, parentID, item.EntryID())
	}
	return nil
}

// ListRaw reads the collection of one parent for packing.
func (s *CollectionEntryService[T, U]) ListRaw(ctx context.Context, parentID uuid.UUID) ([]json.RawMessage, error) {
	items, err := s.store.ListByParent(ctx, parentID)
	if err != nil {
		return nil, err
	}
	raws := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode %s item: %w", s.name, err)
		}
		raws = append(raws, raw)
	}
	return raws, nil
}
