package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tracklane/trackd/internal/adapter/otel"
	"github.com/tracklane/trackd/internal/domain"
	"github.com/tracklane/trackd/internal/domain/reference"
	"github.com/tracklane/trackd/internal/domain/user"
	"github.com/tracklane/trackd/internal/port/database"
)

// Facade is the single entry point for reference packages. It owns the
// registry of type-name to service bindings, built once at startup, and
// runs every package write as one transaction spanning the parent row,
// the collection items and the final pack.
type Facade struct {
	tx          database.Tx
	entries     map[string]ReferenceService
	collections map[string][]CollectionService
	log         *slog.Logger
	metrics     *otel.Metrics
}

// NewFacade builds the dispatch registry. Registering two services
// under one name is a wiring bug and panics at startup.
func NewFacade(tx database.Tx, log *slog.Logger, metrics *otel.Metrics, services ...ReferenceService) *Facade {
	f := &Facade{
		tx:          tx,
		entries:     make(map[string]ReferenceService, len(services)),
		collections: make(map[string][]CollectionService),
		log:         log,
		metrics:     metrics,
	}
	for _, s := range services {
		if _, dup := f.entries[s.Name()]; dup {
			panic(fmt.Sprintf("reference facade: duplicate registration for %q", s.Name()))
		}
		f.entries[s.Name()] = s
	}
	return f
}

// RegisterCollection binds a collection service to its parent type.
// Items arriving under its name in a package write are dispatched to
// it, in registration order across collections.
func (f *Facade) RegisterCollection(c CollectionService) {
	f.collections[c.ParentType()] = append(f.collections[c.ParentType()], c)
}

// Types lists the registered entry type names, sorted.
func (f *Facade) Types() []string {
	names := make([]string, 0, len(f.entries))
	for name := range f.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Facade) resolve(typeName string) (ReferenceService, error) {
	s, ok := f.entries[typeName]
	if !ok {
		return nil, fmt.Errorf("%q: %w", typeName, domain.ErrReferenceTypeNotFound)
	}
	return s, nil
}

// Create writes a new package: the parent entry, every collection item
// and the final pack happen in one transaction.
func (f *Facade) Create(ctx context.Context, actor user.Actor, pkg reference.Package) (*reference.Package, error) {
	return f.write(ctx, actor, pkg, "create", func(ctx context.Context, s ReferenceService) (*reference.Package, error) {
		return s.Create(ctx, actor, true, pkg)
	})
}

// Edit updates an existing package under the same transactional
// lifecycle as Create.
func (f *Facade) Edit(ctx context.Context, actor user.Actor, pkg reference.Package) (*reference.Package, error) {
	return f.write(ctx, actor, pkg, "edit", func(ctx context.Context, s ReferenceService) (*reference.Package, error) {
		return s.Edit(ctx, actor, true, pkg)
	})
}

// write is the shared package-write path. The lifecycle moves strictly
// forward and falls to rolled_back together with the transaction.
func (f *Facade) write(
	ctx context.Context,
	actor user.Actor,
	pkg reference.Package,
	op string,
	parentWrite func(ctx context.Context, s ReferenceService) (*reference.Package, error),
) (*reference.Package, error) {
	svc, err := f.resolve(pkg.Type)
	if err != nil {
		return nil, err
	}

	lc := reference.NewWriteLifecycle()
	var result *reference.Package

	err = f.tx.InTx(ctx, func(ctx context.Context) error {
		written, err := parentWrite(ctx, svc)
		if err != nil {
			return err
		}
		if err := lc.Advance(reference.WriteParentWritten); err != nil {
			return err
		}

		parentID, err := decodeEntryID(written.Entry)
		if err != nil {
			return err
		}

		for _, c := range f.collections[pkg.Type] {
			for _, raw := range pkg.Collections[c.Name()] {
				if err := c.Apply(ctx, actor, true, parentID, raw); err != nil {
					return fmt.Errorf("%s collection %s: %w", pkg.Type, c.Name(), err)
				}
			}
		}
		if err := lc.Advance(reference.WriteCollectionsWritten); err != nil {
			return err
		}

		packed, err := svc.Get(ctx, actor, false, parentID, false)
		if err != nil {
			return err
		}
		if err := lc.Advance(reference.WritePacked); err != nil {
			return err
		}
		result = packed
		return nil
	})
	if err != nil {
		_ = lc.Fail()
		f.log.Error("reference package write rolled back",
			"type", pkg.Type, "op", op, "error", err)
		return nil, err
	}
	if err := lc.Advance(reference.WriteCommitted); err != nil {
		return nil, err
	}

	if f.metrics != nil {
		f.metrics.ReferenceWrites.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", pkg.Type),
			attribute.String("op", op),
		))
	}
	return result, nil
}

// decodeEntryID extracts the id field from a raw entry payload.
func decodeEntryID(raw json.RawMessage) (uuid.UUID, error) {
	var entry struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return uuid.Nil, fmt.Errorf("%w: decode entry id: %v", domain.ErrValidation, err)
	}
	return entry.ID, nil
}

// Get packs one entry of the given type.
func (f *Facade) Get(ctx context.Context, actor user.Actor, typeName string, id uuid.UUID) (*reference.Package, error) {
	svc, err := f.resolve(typeName)
	if err != nil {
		return nil, err
	}
	return svc.Get(ctx, actor, true, id, false)
}

// GetMany packs the entries found and reports each missing id as its
// own error; callers decide whether partial success is acceptable.
func (f *Facade) GetMany(ctx context.Context, actor user.Actor, typeName string, ids []uuid.UUID, withDeleted bool) ([]reference.Package, []error) {
	svc, err := f.resolve(typeName)
	if err != nil {
		return nil, []error{err}
	}
	return svc.GetMany(ctx, actor, true, ids, withDeleted)
}

// Resolve looks up entries for internal callers with authorization
// checks suppressed. Deleted entries are included so historical
// references still pack.
func (f *Facade) Resolve(ctx context.Context, typeName string, ids []uuid.UUID) ([]reference.Package, []error) {
	svc, err := f.resolve(typeName)
	if err != nil {
		return nil, []error{err}
	}
	return svc.GetMany(ctx, user.Actor{}, false, ids, true)
}

// Delete soft-deletes one entry of the given type.
func (f *Facade) Delete(ctx context.Context, actor user.Actor, typeName string, id uuid.UUID) error {
	svc, err := f.resolve(typeName)
	if err != nil {
		return err
	}
	return svc.Delete(ctx, actor, true, id)
}
