// Package database defines the persistence port interfaces.
package database

import (
	"context"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain/task"
	"github.com/tracklane/trackd/internal/domain/user"
)

// Tx composes store calls into one transaction. The callback runs with
// a context carrying the open transaction; nested store calls made with
// that context join it instead of opening their own. The transaction
// commits when fn returns nil and rolls back otherwise.
type Tx interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TaskFilter narrows task listings. Zero fields mean "any".
// Unassigned widens a performer-scoped listing to also include tasks
// nobody has claimed yet.
type TaskFilter struct {
	PerformerID *uuid.UUID
	Unassigned  bool
	AuthorID    *uuid.UUID
	StateIDs    []uuid.UUID
	Limit       int
	Offset      int
}

// TaskStore owns the task row lifecycle and its line items.
type TaskStore interface {
	CreateTask(ctx context.Context, t task.Task) (*task.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]task.Task, error)

	// UpdateTask performs a partial update: only supplied fields reach
	// the statement. An empty update degrades to a plain fetch.
	UpdateTask(ctx context.Context, id uuid.UUID, upd task.Update) (*task.Task, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// GetTaskForUpdate reads a task under a row lock. Meaningful only
	// inside InTx; the lock holds until the transaction ends.
	GetTaskForUpdate(ctx context.Context, id uuid.UUID) (*task.Task, error)

	// ApplyTransition conditionally moves the task to the transition's
	// final state, stamping the state-change timestamp and optionally
	// claiming the task for a performer. The update is guarded on the
	// initial state so a concurrent winner makes the loser fail.
	ApplyTransition(ctx context.Context, id uuid.UUID, tr task.Transition, performerID *uuid.UUID) (*task.Task, error)

	// ReconcileLineItems applies cumulative line adjustments: upsert by
	// (task, product) summing quantities, then delete rows driven <= 0.
	ReconcileLineItems(ctx context.Context, taskID uuid.UUID, items []task.LineItem) error
	GetLineItems(ctx context.Context, taskIDs []uuid.UUID) ([]task.LineItem, error)
}

// TransitionStore reads the transition catalog.
type TransitionStore interface {
	ListTransitions(ctx context.Context, role user.Role, initialState uuid.UUID) ([]task.Transition, error)
	GetTransition(ctx context.Context, id uuid.UUID) (*task.Transition, error)

	// CanTransit checks that a transition row matches the given role
	// and the task's currently persisted state.
	CanTransit(ctx context.Context, taskID uuid.UUID, role user.Role, transitionID uuid.UUID) (bool, error)
}

// UserStore reads the user directory.
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetUsers(ctx context.Context, ids []uuid.UUID) ([]user.User, error)
}

// EntryStore is the persistence contract shared by all reference entry
// types. T is the entity, U its partial update. Delete is a soft
// delete; reads filter deleted rows unless withDeleted is set.
type EntryStore[T any, U any] interface {
	Create(ctx context.Context, entity T) (*T, error)
	Get(ctx context.Context, id uuid.UUID, withDeleted bool) (*T, error)

	// GetMany returns the subset of rows found; missing ids are the
	// caller's concern.
	GetMany(ctx context.Context, ids []uuid.UUID, withDeleted bool) ([]T, error)
	Update(ctx context.Context, id uuid.UUID, upd U) (*T, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CollectionStore is the persistence contract for rows owned by a
// parent entry. Every operation is parent-scoped and Delete removes
// the row outright.
type CollectionStore[T any, U any] interface {
	Create(ctx context.Context, parentID uuid.UUID, item T) (*T, error)
	Get(ctx context.Context, parentID, id uuid.UUID) (*T, error)
	ListByParent(ctx context.Context, parentID uuid.UUID) ([]T, error)
	Update(ctx context.Context, parentID, id uuid.UUID, upd U) (*T, error)
	Delete(ctx context.Context, parentID, id uuid.UUID) error
}

// Store is the aggregate persistence port the services depend on.
type Store interface {
	Tx
	TaskStore
	TransitionStore
	UserStore
}
