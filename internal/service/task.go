package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tracklane/trackd/internal/adapter/otel"
	"github.com/tracklane/trackd/internal/domain"
	"github.com/tracklane/trackd/internal/domain/reference"
	"github.com/tracklane/trackd/internal/domain/task"
	"github.com/tracklane/trackd/internal/domain/user"
	"github.com/tracklane/trackd/internal/port/database"
	"github.com/tracklane/trackd/internal/port/messagequeue"
)

// TaskPackage is a task with every piece of linked data resolved: the
// people involved, the referenced master data and the transitions the
// requesting actor may execute next. Single and batch packing produce
// this same shape.
type TaskPackage struct {
	Task        task.Task           `json:"task"`
	Author      *user.User          `json:"author,omitempty"`
	Performer   *user.User          `json:"performer,omitempty"`
	Warehouse   *reference.Package  `json:"warehouse,omitempty"`
	Client      *reference.Package  `json:"client,omitempty"`
	PaymentType *reference.Package  `json:"payment_type,omitempty"`
	Products    []reference.Package `json:"products,omitempty"`
	Transitions []task.Transition   `json:"transitions"`
}

// taskEvent is the payload published on task lifecycle subjects.
type taskEvent struct {
	TaskID  uuid.UUID `json:"task_id"`
	StateID uuid.UUID `json:"state_id"`
	ActorID uuid.UUID `json:"actor_id"`
}

// TaskService orchestrates the task lifecycle over the store, the
// transition catalog, the reference facade and the message queue.
type TaskService struct {
	store   database.Store
	catalog *Catalog
	refs    *Facade
	queue   messagequeue.Queue
	log     *slog.Logger
	metrics *otel.Metrics
}

// NewTaskService wires the task orchestrator.
func NewTaskService(store database.Store, catalog *Catalog, refs *Facade, queue messagequeue.Queue, log *slog.Logger, metrics *otel.Metrics) *TaskService {
	return &TaskService{store: store, catalog: catalog, refs: refs, queue: queue, log: log, metrics: metrics}
}

func taskWriteAuthz(actor user.Actor) error {
	switch actor.Role {
	case user.RoleCreator, user.RoleManager:
		return nil
	}
	return fmt.Errorf("role %q may not manage tasks: %w", actor.Role, domain.ErrAccessDenied)
}

// Create persists a new task with its line items in one transaction.
// The initial state is unassigned-new unless a performer is supplied,
// in which case the task starts reserved.
func (s *TaskService) Create(ctx context.Context, actor user.Actor, req task.CreateRequest) (*task.Task, error) {
	if err := taskWriteAuthz(actor); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	initial := task.StateNewUndistributed.ID
	if req.PerformerID != nil {
		initial = task.StateNew.ID
	}
	t := task.Task{
		ID:              uuid.New(),
		Number:          req.Number,
		StateID:         initial,
		AuthorID:        actor.ID,
		PerformerID:     req.PerformerID,
		WarehouseID:     req.WarehouseID,
		ClientID:        req.ClientID,
		ClientAddressID: req.ClientAddressID,
		PaymentTypeID:   req.PaymentTypeID,
		Cost:            req.Cost,
		DeliveryCost:    req.DeliveryCost,
		Comment:         req.Comment,
		Receipt:         req.Receipt,
		DeliveryFrom:    req.DeliveryFrom,
		DeliveryTo:      req.DeliveryTo,
	}

	var created *task.Task
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.store.CreateTask(ctx, t)
		if err != nil {
			return err
		}
		if len(req.Items) > 0 {
			if err := s.store.ReconcileLineItems(ctx, created.ID, req.Items); err != nil {
				return err
			}
		}
		items, err := s.store.GetLineItems(ctx, []uuid.UUID{created.ID})
		if err != nil {
			return err
		}
		created.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TasksCreated.Add(ctx, 1)
	}
	s.publish(ctx, messagequeue.SubjectTaskCreated, taskEvent{
		TaskID: created.ID, StateID: created.StateID, ActorID: actor.ID,
	})
	return created, nil
}

// Get fetches one task with its line items. A performer may only see
// tasks assigned to them or still unclaimed.
func (s *TaskService) Get(ctx context.Context, actor user.Actor, id uuid.UUID) (*task.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := performerMaySee(actor, *t); err != nil {
		return nil, err
	}
	items, err := s.store.GetLineItems(ctx, []uuid.UUID{t.ID})
	if err != nil {
		return nil, err
	}
	t.Items = items
	return t, nil
}

func performerMaySee(actor user.Actor, t task.Task) error {
	if actor.Role != user.RolePerformer {
		return nil
	}
	if t.PerformerID != nil && *t.PerformerID == actor.ID {
		return nil
	}
	if t.PerformerID == nil && t.StateID == task.StateNewUndistributed.ID {
		return nil
	}
	return fmt.Errorf("task %s: %w", t.ID, domain.ErrTaskForbidden)
}

// List returns tasks visible to the actor. Performers see their own
// tasks plus the unclaimed pool; other roles see the full filter.
func (s *TaskService) List(ctx context.Context, actor user.Actor, f database.TaskFilter) ([]task.Task, error) {
	if actor.Role == user.RolePerformer {
		f.PerformerID = &actor.ID
		f.Unassigned = true
	}
	return s.store.ListTasks(ctx, f)
}

// Edit applies a partial update. State changes are rejected before any
// write reaches the store; the transition path is the only way to move
// a task between states.
func (s *TaskService) Edit(ctx context.Context, actor user.Actor, id uuid.UUID, upd task.Update) (*task.Task, error) {
	if err := taskWriteAuthz(actor); err != nil {
		return nil, err
	}
	if upd.StateID.Valid {
		return nil, fmt.Errorf("%w: task state cannot be changed via edit", domain.ErrValidation)
	}

	var updated *task.Task
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.store.UpdateTask(ctx, id, upd)
		if err != nil {
			return err
		}
		if len(upd.Items) > 0 {
			if err := s.store.ReconcileLineItems(ctx, id, upd.Items); err != nil {
				return err
			}
		}
		items, err := s.store.GetLineItems(ctx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		updated.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Transit moves a task through one catalog transition. The task row is
// locked, the guard re-checks role, current state and ownership against
// persisted data, and the state write itself is conditional on the
// initial state, all inside one transaction. A performer taking an
// unclaimed task becomes its owner in the same statement.
func (s *TaskService) Transit(ctx context.Context, actor user.Actor, taskID, transitionID uuid.UUID) (*task.Task, error) {
	var moved *task.Task
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		t, err := s.store.GetTaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		tr, err := s.store.GetTransition(ctx, transitionID)
		if err != nil {
			return err
		}
		if err := task.CanActorTransit(*t, *tr, actor); err != nil {
			return err
		}
		ok, err := s.store.CanTransit(ctx, taskID, actor.Role, transitionID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("transition %s for task %s: %w", transitionID, taskID, domain.ErrIncorrectTransition)
		}

		var claim *uuid.UUID
		if actor.Role == user.RolePerformer && t.PerformerID == nil {
			claim = &actor.ID
		}
		moved, err = s.store.ApplyTransition(ctx, taskID, *tr, claim)
		return err
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.TransitionsDenied.Add(ctx, 1)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TaskTransitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("state", moved.StateName)))
	}
	s.publish(ctx, messagequeue.SubjectTaskTransitioned, taskEvent{
		TaskID: moved.ID, StateID: moved.StateID, ActorID: actor.ID,
	})
	return moved, nil
}

// Delete removes a task and its line items.
func (s *TaskService) Delete(ctx context.Context, actor user.Actor, id uuid.UUID) error {
	if err := taskWriteAuthz(actor); err != nil {
		return err
	}
	return s.store.DeleteTask(ctx, id)
}

// Pack resolves one task with all linked data.
func (s *TaskService) Pack(ctx context.Context, actor user.Actor, id uuid.UUID) (*TaskPackage, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := performerMaySee(actor, *t); err != nil {
		return nil, err
	}
	packs, err := s.packAll(ctx, actor, []task.Task{*t})
	if err != nil {
		return nil, err
	}
	return &packs[0], nil
}

// PackMany resolves a batch of tasks with all linked data. Linked rows
// are fetched once per type for the whole batch regardless of its size,
// and every package has the same shape as a single pack.
func (s *TaskService) PackMany(ctx context.Context, actor user.Actor, f database.TaskFilter) ([]TaskPackage, error) {
	tasks, err := s.List(ctx, actor, f)
	if err != nil {
		return nil, err
	}
	return s.packAll(ctx, actor, tasks)
}

func (s *TaskService) packAll(ctx context.Context, actor user.Actor, tasks []task.Task) ([]TaskPackage, error) {
	start := time.Now()
	if len(tasks) == 0 {
		return []TaskPackage{}, nil
	}

	taskIDs := make([]uuid.UUID, len(tasks))
	for i, t := range tasks {
		taskIDs[i] = t.ID
	}
	items, err := s.store.GetLineItems(ctx, taskIDs)
	if err != nil {
		return nil, err
	}
	itemsByTask := make(map[uuid.UUID][]task.LineItem, len(tasks))
	for _, it := range items {
		itemsByTask[it.TaskID] = append(itemsByTask[it.TaskID], it)
	}

	userIDs := collect(tasks, func(t task.Task) []uuid.UUID {
		ids := []uuid.UUID{t.AuthorID}
		if t.PerformerID != nil {
			ids = append(ids, *t.PerformerID)
		}
		return ids
	})
	warehouseIDs := collect(tasks, optional(func(t task.Task) *uuid.UUID { return t.WarehouseID }))
	clientIDs := collect(tasks, optional(func(t task.Task) *uuid.UUID { return t.ClientID }))
	paymentTypeIDs := collect(tasks, optional(func(t task.Task) *uuid.UUID { return t.PaymentTypeID }))
	productIDs := collectDistinct(items, func(it task.LineItem) uuid.UUID { return it.ProductID })

	users, err := s.store.GetUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	usersByID := make(map[uuid.UUID]user.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}

	warehouses := s.resolveRefs(ctx, reference.TypeWarehouse, warehouseIDs)
	clients := s.resolveRefs(ctx, reference.TypeClient, clientIDs)
	paymentTypes := s.resolveRefs(ctx, reference.TypePaymentType, paymentTypeIDs)
	products := s.resolveRefs(ctx, reference.TypeProduct, productIDs)

	transitionsByState := make(map[uuid.UUID][]task.Transition)
	for _, t := range tasks {
		if _, done := transitionsByState[t.StateID]; done {
			continue
		}
		trs, err := s.catalog.TransitionsFor(ctx, actor.Role, t.StateID)
		if err != nil {
			return nil, err
		}
		transitionsByState[t.StateID] = trs
	}

	packs := make([]TaskPackage, len(tasks))
	for i, t := range tasks {
		t.Items = itemsByTask[t.ID]
		p := TaskPackage{Task: t, Transitions: transitionsByState[t.StateID]}
		if u, ok := usersByID[t.AuthorID]; ok {
			p.Author = &u
		}
		if t.PerformerID != nil {
			if u, ok := usersByID[*t.PerformerID]; ok {
				p.Performer = &u
			}
		}
		p.Warehouse = lookupRef(warehouses, t.WarehouseID)
		p.Client = lookupRef(clients, t.ClientID)
		p.PaymentType = lookupRef(paymentTypes, t.PaymentTypeID)
		for _, it := range t.Items {
			if pkg, ok := products[it.ProductID]; ok {
				p.Products = append(p.Products, pkg)
			}
		}
		packs[i] = p
	}

	if s.metrics != nil {
		s.metrics.PackDuration.Record(ctx, time.Since(start).Seconds())
	}
	return packs, nil
}

// resolveRefs fetches one reference type for the whole batch. Deleted
// entries still resolve so historical tasks pack fully; genuinely
// missing ids are logged and left out of the result.
func (s *TaskService) resolveRefs(ctx context.Context, typeName string, ids []uuid.UUID) map[uuid.UUID]reference.Package {
	out := make(map[uuid.UUID]reference.Package, len(ids))
	if len(ids) == 0 {
		return out
	}
	packs, errs := s.refs.Resolve(ctx, typeName, ids)
	for _, err := range errs {
		s.log.Warn("pack: linked reference unresolved", "type", typeName, "error", err)
	}
	for _, pkg := range packs {
		id, err := decodeEntryID(pkg.Entry)
		if err != nil {
			s.log.Warn("pack: reference entry without id", "type", typeName, "error", err)
			continue
		}
		out[id] = pkg
	}
	return out
}

func lookupRef(m map[uuid.UUID]reference.Package, id *uuid.UUID) *reference.Package {
	if id == nil {
		return nil
	}
	if pkg, ok := m[*id]; ok {
		return &pkg
	}
	return nil
}

// collect gathers distinct ids produced by fn over the batch.
func collect(tasks []task.Task, fn func(task.Task) []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, t := range tasks {
		for _, id := range fn(t) {
			if id != uuid.Nil && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func optional(fn func(task.Task) *uuid.UUID) func(task.Task) []uuid.UUID {
	return func(t task.Task) []uuid.UUID {
		if id := fn(t); id != nil {
			return []uuid.UUID{*id}
		}
		return nil
	}
}

func collectDistinct(items []task.LineItem, fn func(task.LineItem) uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, it := range items {
		if id := fn(it); id != uuid.Nil && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// publish sends a lifecycle event. Delivery is best effort: a queue
// outage must not fail the write that already committed.
func (s *TaskService) publish(ctx context.Context, subject string, ev taskEvent) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("encode task event", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		s.log.Error("publish task event", "subject", subject, "error", err)
	}
}
