package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain"
	"github.com/tracklane/trackd/internal/domain/task"
	"github.com/tracklane/trackd/internal/domain/user"
	"github.com/tracklane/trackd/internal/port/database"
	"github.com/tracklane/trackd/internal/port/messagequeue"
)

// mockStore implements database.Store with overridable hooks and call
// counters. Unset hooks return zero values.
type mockStore struct {
	inTxErr error

	createTaskFn       func(ctx context.Context, t task.Task) (*task.Task, error)
	getTaskFn          func(ctx context.Context, id uuid.UUID) (*task.Task, error)
	getTaskForUpdateFn func(ctx context.Context, id uuid.UUID) (*task.Task, error)
	listTasksFn        func(ctx context.Context, f database.TaskFilter) ([]task.Task, error)
	updateTaskFn       func(ctx context.Context, id uuid.UUID, upd task.Update) (*task.Task, error)
	deleteTaskFn       func(ctx context.Context, id uuid.UUID) error
	applyTransitionFn  func(ctx context.Context, id uuid.UUID, tr task.Transition, performerID *uuid.UUID) (*task.Task, error)
	reconcileFn        func(ctx context.Context, taskID uuid.UUID, items []task.LineItem) error
	getLineItemsFn     func(ctx context.Context, taskIDs []uuid.UUID) ([]task.LineItem, error)

	listTransitionsFn func(ctx context.Context, role user.Role, initialState uuid.UUID) ([]task.Transition, error)
	getTransitionFn   func(ctx context.Context, id uuid.UUID) (*task.Transition, error)
	canTransitFn      func(ctx context.Context, taskID uuid.UUID, role user.Role, transitionID uuid.UUID) (bool, error)

	getUsersFn func(ctx context.Context, ids []uuid.UUID) ([]user.User, error)

	updateCalls       int
	lineItemCalls     int
	getUsersCalls     int
	transitionListing int
}

func (m *mockStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.inTxErr != nil {
		return m.inTxErr
	}
	return fn(ctx)
}

func (m *mockStore) CreateTask(ctx context.Context, t task.Task) (*task.Task, error) {
	if m.createTaskFn != nil {
		return m.createTaskFn(ctx, t)
	}
	return &t, nil
}

func (m *mockStore) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	if m.getTaskFn != nil {
		return m.getTaskFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetTaskForUpdate(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	if m.getTaskForUpdateFn != nil {
		return m.getTaskForUpdateFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListTasks(ctx context.Context, f database.TaskFilter) ([]task.Task, error) {
	if m.listTasksFn != nil {
		return m.listTasksFn(ctx, f)
	}
	return []task.Task{}, nil
}

func (m *mockStore) UpdateTask(ctx context.Context, id uuid.UUID, upd task.Update) (*task.Task, error) {
	m.updateCalls++
	if m.updateTaskFn != nil {
		return m.updateTaskFn(ctx, id, upd)
	}
	return &task.Task{ID: id, StateID: task.StateNewUndistributed.ID}, nil
}

func (m *mockStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	if m.deleteTaskFn != nil {
		return m.deleteTaskFn(ctx, id)
	}
	return nil
}

func (m *mockStore) ApplyTransition(ctx context.Context, id uuid.UUID, tr task.Transition, performerID *uuid.UUID) (*task.Task, error) {
	if m.applyTransitionFn != nil {
		return m.applyTransitionFn(ctx, id, tr, performerID)
	}
	return &task.Task{ID: id, StateID: tr.FinalState}, nil
}

func (m *mockStore) ReconcileLineItems(ctx context.Context, taskID uuid.UUID, items []task.LineItem) error {
	if m.reconcileFn != nil {
		return m.reconcileFn(ctx, taskID, items)
	}
	return nil
}

func (m *mockStore) GetLineItems(ctx context.Context, taskIDs []uuid.UUID) ([]task.LineItem, error) {
	m.lineItemCalls++
	if m.getLineItemsFn != nil {
		return m.getLineItemsFn(ctx, taskIDs)
	}
	return []task.LineItem{}, nil
}

func (m *mockStore) ListTransitions(ctx context.Context, role user.Role, initialState uuid.UUID) ([]task.Transition, error) {
	m.transitionListing++
	if m.listTransitionsFn != nil {
		return m.listTransitionsFn(ctx, role, initialState)
	}
	return []task.Transition{}, nil
}

func (m *mockStore) GetTransition(ctx context.Context, id uuid.UUID) (*task.Transition, error) {
	if m.getTransitionFn != nil {
		return m.getTransitionFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CanTransit(ctx context.Context, taskID uuid.UUID, role user.Role, transitionID uuid.UUID) (bool, error) {
	if m.canTransitFn != nil {
		return m.canTransitFn(ctx, taskID, role, transitionID)
	}
	return true, nil
}

func (m *mockStore) GetUser(ctx context.Context, id uuid.UUID) (*user.User, error) {
	users, err := m.GetUsers(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, domain.ErrNotFound
	}
	return &users[0], nil
}

func (m *mockStore) GetUsers(ctx context.Context, ids []uuid.UUID) ([]user.User, error) {
	m.getUsersCalls++
	if m.getUsersFn != nil {
		return m.getUsersFn(ctx, ids)
	}
	return []user.User{}, nil
}

// mockCache is an in-memory cache.Cache.
type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// mockQueue records publishes.
type mockQueue struct {
	mu        sync.Mutex
	published []string
}

func (q *mockQueue) Publish(_ context.Context, subject string, _ []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, subject)
	return nil
}

func (q *mockQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.published...)
}
