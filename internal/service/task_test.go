package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain"
	"github.com/tracklane/trackd/internal/domain/kit"
	"github.com/tracklane/trackd/internal/domain/reference"
	"github.com/tracklane/trackd/internal/domain/task"
	"github.com/tracklane/trackd/internal/domain/user"
	"github.com/tracklane/trackd/internal/port/database"
	"github.com/tracklane/trackd/internal/port/messagequeue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTaskService(store *mockStore, queue *mockQueue, refs *Facade) *TaskService {
	catalog := NewCatalog(store, newMockCache(), 0)
	return NewTaskService(store, catalog, refs, queue, discardLogger(), nil)
}

func TestCreateInitialState(t *testing.T) {
	creator := user.Actor{ID: uuid.New(), Role: user.RoleCreator}
	performer := uuid.New()

	cases := []struct {
		name      string
		req       task.CreateRequest
		wantState uuid.UUID
	}{
		{"unassigned", task.CreateRequest{Number: "T-1"}, task.StateNewUndistributed.ID},
		{"assigned", task.CreateRequest{Number: "T-2", PerformerID: &performer}, task.StateNew.ID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &mockStore{}
			queue := &mockQueue{}
			svc := newTaskService(store, queue, nil)

			created, err := svc.Create(context.Background(), creator, tc.req)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if created.StateID != tc.wantState {
				t.Fatalf("initial state %s, want %s", created.StateID, tc.wantState)
			}
			if created.AuthorID != creator.ID {
				t.Fatalf("author %s, want actor %s", created.AuthorID, creator.ID)
			}
			subjects := queue.subjects()
			if len(subjects) != 1 || subjects[0] != messagequeue.SubjectTaskCreated {
				t.Fatalf("published %v, want [%s]", subjects, messagequeue.SubjectTaskCreated)
			}
		})
	}
}

func TestCreateDeniedForPerformer(t *testing.T) {
	svc := newTaskService(&mockStore{}, &mockQueue{}, nil)

	_, err := svc.Create(context.Background(),
		user.Actor{ID: uuid.New(), Role: user.RolePerformer},
		task.CreateRequest{Number: "T-1"})
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("got %v, want ErrAccessDenied", err)
	}
}

func TestCreateWritesLineItemsInSameTransaction(t *testing.T) {
	product := uuid.New()
	store := &mockStore{}
	var reconciled []task.LineItem
	store.reconcileFn = func(_ context.Context, _ uuid.UUID, items []task.LineItem) error {
		reconciled = items
		return nil
	}
	svc := newTaskService(store, &mockQueue{}, nil)

	_, err := svc.Create(context.Background(),
		user.Actor{ID: uuid.New(), Role: user.RoleManager},
		task.CreateRequest{Number: "T-1", Items: []task.LineItem{{ProductID: product, Quantity: 2}}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(reconciled) != 1 || reconciled[0].ProductID != product {
		t.Fatalf("line items not reconciled on create: %+v", reconciled)
	}
}

func TestEditRejectsStateChange(t *testing.T) {
	store := &mockStore{}
	svc := newTaskService(store, &mockQueue{}, nil)

	upd := task.Update{StateID: kit.Some(task.StateInWork.ID)}
	_, err := svc.Edit(context.Background(),
		user.Actor{ID: uuid.New(), Role: user.RoleManager}, uuid.New(), upd)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
	if store.updateCalls != 0 {
		t.Fatalf("update reached the store despite the state change")
	}
}

func TestEditAppliesPartialUpdate(t *testing.T) {
	store := &mockStore{}
	var gotUpd task.Update
	store.updateTaskFn = func(_ context.Context, id uuid.UUID, upd task.Update) (*task.Task, error) {
		gotUpd = upd
		return &task.Task{ID: id, StateID: task.StateNewUndistributed.ID}, nil
	}
	svc := newTaskService(store, &mockQueue{}, nil)

	upd := task.Update{Comment: kit.Some("leave at door")}
	if _, err := svc.Edit(context.Background(),
		user.Actor{ID: uuid.New(), Role: user.RoleCreator}, uuid.New(), upd); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if v, ok := gotUpd.Comment.Get(); !ok || v != "leave at door" {
		t.Fatalf("comment not forwarded: %+v", gotUpd.Comment)
	}
}

func transitFixture(stateID uuid.UUID, performerID *uuid.UUID) (*mockStore, uuid.UUID, uuid.UUID) {
	taskID := uuid.New()
	tr := task.Transition{
		ID:           uuid.New(),
		Role:         user.RolePerformer,
		InitialState: task.StateNewUndistributed.ID,
		FinalState:   task.StateInWork.ID,
		Button:       "take_into_work",
	}
	store := &mockStore{
		getTaskForUpdateFn: func(_ context.Context, id uuid.UUID) (*task.Task, error) {
			return &task.Task{ID: id, StateID: stateID, PerformerID: performerID}, nil
		},
		getTransitionFn: func(_ context.Context, _ uuid.UUID) (*task.Transition, error) {
			return &tr, nil
		},
	}
	return store, taskID, tr.ID
}

func TestTransitClaimsUnassignedTask(t *testing.T) {
	store, taskID, trID := transitFixture(task.StateNewUndistributed.ID, nil)
	actor := user.Actor{ID: uuid.New(), Role: user.RolePerformer}

	var claimed *uuid.UUID
	store.applyTransitionFn = func(_ context.Context, id uuid.UUID, tr task.Transition, performerID *uuid.UUID) (*task.Task, error) {
		claimed = performerID
		return &task.Task{ID: id, StateID: tr.FinalState, PerformerID: performerID}, nil
	}
	queue := &mockQueue{}
	svc := newTaskService(store, queue, nil)

	moved, err := svc.Transit(context.Background(), actor, taskID, trID)
	if err != nil {
		t.Fatalf("Transit: %v", err)
	}
	if claimed == nil || *claimed != actor.ID {
		t.Fatalf("task not claimed for performer %s: got %v", actor.ID, claimed)
	}
	if moved.StateID != task.StateInWork.ID {
		t.Fatalf("state %s, want in_work", moved.StateID)
	}
	subjects := queue.subjects()
	if len(subjects) != 1 || subjects[0] != messagequeue.SubjectTaskTransitioned {
		t.Fatalf("published %v, want [%s]", subjects, messagequeue.SubjectTaskTransitioned)
	}
}

func TestTransitRejectsAnotherPerformersTask(t *testing.T) {
	owner := uuid.New()
	store, taskID, trID := transitFixture(task.StateNewUndistributed.ID, &owner)
	svc := newTaskService(store, &mockQueue{}, nil)

	_, err := svc.Transit(context.Background(),
		user.Actor{ID: uuid.New(), Role: user.RolePerformer}, taskID, trID)
	if !errors.Is(err, domain.ErrTaskForbidden) {
		t.Fatalf("got %v, want ErrTaskForbidden", err)
	}
}

func TestTransitRejectsWhenStateMoved(t *testing.T) {
	store, taskID, trID := transitFixture(task.StateInWork.ID, nil)
	svc := newTaskService(store, &mockQueue{}, nil)

	_, err := svc.Transit(context.Background(),
		user.Actor{ID: uuid.New(), Role: user.RolePerformer}, taskID, trID)
	if !errors.Is(err, domain.ErrIncorrectTransition) {
		t.Fatalf("got %v, want ErrIncorrectTransition", err)
	}
}

func TestTransitRejectsWrongRole(t *testing.T) {
	store, taskID, trID := transitFixture(task.StateNewUndistributed.ID, nil)
	svc := newTaskService(store, &mockQueue{}, nil)

	_, err := svc.Transit(context.Background(),
		user.Actor{ID: uuid.New(), Role: user.RoleCreator}, taskID, trID)
	if !errors.Is(err, domain.ErrIncorrectTransition) {
		t.Fatalf("got %v, want ErrIncorrectTransition", err)
	}
}

func TestTransitRechecksPersistedState(t *testing.T) {
	store, taskID, trID := transitFixture(task.StateNewUndistributed.ID, nil)
	store.canTransitFn = func(context.Context, uuid.UUID, user.Role, uuid.UUID) (bool, error) {
		return false, nil
	}
	svc := newTaskService(store, &mockQueue{}, nil)

	_, err := svc.Transit(context.Background(),
		user.Actor{ID: uuid.New(), Role: user.RolePerformer}, taskID, trID)
	if !errors.Is(err, domain.ErrIncorrectTransition) {
		t.Fatalf("got %v, want ErrIncorrectTransition", err)
	}
}

func TestPerformerGetVisibility(t *testing.T) {
	performer := user.Actor{ID: uuid.New(), Role: user.RolePerformer}
	other := uuid.New()

	cases := []struct {
		name      string
		task      task.Task
		wantAllow bool
	}{
		{"own task", task.Task{ID: uuid.New(), StateID: task.StateInWork.ID, PerformerID: &performer.ID}, true},
		{"unclaimed pool", task.Task{ID: uuid.New(), StateID: task.StateNewUndistributed.ID}, true},
		{"another performers task", task.Task{ID: uuid.New(), StateID: task.StateInWork.ID, PerformerID: &other}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &mockStore{
				getTaskFn: func(_ context.Context, _ uuid.UUID) (*task.Task, error) {
					tt := tc.task
					return &tt, nil
				},
			}
			svc := newTaskService(store, &mockQueue{}, nil)

			_, err := svc.Get(context.Background(), performer, tc.task.ID)
			if tc.wantAllow && err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !tc.wantAllow && !errors.Is(err, domain.ErrTaskForbidden) {
				t.Fatalf("got %v, want ErrTaskForbidden", err)
			}
		})
	}
}

func TestPerformerListScopedToOwnAndUnassigned(t *testing.T) {
	performer := user.Actor{ID: uuid.New(), Role: user.RolePerformer}
	var gotFilter database.TaskFilter
	store := &mockStore{
		listTasksFn: func(_ context.Context, f database.TaskFilter) ([]task.Task, error) {
			gotFilter = f
			return []task.Task{}, nil
		},
	}
	svc := newTaskService(store, &mockQueue{}, nil)

	if _, err := svc.List(context.Background(), performer, database.TaskFilter{}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if gotFilter.PerformerID == nil || *gotFilter.PerformerID != performer.ID || !gotFilter.Unassigned {
		t.Fatalf("filter not scoped for performer: %+v", gotFilter)
	}
}

func TestPackManyResolvesLinkedDataOnce(t *testing.T) {
	author := uuid.New()
	productA, productB := uuid.New(), uuid.New()
	warehouse := uuid.New()

	taskA := task.Task{ID: uuid.New(), Number: "T-1", StateID: task.StateNewUndistributed.ID, AuthorID: author, WarehouseID: &warehouse}
	taskB := task.Task{ID: uuid.New(), Number: "T-2", StateID: task.StateNewUndistributed.ID, AuthorID: author, WarehouseID: &warehouse}

	store := &mockStore{
		listTasksFn: func(_ context.Context, _ database.TaskFilter) ([]task.Task, error) {
			return []task.Task{taskA, taskB}, nil
		},
		getLineItemsFn: func(_ context.Context, taskIDs []uuid.UUID) ([]task.LineItem, error) {
			if len(taskIDs) != 2 {
				t.Fatalf("line items fetched per task, want one batch: %v", taskIDs)
			}
			return []task.LineItem{
				{ID: uuid.New(), TaskID: taskA.ID, ProductID: productA, Quantity: 1},
				{ID: uuid.New(), TaskID: taskB.ID, ProductID: productB, Quantity: 3},
			}, nil
		},
		getUsersFn: func(_ context.Context, ids []uuid.UUID) ([]user.User, error) {
			return []user.User{{ID: author, Name: "Ada", Role: user.RoleCreator}}, nil
		},
	}

	refs := NewFacade(store, discardLogger(), nil,
		&stubRefService{name: reference.TypeWarehouse, packages: map[uuid.UUID]reference.Package{
			warehouse: mustEntryPackage(t, reference.TypeWarehouse, reference.Warehouse{
				Entry: reference.Entry{ID: warehouse}, Name: "Main",
			}),
		}},
		&stubRefService{name: reference.TypeClient},
		&stubRefService{name: reference.TypePaymentType},
		&stubRefService{name: reference.TypeProduct, packages: map[uuid.UUID]reference.Package{
			productA: mustEntryPackage(t, reference.TypeProduct, reference.Product{
				Entry: reference.Entry{ID: productA}, Name: "Box", Cost: 10,
			}),
			productB: mustEntryPackage(t, reference.TypeProduct, reference.Product{
				Entry: reference.Entry{ID: productB}, Name: "Crate", Cost: 25,
			}),
		}},
	)
	svc := newTaskService(store, &mockQueue{}, refs)

	packs, err := svc.PackMany(context.Background(),
		user.Actor{ID: author, Role: user.RoleCreator}, database.TaskFilter{})
	if err != nil {
		t.Fatalf("PackMany: %v", err)
	}
	if len(packs) != 2 {
		t.Fatalf("got %d packages, want 2", len(packs))
	}
	if store.lineItemCalls != 1 {
		t.Fatalf("line items fetched %d times, want 1", store.lineItemCalls)
	}
	if store.getUsersCalls != 1 {
		t.Fatalf("users fetched %d times, want 1", store.getUsersCalls)
	}
	for i, p := range packs {
		if p.Author == nil || p.Author.ID != author {
			t.Fatalf("package %d missing author", i)
		}
		if p.Warehouse == nil {
			t.Fatalf("package %d missing warehouse", i)
		}
		if len(p.Products) != 1 {
			t.Fatalf("package %d has %d products, want 1", i, len(p.Products))
		}
		if p.Transitions == nil {
			t.Fatalf("package %d has nil transitions", i)
		}
	}
}
