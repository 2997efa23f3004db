package postgres_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tracklane/trackd/internal/adapter/postgres"
	"github.com/tracklane/trackd/internal/domain"
	"github.com/tracklane/trackd/internal/domain/kit"
	"github.com/tracklane/trackd/internal/domain/reference"
	"github.com/tracklane/trackd/internal/domain/task"
	"github.com/tracklane/trackd/internal/domain/user"
	"github.com/tracklane/trackd/internal/middleware"
)

// ctxWithTenant builds a context carrying the given tenant ID by routing
// a fake HTTP request through the TenantID middleware. This is the only
// safe way to populate the unexported context key used by tenantFromCtx.
func ctxWithTenant(t *testing.T, tenantID string) context.Context {
	t.Helper()
	ch := make(chan context.Context, 1)
	handler := middleware.TenantID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ch <- r.Context()
	}))
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("X-Tenant-ID", tenantID)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	select {
	case ctx := <-ch:
		return ctx
	default:
		t.Fatal("TenantID middleware did not invoke next handler")
		return nil
	}
}

// setupStore creates a pgxpool connection, runs all migrations, and
// returns a ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

func newTask(author uuid.UUID) task.Task {
	return task.Task{
		ID:      uuid.New(),
		Number:  "T-" + uuid.NewString()[:8],
		StateID: task.StateNewUndistributed.ID,
		AuthorID: author,
	}
}

func TestTaskRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := ctxWithTenant(t, uuid.NewString())

	created, err := store.CreateTask(ctx, newTask(uuid.New()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.StateName != "new_undistributed" {
		t.Fatalf("state name %q", created.StateName)
	}
	if created.CreatedAt.IsZero() || created.StateChangedAt.IsZero() {
		t.Fatalf("timestamps not stamped: %+v", created)
	}

	got, err := store.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Number != created.Number {
		t.Fatalf("number %q, want %q", got.Number, created.Number)
	}

	// Other tenants must not see the row.
	otherCtx := ctxWithTenant(t, uuid.NewString())
	if _, err := store.GetTask(otherCtx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cross-tenant get: %v, want ErrNotFound", err)
	}
}

func TestUpdateTaskPartial(t *testing.T) {
	store := setupStore(t)
	ctx := ctxWithTenant(t, uuid.NewString())

	created, err := store.CreateTask(ctx, newTask(uuid.New()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := store.UpdateTask(ctx, created.ID, task.Update{Comment: kit.Some("call first")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Comment != "call first" {
		t.Fatalf("comment %q", updated.Comment)
	}
	if updated.Number != created.Number {
		t.Fatalf("untouched field changed: %q", updated.Number)
	}
	if !updated.StateChangedAt.Equal(created.StateChangedAt) {
		t.Fatalf("state timestamp refreshed without a state change")
	}

	// Empty update degrades to a fetch.
	same, err := store.UpdateTask(ctx, created.ID, task.Update{})
	if err != nil {
		t.Fatalf("empty update: %v", err)
	}
	if same.Comment != "call first" {
		t.Fatalf("empty update altered the row: %+v", same)
	}
}

func TestApplyTransitionGuardsInitialState(t *testing.T) {
	store := setupStore(t)
	ctx := ctxWithTenant(t, uuid.NewString())

	created, err := store.CreateTask(ctx, newTask(uuid.New()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	trs, err := store.ListTransitions(ctx, user.RolePerformer, task.StateNewUndistributed.ID)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if len(trs) == 0 {
		t.Fatal("seeded transitions missing")
	}
	var toWork *task.Transition
	for i, tr := range trs {
		if tr.FinalState == task.StateInWork.ID {
			toWork = &trs[i]
		}
	}
	if toWork == nil {
		t.Fatal("take_into_work transition not seeded")
	}

	performer := uuid.New()
	moved, err := store.ApplyTransition(ctx, created.ID, *toWork, &performer)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if moved.StateID != task.StateInWork.ID {
		t.Fatalf("state %s, want in_work", moved.StateID)
	}
	if moved.PerformerID == nil || *moved.PerformerID != performer {
		t.Fatalf("performer not claimed: %v", moved.PerformerID)
	}
	if !moved.StateChangedAt.After(created.StateChangedAt) {
		t.Fatalf("state timestamp not refreshed")
	}

	// A second apply guards on the initial state and affects zero rows.
	if _, err := store.ApplyTransition(ctx, created.ID, *toWork, nil); !errors.Is(err, domain.ErrIncorrectTransition) {
		t.Fatalf("stale apply: %v, want ErrIncorrectTransition", err)
	}
}

func TestReconcileLineItemsCumulative(t *testing.T) {
	store := setupStore(t)
	ctx := ctxWithTenant(t, uuid.NewString())

	created, err := store.CreateTask(ctx, newTask(uuid.New()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	productStore := store.Products()
	product, err := productStore.Create(ctx, reference.Product{
		Entry: reference.Entry{ID: uuid.New()}, Name: "Box", Cost: 5,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	pid := product.ID

	// Duplicate rows in one batch merge before hitting the table.
	err = store.ReconcileLineItems(ctx, created.ID, []task.LineItem{
		{ProductID: pid, Quantity: 2},
		{ProductID: pid, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	items, err := store.GetLineItems(ctx, []uuid.UUID{created.ID})
	if err != nil {
		t.Fatalf("get items: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 5 {
		t.Fatalf("items %+v, want one row qty 5", items)
	}

	// A negative adjustment sums with the stored quantity.
	if err := store.ReconcileLineItems(ctx, created.ID, []task.LineItem{{ProductID: pid, Quantity: -2}}); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	items, _ = store.GetLineItems(ctx, []uuid.UUID{created.ID})
	if len(items) != 1 || items[0].Quantity != 3 {
		t.Fatalf("items %+v, want one row qty 3", items)
	}

	// Driving the quantity to zero deletes the row.
	if err := store.ReconcileLineItems(ctx, created.ID, []task.LineItem{{ProductID: pid, Quantity: -3}}); err != nil {
		t.Fatalf("zero out: %v", err)
	}
	items, _ = store.GetLineItems(ctx, []uuid.UUID{created.ID})
	if len(items) != 0 {
		t.Fatalf("zeroed row not deleted: %+v", items)
	}
}

func TestEntrySoftDelete(t *testing.T) {
	store := setupStore(t)
	ctx := ctxWithTenant(t, uuid.NewString())

	warehouses := store.Warehouses()
	created, err := warehouses.Create(ctx, reference.Warehouse{
		Entry: reference.Entry{ID: uuid.New()}, Name: "North",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := warehouses.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := warehouses.Get(ctx, created.ID, false); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted row still visible: %v", err)
	}
	kept, err := warehouses.Get(ctx, created.ID, true)
	if err != nil {
		t.Fatalf("get with deleted: %v", err)
	}
	if !kept.Deleted {
		t.Fatalf("deleted flag not set")
	}
}

func TestCollectionParentScope(t *testing.T) {
	store := setupStore(t)
	ctx := ctxWithTenant(t, uuid.NewString())

	clients := store.Clients()
	parent, err := clients.Create(ctx, reference.Client{
		Entry: reference.Entry{ID: uuid.New()}, Surname: "Ivanova",
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	addresses := store.ClientAddresses()
	addr, err := addresses.Create(ctx, parent.ID, reference.ClientAddress{
		CollectionItem: reference.CollectionItem{Entry: reference.Entry{ID: uuid.New()}},
		RawAddress:     "12 Main St",
	})
	if err != nil {
		t.Fatalf("create address: %v", err)
	}

	listed, err := addresses.ListByParent(ctx, parent.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].RawAddress != "12 Main St" {
		t.Fatalf("listed %+v", listed)
	}

	// Deleting through the wrong parent must not touch the row.
	if err := addresses.Delete(ctx, uuid.New(), addr.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("wrong-parent delete: %v, want ErrNotFound", err)
	}
	if err := addresses.Delete(ctx, parent.ID, addr.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	listed, _ = addresses.ListByParent(ctx, parent.ID)
	if len(listed) != 0 {
		t.Fatalf("address not hard-deleted: %+v", listed)
	}
}

func TestTransitionCatalogSeeded(t *testing.T) {
	store := setupStore(t)
	ctx := ctxWithTenant(t, uuid.NewString())

	trs, err := store.ListTransitions(ctx, user.RoleManager, task.StateInWork.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(trs) != 1 || trs[0].FinalState != task.StateCancelledByManager.ID {
		t.Fatalf("manager transitions from in_work: %+v", trs)
	}

	none, err := store.ListTransitions(ctx, user.RolePerformer, task.StatePerformed.ID)
	if err != nil {
		t.Fatalf("list terminal: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("terminal state has transitions: %+v", none)
	}
}
