package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tracklane/trackd/internal/domain"
	"github.com/tracklane/trackd/internal/domain/task"
	"github.com/tracklane/trackd/internal/port/database"
)

const taskColumns = `id, instance_id, number, state_id, author_id, performer_id,
	warehouse_id, client_id, client_address_id, payment_type_id,
	cost, delivery_cost, comment, created_at, state_changed_at,
	receipt, receipt_actual, delivery_from, delivery_to, delivery_actual`

// scanTask scans one task row and fills the denormalized state fields
// from the in-process state enumeration. A row whose state id resolves
// to no known state is a data inconsistency and surfaces as such.
func scanTask(row scannable) (*task.Task, error) {
	var t task.Task
	err := row.Scan(&t.ID, &t.InstanceID, &t.Number, &t.StateID, &t.AuthorID, &t.PerformerID,
		&t.WarehouseID, &t.ClientID, &t.ClientAddressID, &t.PaymentTypeID,
		&t.Cost, &t.DeliveryCost, &t.Comment, &t.CreatedAt, &t.StateChangedAt,
		&t.Receipt, &t.ReceiptActual, &t.DeliveryFrom, &t.DeliveryTo, &t.DeliveryActual)
	if err != nil {
		return nil, err
	}
	st, ok := task.StateByID(t.StateID)
	if !ok {
		return nil, fmt.Errorf("task %s has state %s: %w", t.ID, t.StateID, domain.ErrIncorrectState)
	}
	t.StateName, t.StateCaption = st.Name, st.Caption
	return &t, nil
}

// CreateTask persists a new task row. Created and state-change
// timestamps are stamped server-side; the returned row is authoritative.
func (s *Store) CreateTask(ctx context.Context, t task.Task) (*task.Task, error) {
	if t.ID == uuid.Nil || t.AuthorID == uuid.Nil || t.Number == "" {
		return nil, fmt.Errorf("%w: task id, author and number are required", domain.ErrValidation)
	}
	if _, ok := task.StateByID(t.StateID); !ok {
		return nil, fmt.Errorf("initial state %s: %w", t.StateID, domain.ErrIncorrectState)
	}

	row := s.q(ctx).QueryRow(ctx, `
		INSERT INTO tasks (id, instance_id, number, state_id, author_id, performer_id,
			warehouse_id, client_id, client_address_id, payment_type_id,
			cost, delivery_cost, comment, created_at, state_changed_at,
			receipt, delivery_from, delivery_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now(), $14, $15, $16)
		RETURNING `+taskColumns,
		t.ID, tenantFromCtx(ctx), t.Number, t.StateID, t.AuthorID, t.PerformerID,
		t.WarehouseID, t.ClientID, t.ClientAddressID, t.PaymentTypeID,
		t.Cost, t.DeliveryCost, t.Comment, t.Receipt, t.DeliveryFrom, t.DeliveryTo)

	created, err := scanTask(row)
	if err != nil {
		return nil, persistWrap(err, "create task %s", t.ID)
	}
	return created, nil
}

// GetTask fetches one task by id within the tenant.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	row := s.q(ctx).QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND instance_id = $2`,
		id, tenantFromCtx(ctx))
	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return t, nil
}

// GetTaskForUpdate fetches one task under FOR UPDATE. Concurrent
// transitions serialize on this row lock; call it inside InTx.
func (s *Store) GetTaskForUpdate(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	row := s.q(ctx).QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND instance_id = $2 FOR UPDATE`,
		id, tenantFromCtx(ctx))
	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "lock task %s", id)
	}
	return t, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *Store) ListTasks(ctx context.Context, f database.TaskFilter) ([]task.Task, error) {
	sql := `SELECT ` + taskColumns + ` FROM tasks WHERE instance_id = $1`
	args := []any{tenantFromCtx(ctx)}

	switch {
	case f.PerformerID != nil && f.Unassigned:
		args = append(args, *f.PerformerID)
		sql += fmt.Sprintf(" AND (performer_id = $%d OR performer_id IS NULL)", len(args))
	case f.PerformerID != nil:
		args = append(args, *f.PerformerID)
		sql += fmt.Sprintf(" AND performer_id = $%d", len(args))
	case f.Unassigned:
		sql += " AND performer_id IS NULL"
	}
	if f.AuthorID != nil {
		args = append(args, *f.AuthorID)
		sql += fmt.Sprintf(" AND author_id = $%d", len(args))
	}
	if len(f.StateIDs) > 0 {
		args = append(args, f.StateIDs)
		sql += fmt.Sprintf(" AND state_id = ANY($%d)", len(args))
	}
	sql += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, persistWrap(err, "list tasks")
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, persistWrap(err, "list tasks")
	}
	return orEmpty(tasks), nil
}

// UpdateTask performs a partial update built field-by-field from the
// supplied values. A state change refreshes the state-change timestamp
// in the same statement. An empty update degrades to a plain fetch.
func (s *Store) UpdateTask(ctx context.Context, id uuid.UUID, upd task.Update) (*task.Task, error) {
	if st, ok := upd.StateID.Get(); ok {
		if _, known := task.StateByID(st); !known {
			return nil, fmt.Errorf("state %s: %w", st, domain.ErrIncorrectState)
		}
	}

	b := newUpdateBuilder(id, tenantFromCtx(ctx))
	setOpt(b, "number", upd.Number)
	if st, ok := upd.StateID.Get(); ok {
		b.set("state_id", st)
		b.setRaw("state_changed_at = now()")
	}
	setOptUUID(b, "performer_id", upd.PerformerID)
	setOptUUID(b, "warehouse_id", upd.WarehouseID)
	setOptUUID(b, "client_id", upd.ClientID)
	setOptUUID(b, "client_address_id", upd.ClientAddressID)
	setOptUUID(b, "payment_type_id", upd.PaymentTypeID)
	setOpt(b, "cost", upd.Cost)
	setOpt(b, "delivery_cost", upd.DeliveryCost)
	setOpt(b, "comment", upd.Comment)
	setOptTime(b, "receipt", upd.Receipt)
	setOptTime(b, "receipt_actual", upd.ReceiptActual)
	setOptTime(b, "delivery_from", upd.DeliveryFrom)
	setOptTime(b, "delivery_to", upd.DeliveryTo)
	setOptTime(b, "delivery_actual", upd.DeliveryActual)

	if b.empty() {
		return s.GetTask(ctx, id)
	}

	row := s.q(ctx).QueryRow(ctx,
		`UPDATE tasks SET `+b.clause()+` WHERE id = $1 AND instance_id = $2 RETURNING `+taskColumns,
		b.args...)
	t, err := scanTask(row)
	if err != nil {
		return nil, persistWrap(err, "update task %s", id)
	}
	return t, nil
}

// ApplyTransition conditionally writes the transition's final state.
// The guard on the initial state makes a concurrent loser affect zero
// rows, which surfaces as an incorrect-transition error.
func (s *Store) ApplyTransition(ctx context.Context, id uuid.UUID, tr task.Transition, performerID *uuid.UUID) (*task.Task, error) {
	sql := `UPDATE tasks SET state_id = $3, state_changed_at = now()`
	args := []any{id, tenantFromCtx(ctx), tr.FinalState, tr.InitialState}
	if performerID != nil {
		args = append(args, *performerID)
		sql += fmt.Sprintf(", performer_id = $%d", len(args))
	}
	sql += ` WHERE id = $1 AND instance_id = $2 AND state_id = $4 RETURNING ` + taskColumns

	row := s.q(ctx).QueryRow(ctx, sql, args...)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s left state %s: %w", id, tr.InitialState, domain.ErrIncorrectTransition)
		}
		return nil, persistWrap(err, "apply transition %s to task %s", tr.ID, id)
	}
	return t, nil
}

// DeleteTask removes a task row; line items cascade.
func (s *Store) DeleteTask(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q(ctx).Exec(ctx,
		`DELETE FROM tasks WHERE id = $1 AND instance_id = $2`,
		id, tenantFromCtx(ctx))
	return execExpectOne(tag, err, "delete task %s", id)
}

// ReconcileLineItems applies cumulative quantity adjustments in one
// transaction: merge the batch by product, upsert summing quantities,
// then delete every row the merge drove to zero or below.
func (s *Store) ReconcileLineItems(ctx context.Context, taskID uuid.UUID, items []task.LineItem) error {
	items = task.MergeLineItems(items)
	if len(items) == 0 {
		return nil
	}

	productIDs := make([]uuid.UUID, len(items))
	quantities := make([]int32, len(items))
	for i, it := range items {
		productIDs[i] = it.ProductID
		quantities[i] = it.Quantity
	}

	return s.InTx(ctx, func(ctx context.Context) error {
		rows, err := s.q(ctx).Query(ctx, `
			INSERT INTO task_line_items (id, instance_id, task_id, product_id, quantity)
			SELECT gen_random_uuid(), $1, $2, u.product_id, u.quantity
			FROM unnest($3::uuid[], $4::int[]) AS u(product_id, quantity)
			ON CONFLICT (task_id, product_id)
			DO UPDATE SET quantity = task_line_items.quantity + EXCLUDED.quantity
			RETURNING id, quantity`,
			tenantFromCtx(ctx), taskID, productIDs, quantities)
		if err != nil {
			return persistWrap(err, "reconcile line items for task %s", taskID)
		}

		var toDelete []uuid.UUID
		for rows.Next() {
			var id uuid.UUID
			var qty int32
			if err := rows.Scan(&id, &qty); err != nil {
				rows.Close()
				return persistWrap(err, "reconcile line items for task %s", taskID)
			}
			if qty <= 0 {
				toDelete = append(toDelete, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return persistWrap(err, "reconcile line items for task %s", taskID)
		}

		if len(toDelete) > 0 {
			_, err := s.q(ctx).Exec(ctx, `
				DELETE FROM task_line_items
				WHERE instance_id = $1 AND task_id = $2 AND id = ANY($3)`,
				tenantFromCtx(ctx), taskID, toDelete)
			if err != nil {
				return persistWrap(err, "delete zeroed line items for task %s", taskID)
			}
		}
		return nil
	})
}

// GetLineItems returns the line items of one or more tasks.
func (s *Store) GetLineItems(ctx context.Context, taskIDs []uuid.UUID) ([]task.LineItem, error) {
	if len(taskIDs) == 0 {
		return []task.LineItem{}, nil
	}
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, instance_id, task_id, product_id, quantity
		FROM task_line_items
		WHERE instance_id = $1 AND task_id = ANY($2)
		ORDER BY task_id, product_id`,
		tenantFromCtx(ctx), taskIDs)
	if err != nil {
		return nil, persistWrap(err, "get line items")
	}
	defer rows.Close()

	var items []task.LineItem
	for rows.Next() {
		var it task.LineItem
		if err := rows.Scan(&it.ID, &it.InstanceID, &it.TaskID, &it.ProductID, &it.Quantity); err != nil {
			return nil, persistWrap(err, "get line items")
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, persistWrap(err, "get line items")
	}
	return orEmpty(items), nil
}
