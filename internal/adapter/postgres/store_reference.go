package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain"
	"github.com/tracklane/trackd/internal/domain/reference"
)

// entryStore implements database.EntryStore for one reference entry
// table. The CRUD shape is written once; each type contributes its
// table name, extra columns, scan and update wiring.
type entryStore[T reference.Identifiable, U any] struct {
	s           *Store
	table       string
	allCols     string
	insertSQL   string
	scan        func(scannable) (*T, error)
	insertArgs  func(T) []any
	applyUpdate func(*updateBuilder, U)
}

func newEntryStore[T reference.Identifiable, U any](
	s *Store,
	table string,
	extraCols []string,
	scan func(scannable) (*T, error),
	insertArgs func(T) []any,
	applyUpdate func(*updateBuilder, U),
) *entryStore[T, U] {
	allCols := "id, instance_id, deleted, " + strings.Join(extraCols, ", ")
	ph := make([]string, len(extraCols))
	for i := range extraCols {
		ph[i] = fmt.Sprintf("$%d", i+3)
	}
	return &entryStore[T, U]{
		s:       s,
		table:   table,
		allCols: allCols,
		insertSQL: fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES ($1, $2, false, %s) RETURNING %s",
			table, allCols, strings.Join(ph, ", "), allCols),
		scan:        scan,
		insertArgs:  insertArgs,
		applyUpdate: applyUpdate,
	}
}

func (e *entryStore[T, U]) Create(ctx context.Context, entity T) (*T, error) {
	id := entity.EntryID()
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: %s id is required", domain.ErrValidation, e.table)
	}
	args := append([]any{id, tenantFromCtx(ctx)}, e.insertArgs(entity)...)
	row := e.s.q(ctx).QueryRow(ctx, e.insertSQL, args...)
	created, err := e.scan(row)
	if err != nil {
		return nil, persistWrap(err, "create %s %s", e.table, id)
	}
	return created, nil
}

func (e *entryStore[T, U]) Get(ctx context.Context, id uuid.UUID, withDeleted bool) (*T, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1 AND instance_id = $2", e.allCols, e.table)
	if !withDeleted {
		sql += " AND NOT deleted"
	}
	row := e.s.q(ctx).QueryRow(ctx, sql, id, tenantFromCtx(ctx))
	entity, err := e.scan(row)
	if err != nil {
		return nil, notFoundWrap(err, "get %s %s", e.table, id)
	}
	return entity, nil
}

func (e *entryStore[T, U]) GetMany(ctx context.Context, ids []uuid.UUID, withDeleted bool) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE instance_id = $1 AND id = ANY($2)", e.allCols, e.table)
	if !withDeleted {
		sql += " AND NOT deleted"
	}
	rows, err := e.s.q(ctx).Query(ctx, sql, tenantFromCtx(ctx), ids)
	if err != nil {
		return nil, persistWrap(err, "get many %s", e.table)
	}
	defer rows.Close()

	var entities []T
	for rows.Next() {
		entity, err := e.scan(rows)
		if err != nil {
			return nil, persistWrap(err, "get many %s", e.table)
		}
		entities = append(entities, *entity)
	}
	if err := rows.Err(); err != nil {
		return nil, persistWrap(err, "get many %s", e.table)
	}
	return orEmpty(entities), nil
}

func (e *entryStore[T, U]) Update(ctx context.Context, id uuid.UUID, upd U) (*T, error) {
	b := newUpdateBuilder(id, tenantFromCtx(ctx))
	e.applyUpdate(b, upd)
	if b.empty() {
		return e.Get(ctx, id, false)
	}

	sql := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $1 AND instance_id = $2 AND NOT deleted RETURNING %s",
		e.table, b.clause(), e.allCols)
	row := e.s.q(ctx).QueryRow(ctx, sql, b.args...)
	entity, err := e.scan(row)
	if err != nil {
		return nil, persistWrap(err, "update %s %s", e.table, id)
	}
	return entity, nil
}

func (e *entryStore[T, U]) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := e.s.q(ctx).Exec(ctx,
		fmt.Sprintf("UPDATE %s SET deleted = true WHERE id = $1 AND instance_id = $2 AND NOT deleted", e.table),
		id, tenantFromCtx(ctx))
	return execExpectOne(tag, err, "delete %s %s", e.table, id)
}

// collectionStore implements database.CollectionStore for one
// parent-owned table. Every statement is scoped by (id, parent, tenant)
// so a same-id row can never be touched under the wrong parent.
type collectionStore[T reference.CollectionMember, U any] struct {
	s           *Store
	table       string
	allCols     string
	insertSQL   string
	scan        func(scannable) (*T, error)
	insertArgs  func(T) []any
	applyUpdate func(*updateBuilder, U)
}

func newCollectionStore[T reference.CollectionMember, U any](
	s *Store,
	table string,
	extraCols []string,
	scan func(scannable) (*T, error),
	insertArgs func(T) []any,
	applyUpdate func(*updateBuilder, U),
) *collectionStore[T, U] {
	allCols := "id, instance_id, parent_id, " + strings.Join(extraCols, ", ")
	ph := make([]string, len(extraCols))
	for i := range extraCols {
		ph[i] = fmt.Sprintf("$%d", i+4)
	}
	return &collectionStore[T, U]{
		s:       s,
		table:   table,
		allCols: allCols,
		insertSQL: fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES ($1, $2, $3, %s) RETURNING %s",
			table, allCols, strings.Join(ph, ", "), allCols),
		scan:        scan,
		insertArgs:  insertArgs,
		applyUpdate: applyUpdate,
	}
}

func (c *collectionStore[T, U]) Create(ctx context.Context, parentID uuid.UUID, item T) (*T, error) {
	id := item.EntryID()
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: %s id is required", domain.ErrValidation, c.table)
	}
	args := append([]any{id, tenantFromCtx(ctx), parentID}, c.insertArgs(item)...)
	row := c.s.q(ctx).QueryRow(ctx, c.insertSQL, args...)
	created, err := c.scan(row)
	if err != nil {
		return nil, persistWrap(err, "create %s %s", c.table, id)
	}
	return created, nil
}

func (c *collectionStore[T, U]) Get(ctx context.Context, parentID, id uuid.UUID) (*T, error) {
	row := c.s.q(ctx).QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = $1 AND parent_id = $2 AND instance_id = $3", c.allCols, c.table),
		id, parentID, tenantFromCtx(ctx))
	item, err := c.scan(row)
	if err != nil {
		return nil, notFoundWrap(err, "get %s %s", c.table, id)
	}
	return item, nil
}

func (c *collectionStore[T, U]) ListByParent(ctx context.Context, parentID uuid.UUID) ([]T, error) {
	rows, err := c.s.q(ctx).Query(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE parent_id = $1 AND instance_id = $2 ORDER BY id", c.allCols, c.table),
		parentID, tenantFromCtx(ctx))
	if err != nil {
		return nil, persistWrap(err, "list %s of %s", c.table, parentID)
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		item, err := c.scan(rows)
		if err != nil {
			return nil, persistWrap(err, "list %s of %s", c.table, parentID)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, persistWrap(err, "list %s of %s", c.table, parentID)
	}
	return orEmpty(items), nil
}

func (c *collectionStore[T, U]) Update(ctx context.Context, parentID, id uuid.UUID, upd U) (*T, error) {
	b := newUpdateBuilder(id, parentID, tenantFromCtx(ctx))
	c.applyUpdate(b, upd)
	if b.empty() {
		return c.Get(ctx, parentID, id)
	}

	sql := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $1 AND parent_id = $2 AND instance_id = $3 RETURNING %s",
		c.table, b.clause(), c.allCols)
	row := c.s.q(ctx).QueryRow(ctx, sql, b.args...)
	item, err := c.scan(row)
	if err != nil {
		return nil, persistWrap(err, "update %s %s", c.table, id)
	}
	return item, nil
}

func (c *collectionStore[T, U]) Delete(ctx context.Context, parentID, id uuid.UUID) error {
	tag, err := c.s.q(ctx).Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = $1 AND parent_id = $2 AND instance_id = $3", c.table),
		id, parentID, tenantFromCtx(ctx))
	return execExpectOne(tag, err, "delete %s %s", c.table, id)
}

// initReferenceStores wires the per-type stores onto the Store.
func (s *Store) initReferenceStores() {
	s.products = newEntryStore(s, "products",
		[]string{"name", "vendor_code", "cost"},
		func(row scannable) (*reference.Product, error) {
			var p reference.Product
			if err := row.Scan(&p.ID, &p.InstanceID, &p.Deleted, &p.Name, &p.VendorCode, &p.Cost); err != nil {
				return nil, err
			}
			return &p, nil
		},
		func(p reference.Product) []any { return []any{p.Name, p.VendorCode, p.Cost} },
		func(b *updateBuilder, u reference.ProductUpdate) {
			setOpt(b, "name", u.Name)
			setOpt(b, "vendor_code", u.VendorCode)
			setOpt(b, "cost", u.Cost)
		})

	s.paymentTypes = newEntryStore(s, "payment_types",
		[]string{"name"},
		func(row scannable) (*reference.PaymentType, error) {
			var p reference.PaymentType
			if err := row.Scan(&p.ID, &p.InstanceID, &p.Deleted, &p.Name); err != nil {
				return nil, err
			}
			return &p, nil
		},
		func(p reference.PaymentType) []any { return []any{p.Name} },
		func(b *updateBuilder, u reference.PaymentTypeUpdate) {
			setOpt(b, "name", u.Name)
		})

	s.warehouses = newEntryStore(s, "warehouses",
		[]string{"name", "raw_address"},
		func(row scannable) (*reference.Warehouse, error) {
			var w reference.Warehouse
			if err := row.Scan(&w.ID, &w.InstanceID, &w.Deleted, &w.Name, &w.RawAddress); err != nil {
				return nil, err
			}
			return &w, nil
		},
		func(w reference.Warehouse) []any { return []any{w.Name, w.RawAddress} },
		func(b *updateBuilder, u reference.WarehouseUpdate) {
			setOpt(b, "name", u.Name)
			setOpt(b, "raw_address", u.RawAddress)
		})

	s.clients = newEntryStore(s, "clients",
		[]string{"surname", "name", "patronymic", "phone_number"},
		func(row scannable) (*reference.Client, error) {
			var c reference.Client
			if err := row.Scan(&c.ID, &c.InstanceID, &c.Deleted, &c.Surname, &c.Name, &c.Patronymic, &c.PhoneNumber); err != nil {
				return nil, err
			}
			return &c, nil
		},
		func(c reference.Client) []any { return []any{c.Surname, c.Name, c.Patronymic, c.PhoneNumber} },
		func(b *updateBuilder, u reference.ClientUpdate) {
			setOpt(b, "surname", u.Surname)
			setOpt(b, "name", u.Name)
			setOpt(b, "patronymic", u.Patronymic)
			setOpt(b, "phone_number", u.PhoneNumber)
		})

	s.clientAddresses = newCollectionStore(s, "client_addresses",
		[]string{"raw_address"},
		func(row scannable) (*reference.ClientAddress, error) {
			var a reference.ClientAddress
			if err := row.Scan(&a.ID, &a.InstanceID, &a.ParentID, &a.RawAddress); err != nil {
				return nil, err
			}
			return &a, nil
		},
		func(a reference.ClientAddress) []any { return []any{a.RawAddress} },
		func(b *updateBuilder, u reference.ClientAddressUpdate) {
			setOpt(b, "raw_address", u.RawAddress)
		})
}
