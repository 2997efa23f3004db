// Package task defines the delivery task aggregate, its line items and
// the state machine rules that gate transitions.
package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain"
	"github.com/tracklane/trackd/internal/domain/kit"
	"github.com/tracklane/trackd/internal/domain/user"
)

// Task is one delivery task scoped to a tenant. StateID always refers
// to a member of the fixed state enumeration; InstanceID is immutable
// after creation.
type Task struct {
	ID           uuid.UUID  `json:"id"`
	InstanceID   string     `json:"instance_id"`
	Number       string     `json:"number"`
	StateID      uuid.UUID  `json:"state_id"`
	StateName    string     `json:"state_name"`
	StateCaption string     `json:"state_caption"`
	AuthorID     uuid.UUID  `json:"author_id"`
	PerformerID  *uuid.UUID `json:"performer_id,omitempty"`

	WarehouseID     *uuid.UUID `json:"warehouse_id,omitempty"`
	ClientID        *uuid.UUID `json:"client_id,omitempty"`
	ClientAddressID *uuid.UUID `json:"client_address_id,omitempty"`
	PaymentTypeID   *uuid.UUID `json:"payment_type_id,omitempty"`

	Cost         *float64 `json:"cost,omitempty"`
	DeliveryCost *float64 `json:"delivery_cost,omitempty"`
	Comment      string   `json:"comment,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	StateChangedAt time.Time  `json:"state_changed_at"`
	Receipt        *time.Time `json:"receipt,omitempty"`
	ReceiptActual  *time.Time `json:"receipt_actual,omitempty"`
	DeliveryFrom   *time.Time `json:"delivery_from,omitempty"`
	DeliveryTo     *time.Time `json:"delivery_to,omitempty"`
	DeliveryActual *time.Time `json:"delivery_actual,omitempty"`

	Items []LineItem `json:"items,omitempty"`
}

// LineItem is one (task, product) association. Quantity is always >= 1
// once persisted; reconciliation deletes rows driven to zero or below.
type LineItem struct {
	ID         uuid.UUID `json:"id"`
	InstanceID string    `json:"instance_id,omitempty"`
	TaskID     uuid.UUID `json:"task_id,omitempty"`
	ProductID  uuid.UUID `json:"product_id"`
	Quantity   int32     `json:"quantity"`
}

// MergeLineItems deduplicates items by product id, summing quantities.
// Order of first appearance is preserved. Reconciliation requires a
// merged working set so that one batch never carries two rows for the
// same product.
func MergeLineItems(items []LineItem) []LineItem {
	if len(items) < 2 {
		return items
	}
	merged := make([]LineItem, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		if i, ok := index[it.ProductID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged
}

// CreateRequest holds the caller-supplied fields for a new task. The
// server stamps identity, tenant, author and timestamps.
type CreateRequest struct {
	Number          string     `json:"number"`
	PerformerID     *uuid.UUID `json:"performer_id,omitempty"`
	WarehouseID     *uuid.UUID `json:"warehouse_id,omitempty"`
	ClientID        *uuid.UUID `json:"client_id,omitempty"`
	ClientAddressID *uuid.UUID `json:"client_address_id,omitempty"`
	PaymentTypeID   *uuid.UUID `json:"payment_type_id,omitempty"`
	Cost            *float64   `json:"cost,omitempty"`
	DeliveryCost    *float64   `json:"delivery_cost,omitempty"`
	Comment         string     `json:"comment,omitempty"`
	Receipt         *time.Time `json:"receipt,omitempty"`
	DeliveryFrom    *time.Time `json:"delivery_from,omitempty"`
	DeliveryTo      *time.Time `json:"delivery_to,omitempty"`
	Items           []LineItem `json:"items,omitempty"`
}

// Validate checks the request before any I/O happens.
func (r CreateRequest) Validate() error {
	if r.Number == "" {
		return fmt.Errorf("%w: task number is required", domain.ErrValidation)
	}
	for _, it := range r.Items {
		if it.ProductID == uuid.Nil {
			return fmt.Errorf("%w: line item product id is required", domain.ErrValidation)
		}
	}
	return nil
}

// Update carries a partial task edit. Absent fields stay untouched;
// fields supplied as null clear the column. StateID is accepted only on
// the transition path, never on plain edits.
type Update struct {
	Number          kit.Opt[string]    `json:"number,omitzero"`
	StateID         kit.Opt[uuid.UUID] `json:"state_id,omitzero"`
	PerformerID     kit.Opt[uuid.UUID] `json:"performer_id,omitzero"`
	WarehouseID     kit.Opt[uuid.UUID] `json:"warehouse_id,omitzero"`
	ClientID        kit.Opt[uuid.UUID] `json:"client_id,omitzero"`
	ClientAddressID kit.Opt[uuid.UUID] `json:"client_address_id,omitzero"`
	PaymentTypeID   kit.Opt[uuid.UUID] `json:"payment_type_id,omitzero"`
	Cost            kit.Opt[float64]   `json:"cost,omitzero"`
	DeliveryCost    kit.Opt[float64]   `json:"delivery_cost,omitzero"`
	Comment         kit.Opt[string]    `json:"comment,omitzero"`
	Receipt         kit.Opt[time.Time] `json:"receipt,omitzero"`
	ReceiptActual   kit.Opt[time.Time] `json:"receipt_actual,omitzero"`
	DeliveryFrom    kit.Opt[time.Time] `json:"delivery_from,omitzero"`
	DeliveryTo      kit.Opt[time.Time] `json:"delivery_to,omitzero"`
	DeliveryActual  kit.Opt[time.Time] `json:"delivery_actual,omitzero"`

	Items []LineItem `json:"items,omitempty"`
}

// Empty reports whether no column-level field was supplied. Line items
// are reconciled separately and do not count.
func (u Update) Empty() bool {
	return !u.Number.Valid && !u.StateID.Valid && !u.PerformerID.Valid &&
		!u.WarehouseID.Valid && !u.ClientID.Valid && !u.ClientAddressID.Valid &&
		!u.PaymentTypeID.Valid && !u.Cost.Valid && !u.DeliveryCost.Valid &&
		!u.Comment.Valid && !u.Receipt.Valid && !u.ReceiptActual.Valid &&
		!u.DeliveryFrom.Valid && !u.DeliveryTo.Valid && !u.DeliveryActual.Valid
}

// CanActorTransit applies the pure part of the transition guard: the
// transition must belong to the actor's role, must start from the
// task's currently persisted state, and a performer may not act on a
// task already owned by another performer. The persisted-state re-read
// and row locking live in the store.
func CanActorTransit(t Task, tr Transition, actor user.Actor) error {
	if _, ok := StateByID(t.StateID); !ok {
		return fmt.Errorf("task %s state %s: %w", t.ID, t.StateID, domain.ErrIncorrectState)
	}
	if tr.Role != actor.Role {
		return fmt.Errorf("transition %s for role %s: %w", tr.ID, actor.Role, domain.ErrIncorrectTransition)
	}
	if tr.InitialState != t.StateID {
		return fmt.Errorf("transition %s from state %s: %w", tr.ID, t.StateID, domain.ErrIncorrectTransition)
	}
	if actor.Role == user.RolePerformer && t.PerformerID != nil && *t.PerformerID != actor.ID {
		return fmt.Errorf("task %s belongs to another performer: %w", t.ID, domain.ErrTaskForbidden)
	}
	return nil
}
