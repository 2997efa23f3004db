// Package reference defines the master-data entities and the package
// envelope used for their transactional writes.
package reference

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain"
)

// Action drives a collection item write during a parent package write.
// It travels with the item over the wire and is never persisted.
type Action string

const (
	ActionNone   Action = ""
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Known reports whether a is a recognized action tag.
func (a Action) Known() bool {
	switch a {
	case ActionNone, ActionCreate, ActionEdit, ActionDelete:
		return true
	}
	return false
}

// Entry is the common part of every master-data record. Entries are
// soft-deleted: the flag is set and reads filter on it.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	InstanceID string    `json:"instance_id,omitempty"`
	Deleted    bool      `json:"deleted"`
}

// EntryID returns the record identity. Promoted through embedding, it
// lets generic stores and services reach the id without reflection.
func (e Entry) EntryID() uuid.UUID { return e.ID }

// Identifiable is satisfied by every type embedding Entry.
type Identifiable interface {
	EntryID() uuid.UUID
}

// CollectionItem is the common part of records that exist only as a
// child of an entry. Collection rows are hard-deleted, always scoped by
// parent.
type CollectionItem struct {
	Entry
	ParentID uuid.UUID `json:"parent_id"`
	Action   Action    `json:"action,omitempty"`
}

// ItemParentID returns the owning entry id.
func (c CollectionItem) ItemParentID() uuid.UUID { return c.ParentID }

// ItemAction returns the transport-only write action tag.
func (c CollectionItem) ItemAction() Action { return c.Action }

// CollectionMember is satisfied by every type embedding CollectionItem.
type CollectionMember interface {
	Identifiable
	ItemParentID() uuid.UUID
	ItemAction() Action
}

// Package is the transient envelope moved between the facade and its
// callers: one entry plus its owned collection items, assembled on read
// and disassembled on write. Payloads stay raw JSON so the facade can
// dispatch without knowing concrete types.
type Package struct {
	Type        string                       `json:"type"`
	Entry       json.RawMessage              `json:"entry"`
	Collections map[string][]json.RawMessage `json:"collections,omitempty"`
}

// DecodeEntry unmarshals the package entry into a concrete type.
func DecodeEntry[T any](p Package) (T, error) {
	var v T
	if len(p.Entry) == 0 {
		return v, fmt.Errorf("%w: package entry is empty", domain.ErrValidation)
	}
	if err := json.Unmarshal(p.Entry, &v); err != nil {
		return v, fmt.Errorf("%w: decode %s entry: %v", domain.ErrValidation, p.Type, err)
	}
	return v, nil
}

// EncodeEntry marshals a concrete entity into a package envelope.
func EncodeEntry(typeName string, entity any) (Package, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return Package{}, fmt.Errorf("encode %s entry: %w", typeName, err)
	}
	return Package{Type: typeName, Entry: raw}, nil
}
