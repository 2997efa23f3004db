// Package user defines the user directory entities and actor roles.
package user

import "github.com/google/uuid"

// Role governs which transitions and reference operations an actor may
// perform within a tenant.
type Role string

const (
	RoleCreator   Role = "creator"
	RoleManager   Role = "manager"
	RolePerformer Role = "performer"
)

// Known reports whether r is one of the defined roles.
func (r Role) Known() bool {
	switch r {
	case RoleCreator, RoleManager, RolePerformer:
		return true
	}
	return false
}

// CanEditReferences reports whether the role may create, edit or
// delete master data. Reads are open to any authenticated role.
func (r Role) CanEditReferences() bool {
	return r == RoleCreator || r == RoleManager
}

// User is a directory record, resolved in batches when packing tasks.
type User struct {
	ID          uuid.UUID `json:"id"`
	InstanceID  string    `json:"instance_id"`
	Code        string    `json:"code"`
	Surname     string    `json:"surname"`
	Name        string    `json:"name"`
	Patronymic  string    `json:"patronymic,omitempty"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Role        Role      `json:"role"`
}

// Actor is the authenticated identity attached to a request by the
// upstream auth layer. The core trusts it and only applies role and
// ownership checks.
type Actor struct {
	ID   uuid.UUID
	Role Role
}
