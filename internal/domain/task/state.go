package task

import (
	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain/user"
)

// State is one entry of the closed task state enumeration. States are
// defined at deploy time and are not user-editable.
type State struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Caption string    `json:"caption"`
}

// The fixed state set. IDs are stable across deployments; the seed
// migration inserts the same values.
var (
	StateNewUndistributed = State{uuid.MustParse("921d2d14-4ef9-4e3c-8d63-d025d326e4d1"), "new_undistributed", "New, unassigned"}
	StateNew              = State{uuid.MustParse("1df6ff51-7bbb-42ee-b7c2-6babd8ecf43d"), "new", "New, reserved"}
	StateInWork           = State{uuid.MustParse("ca3c93bc-6713-4978-9da2-a07f102f83d2"), "in_work", "In work"}
	StatePerformed        = State{uuid.MustParse("d2e70061-3a5e-42bc-bc6f-62d8728a0556"), "performed", "Performed"}
	StateCancelled        = State{uuid.MustParse("d84f296b-3a86-4f0b-8d01-ae91a7a1e144"), "cancelled", "Cancelled"}
	StateCancelledByManager = State{uuid.MustParse("0a79703f-4570-4a58-8509-8e5e7ba02ec2"), "cancelled_by_manager", "Cancelled by manager"}
)

// states indexes the enumeration by id.
var states = map[uuid.UUID]State{
	StateNewUndistributed.ID:   StateNewUndistributed,
	StateNew.ID:                StateNew,
	StateInWork.ID:             StateInWork,
	StatePerformed.ID:          StatePerformed,
	StateCancelled.ID:          StateCancelled,
	StateCancelledByManager.ID: StateCancelledByManager,
}

// StateByID resolves a state id against the known enumeration.
func StateByID(id uuid.UUID) (State, bool) {
	s, ok := states[id]
	return s, ok
}

// Terminal reports whether the state ends the task lifecycle.
func (s State) Terminal() bool {
	switch s.ID {
	case StatePerformed.ID, StateCancelled.ID, StateCancelledByManager.ID:
		return true
	}
	return false
}

// Transition is one allowed (role, initial state) -> final state move.
// Transitions are data, not code: new workflows are added by seeding
// rows, not by redeploying logic.
type Transition struct {
	ID           uuid.UUID `json:"id"`
	Role         user.Role `json:"role"`
	InitialState uuid.UUID `json:"initial_state"`
	FinalState   uuid.UUID `json:"final_state"`
	Button       string    `json:"button"`
}
