package reference

import "fmt"

// WriteState tracks a package write through its lifecycle. The only
// legal forward order is Received, ParentWritten, CollectionsWritten,
// Packed, Committed; any non-terminal state may fall to RolledBack.
type WriteState int

const (
	WriteReceived WriteState = iota
	WriteParentWritten
	WriteCollectionsWritten
	WritePacked
	WriteCommitted
	WriteRolledBack
)

// String returns the lifecycle state name.
func (s WriteState) String() string {
	switch s {
	case WriteReceived:
		return "received"
	case WriteParentWritten:
		return "parent_written"
	case WriteCollectionsWritten:
		return "collections_written"
	case WritePacked:
		return "packed"
	case WriteCommitted:
		return "committed"
	case WriteRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// Terminal reports whether no further transition is allowed.
func (s WriteState) Terminal() bool {
	return s == WriteCommitted || s == WriteRolledBack
}

// WriteLifecycle is the state holder for one package write.
type WriteLifecycle struct {
	state WriteState
}

// NewWriteLifecycle starts a lifecycle in the Received state.
func NewWriteLifecycle() *WriteLifecycle {
	return &WriteLifecycle{state: WriteReceived}
}

// State returns the current lifecycle state.
func (l *WriteLifecycle) State() WriteState {
	return l.state
}

// Advance moves to the next forward state. Skipping states or moving
// out of a terminal state is a programming error and is reported.
func (l *WriteLifecycle) Advance(next WriteState) error {
	if l.state.Terminal() {
		return fmt.Errorf("write lifecycle: cannot leave terminal state %s", l.state)
	}
	if next != l.state+1 || next == WriteRolledBack {
		return fmt.Errorf("write lifecycle: illegal transition %s -> %s", l.state, next)
	}
	l.state = next
	return nil
}

// Fail moves any non-terminal state to RolledBack.
func (l *WriteLifecycle) Fail() error {
	if l.state.Terminal() {
		return fmt.Errorf("write lifecycle: cannot roll back terminal state %s", l.state)
	}
	l.state = WriteRolledBack
	return nil
}
