package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain/task"
	"github.com/tracklane/trackd/internal/domain/user"
)

// minTransitionHint bounds the pre-size hint from below so small or
// freshly-analyzed catalogs do not cause repeated reallocation.
const minTransitionHint = 10

// transitionCountHint reads the planner's row estimate for the
// transition catalog once per process. The estimate may be stale or
// zero; it only sizes slice allocations.
func (s *Store) transitionCountHint(ctx context.Context) int {
	s.hintOnce.Do(func() {
		var n int64
		err := s.q(ctx).QueryRow(ctx,
			`SELECT COALESCE(reltuples::bigint, 0) FROM pg_class WHERE relname = 'task_state_transitions'`,
		).Scan(&n)
		if err != nil || n < minTransitionHint {
			n = minTransitionHint
		}
		s.hint = int(n)
	})
	return s.hint
}

func scanTransition(row scannable) (*task.Transition, error) {
	var tr task.Transition
	if err := row.Scan(&tr.ID, &tr.Role, &tr.InitialState, &tr.FinalState, &tr.Button); err != nil {
		return nil, err
	}
	return &tr, nil
}

// ListTransitions returns every transition a role may execute from the
// given state. Zero rows is a valid answer.
func (s *Store) ListTransitions(ctx context.Context, role user.Role, initialState uuid.UUID) ([]task.Transition, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, role, initial_state, final_state, button
		FROM task_state_transitions
		WHERE role = $1 AND initial_state = $2
		ORDER BY button`,
		role, initialState)
	if err != nil {
		return nil, persistWrap(err, "list transitions for %s", role)
	}
	defer rows.Close()

	transitions := make([]task.Transition, 0, s.transitionCountHint(ctx))
	for rows.Next() {
		tr, err := scanTransition(rows)
		if err != nil {
			return nil, persistWrap(err, "list transitions for %s", role)
		}
		transitions = append(transitions, *tr)
	}
	if err := rows.Err(); err != nil {
		return nil, persistWrap(err, "list transitions for %s", role)
	}
	return transitions, nil
}

// GetTransition fetches one catalog row by id.
func (s *Store) GetTransition(ctx context.Context, id uuid.UUID) (*task.Transition, error) {
	row := s.q(ctx).QueryRow(ctx, `
		SELECT id, role, initial_state, final_state, button
		FROM task_state_transitions
		WHERE id = $1`, id)
	tr, err := scanTransition(row)
	if err != nil {
		return nil, notFoundWrap(err, "get transition %s", id)
	}
	return tr, nil
}

// CanTransit checks that the transition exists for the role and that
// its initial state matches the task's currently persisted state, not
// whatever the client last observed.
func (s *Store) CanTransit(ctx context.Context, taskID uuid.UUID, role user.Role, transitionID uuid.UUID) (bool, error) {
	var ok bool
	err := s.q(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM task_state_transitions tst
			JOIN tasks t ON t.state_id = tst.initial_state
			WHERE tst.id = $1 AND tst.role = $2 AND t.id = $3 AND t.instance_id = $4
		)`,
		transitionID, role, taskID, tenantFromCtx(ctx)).Scan(&ok)
	if err != nil {
		return false, persistWrap(err, "can transit task %s via %s", taskID, transitionID)
	}
	return ok, nil
}
