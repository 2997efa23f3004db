package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain/user"
)

const userColumns = `id, instance_id, code, surname, name, patronymic, phone_number, role`

func scanUser(row scannable) (*user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.InstanceID, &u.Code, &u.Surname, &u.Name,
		&u.Patronymic, &u.PhoneNumber, &u.Role)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser fetches one directory record within the tenant.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*user.User, error) {
	row := s.q(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND instance_id = $2`,
		id, tenantFromCtx(ctx))
	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundWrap(err, "get user %s", id)
	}
	return u, nil
}

// GetUsers fetches directory records in one batch. Missing ids are
// simply absent from the result.
func (s *Store) GetUsers(ctx context.Context, ids []uuid.UUID) ([]user.User, error) {
	if len(ids) == 0 {
		return []user.User{}, nil
	}
	rows, err := s.q(ctx).Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE instance_id = $1 AND id = ANY($2)`,
		tenantFromCtx(ctx), ids)
	if err != nil {
		return nil, persistWrap(err, "get users")
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, persistWrap(err, "get users")
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, persistWrap(err, "get users")
	}
	return orEmpty(users), nil
}
