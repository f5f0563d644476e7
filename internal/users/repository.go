package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taxpilot/taxpilot/internal/platform/db"
	"github.com/taxpilot/taxpilot/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, COALESCE(role, ''), is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// ListUsers returns users, optionally restricted to one role.
func (r *Repository) ListUsers(ctx context.Context, role string) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users
WHERE ($1 = '' OR role = $1) ORDER BY name, id`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser returns one user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	return u, err
}

// ChangeRole swaps the role when it still equals change.OldRole and writes the
// role_audit_log row in the same transaction.
func (r *Repository) ChangeRole(ctx context.Context, change RoleChange) (User, error) {
	var out User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, `UPDATE users SET role = $2, updated_at = $4
WHERE id = $1 AND COALESCE(role, '') = $3 RETURNING `+userColumns, change.UserID, change.NewRole, change.OldRole, change.ChangedAt))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: role of user %d changed concurrently", shared.ErrConflict, change.UserID)
			}
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO role_audit_log (user_id, old_role, new_role, changed_by, reason, changed_at)
VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6)`,
			change.UserID, change.OldRole, change.NewRole, change.ChangedBy, change.Reason, change.ChangedAt)
		if err != nil {
			return fmt.Errorf("users: insert role audit: %w", err)
		}
		out = u
		return nil
	})
	return out, err
}

// RoleHistory lists role changes for a user, newest first.
func (r *Repository) RoleHistory(ctx context.Context, userID int64) ([]RoleChange, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, COALESCE(old_role, ''), new_role, changed_by, COALESCE(reason, ''), changed_at
FROM role_audit_log WHERE user_id = $1 ORDER BY changed_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoleChange
	for rows.Next() {
		var c RoleChange
		if err := rows.Scan(&c.ID, &c.UserID, &c.OldRole, &c.NewRole, &c.ChangedBy, &c.Reason, &c.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
