package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taxpilot/taxpilot/internal/shared"
)

// MatrixRow is one row of the permissions LEFT JOIN role_permissions query.
// Role is nil for catalog entries without any stored grant row.
type MatrixRow struct {
	Permission Permission
	Role       *Role
	Granted    bool
}

// Repository defines persistence operations for the permission catalog and grants.
type Repository interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	UpsertPermission(ctx context.Context, p Permission) (Permission, error)
	FindPermission(ctx context.Context, slug string) (Permission, error)
	GrantedSlugs(ctx context.Context, role Role) ([]string, error)
	UpsertRolePermission(ctx context.Context, role Role, permissionID int64, granted bool) error
	MatrixRows(ctx context.Context) ([]MatrixRow, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const permissionColumns = `id, slug, label, description, feature_group, sort_order`

// ListPermissions returns the catalog ordered for display.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY feature_group, sort_order, slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Slug, &p.Label, &p.Description, &p.Group, &p.SortOrder); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// UpsertPermission inserts or refreshes a catalog entry keyed by slug.
func (r *PGRepository) UpsertPermission(ctx context.Context, p Permission) (Permission, error) {
	const q = `INSERT INTO permissions (slug, label, description, feature_group, sort_order)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (slug) DO UPDATE SET label = EXCLUDED.label, description = EXCLUDED.description,
	feature_group = EXCLUDED.feature_group, sort_order = EXCLUDED.sort_order
RETURNING ` + permissionColumns
	var out Permission
	err := r.pool.QueryRow(ctx, q, p.Slug, p.Label, p.Description, p.Group, p.SortOrder).
		Scan(&out.ID, &out.Slug, &out.Label, &out.Description, &out.Group, &out.SortOrder)
	return out, err
}

// FindPermission fetches a catalog entry by slug.
func (r *PGRepository) FindPermission(ctx context.Context, slug string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE slug = $1`, slug).
		Scan(&p.ID, &p.Slug, &p.Label, &p.Description, &p.Group, &p.SortOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, fmt.Errorf("permission %q: %w", slug, shared.ErrNotFound)
		}
		return Permission{}, err
	}
	return p, nil
}

// GrantedSlugs returns slugs with granted=true for role.
func (r *PGRepository) GrantedSlugs(ctx context.Context, role Role) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.slug FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role = $1 AND rp.granted`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// UpsertRolePermission creates or updates the single (role, permission) row.
func (r *PGRepository) UpsertRolePermission(ctx context.Context, role Role, permissionID int64, granted bool) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO role_permissions (role, permission_id, granted, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (role, permission_id) DO UPDATE SET granted = EXCLUDED.granted, updated_at = NOW()`,
		string(role), permissionID, granted)
	return err
}

// MatrixRows returns the catalog joined with every stored grant row.
func (r *PGRepository) MatrixRows(ctx context.Context) ([]MatrixRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.slug, p.label, p.description, p.feature_group, p.sort_order, rp.role, COALESCE(rp.granted, FALSE)
FROM permissions p
LEFT JOIN role_permissions rp ON rp.permission_id = p.id
ORDER BY p.feature_group, p.sort_order, p.slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MatrixRow
	for rows.Next() {
		var (
			row  MatrixRow
			role *string
		)
		p := &row.Permission
		if err := rows.Scan(&p.ID, &p.Slug, &p.Label, &p.Description, &p.Group, &p.SortOrder, &role, &row.Granted); err != nil {
			return nil, err
		}
		if role != nil {
			rr := Role(*role)
			row.Role = &rr
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
