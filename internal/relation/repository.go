// Package relation stores the entity-to-entity links: role-holds-permission,
// team-holds-role and team-holds-permission. Links carry no denial semantics
// and no soft delete; detaching removes the row.
package relation

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekit/gatekit/internal/entity"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Attach links child under parent. Re-attaching is a no-op.
func (r *Repository) Attach(ctx context.Context, parentID, childID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO entity_links (parent_id, child_id)
		VALUES ($1, $2)
		ON CONFLICT (parent_id, child_id) DO NOTHING`,
		parentID, childID)
	return err
}

// Detach removes the link. Returns false when no link existed.
func (r *Repository) Detach(ctx context.Context, parentID, childID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM entity_links
		WHERE parent_id = $1 AND child_id = $2`,
		parentID, childID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Children returns the live child entities of the given kind linked under
// the parent, ordered by name.
func (r *Repository) Children(ctx context.Context, parentID uuid.UUID, childKind entity.Kind) ([]entity.Entity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.kind, c.name, c.is_active, c.grant_by_default, c.created_at, c.updated_at, c.deleted_at
		FROM entity_links l
		JOIN entities c ON c.id = l.child_id
		WHERE l.parent_id = $1 AND c.kind = $2 AND c.deleted_at IS NULL
		ORDER BY c.name`,
		parentID, childKind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var children []entity.Entity
	for rows.Next() {
		var e entity.Entity
		if err := rows.Scan(&e.ID, &e.Kind, &e.Name, &e.IsActive, &e.GrantByDefault, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt); err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return children, nil
}

// MapChildren returns, for every live parent of parentKind, the names of its
// live children of childKind. Feeds the cached per-kind collection.
func (r *Repository) MapChildren(ctx context.Context, parentKind, childKind entity.Kind) (map[string][]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.name, c.name
		FROM entity_links l
		JOIN entities p ON p.id = l.parent_id
		JOIN entities c ON c.id = l.child_id
		WHERE p.kind = $1 AND c.kind = $2
		  AND p.deleted_at IS NULL AND c.deleted_at IS NULL
		ORDER BY p.name, c.name`,
		parentKind, childKind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	children := make(map[string][]string)
	for rows.Next() {
		var parent, child string
		if err := rows.Scan(&parent, &child); err != nil {
			return nil, err
		}
		children[parent] = append(children[parent], child)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return children, nil
}
