package assignment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/resolve"
	"github.com/gatekit/gatekit/internal/subject"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// HasActive reports whether a live link row exists for the triple.
func (r *Repository) HasActive(ctx context.Context, ref subject.Ref, entityID uuid.UUID, denied bool) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM assignments
			WHERE subject_type = $1 AND subject_id = $2 AND entity_id = $3
			  AND denied = $4 AND revoked_at IS NULL
		)`,
		ref.Type, ref.ID, entityID, denied).Scan(&exists)
	return exists, err
}

// Insert stores a new active link row.
func (r *Repository) Insert(ctx context.Context, a Assignment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO assignments (id, subject_type, subject_id, entity_id, denied)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Subject.Type, a.Subject.ID, a.EntityID, a.Denied)
	return err
}

// Revoke marks the live link row for the triple as revoked. Returns false
// when none existed.
func (r *Repository) Revoke(ctx context.Context, ref subject.Ref, entityID uuid.UUID, denied bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE assignments
		SET revoked_at = NOW()
		WHERE subject_type = $1 AND subject_id = $2 AND entity_id = $3
		  AND denied = $4 AND revoked_at IS NULL`,
		ref.Type, ref.ID, entityID, denied)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AnyForEntity reports whether any subject holds a live grant on the entity.
func (r *Repository) AnyForEntity(ctx context.Context, entityID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM assignments
			WHERE entity_id = $1 AND denied = FALSE AND revoked_at IS NULL
		)`,
		entityID).Scan(&exists)
	return exists, err
}

// LinksFor returns the subject's live link edges for one kind, joined to
// live entities. Inactive entities are included; resolution filters on
// activity from the cached collection. Feeds the cached links list.
func (r *Repository) LinksFor(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]resolve.Link, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.name, a.denied
		FROM assignments a
		JOIN entities e ON e.id = a.entity_id
		WHERE a.subject_type = $1 AND a.subject_id = $2 AND a.revoked_at IS NULL
		  AND e.kind = $3 AND e.deleted_at IS NULL
		ORDER BY e.name`,
		ref.Type, ref.ID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []resolve.Link
	for rows.Next() {
		var l resolve.Link
		if err := rows.Scan(&l.Name, &l.Denied); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return links, nil
}

// AssignedEntities returns the active entities of the kind the subject holds
// directly.
func (r *Repository) AssignedEntities(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]entity.Entity, error) {
	return r.linkedEntities(ctx, ref, kind, false, true)
}

// DeniedEntities returns the live entities of the kind with an active denial
// row for the subject.
func (r *Repository) DeniedEntities(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]entity.Entity, error) {
	return r.linkedEntities(ctx, ref, kind, true, false)
}

func (r *Repository) linkedEntities(ctx context.Context, ref subject.Ref, kind entity.Kind, denied, activeOnly bool) ([]entity.Entity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.kind, e.name, e.is_active, e.grant_by_default, e.created_at, e.updated_at, e.deleted_at
		FROM assignments a
		JOIN entities e ON e.id = a.entity_id
		WHERE a.subject_type = $1 AND a.subject_id = $2 AND a.revoked_at IS NULL
		  AND a.denied = $3 AND e.kind = $4 AND e.deleted_at IS NULL
		  AND ($5 = FALSE OR e.is_active)
		ORDER BY e.name`,
		ref.Type, ref.ID, denied, kind, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entities []entity.Entity
	for rows.Next() {
		var e entity.Entity
		if err := rows.Scan(&e.ID, &e.Kind, &e.Name, &e.IsActive, &e.GrantByDefault, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entities, nil
}
