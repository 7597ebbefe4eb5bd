package entity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekit/gatekit/internal/shared"
)

const entityColumns = `id, kind, name, is_active, grant_by_default, created_at, updated_at, deleted_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new entity row. A live name collision within the kind
// surfaces as shared.ErrDuplicateName via the partial unique index.
func (r *Repository) Insert(ctx context.Context, e Entity) (Entity, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO entities (id, kind, name, is_active, grant_by_default)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+entityColumns,
		e.ID, e.Kind, e.Name, e.IsActive, e.GrantByDefault)
	stored, err := scanEntity(row)
	if err != nil {
		return Entity{}, mapWriteError(err)
	}
	return stored, nil
}

// FindByName returns the live entity of the given kind and name.
func (r *Repository) FindByName(ctx context.Context, kind Kind, name string) (Entity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE kind = $1 AND name = $2 AND deleted_at IS NULL`,
		kind, name)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entity{}, shared.ErrEntityNotFound
		}
		return Entity{}, err
	}
	return e, nil
}

// FindByNameWithTrashed returns the newest entity of the given kind and
// name regardless of soft deletion; used to tell "deleted" apart from
// "never existed".
func (r *Repository) FindByNameWithTrashed(ctx context.Context, kind Kind, name string) (Entity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE kind = $1 AND name = $2
		ORDER BY created_at DESC
		LIMIT 1`,
		kind, name)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entity{}, shared.ErrEntityNotFound
		}
		return Entity{}, err
	}
	return e, nil
}

// FindByID returns the live entity with the given ID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (Entity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE id = $1 AND deleted_at IS NULL`,
		id)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entity{}, shared.ErrEntityNotFound
		}
		return Entity{}, err
	}
	return e, nil
}

// UpdateName renames a live entity.
func (r *Repository) UpdateName(ctx context.Context, id uuid.UUID, name string) (Entity, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE entities
		SET name = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+entityColumns,
		id, name)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entity{}, shared.ErrEntityNotFound
		}
		return Entity{}, mapWriteError(err)
	}
	return e, nil
}

// SetActive flips the is_active flag.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) (Entity, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE entities
		SET is_active = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+entityColumns,
		id, active)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entity{}, shared.ErrEntityNotFound
		}
		return Entity{}, err
	}
	return e, nil
}

// SetGrantByDefault flips the grant_by_default flag.
func (r *Repository) SetGrantByDefault(ctx context.Context, id uuid.UUID, grant bool) (Entity, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE entities
		SET grant_by_default = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+entityColumns,
		id, grant)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entity{}, shared.ErrEntityNotFound
		}
		return Entity{}, err
	}
	return e, nil
}

// SoftDelete marks the entity as deleted. Returns false when the entity was
// already gone.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE entities
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AllOfKind returns every live entity of a kind, inactive ones included,
// ordered by name. Feeds the cached per-kind collection.
func (r *Repository) AllOfKind(ctx context.Context, kind Kind) ([]Entity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE kind = $1 AND deleted_at IS NULL
		ORDER BY name`,
		kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntities(rows)
}

// PageOfKind returns one page of live entities matching the request.
func (r *Repository) PageOfKind(ctx context.Context, kind Kind, req shared.PageRequest) ([]Entity, int, error) {
	req = req.Normalize()
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM entities
		WHERE kind = $1 AND deleted_at IS NULL AND ($2 = '' OR name ILIKE '%' || $2 || '%')`,
		kind, req.Search).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE kind = $1 AND deleted_at IS NULL AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY `+orderClause(req)+`
		LIMIT $3 OFFSET $4`,
		kind, req.Search, req.PerPage, req.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, 0, err
	}
	return entities, total, nil
}

// orderClause whitelists sortable columns; anything unknown falls back to name.
func orderClause(req shared.PageRequest) string {
	column := "name"
	switch req.SortBy {
	case "grant_by_default", "is_active":
		column = req.SortBy
	}
	dir := "ASC"
	if strings.EqualFold(req.SortDir, "desc") {
		dir = "DESC"
	}
	if column == "name" {
		return "name " + dir
	}
	return fmt.Sprintf("%s %s, name ASC", column, dir)
}

func scanEntity(row pgx.Row) (Entity, error) {
	var e Entity
	if err := row.Scan(&e.ID, &e.Kind, &e.Name, &e.IsActive, &e.GrantByDefault, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt); err != nil {
		return Entity{}, err
	}
	return e, nil
}

func collectEntities(rows pgx.Rows) ([]Entity, error) {
	var entities []Entity
	for rows.Next() {
		var e Entity
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

// mapWriteError translates unique-index violations into the domain error.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicateName
	}
	return err
}
