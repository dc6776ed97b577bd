package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EpicRepository struct {
	pool *pgxpool.Pool
}

var _ domain.EpicRepository = (*EpicRepository)(nil)

func NewEpicRepository(pool *pgxpool.Pool) *EpicRepository {
	return &EpicRepository{pool: pool}
}

func (r *EpicRepository) Create(ctx context.Context, projectID uuid.UUID, name, description, color string) (*domain.Epic, error) {
	query := `
		INSERT INTO epics (project_id, name, description, color)
		VALUES ($1, $2, $3, $4)
		RETURNING id, project_id, name, description, color, status, created_at, updated_at`

	var e domain.Epic
	err := r.pool.QueryRow(ctx, query, projectID, name, description, color).
		Scan(&e.ID, &e.ProjectID, &e.Name, &e.Description, &e.Color, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create epic: %w", err)
	}
	return &e, nil
}

func (r *EpicRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Epic, error) {
	query := `
		SELECT id, project_id, name, description, color, status, created_at, updated_at
		FROM epics
		WHERE id = $1`

	var e domain.Epic
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&e.ID, &e.ProjectID, &e.Name, &e.Description, &e.Color, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEpicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get epic: %w", err)
	}
	return &e, nil
}

func (r *EpicRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.Epic, error) {
	query := `
		SELECT id, project_id, name, description, color, status, created_at, updated_at
		FROM epics
		WHERE project_id = $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list epics: %w", err)
	}
	defer rows.Close()

	epics := make([]domain.Epic, 0)
	for rows.Next() {
		var e domain.Epic
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Name, &e.Description, &e.Color, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan epic: %w", err)
		}
		epics = append(epics, e)
	}
	return epics, rows.Err()
}

func (r *EpicRepository) Update(ctx context.Context, id uuid.UUID, name, description, color string, status domain.EpicStatus) (*domain.Epic, error) {
	query := `
		UPDATE epics
		SET name = $2, description = $3, color = $4, status = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING id, project_id, name, description, color, status, created_at, updated_at`

	var e domain.Epic
	err := r.pool.QueryRow(ctx, query, id, name, description, color, status).
		Scan(&e.ID, &e.ProjectID, &e.Name, &e.Description, &e.Color, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEpicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update epic: %w", err)
	}
	return &e, nil
}

func (r *EpicRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM epics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete epic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEpicNotFound
	}
	return nil
}
