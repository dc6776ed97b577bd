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

type TeamRepository struct {
	pool *pgxpool.Pool
}

var _ domain.TeamRepository = (*TeamRepository)(nil)

func NewTeamRepository(pool *pgxpool.Pool) *TeamRepository {
	return &TeamRepository{pool: pool}
}

func (r *TeamRepository) Create(ctx context.Context, name, description string) (*domain.Team, error) {
	query := `
		INSERT INTO teams (name, description)
		VALUES ($1, $2)
		RETURNING id, name, description, created_at, updated_at`

	var t domain.Team
	err := r.pool.QueryRow(ctx, query, name, description).
		Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}
	return &t, nil
}

func (r *TeamRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Team, error) {
	query := `SELECT id, name, description, created_at, updated_at FROM teams WHERE id = $1`

	var t domain.Team
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &t, nil
}

func (r *TeamRepository) List(ctx context.Context) ([]domain.Team, error) {
	query := `SELECT id, name, description, created_at, updated_at FROM teams ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (r *TeamRepository) Update(ctx context.Context, id uuid.UUID, name, description string) (*domain.Team, error) {
	query := `
		UPDATE teams
		SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, created_at, updated_at`

	var t domain.Team
	err := r.pool.QueryRow(ctx, query, id, name, description).
		Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update team: %w", err)
	}
	return &t, nil
}

func (r *TeamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTeamNotFound
	}
	return nil
}

func (r *TeamRepository) AddMember(ctx context.Context, teamID uuid.UUID, displayName, role, email string) (*domain.TeamMember, error) {
	query := `
		INSERT INTO team_members (team_id, display_name, role, email)
		VALUES ($1, $2, $3, $4)
		RETURNING id, team_id, display_name, role, email, created_at`

	var m domain.TeamMember
	err := r.pool.QueryRow(ctx, query, teamID, displayName, role, email).
		Scan(&m.ID, &m.TeamID, &m.DisplayName, &m.Role, &m.Email, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add team member: %w", err)
	}
	return &m, nil
}

func (r *TeamRepository) ListMembers(ctx context.Context, teamID uuid.UUID) ([]domain.TeamMember, error) {
	query := `
		SELECT id, team_id, display_name, role, email, created_at
		FROM team_members
		WHERE team_id = $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	members := make([]domain.TeamMember, 0)
	for rows.Next() {
		var m domain.TeamMember
		if err := rows.Scan(&m.ID, &m.TeamID, &m.DisplayName, &m.Role, &m.Email, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *TeamRepository) RemoveMember(ctx context.Context, teamID, memberID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM team_members WHERE team_id = $1 AND id = $2`, teamID, memberID)
	if err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}
