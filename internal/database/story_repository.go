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

const storyColumns = `id, project_id, epic_id, title, description, priority, estimate,
	status, acceptance_criteria, backlog_position, created_at, updated_at`

type StoryRepository struct {
	pool *pgxpool.Pool
}

var _ domain.StoryRepository = (*StoryRepository)(nil)

func NewStoryRepository(pool *pgxpool.Pool) *StoryRepository {
	return &StoryRepository{pool: pool}
}

func scanStory(row pgx.Row) (*domain.Story, error) {
	var s domain.Story
	err := row.Scan(
		&s.ID, &s.ProjectID, &s.EpicID, &s.Title, &s.Description, &s.Priority,
		&s.Estimate, &s.Status, &s.AcceptanceCriteria, &s.BacklogPosition,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.AcceptanceCriteria == nil {
		s.AcceptanceCriteria = []domain.AcceptanceCriterion{}
	}
	return &s, nil
}

// Create inserts the story at the end of the project backlog. Only the
// caller-supplied fields of story are used; ID, position and timestamps are
// assigned here.
func (r *StoryRepository) Create(ctx context.Context, story *domain.Story) (*domain.Story, error) {
	query := `
		INSERT INTO stories (project_id, epic_id, title, description, priority, acceptance_criteria, backlog_position)
		VALUES ($1, $2, $3, $4, $5, $6,
			(SELECT COALESCE(MAX(backlog_position) + 1, 0) FROM stories WHERE project_id = $1))
		RETURNING ` + storyColumns

	criteria := story.AcceptanceCriteria
	if criteria == nil {
		criteria = []domain.AcceptanceCriterion{}
	}

	created, err := scanStory(r.pool.QueryRow(ctx, query,
		story.ProjectID, story.EpicID, story.Title, story.Description, story.Priority, criteria))
	if err != nil {
		return nil, fmt.Errorf("failed to create story: %w", err)
	}
	return created, nil
}

func (r *StoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE id = $1`

	s, err := scanStory(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	return s, nil
}

func (r *StoryRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE project_id = $1 ORDER BY backlog_position`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	stories := make([]domain.Story, 0)
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		stories = append(stories, *s)
	}
	return stories, rows.Err()
}

func (r *StoryRepository) Update(ctx context.Context, story *domain.Story) (*domain.Story, error) {
	query := `
		UPDATE stories
		SET epic_id = $2, title = $3, description = $4, priority = $5, estimate = $6,
			status = $7, acceptance_criteria = $8, backlog_position = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + storyColumns

	criteria := story.AcceptanceCriteria
	if criteria == nil {
		criteria = []domain.AcceptanceCriterion{}
	}

	updated, err := scanStory(r.pool.QueryRow(ctx, query,
		story.ID, story.EpicID, story.Title, story.Description, story.Priority,
		story.Estimate, story.Status, criteria, story.BacklogPosition))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update story: %w", err)
	}
	return updated, nil
}

// SetEstimate records the deck card an estimation session settled on.
func (r *StoryRepository) SetEstimate(ctx context.Context, id uuid.UUID, estimate string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE stories SET estimate = $2, updated_at = NOW() WHERE id = $1`, id, estimate)
	if err != nil {
		return fmt.Errorf("failed to set estimate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStoryNotFound
	}
	return nil
}

func (r *StoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStoryNotFound
	}
	return nil
}
