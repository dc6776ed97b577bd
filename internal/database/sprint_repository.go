package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SprintRepository struct {
	pool *pgxpool.Pool
}

var _ domain.SprintRepository = (*SprintRepository)(nil)

func NewSprintRepository(pool *pgxpool.Pool) *SprintRepository {
	return &SprintRepository{pool: pool}
}

func (r *SprintRepository) Create(ctx context.Context, projectID uuid.UUID, name, goal string, startsAt, endsAt time.Time) (*domain.Sprint, error) {
	query := `
		INSERT INTO sprints (project_id, name, goal, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, project_id, name, goal, starts_at, ends_at, status, created_at, updated_at`

	var s domain.Sprint
	err := r.pool.QueryRow(ctx, query, projectID, name, goal, startsAt, endsAt).
		Scan(&s.ID, &s.ProjectID, &s.Name, &s.Goal, &s.StartsAt, &s.EndsAt, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create sprint: %w", err)
	}
	return &s, nil
}

func (r *SprintRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Sprint, error) {
	query := `
		SELECT id, project_id, name, goal, starts_at, ends_at, status, created_at, updated_at
		FROM sprints
		WHERE id = $1`

	var s domain.Sprint
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&s.ID, &s.ProjectID, &s.Name, &s.Goal, &s.StartsAt, &s.EndsAt, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSprintNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sprint: %w", err)
	}
	return &s, nil
}

func (r *SprintRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.Sprint, error) {
	query := `
		SELECT id, project_id, name, goal, starts_at, ends_at, status, created_at, updated_at
		FROM sprints
		WHERE project_id = $1
		ORDER BY starts_at DESC`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sprints: %w", err)
	}
	defer rows.Close()

	sprints := make([]domain.Sprint, 0)
	for rows.Next() {
		var s domain.Sprint
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Name, &s.Goal, &s.StartsAt, &s.EndsAt, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sprint: %w", err)
		}
		sprints = append(sprints, s)
	}
	return sprints, rows.Err()
}

func (r *SprintRepository) Update(ctx context.Context, id uuid.UUID, name, goal string, startsAt, endsAt time.Time, status domain.SprintStatus) (*domain.Sprint, error) {
	query := `
		UPDATE sprints
		SET name = $2, goal = $3, starts_at = $4, ends_at = $5, status = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING id, project_id, name, goal, starts_at, ends_at, status, created_at, updated_at`

	var s domain.Sprint
	err := r.pool.QueryRow(ctx, query, id, name, goal, startsAt, endsAt, status).
		Scan(&s.ID, &s.ProjectID, &s.Name, &s.Goal, &s.StartsAt, &s.EndsAt, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSprintNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update sprint: %w", err)
	}
	return &s, nil
}

func (r *SprintRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sprints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sprint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSprintNotFound
	}
	return nil
}

func (r *SprintRepository) GetBoard(ctx context.Context, sprintID uuid.UUID) ([]domain.SprintStory, error) {
	if err := r.checkSprintExists(ctx, r.pool, sprintID); err != nil {
		return nil, err
	}

	query := `
		SELECT sprint_id, story_id, board_column, position
		FROM sprint_stories
		WHERE sprint_id = $1
		ORDER BY board_column, position`

	rows, err := r.pool.Query(ctx, query, sprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to get board: %w", err)
	}
	defer rows.Close()

	return scanBoard(rows)
}

// AddStory places a story at the end of the todo column and marks it as
// taken into the sprint.
func (r *SprintRepository) AddStory(ctx context.Context, sprintID, storyID uuid.UUID) (*domain.SprintStory, error) {
	var placed *domain.SprintStory

	err := r.withBoardTx(ctx, sprintID, func(tx pgx.Tx, board []domain.SprintStory) error {
		if err := r.checkStoryExists(ctx, tx, storyID); err != nil {
			return err
		}

		next, err := domain.AppendToBoard(board, sprintID, storyID, domain.ColumnTodo)
		if err != nil {
			return err
		}
		if err := saveBoard(ctx, tx, next); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE stories SET status = $2, updated_at = NOW() WHERE id = $1`,
			storyID, domain.StoryStatusInSprint)
		if err != nil {
			return fmt.Errorf("failed to update story status: %w", err)
		}

		for _, row := range next {
			if row.StoryID == storyID {
				r := row
				placed = &r
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// RemoveStory takes a story off the board, closing the position gap in its
// column, and returns it to the ready state.
func (r *SprintRepository) RemoveStory(ctx context.Context, sprintID, storyID uuid.UUID) error {
	return r.withBoardTx(ctx, sprintID, func(tx pgx.Tx, board []domain.SprintStory) error {
		next, err := domain.RemoveFromBoard(board, storyID)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`DELETE FROM sprint_stories WHERE sprint_id = $1 AND story_id = $2`,
			sprintID, storyID)
		if err != nil {
			return fmt.Errorf("failed to remove story from board: %w", err)
		}
		if err := saveBoard(ctx, tx, next); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE stories SET status = $2, updated_at = NOW() WHERE id = $1`,
			storyID, domain.StoryStatusReady)
		if err != nil {
			return fmt.Errorf("failed to update story status: %w", err)
		}
		return nil
	})
}

// MoveStory persists a kanban drag in one transaction. The board rows are
// locked, positions are recomputed in memory, and the result is written back,
// so concurrent moves serialize instead of corrupting positions.
func (r *SprintRepository) MoveStory(ctx context.Context, sprintID, storyID uuid.UUID, toColumn domain.BoardColumn, toPosition int) ([]domain.SprintStory, error) {
	var next []domain.SprintStory

	err := r.withBoardTx(ctx, sprintID, func(tx pgx.Tx, board []domain.SprintStory) error {
		moved, err := domain.MoveStory(board, storyID, toColumn, toPosition)
		if err != nil {
			return err
		}
		if err := saveBoard(ctx, tx, moved); err != nil {
			return err
		}
		next = moved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// withBoardTx runs fn inside a transaction holding row locks on the sprint's
// board rows. The sprint row itself is locked too, so adds against an empty
// board still serialize.
func (r *SprintRepository) withBoardTx(ctx context.Context, sprintID uuid.UUID, fn func(tx pgx.Tx, board []domain.SprintStory) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var one int
	err = tx.QueryRow(ctx, `SELECT 1 FROM sprints WHERE id = $1 FOR UPDATE`, sprintID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrSprintNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock sprint: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT sprint_id, story_id, board_column, position
		FROM sprint_stories
		WHERE sprint_id = $1
		ORDER BY board_column, position
		FOR UPDATE`, sprintID)
	if err != nil {
		return fmt.Errorf("failed to lock board rows: %w", err)
	}
	board, err := scanBoard(rows)
	if err != nil {
		return err
	}

	if err := fn(tx, board); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *SprintRepository) checkSprintExists(ctx context.Context, q querier, sprintID uuid.UUID) error {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM sprints WHERE id = $1`, sprintID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrSprintNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check sprint: %w", err)
	}
	return nil
}

func (r *SprintRepository) checkStoryExists(ctx context.Context, q querier, storyID uuid.UUID) error {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM stories WHERE id = $1`, storyID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrStoryNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check story: %w", err)
	}
	return nil
}

// querier is the subset of pgx query methods shared by pools and transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanBoard(rows pgx.Rows) ([]domain.SprintStory, error) {
	defer rows.Close()

	board := make([]domain.SprintStory, 0)
	for rows.Next() {
		var row domain.SprintStory
		if err := rows.Scan(&row.SprintID, &row.StoryID, &row.Column, &row.Position); err != nil {
			return nil, fmt.Errorf("failed to scan board row: %w", err)
		}
		board = append(board, row)
	}
	return board, rows.Err()
}

// saveBoard upserts every row of the recomputed board in one batch.
func saveBoard(ctx context.Context, tx pgx.Tx, board []domain.SprintStory) error {
	batch := &pgx.Batch{}
	for _, row := range board {
		batch.Queue(`
			INSERT INTO sprint_stories (sprint_id, story_id, board_column, position)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (sprint_id, story_id)
			DO UPDATE SET board_column = EXCLUDED.board_column, position = EXCLUDED.position`,
			row.SprintID, row.StoryID, row.Column, row.Position)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save board: %w", err)
	}
	return nil
}
