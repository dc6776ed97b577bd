package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SprintStatus string

const (
	SprintStatusPlanned   SprintStatus = "planned"
	SprintStatusActive    SprintStatus = "active"
	SprintStatusCompleted SprintStatus = "completed"
)

// ValidSprintStatus reports whether s is one of the known sprint statuses.
func ValidSprintStatus(s SprintStatus) bool {
	switch s {
	case SprintStatusPlanned, SprintStatusActive, SprintStatusCompleted:
		return true
	}
	return false
}

// BoardColumn is a kanban column on a sprint board. The set is fixed:
// columns model story workflow state, not user-defined lists.
type BoardColumn string

const (
	ColumnTodo       BoardColumn = "todo"
	ColumnInProgress BoardColumn = "in_progress"
	ColumnReview     BoardColumn = "review"
	ColumnDone       BoardColumn = "done"
)

// BoardColumns lists all columns in display order.
var BoardColumns = []BoardColumn{ColumnTodo, ColumnInProgress, ColumnReview, ColumnDone}

// ValidBoardColumn reports whether c is one of the known columns.
func ValidBoardColumn(c BoardColumn) bool {
	switch c {
	case ColumnTodo, ColumnInProgress, ColumnReview, ColumnDone:
		return true
	}
	return false
}

// Sprint is a time-boxed container of stories with a kanban board.
type Sprint struct {
	ID        uuid.UUID    `json:"id"`
	ProjectID uuid.UUID    `json:"project_id"`
	Name      string       `json:"name"`
	Goal      string       `json:"goal"`
	StartsAt  time.Time    `json:"starts_at"`
	EndsAt    time.Time    `json:"ends_at"`
	Status    SprintStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// SprintStory places a story on a sprint board. Position is zero-based and
// contiguous within a column.
type SprintStory struct {
	SprintID uuid.UUID   `json:"sprint_id"`
	StoryID  uuid.UUID   `json:"story_id"`
	Column   BoardColumn `json:"column"`
	Position int         `json:"position"`
}

type SprintRepository interface {
	Create(ctx context.Context, projectID uuid.UUID, name, goal string, startsAt, endsAt time.Time) (*Sprint, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Sprint, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]Sprint, error)
	Update(ctx context.Context, id uuid.UUID, name, goal string, startsAt, endsAt time.Time, status SprintStatus) (*Sprint, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Board operations. MoveStory recomputes positions transactionally so the
	// board invariants hold under concurrent moves.
	GetBoard(ctx context.Context, sprintID uuid.UUID) ([]SprintStory, error)
	AddStory(ctx context.Context, sprintID, storyID uuid.UUID) (*SprintStory, error)
	RemoveStory(ctx context.Context, sprintID, storyID uuid.UUID) error
	MoveStory(ctx context.Context, sprintID, storyID uuid.UUID, toColumn BoardColumn, toPosition int) ([]SprintStory, error)
}
