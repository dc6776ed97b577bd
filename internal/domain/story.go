package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type StoryStatus string

const (
	StoryStatusBacklog  StoryStatus = "backlog"
	StoryStatusReady    StoryStatus = "ready"
	StoryStatusInSprint StoryStatus = "in_sprint"
	StoryStatusDone     StoryStatus = "done"
)

type StoryPriority string

const (
	PriorityLow      StoryPriority = "low"
	PriorityMedium   StoryPriority = "medium"
	PriorityHigh     StoryPriority = "high"
	PriorityCritical StoryPriority = "critical"
)

// ValidStoryStatus reports whether s is one of the known story statuses.
func ValidStoryStatus(s StoryStatus) bool {
	switch s {
	case StoryStatusBacklog, StoryStatusReady, StoryStatusInSprint, StoryStatusDone:
		return true
	}
	return false
}

// ValidStoryPriority reports whether p is one of the known priorities.
func ValidStoryPriority(p StoryPriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// priorityRank orders priorities for sorting (higher is more urgent).
func priorityRank(p StoryPriority) int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// AcceptanceCriterion is a single checkable condition on a story.
// The list is stored as JSONB alongside the story row.
type AcceptanceCriterion struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
	Done bool      `json:"done"`
}

// Story is a unit of backlog work. Estimate is the deck card agreed on in an
// estimation session ("5", "XL"); nil means not yet estimated.
type Story struct {
	ID                 uuid.UUID             `json:"id"`
	ProjectID          uuid.UUID             `json:"project_id"`
	EpicID             *uuid.UUID            `json:"epic_id,omitempty"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	Priority           StoryPriority         `json:"priority"`
	Estimate           *string               `json:"estimate,omitempty"`
	Status             StoryStatus           `json:"status"`
	AcceptanceCriteria []AcceptanceCriterion `json:"acceptance_criteria"`
	BacklogPosition    int                   `json:"backlog_position"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

type StoryRepository interface {
	Create(ctx context.Context, story *Story) (*Story, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Story, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]Story, error)
	Update(ctx context.Context, story *Story) (*Story, error)
	SetEstimate(ctx context.Context, id uuid.UUID, estimate string) error
	Delete(ctx context.Context, id uuid.UUID) error
}
