package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EpicStatus string

const (
	EpicStatusOpen       EpicStatus = "open"
	EpicStatusInProgress EpicStatus = "in_progress"
	EpicStatusDone       EpicStatus = "done"
)

// ValidEpicStatus reports whether s is one of the known epic statuses.
func ValidEpicStatus(s EpicStatus) bool {
	switch s {
	case EpicStatusOpen, EpicStatusInProgress, EpicStatusDone:
		return true
	}
	return false
}

// Epic groups related stories inside a project.
type Epic struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Color       string     `json:"color"`
	Status      EpicStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type EpicRepository interface {
	Create(ctx context.Context, projectID uuid.UUID, name, description, color string) (*Epic, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Epic, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]Epic, error)
	Update(ctx context.Context, id uuid.UUID, name, description, color string, status EpicStatus) (*Epic, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
