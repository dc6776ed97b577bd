package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Team struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type TeamMember struct {
	ID          uuid.UUID `json:"id"`
	TeamID      uuid.UUID `json:"team_id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}

type TeamRepository interface {
	Create(ctx context.Context, name, description string) (*Team, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Team, error)
	List(ctx context.Context) ([]Team, error)
	Update(ctx context.Context, id uuid.UUID, name, description string) (*Team, error)
	Delete(ctx context.Context, id uuid.UUID) error

	AddMember(ctx context.Context, teamID uuid.UUID, displayName, role, email string) (*TeamMember, error)
	ListMembers(ctx context.Context, teamID uuid.UUID) ([]TeamMember, error)
	RemoveMember(ctx context.Context, teamID, memberID uuid.UUID) error
}
