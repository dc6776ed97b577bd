package app

import (
	"context"
	"errors"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/ParashDev/sprintor-sub000/internal/metrics"
	"github.com/google/uuid"
)

// ProjectQuery narrows and orders a project listing.
type ProjectQuery struct {
	Query    string
	Status   domain.ProjectStatus
	SortKey  string
	Order    domain.SortOrder
	Page     int
	PageSize int
}

// ProjectPage is one page of a project listing.
type ProjectPage struct {
	Items     []domain.Project `json:"items"`
	Total     int              `json:"total"`
	Page      int              `json:"page"`
	PageSize  int              `json:"page_size"`
	PageCount int              `json:"page_count"`
}

// StoryQuery narrows and orders a story listing within a project.
type StoryQuery struct {
	Query    string
	Status   domain.StoryStatus
	EpicID   *uuid.UUID
	SortKey  string
	Order    domain.SortOrder
	Page     int
	PageSize int
}

// StoryPage is one page of a story listing.
type StoryPage struct {
	Items     []domain.Story `json:"items"`
	Total     int            `json:"total"`
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
	PageCount int            `json:"page_count"`
}

// Board is the sprint board grouped into display columns.
type Board struct {
	SprintID uuid.UUID                              `json:"sprint_id"`
	Columns  map[domain.BoardColumn][]domain.SprintStory `json:"columns"`
}

// --- Projects ---

func (s *Service) CreateProject(ctx context.Context, name, description string) (*domain.Project, error) {
	return s.projects.Create(ctx, name, description)
}

func (s *Service) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	return s.projects.GetByID(ctx, id)
}

// ListProjects filters, sorts and paginates in memory. Project counts are
// workspace sized; the repository returns them all in one read.
func (s *Service) ListProjects(ctx context.Context, q ProjectQuery) (*ProjectPage, error) {
	all, err := s.projects.List(ctx)
	if err != nil {
		return nil, err
	}

	filtered := domain.SortProjects(domain.FilterProjects(all, q.Query, q.Status), q.SortKey, q.Order)

	pageSize := domain.ClampPageSize(q.PageSize)
	page := q.Page
	if page < 1 {
		page = 1
	}

	return &ProjectPage{
		Items:     domain.Paginate(filtered, page, pageSize),
		Total:     len(filtered),
		Page:      page,
		PageSize:  pageSize,
		PageCount: domain.PageCount(len(filtered), pageSize),
	}, nil
}

func (s *Service) UpdateProject(ctx context.Context, id uuid.UUID, name, description string, status domain.ProjectStatus) (*domain.Project, error) {
	return s.projects.Update(ctx, id, name, description, status)
}

func (s *Service) DeleteProject(ctx context.Context, id uuid.UUID) error {
	return s.projects.Delete(ctx, id)
}

// --- Epics ---

func (s *Service) CreateEpic(ctx context.Context, projectID uuid.UUID, name, description, color string) (*domain.Epic, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.epics.Create(ctx, projectID, name, description, color)
}

func (s *Service) GetEpic(ctx context.Context, id uuid.UUID) (*domain.Epic, error) {
	return s.epics.GetByID(ctx, id)
}

func (s *Service) ListEpics(ctx context.Context, projectID uuid.UUID) ([]domain.Epic, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.epics.ListByProject(ctx, projectID)
}

func (s *Service) UpdateEpic(ctx context.Context, id uuid.UUID, name, description, color string, status domain.EpicStatus) (*domain.Epic, error) {
	return s.epics.Update(ctx, id, name, description, color, status)
}

func (s *Service) DeleteEpic(ctx context.Context, id uuid.UUID) error {
	return s.epics.Delete(ctx, id)
}

// --- Stories ---

func (s *Service) CreateStory(ctx context.Context, story *domain.Story) (*domain.Story, error) {
	if _, err := s.projects.GetByID(ctx, story.ProjectID); err != nil {
		return nil, err
	}
	if story.EpicID != nil {
		if _, err := s.epics.GetByID(ctx, *story.EpicID); err != nil {
			return nil, err
		}
	}
	return s.stories.Create(ctx, story)
}

func (s *Service) GetStory(ctx context.Context, id uuid.UUID) (*domain.Story, error) {
	return s.stories.GetByID(ctx, id)
}

func (s *Service) ListStories(ctx context.Context, projectID uuid.UUID, q StoryQuery) (*StoryPage, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}

	all, err := s.stories.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	filtered := domain.SortStories(domain.FilterStories(all, q.Query, q.Status, q.EpicID), q.SortKey, q.Order)

	pageSize := domain.ClampPageSize(q.PageSize)
	page := q.Page
	if page < 1 {
		page = 1
	}

	return &StoryPage{
		Items:     domain.Paginate(filtered, page, pageSize),
		Total:     len(filtered),
		Page:      page,
		PageSize:  pageSize,
		PageCount: domain.PageCount(len(filtered), pageSize),
	}, nil
}

func (s *Service) UpdateStory(ctx context.Context, story *domain.Story) (*domain.Story, error) {
	if story.EpicID != nil {
		if _, err := s.epics.GetByID(ctx, *story.EpicID); err != nil {
			return nil, err
		}
	}
	return s.stories.Update(ctx, story)
}

// SetStoryEstimate records the agreed estimate for a story, typically after
// an estimation round reached agreement.
func (s *Service) SetStoryEstimate(ctx context.Context, id uuid.UUID, estimate string) error {
	return s.stories.SetEstimate(ctx, id, estimate)
}

func (s *Service) DeleteStory(ctx context.Context, id uuid.UUID) error {
	return s.stories.Delete(ctx, id)
}

// --- Sprints and the board ---

func (s *Service) CreateSprint(ctx context.Context, projectID uuid.UUID, name, goal string, startsAt, endsAt time.Time) (*domain.Sprint, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.sprints.Create(ctx, projectID, name, goal, startsAt, endsAt)
}

func (s *Service) GetSprint(ctx context.Context, id uuid.UUID) (*domain.Sprint, error) {
	return s.sprints.GetByID(ctx, id)
}

func (s *Service) ListSprints(ctx context.Context, projectID uuid.UUID) ([]domain.Sprint, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.sprints.ListByProject(ctx, projectID)
}

func (s *Service) UpdateSprint(ctx context.Context, id uuid.UUID, name, goal string, startsAt, endsAt time.Time, status domain.SprintStatus) (*domain.Sprint, error) {
	return s.sprints.Update(ctx, id, name, goal, startsAt, endsAt, status)
}

func (s *Service) DeleteSprint(ctx context.Context, id uuid.UUID) error {
	return s.sprints.Delete(ctx, id)
}

// GetBoard returns the sprint board grouped by column, ordered by position.
func (s *Service) GetBoard(ctx context.Context, sprintID uuid.UUID) (*Board, error) {
	rows, err := s.sprints.GetBoard(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	return groupBoard(sprintID, rows), nil
}

func (s *Service) AddStoryToSprint(ctx context.Context, sprintID, storyID uuid.UUID) (*domain.SprintStory, error) {
	return s.sprints.AddStory(ctx, sprintID, storyID)
}

func (s *Service) RemoveStoryFromSprint(ctx context.Context, sprintID, storyID uuid.UUID) error {
	return s.sprints.RemoveStory(ctx, sprintID, storyID)
}

// MoveStory performs the kanban drag server-side and returns the resulting
// board. The client applies the drop optimistically and reverts to this
// authoritative board on error.
func (s *Service) MoveStory(ctx context.Context, sprintID, storyID uuid.UUID, toColumn domain.BoardColumn, toPosition int) (*Board, error) {
	start := s.clock.Now()

	rows, err := s.sprints.MoveStory(ctx, sprintID, storyID, toColumn, toPosition)

	metrics.BoardMoveDuration.Observe(s.clock.Since(start).Seconds())
	switch {
	case err == nil:
		metrics.BoardMovesTotal.WithLabelValues("moved").Inc()
	case errors.Is(err, domain.ErrStoryNotOnBoard):
		metrics.BoardMovesTotal.WithLabelValues("not_on_board").Inc()
	case errors.Is(err, domain.ErrInvalidColumn):
		metrics.BoardMovesTotal.WithLabelValues("invalid_column").Inc()
	default:
		metrics.BoardMovesTotal.WithLabelValues("error").Inc()
	}
	if err != nil {
		return nil, err
	}

	return groupBoard(sprintID, rows), nil
}

// --- Teams ---

func (s *Service) CreateTeam(ctx context.Context, name, description string) (*domain.Team, error) {
	return s.teams.Create(ctx, name, description)
}

func (s *Service) GetTeam(ctx context.Context, id uuid.UUID) (*domain.Team, error) {
	return s.teams.GetByID(ctx, id)
}

func (s *Service) ListTeams(ctx context.Context) ([]domain.Team, error) {
	return s.teams.List(ctx)
}

func (s *Service) UpdateTeam(ctx context.Context, id uuid.UUID, name, description string) (*domain.Team, error) {
	return s.teams.Update(ctx, id, name, description)
}

func (s *Service) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	return s.teams.Delete(ctx, id)
}

func (s *Service) AddTeamMember(ctx context.Context, teamID uuid.UUID, displayName, role, email string) (*domain.TeamMember, error) {
	if _, err := s.teams.GetByID(ctx, teamID); err != nil {
		return nil, err
	}
	return s.teams.AddMember(ctx, teamID, displayName, role, email)
}

func (s *Service) ListTeamMembers(ctx context.Context, teamID uuid.UUID) ([]domain.TeamMember, error) {
	if _, err := s.teams.GetByID(ctx, teamID); err != nil {
		return nil, err
	}
	return s.teams.ListMembers(ctx, teamID)
}

func (s *Service) RemoveTeamMember(ctx context.Context, teamID, memberID uuid.UUID) error {
	return s.teams.RemoveMember(ctx, teamID, memberID)
}

// groupBoard turns flat rows into the column layout clients render. Every
// column is present even when empty.
func groupBoard(sprintID uuid.UUID, rows []domain.SprintStory) *Board {
	columns := make(map[domain.BoardColumn][]domain.SprintStory, len(domain.BoardColumns))
	for _, c := range domain.BoardColumns {
		columns[c] = []domain.SprintStory{}
	}
	for _, r := range rows {
		columns[r.Column] = append(columns[r.Column], r)
	}
	return &Board{SprintID: sprintID, Columns: columns}
}
