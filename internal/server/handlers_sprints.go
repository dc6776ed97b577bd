package server

import (
	"strings"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	apperrors "github.com/ParashDev/sprintor-sub000/internal/errors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type sprintRequest struct {
	Name     string    `json:"name"`
	Goal     string    `json:"goal"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Status   string    `json:"status"`
}

func (r sprintRequest) validate(requireStatus bool) error {
	if strings.TrimSpace(r.Name) == "" {
		return apperrors.ValidationError("name cannot be empty")
	}
	if r.StartsAt.IsZero() || r.EndsAt.IsZero() {
		return apperrors.ValidationError("starts_at and ends_at are required")
	}
	if !r.EndsAt.After(r.StartsAt) {
		return apperrors.ValidationError("ends_at must be after starts_at")
	}
	if requireStatus && !domain.ValidSprintStatus(domain.SprintStatus(r.Status)) {
		return apperrors.ValidationError("invalid sprint status").WithField("status", r.Status)
	}
	return nil
}

func (s *Server) handleCreateSprint(c echo.Context) error {
	projectID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req sprintRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := req.validate(false); err != nil {
		return err
	}

	sprint, err := s.app.CreateSprint(c.Request().Context(), projectID, req.Name, req.Goal, req.StartsAt, req.EndsAt)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(201, sprint)
}

func (s *Server) handleListSprints(c echo.Context) error {
	projectID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	sprints, err := s.app.ListSprints(c.Request().Context(), projectID)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, sprints)
}

func (s *Server) handleGetSprint(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	sprint, err := s.app.GetSprint(c.Request().Context(), id)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, sprint)
}

func (s *Server) handleUpdateSprint(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req sprintRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := req.validate(true); err != nil {
		return err
	}

	sprint, err := s.app.UpdateSprint(c.Request().Context(), id, req.Name, req.Goal, req.StartsAt, req.EndsAt, domain.SprintStatus(req.Status))
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, sprint)
}

func (s *Server) handleDeleteSprint(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := s.app.DeleteSprint(c.Request().Context(), id); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(204)
}

func (s *Server) handleGetBoard(c echo.Context) error {
	sprintID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	board, err := s.app.GetBoard(c.Request().Context(), sprintID)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, board)
}

func (s *Server) handleAddStoryToSprint(c echo.Context) error {
	sprintID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		StoryID uuid.UUID `json:"story_id"`
	}
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.StoryID == uuid.Nil {
		return apperrors.ValidationError("story_id is required")
	}

	placement, err := s.app.AddStoryToSprint(c.Request().Context(), sprintID, req.StoryID)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(201, placement)
}

func (s *Server) handleRemoveStoryFromSprint(c echo.Context) error {
	sprintID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	storyID, err := paramUUID(c, "storyID")
	if err != nil {
		return err
	}

	if err := s.app.RemoveStoryFromSprint(c.Request().Context(), sprintID, storyID); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(204)
}

// handleMoveStory performs a kanban drag. The response is the authoritative
// board so clients can reconcile their optimistic update.
func (s *Server) handleMoveStory(c echo.Context) error {
	sprintID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		StoryID    uuid.UUID `json:"story_id"`
		ToColumn   string    `json:"to_column"`
		ToPosition int       `json:"to_position"`
	}
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.StoryID == uuid.Nil {
		return apperrors.ValidationError("story_id is required")
	}
	if !domain.ValidBoardColumn(domain.BoardColumn(req.ToColumn)) {
		return apperrors.ValidationError("invalid board column").WithField("to_column", req.ToColumn)
	}

	board, err := s.app.MoveStory(c.Request().Context(), sprintID, req.StoryID, domain.BoardColumn(req.ToColumn), req.ToPosition)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, board)
}
