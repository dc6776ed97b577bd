package server

import (
	"strconv"
	"strings"

	"github.com/ParashDev/sprintor-sub000/internal/app"
	"github.com/ParashDev/sprintor-sub000/internal/domain"
	apperrors "github.com/ParashDev/sprintor-sub000/internal/errors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type acceptanceCriterionRequest struct {
	ID   *uuid.UUID `json:"id,omitempty"`
	Text string     `json:"text"`
	Done bool       `json:"done"`
}

type storyRequest struct {
	Title              string                       `json:"title"`
	Description        string                       `json:"description"`
	EpicID             *uuid.UUID                   `json:"epic_id,omitempty"`
	Priority           string                       `json:"priority"`
	Status             string                       `json:"status"`
	AcceptanceCriteria []acceptanceCriterionRequest `json:"acceptance_criteria"`
}

func (r storyRequest) validate(requireStatus bool) error {
	if strings.TrimSpace(r.Title) == "" {
		return apperrors.ValidationError("title cannot be empty")
	}
	if r.Priority != "" && !domain.ValidStoryPriority(domain.StoryPriority(r.Priority)) {
		return apperrors.ValidationError("invalid story priority").WithField("priority", r.Priority)
	}
	if requireStatus && !domain.ValidStoryStatus(domain.StoryStatus(r.Status)) {
		return apperrors.ValidationError("invalid story status").WithField("status", r.Status)
	}
	for _, ac := range r.AcceptanceCriteria {
		if strings.TrimSpace(ac.Text) == "" {
			return apperrors.ValidationError("acceptance criterion text cannot be empty")
		}
	}
	return nil
}

// criteria converts the request list, minting IDs for new criteria so clients
// can reference them in later updates.
func (r storyRequest) criteria() []domain.AcceptanceCriterion {
	out := make([]domain.AcceptanceCriterion, 0, len(r.AcceptanceCriteria))
	for _, ac := range r.AcceptanceCriteria {
		id := uuid.New()
		if ac.ID != nil {
			id = *ac.ID
		}
		out = append(out, domain.AcceptanceCriterion{ID: id, Text: ac.Text, Done: ac.Done})
	}
	return out
}

func (s *Server) handleCreateStory(c echo.Context) error {
	projectID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req storyRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := req.validate(false); err != nil {
		return err
	}
	if req.Priority == "" {
		req.Priority = string(domain.PriorityMedium)
	}

	story, err := s.app.CreateStory(c.Request().Context(), &domain.Story{
		ProjectID:          projectID,
		EpicID:             req.EpicID,
		Title:              req.Title,
		Description:        req.Description,
		Priority:           domain.StoryPriority(req.Priority),
		Status:             domain.StoryStatusBacklog,
		AcceptanceCriteria: req.criteria(),
	})
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(201, story)
}

func (s *Server) handleListStories(c echo.Context) error {
	projectID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	status := domain.StoryStatus(c.QueryParam("status"))
	if status != "" && !domain.ValidStoryStatus(status) {
		return apperrors.ValidationError("invalid story status").WithField("status", string(status))
	}

	var epicID *uuid.UUID
	if raw := c.QueryParam("epic_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperrors.ValidationError("invalid epic_id parameter").WithField("epic_id", raw)
		}
		epicID = &id
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	result, err := s.app.ListStories(c.Request().Context(), projectID, app.StoryQuery{
		Query:    c.QueryParam("q"),
		Status:   status,
		EpicID:   epicID,
		SortKey:  c.QueryParam("sort"),
		Order:    sortOrder(c),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, result)
}

func (s *Server) handleGetStory(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	story, err := s.app.GetStory(c.Request().Context(), id)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, story)
}

func (s *Server) handleUpdateStory(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req storyRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := req.validate(true); err != nil {
		return err
	}

	existing, err := s.app.GetStory(c.Request().Context(), id)
	if err != nil {
		return mapDomainError(err)
	}

	existing.EpicID = req.EpicID
	existing.Title = req.Title
	existing.Description = req.Description
	existing.Priority = domain.StoryPriority(req.Priority)
	existing.Status = domain.StoryStatus(req.Status)
	existing.AcceptanceCriteria = req.criteria()

	story, err := s.app.UpdateStory(c.Request().Context(), existing)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, story)
}

type storyEstimateRequest struct {
	Estimate string `json:"estimate"`
}

func (s *Server) handleSetStoryEstimate(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req storyEstimateRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if strings.TrimSpace(req.Estimate) == "" {
		return apperrors.ValidationError("estimate cannot be empty")
	}

	if err := s.app.SetStoryEstimate(c.Request().Context(), id, req.Estimate); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(204)
}

func (s *Server) handleDeleteStory(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := s.app.DeleteStory(c.Request().Context(), id); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(204)
}
