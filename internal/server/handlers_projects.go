package server

import (
	"strconv"
	"strings"

	"github.com/ParashDev/sprintor-sub000/internal/app"
	"github.com/ParashDev/sprintor-sub000/internal/domain"
	apperrors "github.com/ParashDev/sprintor-sub000/internal/errors"
	"github.com/labstack/echo/v4"
)

type projectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func (r projectRequest) validate(requireStatus bool) error {
	if strings.TrimSpace(r.Name) == "" {
		return apperrors.ValidationError("name cannot be empty")
	}
	if len(r.Name) > 200 {
		return apperrors.ValidationError("name exceeds 200 characters")
	}
	if requireStatus && !domain.ValidProjectStatus(domain.ProjectStatus(r.Status)) {
		return apperrors.ValidationError("invalid project status").WithField("status", r.Status)
	}
	return nil
}

func (s *Server) handleCreateProject(c echo.Context) error {
	var req projectRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := req.validate(false); err != nil {
		return err
	}

	project, err := s.app.CreateProject(c.Request().Context(), req.Name, req.Description)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(201, project)
}

func (s *Server) handleListProjects(c echo.Context) error {
	status := domain.ProjectStatus(c.QueryParam("status"))
	if status != "" && !domain.ValidProjectStatus(status) {
		return apperrors.ValidationError("invalid project status").WithField("status", string(status))
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	result, err := s.app.ListProjects(c.Request().Context(), app.ProjectQuery{
		Query:    c.QueryParam("q"),
		Status:   status,
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

func (s *Server) handleGetProject(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	project, err := s.app.GetProject(c.Request().Context(), id)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, project)
}

func (s *Server) handleUpdateProject(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req projectRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := req.validate(true); err != nil {
		return err
	}

	project, err := s.app.UpdateProject(c.Request().Context(), id, req.Name, req.Description, domain.ProjectStatus(req.Status))
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, project)
}

func (s *Server) handleDeleteProject(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := s.app.DeleteProject(c.Request().Context(), id); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(204)
}
