package server

import (
	"strings"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	apperrors "github.com/ParashDev/sprintor-sub000/internal/errors"
	"github.com/labstack/echo/v4"
)

const defaultEpicColor = "#6366f1"

type epicRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Status      string `json:"status"`
}

func (r epicRequest) validate(requireStatus bool) error {
	if strings.TrimSpace(r.Name) == "" {
		return apperrors.ValidationError("name cannot be empty")
	}
	if r.Color != "" && (len(r.Color) != 7 || r.Color[0] != '#') {
		return apperrors.ValidationError("color must be a #rrggbb value").WithField("color", r.Color)
	}
	if requireStatus && !domain.ValidEpicStatus(domain.EpicStatus(r.Status)) {
		return apperrors.ValidationError("invalid epic status").WithField("status", r.Status)
	}
	return nil
}

func (s *Server) handleCreateEpic(c echo.Context) error {
	projectID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req epicRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := req.validate(false); err != nil {
		return err
	}
	if req.Color == "" {
		req.Color = defaultEpicColor
	}

	epic, err := s.app.CreateEpic(c.Request().Context(), projectID, req.Name, req.Description, req.Color)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(201, epic)
}

func (s *Server) handleListEpics(c echo.Context) error {
	projectID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	epics, err := s.app.ListEpics(c.Request().Context(), projectID)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, epics)
}

func (s *Server) handleGetEpic(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	epic, err := s.app.GetEpic(c.Request().Context(), id)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, epic)
}

func (s *Server) handleUpdateEpic(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req epicRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := req.validate(true); err != nil {
		return err
	}
	if req.Color == "" {
		req.Color = defaultEpicColor
	}

	epic, err := s.app.UpdateEpic(c.Request().Context(), id, req.Name, req.Description, req.Color, domain.EpicStatus(req.Status))
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, epic)
}

func (s *Server) handleDeleteEpic(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := s.app.DeleteEpic(c.Request().Context(), id); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(204)
}
