package server

import (
	"strings"

	apperrors "github.com/ParashDev/sprintor-sub000/internal/errors"
	"github.com/labstack/echo/v4"
)

type teamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r teamRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return apperrors.ValidationError("name cannot be empty")
	}
	return nil
}

func (s *Server) handleCreateTeam(c echo.Context) error {
	var req teamRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	team, err := s.app.CreateTeam(c.Request().Context(), req.Name, req.Description)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(201, team)
}

func (s *Server) handleListTeams(c echo.Context) error {
	teams, err := s.app.ListTeams(c.Request().Context())
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, teams)
}

func (s *Server) handleGetTeam(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	team, err := s.app.GetTeam(c.Request().Context(), id)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, team)
}

func (s *Server) handleUpdateTeam(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req teamRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	team, err := s.app.UpdateTeam(c.Request().Context(), id, req.Name, req.Description)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, team)
}

func (s *Server) handleDeleteTeam(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := s.app.DeleteTeam(c.Request().Context(), id); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(204)
}

func (s *Server) handleAddTeamMember(c echo.Context) error {
	teamID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
		Email       string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return apperrors.ValidationError("display_name cannot be empty")
	}

	member, err := s.app.AddTeamMember(c.Request().Context(), teamID, req.DisplayName, req.Role, req.Email)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(201, member)
}

func (s *Server) handleListTeamMembers(c echo.Context) error {
	teamID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	members, err := s.app.ListTeamMembers(c.Request().Context(), teamID)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, members)
}

func (s *Server) handleRemoveTeamMember(c echo.Context) error {
	teamID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	memberID, err := paramUUID(c, "memberID")
	if err != nil {
		return err
	}

	if err := s.app.RemoveTeamMember(c.Request().Context(), teamID, memberID); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(204)
}
