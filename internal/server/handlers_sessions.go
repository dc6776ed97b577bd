package server

import (
	"errors"
	"strings"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	apperrors "github.com/ParashDev/sprintor-sub000/internal/errors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func (s *Server) handleListDecks(c echo.Context) error {
	return c.JSON(200, s.app.Decks())
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req struct {
		Name            string    `json:"name"`
		ProjectID       uuid.UUID `json:"project_id"`
		Deck            string    `json:"deck"`
		StoryTitle      string    `json:"story_title"`
		FacilitatorName string    `json:"facilitator_name"`
	}
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.ValidationError("name cannot be empty")
	}
	if strings.TrimSpace(req.FacilitatorName) == "" {
		return apperrors.ValidationError("facilitator_name cannot be empty")
	}

	session, facilitator, err := s.app.CreateSession(c.Request().Context(), req.Name, req.ProjectID, req.Deck, req.StoryTitle, req.FacilitatorName)
	if err != nil {
		return mapDomainError(err)
	}

	if err := s.rememberParticipant(c, session.ID, facilitator.ID); err != nil {
		return err
	}

	return c.JSON(201, map[string]any{
		"session":     session,
		"participant": facilitator,
	})
}

func (s *Server) handleListSessions(c echo.Context) error {
	state := domain.SessionState(c.QueryParam("state"))
	if state != "" && state != domain.StateVoting && state != domain.StateRevealed {
		return apperrors.ValidationError("invalid session state").WithField("state", string(state))
	}

	sessions, err := s.app.ListSessions(c.Request().Context(), c.QueryParam("q"), state, c.QueryParam("sort"), sortOrder(c))
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, sessions)
}

// handleMySession finds the session the caller facilitates by checking each
// participant ID in the cookie against the facilitator reverse lookup.
func (s *Server) handleMySession(c echo.Context) error {
	store, err := s.sessionStore.Get(c.Request(), participantCookie)
	if err != nil {
		return apperrors.NotFoundError("no facilitated session")
	}

	for _, value := range store.Values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		participantID, err := uuid.Parse(raw)
		if err != nil {
			continue
		}

		session, err := s.app.FacilitatedSession(c.Request().Context(), participantID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return mapDomainError(err)
		}
		return c.JSON(200, map[string]any{
			"session":        session,
			"facilitator_id": participantID,
		})
	}
	return apperrors.NotFoundError("no facilitated session")
}

func (s *Server) handleGetSession(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	snapshot, err := s.app.GetSnapshot(c.Request().Context(), id)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, snapshot)
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	participantID, err := s.participantID(c, id)
	if err != nil {
		return err
	}

	if err := s.app.DeleteSession(c.Request().Context(), id, participantID); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(204)
}

func (s *Server) handleJoinSession(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.ValidationError("name cannot be empty")
	}

	participant, err := s.app.JoinSession(c.Request().Context(), id, req.Name)
	if err != nil {
		return mapDomainError(err)
	}

	if err := s.rememberParticipant(c, id, participant.ID); err != nil {
		return err
	}
	return c.JSON(200, participant)
}

func (s *Server) handleCastVote(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	participantID, err := s.participantID(c, id)
	if err != nil {
		return err
	}

	var req struct {
		Card string `json:"card"`
	}
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Card == "" {
		return apperrors.ValidationError("card is required")
	}

	if err := s.app.CastVote(c.Request().Context(), id, participantID, req.Card); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(204)
}

func (s *Server) handleReveal(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	participantID, err := s.participantID(c, id)
	if err != nil {
		return err
	}

	snapshot, err := s.app.Reveal(c.Request().Context(), id, participantID)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, snapshot)
}

func (s *Server) handleNextRound(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	participantID, err := s.participantID(c, id)
	if err != nil {
		return err
	}

	var req struct {
		StoryTitle string `json:"story_title"`
	}
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	round, err := s.app.NextRound(c.Request().Context(), id, participantID, req.StoryTitle)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(200, map[string]int{"round": round})
}
