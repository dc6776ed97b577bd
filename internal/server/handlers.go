package server

import (
	"errors"

	"github.com/ParashDev/sprintor-sub000/internal/app"
	"github.com/ParashDev/sprintor-sub000/internal/domain"
	apperrors "github.com/ParashDev/sprintor-sub000/internal/errors"
	"github.com/ParashDev/sprintor-sub000/internal/version"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// participantCookie maps session IDs to the caller's participant ID. Identity
// is a cookie, not an account.
const participantCookie = "sprintor-participant"

// paramUUID parses a path parameter as a UUID.
func paramUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid " + name + " parameter").WithField(name, c.Param(name))
	}
	return id, nil
}

// mapDomainError translates domain sentinels into structured errors so the
// middleware can pick the right status code. Unknown errors pass through and
// surface as 500s.
func mapDomainError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, domain.ErrProjectNotFound),
		errors.Is(err, domain.ErrEpicNotFound),
		errors.Is(err, domain.ErrStoryNotFound),
		errors.Is(err, domain.ErrSprintNotFound),
		errors.Is(err, domain.ErrTeamNotFound),
		errors.Is(err, domain.ErrMemberNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		return apperrors.NotFoundError(err.Error())

	case errors.Is(err, domain.ErrInvalidColumn),
		errors.Is(err, domain.ErrStoryNotOnBoard),
		errors.Is(err, domain.ErrUnknownDeck),
		errors.Is(err, domain.ErrUnknownCard),
		errors.Is(err, domain.ErrVotingClosed):
		return apperrors.ValidationError(err.Error())

	case errors.Is(err, domain.ErrStoryAlreadyOnBoard),
		errors.Is(err, domain.ErrSessionActive):
		return apperrors.ConflictError(err.Error())

	case errors.Is(err, domain.ErrNotFacilitator):
		return apperrors.ForbiddenError(err.Error())

	case errors.Is(err, app.ErrVoteRateLimited):
		return apperrors.RateLimitedError(err.Error())
	}

	return err
}

// sortOrder parses the order query parameter, defaulting to ascending.
func sortOrder(c echo.Context) domain.SortOrder {
	if c.QueryParam("order") == string(domain.OrderDesc) {
		return domain.OrderDesc
	}
	return domain.OrderAsc
}

// participantID returns the caller's participant ID for a session, stored in
// the cookie when they created or joined it.
func (s *Server) participantID(c echo.Context, sessionID uuid.UUID) (uuid.UUID, error) {
	store, err := s.sessionStore.Get(c.Request(), participantCookie)
	if err != nil {
		return uuid.Nil, apperrors.ForbiddenError("join the session first")
	}

	raw, ok := store.Values[sessionID.String()].(string)
	if !ok {
		return uuid.Nil, apperrors.ForbiddenError("join the session first")
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.ForbiddenError("join the session first")
	}

	c.Set("participantID", id.String())
	return id, nil
}

// rememberParticipant stores the participant ID for a session in the cookie.
func (s *Server) rememberParticipant(c echo.Context, sessionID, participantID uuid.UUID) error {
	store, err := s.sessionStore.Get(c.Request(), participantCookie)
	if err != nil {
		// Corrupt cookie: start over with a fresh one
		store, err = s.sessionStore.New(c.Request(), participantCookie)
		if err != nil {
			return apperrors.InternalError("failed to create participant cookie", err)
		}
	}

	store.Values[sessionID.String()] = participantID.String()
	if err := store.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save participant cookie", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(200, version.Get())
}
