package domain

import "errors"

var (
	ErrProjectNotFound     = errors.New("project not found")
	ErrEpicNotFound        = errors.New("epic not found")
	ErrStoryNotFound       = errors.New("story not found")
	ErrSprintNotFound      = errors.New("sprint not found")
	ErrTeamNotFound        = errors.New("team not found")
	ErrMemberNotFound      = errors.New("team member not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrParticipantNotFound = errors.New("participant not found")

	ErrStoryNotOnBoard     = errors.New("story is not on the board")
	ErrStoryAlreadyOnBoard = errors.New("story is already on the board")
	ErrInvalidColumn       = errors.New("invalid board column")

	ErrUnknownDeck    = errors.New("unknown deck")
	ErrUnknownCard    = errors.New("card is not part of the session deck")
	ErrVotingClosed   = errors.New("votes are revealed, start a new round to vote")
	ErrNotFacilitator = errors.New("only the facilitator may do this")
	ErrSessionActive  = errors.New("session is active")
)
