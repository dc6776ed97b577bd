package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SessionState string

const (
	StateVoting   SessionState = "voting"
	StateRevealed SessionState = "revealed"
)

// Session is a live planning-poker meeting. Sessions are ephemeral: they live
// in Redis for the duration of the meeting and are swept once abandoned.
type Session struct {
	ID            uuid.UUID    `json:"id"`
	Name          string       `json:"name"`
	ProjectID     uuid.UUID    `json:"project_id,omitempty"`
	Deck          string       `json:"deck"`
	State         SessionState `json:"state"`
	Round         int          `json:"round"`
	StoryTitle    string       `json:"story_title"`
	FacilitatorID uuid.UUID    `json:"facilitator_id"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Participant is someone who joined a session. Identity is a cookie, not an
// account: planning-poker guests join with just a display name.
type Participant struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// SessionSnapshot is the full state pushed to clients: the session, who is
// in the room, the current round's votes, and statistics once revealed.
// While voting, Votes carries the masked marker instead of the card.
type SessionSnapshot struct {
	Session      Session           `json:"session"`
	Participants []Participant     `json:"participants"`
	Votes        map[string]string `json:"votes"`
	Stats        *VoteStats        `json:"stats,omitempty"`
}

// MaskedVote replaces cards in snapshots while votes are hidden.
const MaskedVote = "•"

// MaskVotes hides cards while the round is still voting, keeping who has
// voted visible. Revealed snapshots pass through unchanged.
func (s SessionSnapshot) MaskVotes() SessionSnapshot {
	if s.Session.State == StateRevealed {
		return s
	}
	masked := make(map[string]string, len(s.Votes))
	for id := range s.Votes {
		masked[id] = MaskedVote
	}
	s.Votes = masked
	s.Stats = nil
	return s
}

type SessionRepository interface {
	// Session lifecycle

	Create(ctx context.Context, session Session, facilitator Participant) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Snapshot(ctx context.Context, id uuid.UUID) (*SessionSnapshot, error)
	List(ctx context.Context) ([]Session, error)
	// SessionByFacilitator resolves the reverse lookup written at create
	// time: the session this participant facilitates, if any.
	SessionByFacilitator(ctx context.Context, participantID uuid.UUID) (uuid.UUID, bool, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Participation and voting

	AddParticipant(ctx context.Context, id uuid.UUID, p Participant) error
	CastVote(ctx context.Context, id uuid.UUID, round int, participantID uuid.UUID, card string) error
	Reveal(ctx context.Context, id uuid.UUID) error
	NextRound(ctx context.Context, id uuid.UUID, storyTitle string) (int, error)

	// Presence bookkeeping

	MarkDisconnected(ctx context.Context, id uuid.UUID) error
	ClearDisconnected(ctx context.Context, id uuid.UUID) error
	IncrRefCount(ctx context.Context, id uuid.UUID) (int64, error)
	DecrRefCount(ctx context.Context, id uuid.UUID) (int64, error)

	// Orphan cleanup

	ListOrphans(ctx context.Context, maxAge time.Duration) ([]uuid.UUID, error)
}

// SessionPublisher pushes a snapshot to every instance's connected clients.
type SessionPublisher interface {
	PublishSnapshot(ctx context.Context, id uuid.UUID, snapshot SessionSnapshot) error
}
