package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	// Redis hash field names for session keys.
	fieldName           = "name"
	fieldProjectID      = "project_id"
	fieldDeck           = "deck"
	fieldState          = "state"
	fieldRound          = "round"
	fieldStoryTitle     = "story_title"
	fieldFacilitatorID  = "facilitator_id"
	fieldCreatedAt      = "created_at"
	fieldLastDisconnect = "last_disconnect"
)

type SessionRepo struct {
	rdb   *goredis.Client
	clock clockwork.Clock
}

var _ domain.SessionRepository = (*SessionRepo)(nil)

func NewSessionRepo(rdb *goredis.Client, clock clockwork.Clock) *SessionRepo {
	return &SessionRepo{rdb: rdb, clock: clock}
}

// --- Session lifecycle ---

// Create stores a fresh session with the facilitator as its first
// participant. Round numbering starts at 1 in the voting state.
func (s *SessionRepo) Create(ctx context.Context, session domain.Session, facilitator domain.Participant) error {
	sk := sessionKey(session.ID)
	pk := participantsKey(session.ID)
	fk := facilitatorKey(facilitator.ID)

	fields := map[string]any{
		fieldName:           session.Name,
		fieldDeck:           session.Deck,
		fieldState:          string(domain.StateVoting),
		fieldRound:          "1",
		fieldStoryTitle:     session.StoryTitle,
		fieldFacilitatorID:  facilitator.ID.String(),
		fieldCreatedAt:      strconv.FormatInt(s.clock.Now().UnixMilli(), 10),
		fieldLastDisconnect: "0",
	}
	if session.ProjectID != uuid.Nil {
		fields[fieldProjectID] = session.ProjectID.String()
	}

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, sk, fields)
	pipe.HSet(ctx, pk, facilitator.ID.String(), facilitator.Name)
	pipe.Set(ctx, fk, session.ID.String(), 0)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SessionRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := s.rdb.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return n > 0, nil
}

func (s *SessionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	fields, err := s.rdb.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return parseSession(id, fields)
}

// Snapshot reads the session, its participants and the current round's votes.
// Stats are left nil; the caller computes them from the deck once revealed.
func (s *SessionRepo) Snapshot(ctx context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	pipe := s.rdb.Pipeline()
	participantsCmd := pipe.HGetAll(ctx, participantsKey(id))
	votesCmd := pipe.HGetAll(ctx, votesKey(id, session.Round))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	rawParticipants := participantsCmd.Val()
	participants := make([]domain.Participant, 0, len(rawParticipants))
	for idStr, name := range rawParticipants {
		pid, err := uuid.Parse(idStr)
		if err != nil {
			slog.Warn("Snapshot: invalid participant ID", "session_id", id, "participant_id", idStr)
			continue
		}
		participants = append(participants, domain.Participant{ID: pid, Name: name})
	}

	votes := votesCmd.Val()
	if votes == nil {
		votes = map[string]string{}
	}

	return &domain.SessionSnapshot{
		Session:      *session,
		Participants: participants,
		Votes:        votes,
	}, nil
}

// List scans for session hashes. Sub-keys (participants, votes) share the
// session:* prefix and are filtered out by their extra segments.
func (s *SessionRepo) List(ctx context.Context) ([]domain.Session, error) {
	sessions := make([]domain.Session, 0)
	var cursor uint64

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("scan cancelled after finding %d sessions: %w", len(sessions), ctx.Err())
		default:
		}

		keys, nextCursor, err := s.rdb.Scan(ctx, cursor, "session:*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		for _, key := range keys {
			id, ok := sessionIDFromKey(key)
			if !ok {
				continue
			}
			session, err := s.Get(ctx, id)
			if errors.Is(err, domain.ErrSessionNotFound) {
				continue // deleted between scan and read
			}
			if err != nil {
				return nil, err
			}
			sessions = append(sessions, *session)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return sessions, nil
}

// Delete removes the session hash and all of its satellite keys. A positive
// ref count means clients reconnected since the orphan scan; the session is
// left alone and ErrSessionActive is returned.
func (s *SessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	sk := sessionKey(id)

	refCount, err := s.rdb.Get(ctx, refCountKey(id)).Int64()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return err
	}
	if refCount > 0 {
		return domain.ErrSessionActive
	}

	facilitatorID, err := s.rdb.HGet(ctx, sk, fieldFacilitatorID).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return err
	}

	round, err := s.rdb.HGet(ctx, sk, fieldRound).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, sk)
	pipe.Del(ctx, participantsKey(id))
	pipe.Del(ctx, refCountKey(id))
	if facilitatorID != "" {
		pipe.Del(ctx, "facilitator:"+facilitatorID)
	}
	if n, err := strconv.Atoi(round); err == nil {
		for r := 1; r <= n; r++ {
			pipe.Del(ctx, votesKey(id, r))
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

// --- Participation and voting ---

func (s *SessionRepo) AddParticipant(ctx context.Context, id uuid.UUID, p domain.Participant) error {
	return s.rdb.HSet(ctx, participantsKey(id), p.ID.String(), p.Name).Err()
}

// CastVote records the card for the participant in the given round.
// A re-vote overwrites the previous card; the vote count is stable.
func (s *SessionRepo) CastVote(ctx context.Context, id uuid.UUID, round int, participantID uuid.UUID, card string) error {
	return s.rdb.HSet(ctx, votesKey(id, round), participantID.String(), card).Err()
}

// Reveal flips the session into the revealed state. Repeating it is a no-op.
func (s *SessionRepo) Reveal(ctx context.Context, id uuid.UUID) error {
	return s.rdb.HSet(ctx, sessionKey(id), fieldState, string(domain.StateRevealed)).Err()
}

// NextRound advances the round counter, resets the state to voting and sets
// the story under estimation. Returns the new round number.
func (s *SessionRepo) NextRound(ctx context.Context, id uuid.UUID, storyTitle string) (int, error) {
	sk := sessionKey(id)

	pipe := s.rdb.Pipeline()
	roundCmd := pipe.HIncrBy(ctx, sk, fieldRound, 1)
	pipe.HSet(ctx, sk, map[string]any{
		fieldState:      string(domain.StateVoting),
		fieldStoryTitle: storyTitle,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to advance round: %w", err)
	}
	return int(roundCmd.Val()), nil
}

// --- Presence bookkeeping ---

func (s *SessionRepo) MarkDisconnected(ctx context.Context, id uuid.UUID) error {
	now := strconv.FormatInt(s.clock.Now().UnixMilli(), 10)
	return s.rdb.HSet(ctx, sessionKey(id), fieldLastDisconnect, now).Err()
}

func (s *SessionRepo) ClearDisconnected(ctx context.Context, id uuid.UUID) error {
	return s.rdb.HSet(ctx, sessionKey(id), fieldLastDisconnect, "0").Err()
}

func (s *SessionRepo) IncrRefCount(ctx context.Context, id uuid.UUID) (int64, error) {
	return s.rdb.Incr(ctx, refCountKey(id)).Result()
}

func (s *SessionRepo) DecrRefCount(ctx context.Context, id uuid.UUID) (int64, error) {
	return s.rdb.Decr(ctx, refCountKey(id)).Result()
}

// --- Orphan cleanup ---

// ListOrphans returns sessions whose last client disconnected more than
// maxAge ago. Sessions that never had a disconnect (or reconnected, which
// resets the marker to 0) are never orphans.
func (s *SessionRepo) ListOrphans(ctx context.Context, maxAge time.Duration) ([]uuid.UUID, error) {
	now := s.clock.Now()
	var orphans []uuid.UUID
	var cursor uint64

	for {
		select {
		case <-ctx.Done():
			return orphans, fmt.Errorf("scan cancelled after finding %d orphans: %w", len(orphans), ctx.Err())
		default:
		}

		keys, nextCursor, err := s.rdb.Scan(ctx, cursor, "session:*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		for _, key := range keys {
			if id, isOrphan := s.checkOrphan(ctx, key, now, maxAge); isOrphan {
				orphans = append(orphans, id)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return orphans, nil
}

func (s *SessionRepo) checkOrphan(ctx context.Context, key string, now time.Time, maxAge time.Duration) (uuid.UUID, bool) {
	id, ok := sessionIDFromKey(key)
	if !ok {
		return uuid.Nil, false
	}

	val, err := s.rdb.HGet(ctx, key, fieldLastDisconnect).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Error("ListOrphans: failed to read key", "key", key, "error", err)
		}
		return uuid.Nil, false
	}

	ts, err := strconv.ParseInt(val, 10, 64)
	if err != nil || ts == 0 {
		return uuid.Nil, false
	}

	if now.Sub(time.UnixMilli(ts)) < maxAge {
		return uuid.Nil, false
	}

	return id, true
}

// --- Parsing and key helpers ---

func parseSession(id uuid.UUID, fields map[string]string) (*domain.Session, error) {
	session := &domain.Session{
		ID:         id,
		Name:       fields[fieldName],
		Deck:       fields[fieldDeck],
		State:      domain.SessionState(fields[fieldState]),
		StoryTitle: fields[fieldStoryTitle],
	}

	round, err := strconv.Atoi(fields[fieldRound])
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: bad round %q", id, fields[fieldRound])
	}
	session.Round = round

	fid, err := uuid.Parse(fields[fieldFacilitatorID])
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: bad facilitator ID %q", id, fields[fieldFacilitatorID])
	}
	session.FacilitatorID = fid

	if raw := fields[fieldProjectID]; raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt session %s: bad project ID %q", id, raw)
		}
		session.ProjectID = pid
	}

	if ts, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64); err == nil {
		session.CreatedAt = time.UnixMilli(ts)
	}

	return session, nil
}

// sessionIDFromKey parses "session:<uuid>" keys, rejecting satellite keys
// like "session:<uuid>:participants".
func sessionIDFromKey(key string) (uuid.UUID, bool) {
	rest := strings.TrimPrefix(key, "session:")
	if strings.Contains(rest, ":") {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func sessionKey(id uuid.UUID) string {
	return "session:" + id.String()
}

func participantsKey(id uuid.UUID) string {
	return "session:" + id.String() + ":participants"
}

func votesKey(id uuid.UUID, round int) string {
	return "session:" + id.String() + ":votes:" + strconv.Itoa(round)
}

func refCountKey(id uuid.UUID) string {
	return "ref_count:" + id.String()
}

func facilitatorKey(participantID uuid.UUID) string {
	return "facilitator:" + participantID.String()
}

// SessionByFacilitator returns the session a participant facilitates, if any.
func (s *SessionRepo) SessionByFacilitator(ctx context.Context, participantID uuid.UUID) (uuid.UUID, bool, error) {
	result, err := s.rdb.Get(ctx, facilitatorKey(participantID)).Result()
	if errors.Is(err, goredis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}

	id, err := uuid.Parse(result)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}
