package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/ParashDev/sprintor-sub000/internal/metrics"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const cleanupScanTimeout = 30 * time.Second

// ErrVoteRateLimited is returned by CastVote when the participant exceeded
// the token bucket.
var ErrVoteRateLimited = errors.New("vote rate limited")

// VoteLimiter rate limits vote casting per participant.
type VoteLimiter interface {
	Allow(ctx context.Context, sessionID, participantID uuid.UUID) (bool, error)
}

// Leader gates background work that must run on a single instance.
type Leader interface {
	TryBecomeLeader(ctx context.Context) (bool, error)
	RenewLease(ctx context.Context) error
	ReleaseLease(ctx context.Context) error
}

// Service is the application layer. It orchestrates all use cases.
type Service struct {
	projects domain.ProjectRepository
	epics    domain.EpicRepository
	stories  domain.StoryRepository
	sprints  domain.SprintRepository
	teams    domain.TeamRepository

	sessions  domain.SessionRepository
	publisher domain.SessionPublisher
	limiter   VoteLimiter
	leader    Leader
	decks     map[string]domain.Deck

	connectGroup singleflight.Group
	clock        clockwork.Clock

	orphanMaxAge    time.Duration
	cleanupInterval time.Duration
	cleanupStopCh   chan struct{}
	stopOnce        sync.Once
}

// NewService creates the application layer service and starts the cleanup
// timer. leader may be nil for single-instance deployments and tests; the
// cleanup then runs unconditionally.
func NewService(
	projects domain.ProjectRepository,
	epics domain.EpicRepository,
	stories domain.StoryRepository,
	sprints domain.SprintRepository,
	teams domain.TeamRepository,
	sessions domain.SessionRepository,
	publisher domain.SessionPublisher,
	limiter VoteLimiter,
	leader Leader,
	decks map[string]domain.Deck,
	clock clockwork.Clock,
	orphanMaxAge, cleanupInterval time.Duration,
) *Service {
	s := &Service{
		projects:        projects,
		epics:           epics,
		stories:         stories,
		sprints:         sprints,
		teams:           teams,
		sessions:        sessions,
		publisher:       publisher,
		limiter:         limiter,
		leader:          leader,
		decks:           decks,
		clock:           clock,
		orphanMaxAge:    orphanMaxAge,
		cleanupInterval: cleanupInterval,
		cleanupStopCh:   make(chan struct{}),
	}

	s.startCleanupTimer()
	return s
}

// Decks returns the configured estimation decks.
func (s *Service) Decks() map[string]domain.Deck {
	return s.decks
}

// --- Live sessions ---

// CreateSession starts a planning-poker session with the creator as
// facilitator and first participant.
func (s *Service) CreateSession(ctx context.Context, name string, projectID uuid.UUID, deckName, storyTitle, facilitatorName string) (*domain.Session, *domain.Participant, error) {
	if _, ok := s.decks[deckName]; !ok {
		return nil, nil, domain.ErrUnknownDeck
	}

	facilitator := domain.Participant{ID: uuid.New(), Name: facilitatorName}
	session := domain.Session{
		ID:            uuid.New(),
		Name:          name,
		ProjectID:     projectID,
		Deck:          deckName,
		State:         domain.StateVoting,
		Round:         1,
		StoryTitle:    storyTitle,
		FacilitatorID: facilitator.ID,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.sessions.Create(ctx, session, facilitator); err != nil {
		return nil, nil, err
	}
	return &session, &facilitator, nil
}

// ListSessions returns live sessions filtered and sorted in memory. The
// session count is bounded by what fits in Redis, so no pagination here.
func (s *Service) ListSessions(ctx context.Context, query string, state domain.SessionState, sortKey string, order domain.SortOrder) ([]domain.Session, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	return domain.SortSessions(domain.FilterSessions(sessions, query, state), sortKey, order), nil
}

// FacilitatedSession returns the session a participant facilitates, or
// ErrSessionNotFound if they facilitate none.
func (s *Service) FacilitatedSession(ctx context.Context, participantID uuid.UUID) (*domain.Session, error) {
	id, ok, err := s.sessions.SessionByFacilitator(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up facilitator: %w", err)
	}
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.sessions.Get(ctx, id)
}

// GetSnapshot returns the client view of a session: votes masked while the
// round is voting, statistics attached once revealed.
func (s *Service) GetSnapshot(ctx context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
	snapshot, err := s.sessions.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	view := s.snapshotView(*snapshot)
	return &view, nil
}

// JoinSession adds a participant and announces the change to the room.
func (s *Service) JoinSession(ctx context.Context, id uuid.UUID, name string) (*domain.Participant, error) {
	exists, err := s.sessions.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	p := domain.Participant{ID: uuid.New(), Name: name}
	if err := s.sessions.AddParticipant(ctx, id, p); err != nil {
		return nil, err
	}

	s.publishSnapshot(ctx, id)
	return &p, nil
}

// CastVote records a card for the current round. Re-votes overwrite; votes
// after reveal are rejected.
func (s *Service) CastVote(ctx context.Context, sessionID, participantID uuid.UUID, card string) error {
	snapshot, err := s.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		metrics.VotesTotal.WithLabelValues("error").Inc()
		return err
	}

	if snapshot.Session.State != domain.StateVoting {
		metrics.VotesTotal.WithLabelValues("closed").Inc()
		return domain.ErrVotingClosed
	}

	if !s.isParticipant(snapshot, participantID) {
		metrics.VotesTotal.WithLabelValues("error").Inc()
		return domain.ErrParticipantNotFound
	}

	deck, ok := s.decks[snapshot.Session.Deck]
	if !ok || !deck.HasCard(card) {
		metrics.VotesTotal.WithLabelValues("unknown_card").Inc()
		return domain.ErrUnknownCard
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, sessionID, participantID)
		if err != nil {
			// Rate limiter failure must not block voting
			slog.Error("Vote rate limit check failed", "session_id", sessionID.String(), "error", err)
		} else if !allowed {
			metrics.VotesTotal.WithLabelValues("rate_limited").Inc()
			return ErrVoteRateLimited
		}
	}

	result := "cast"
	if _, voted := snapshot.Votes[participantID.String()]; voted {
		result = "revote"
	}

	if err := s.sessions.CastVote(ctx, sessionID, snapshot.Session.Round, participantID, card); err != nil {
		metrics.VotesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.VotesTotal.WithLabelValues(result).Inc()

	s.publishSnapshot(ctx, sessionID)
	return nil
}

// Reveal flips the round to revealed and publishes the snapshot with
// statistics. Only the facilitator may reveal; repeating it is a no-op.
func (s *Service) Reveal(ctx context.Context, sessionID, participantID uuid.UUID) (*domain.SessionSnapshot, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.FacilitatorID != participantID {
		return nil, domain.ErrNotFacilitator
	}

	alreadyRevealed := session.State == domain.StateRevealed
	if err := s.sessions.Reveal(ctx, sessionID); err != nil {
		return nil, err
	}

	snapshot, err := s.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	view := s.snapshotView(*snapshot)

	if !alreadyRevealed {
		metrics.RoundsRevealedTotal.Inc()
		outcome := "split"
		if view.Stats != nil && view.Stats.Agreement {
			outcome = "agreed"
		}
		metrics.RoundAgreementTotal.WithLabelValues(outcome).Inc()
	}

	if err := s.publisher.PublishSnapshot(ctx, sessionID, view); err != nil {
		slog.Error("Failed to publish snapshot", "session_id", sessionID.String(), "error", err)
	}
	return &view, nil
}

// NextRound starts a fresh voting round for the given story.
func (s *Service) NextRound(ctx context.Context, sessionID, participantID uuid.UUID, storyTitle string) (int, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if session.FacilitatorID != participantID {
		return 0, domain.ErrNotFacilitator
	}

	round, err := s.sessions.NextRound(ctx, sessionID, storyTitle)
	if err != nil {
		return 0, err
	}

	s.publishSnapshot(ctx, sessionID)
	return round, nil
}

// DeleteSession ends a session. Only the facilitator may end it.
func (s *Service) DeleteSession(ctx context.Context, sessionID, participantID uuid.UUID) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.FacilitatorID != participantID {
		return domain.ErrNotFacilitator
	}
	return s.sessions.Delete(ctx, sessionID)
}

// SessionExists reports whether a session is live.
func (s *Service) SessionExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.sessions.Exists(ctx, id)
}

// --- Presence ---

// OnFirstClient is called when the first local client connects to a session.
// Concurrent connects collapse via singleflight so the ref count moves once.
func (s *Service) OnFirstClient(ctx context.Context, sessionID uuid.UUID) error {
	_, err, _ := s.connectGroup.Do(sessionID.String(), func() (any, error) {
		if err := s.sessions.ClearDisconnected(ctx, sessionID); err != nil {
			return nil, err
		}
		_, err := s.sessions.IncrRefCount(ctx, sessionID)
		return nil, err
	})
	return err
}

// OnSessionEmpty is called when the last local client disconnects from a
// session. It decrements the ref count and marks the session as disconnected
// if no instance has clients left.
func (s *Service) OnSessionEmpty(ctx context.Context, sessionID uuid.UUID) {
	count, err := s.sessions.DecrRefCount(ctx, sessionID)
	if err != nil {
		slog.Error("DecrRefCount error", "session_id", sessionID.String(), "error", err)
		return
	}

	if count <= 0 {
		if err := s.sessions.MarkDisconnected(ctx, sessionID); err != nil {
			slog.Error("MarkDisconnected error", "session_id", sessionID.String(), "error", err)
		}
		slog.Info("Session marked as disconnected", "session_id", sessionID.String(), "ref_count", count)
	}
}

// --- Cleanup ---

// CleanupOrphans removes sessions whose last client disconnected longer than
// orphanMaxAge ago. Sessions that reconnected during the scan keep a positive
// ref count and are skipped.
func (s *Service) CleanupOrphans(ctx context.Context) {
	start := s.clock.Now()
	defer func() {
		metrics.OrphanCleanupScansTotal.Inc()
		metrics.OrphanCleanupDurationSeconds.Observe(s.clock.Since(start).Seconds())
	}()

	scanCtx, cancel := context.WithTimeout(ctx, cleanupScanTimeout)
	defer cancel()

	orphans, err := s.sessions.ListOrphans(scanCtx, s.orphanMaxAge)
	if err != nil {
		slog.Error("ListOrphans error", "error", err)
		return
	}

	for _, id := range orphans {
		if err := s.sessions.Delete(ctx, id); err != nil {
			if errors.Is(err, domain.ErrSessionActive) {
				slog.Debug("Skipped active session during cleanup", "session_id", id.String())
				metrics.OrphanSessionsSkippedTotal.WithLabelValues("active").Inc()
				continue
			}
			slog.Error("DeleteSession error", "session_id", id.String(), "error", err)
			metrics.OrphanSessionsSkippedTotal.WithLabelValues("error").Inc()
			continue
		}

		metrics.OrphanSessionsDeletedTotal.Inc()
		slog.Info("Cleaned up orphan session", "session_id", id.String())
	}
}

func (s *Service) startCleanupTimer() {
	ticker := s.clock.NewTicker(s.cleanupInterval)
	go func() {
		for {
			select {
			case <-ticker.Chan():
				ctx := context.Background()
				if s.shouldRunCleanup(ctx) {
					s.CleanupOrphans(ctx)
				}
			case <-s.cleanupStopCh:
				ticker.Stop()
				return
			}
		}
	}()
	slog.Info("Cleanup timer started", "interval", s.cleanupInterval)
}

// shouldRunCleanup gates the sweep on leader election so only one instance
// scans Redis per interval.
func (s *Service) shouldRunCleanup(ctx context.Context) bool {
	if s.leader == nil {
		return true
	}

	if err := s.leader.RenewLease(ctx); err == nil {
		return true
	}

	acquired, err := s.leader.TryBecomeLeader(ctx)
	if err != nil {
		slog.Error("Leader election failed", "error", err)
		return false
	}
	return acquired
}

// Stop stops the cleanup timer and releases leadership.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.cleanupStopCh)
		if s.leader != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.leader.ReleaseLease(ctx); err != nil {
				slog.Error("Failed to release leader lease", "error", err)
			}
		}
	})
}

// --- Helpers ---

// snapshotView prepares a snapshot for clients: stats when revealed, masked
// votes while voting.
func (s *Service) snapshotView(snapshot domain.SessionSnapshot) domain.SessionSnapshot {
	if snapshot.Session.State == domain.StateRevealed {
		stats := domain.ComputeVoteStats(snapshot.Votes)
		snapshot.Stats = &stats
	}
	return snapshot.MaskVotes()
}

func (s *Service) isParticipant(snapshot *domain.SessionSnapshot, participantID uuid.UUID) bool {
	for _, p := range snapshot.Participants {
		if p.ID == participantID {
			return true
		}
	}
	return false
}

// publishSnapshot is best effort: the WebSocket fan-out is a convenience on
// top of the authoritative Redis state.
func (s *Service) publishSnapshot(ctx context.Context, sessionID uuid.UUID) {
	snapshot, err := s.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		slog.Error("Failed to read snapshot for publish", "session_id", sessionID.String(), "error", err)
		return
	}
	if err := s.publisher.PublishSnapshot(ctx, sessionID, s.snapshotView(*snapshot)); err != nil {
		slog.Error("Failed to publish snapshot", "session_id", sessionID.String(), "error", err)
	}
}
