package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/ParashDev/sprintor-sub000/internal/metrics"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func votingSnapshot(sessionID, facilitatorID, voterID uuid.UUID) *domain.SessionSnapshot {
	return &domain.SessionSnapshot{
		Session: domain.Session{
			ID:            sessionID,
			Name:          "Sprint 12",
			Deck:          "fibonacci",
			State:         domain.StateVoting,
			Round:         1,
			FacilitatorID: facilitatorID,
		},
		Participants: []domain.Participant{
			{ID: facilitatorID, Name: "Dana"},
			{ID: voterID, Name: "Kim"},
		},
		Votes: map[string]string{},
	}
}

func TestCreateSession_UnknownDeck(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	_, _, err := svc.CreateSession(context.Background(), "Sprint 12", uuid.New(), "t-shirt", "", "Dana")
	assert.ErrorIs(t, err, domain.ErrUnknownDeck)
}

func TestCreateSession_FacilitatorIsFirstParticipant(t *testing.T) {
	var created domain.Session
	var facilitator domain.Participant
	sessions := &mockSessionRepo{
		createFn: func(_ context.Context, s domain.Session, f domain.Participant) error {
			created = s
			facilitator = f
			return nil
		},
	}

	clock := clockwork.NewFakeClock()
	svc := newTestService(sessions, nil, nil, nil, clock)
	defer svc.Stop()

	session, p, err := svc.CreateSession(context.Background(), "Sprint 12", uuid.New(), "fibonacci", "checkout flow", "Dana")
	require.NoError(t, err)

	assert.Equal(t, created.ID, session.ID)
	assert.Equal(t, facilitator.ID, p.ID)
	assert.Equal(t, p.ID, session.FacilitatorID)
	assert.Equal(t, domain.StateVoting, session.State)
	assert.Equal(t, 1, session.Round)
	assert.Equal(t, "checkout flow", session.StoryTitle)
	assert.Equal(t, clock.Now(), session.CreatedAt)
}

func TestFacilitatedSession(t *testing.T) {
	sessionID := uuid.New()
	facilitatorID := uuid.New()
	sessions := &mockSessionRepo{
		byFacilitatorFn: func(_ context.Context, pid uuid.UUID) (uuid.UUID, bool, error) {
			if pid == facilitatorID {
				return sessionID, true, nil
			}
			return uuid.Nil, false, nil
		},
		getFn: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
			return &domain.Session{ID: id, FacilitatorID: facilitatorID}, nil
		},
	}

	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	session, err := svc.FacilitatedSession(context.Background(), facilitatorID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, session.ID)

	_, err = svc.FacilitatedSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestJoinSession_NotFound(t *testing.T) {
	sessions := &mockSessionRepo{
		existsFn: func(_ context.Context, _ uuid.UUID) (bool, error) { return false, nil },
	}
	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	_, err := svc.JoinSession(context.Background(), uuid.New(), "Kim")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestJoinSession_PublishesSnapshot(t *testing.T) {
	sessionID := uuid.New()
	facilitatorID := uuid.New()

	sessions := &mockSessionRepo{
		snapshotFn: func(_ context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
			return votingSnapshot(id, facilitatorID, uuid.New()), nil
		},
	}
	publisher := &mockPublisher{}
	svc := newTestService(sessions, publisher, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	p, err := svc.JoinSession(context.Background(), sessionID, "Kim")
	require.NoError(t, err)
	assert.Equal(t, "Kim", p.Name)
	assert.Len(t, publisher.published, 1)
}

func TestCastVote_VotingClosed(t *testing.T) {
	sessionID := uuid.New()
	voterID := uuid.New()

	sessions := &mockSessionRepo{
		snapshotFn: func(_ context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
			snap := votingSnapshot(id, uuid.New(), voterID)
			snap.Session.State = domain.StateRevealed
			return snap, nil
		},
	}
	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	err := svc.CastVote(context.Background(), sessionID, voterID, "5")
	assert.ErrorIs(t, err, domain.ErrVotingClosed)
}

func TestCastVote_NotParticipant(t *testing.T) {
	sessionID := uuid.New()

	sessions := &mockSessionRepo{
		snapshotFn: func(_ context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
			return votingSnapshot(id, uuid.New(), uuid.New()), nil
		},
	}
	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	err := svc.CastVote(context.Background(), sessionID, uuid.New(), "5")
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
}

func TestCastVote_UnknownCard(t *testing.T) {
	sessionID := uuid.New()
	voterID := uuid.New()

	sessions := &mockSessionRepo{
		snapshotFn: func(_ context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
			return votingSnapshot(id, uuid.New(), voterID), nil
		},
	}
	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	err := svc.CastVote(context.Background(), sessionID, voterID, "42")
	assert.ErrorIs(t, err, domain.ErrUnknownCard)
}

func TestCastVote_RateLimited(t *testing.T) {
	sessionID := uuid.New()
	voterID := uuid.New()

	sessions := &mockSessionRepo{
		snapshotFn: func(_ context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
			return votingSnapshot(id, uuid.New(), voterID), nil
		},
	}
	limiter := &mockLimiter{
		allowFn: func(_ context.Context, _, _ uuid.UUID) (bool, error) { return false, nil },
	}
	svc := newTestService(sessions, nil, limiter, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	err := svc.CastVote(context.Background(), sessionID, voterID, "5")
	assert.ErrorIs(t, err, ErrVoteRateLimited)
}

func TestCastVote_LimiterErrorDoesNotBlockVoting(t *testing.T) {
	sessionID := uuid.New()
	voterID := uuid.New()

	var voted bool
	sessions := &mockSessionRepo{
		snapshotFn: func(_ context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
			return votingSnapshot(id, uuid.New(), voterID), nil
		},
		castVoteFn: func(_ context.Context, _ uuid.UUID, round int, pid uuid.UUID, card string) error {
			voted = true
			assert.Equal(t, 1, round)
			assert.Equal(t, voterID, pid)
			assert.Equal(t, "5", card)
			return nil
		},
	}
	limiter := &mockLimiter{
		allowFn: func(_ context.Context, _, _ uuid.UUID) (bool, error) {
			return false, fmt.Errorf("redis down")
		},
	}
	svc := newTestService(sessions, nil, limiter, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	err := svc.CastVote(context.Background(), sessionID, voterID, "5")
	require.NoError(t, err)
	assert.True(t, voted)
}

func TestCastVote_RevoteMetric(t *testing.T) {
	sessionID := uuid.New()
	voterID := uuid.New()

	sessions := &mockSessionRepo{
		snapshotFn: func(_ context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
			snap := votingSnapshot(id, uuid.New(), voterID)
			snap.Votes[voterID.String()] = "3"
			return snap, nil
		},
	}
	publisher := &mockPublisher{}
	svc := newTestService(sessions, publisher, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	before := testutil.ToFloat64(metrics.VotesTotal.WithLabelValues("revote"))
	require.NoError(t, svc.CastVote(context.Background(), sessionID, voterID, "5"))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.VotesTotal.WithLabelValues("revote")))
	assert.NotEmpty(t, publisher.published)
}

func TestCastVote_PublishedSnapshotMasksVotes(t *testing.T) {
	sessionID := uuid.New()
	voterID := uuid.New()

	sessions := &mockSessionRepo{
		snapshotFn: func(_ context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
			snap := votingSnapshot(id, uuid.New(), voterID)
			snap.Votes[voterID.String()] = "5"
			return snap, nil
		},
	}
	publisher := &mockPublisher{}
	svc := newTestService(sessions, publisher, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	require.NoError(t, svc.CastVote(context.Background(), sessionID, voterID, "8"))
	require.NotEmpty(t, publisher.published)
	assert.Equal(t, domain.MaskedVote, publisher.published[0].Votes[voterID.String()])
}

func TestReveal_NotFacilitator(t *testing.T) {
	sessionID := uuid.New()
	facilitatorID := uuid.New()

	sessions := &mockSessionRepo{
		getFn: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
			return &domain.Session{ID: id, FacilitatorID: facilitatorID, State: domain.StateVoting}, nil
		},
	}
	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	_, err := svc.Reveal(context.Background(), sessionID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFacilitator)
}

func TestReveal_AttachesStats(t *testing.T) {
	sessionID := uuid.New()
	facilitatorID := uuid.New()
	voterID := uuid.New()

	sessions := &mockSessionRepo{
		getFn: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
			return &domain.Session{ID: id, FacilitatorID: facilitatorID, State: domain.StateVoting}, nil
		},
		snapshotFn: func(_ context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
			snap := votingSnapshot(id, facilitatorID, voterID)
			snap.Session.State = domain.StateRevealed
			snap.Votes = map[string]string{
				facilitatorID.String(): "5",
				voterID.String():       "5",
			}
			return snap, nil
		},
	}
	publisher := &mockPublisher{}
	svc := newTestService(sessions, publisher, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	view, err := svc.Reveal(context.Background(), sessionID, facilitatorID)
	require.NoError(t, err)
	require.NotNil(t, view.Stats)
	assert.True(t, view.Stats.Agreement)
	assert.Equal(t, 2, view.Stats.VotesCast)
	// Revealed votes are not masked
	assert.Equal(t, "5", view.Votes[voterID.String()])
	assert.Len(t, publisher.published, 1)
}

func TestReveal_RepeatDoesNotDoubleCount(t *testing.T) {
	sessionID := uuid.New()
	facilitatorID := uuid.New()

	sessions := &mockSessionRepo{
		getFn: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
			// Already revealed
			return &domain.Session{ID: id, FacilitatorID: facilitatorID, State: domain.StateRevealed}, nil
		},
		snapshotFn: func(_ context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
			snap := votingSnapshot(id, facilitatorID, uuid.New())
			snap.Session.State = domain.StateRevealed
			return snap, nil
		},
	}
	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	before := testutil.ToFloat64(metrics.RoundsRevealedTotal)
	_, err := svc.Reveal(context.Background(), sessionID, facilitatorID)
	require.NoError(t, err)
	assert.Equal(t, before, testutil.ToFloat64(metrics.RoundsRevealedTotal))
}

func TestNextRound_FacilitatorOnly(t *testing.T) {
	sessionID := uuid.New()
	facilitatorID := uuid.New()

	sessions := &mockSessionRepo{
		getFn: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
			return &domain.Session{ID: id, FacilitatorID: facilitatorID}, nil
		},
		nextRoundFn: func(_ context.Context, _ uuid.UUID, storyTitle string) (int, error) {
			assert.Equal(t, "payment retries", storyTitle)
			return 2, nil
		},
		snapshotFn: func(_ context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
			return votingSnapshot(id, facilitatorID, uuid.New()), nil
		},
	}
	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	_, err := svc.NextRound(context.Background(), sessionID, uuid.New(), "payment retries")
	assert.ErrorIs(t, err, domain.ErrNotFacilitator)

	round, err := svc.NextRound(context.Background(), sessionID, facilitatorID, "payment retries")
	require.NoError(t, err)
	assert.Equal(t, 2, round)
}

func TestDeleteSession_FacilitatorOnly(t *testing.T) {
	sessionID := uuid.New()
	facilitatorID := uuid.New()

	var deleted bool
	sessions := &mockSessionRepo{
		getFn: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
			return &domain.Session{ID: id, FacilitatorID: facilitatorID}, nil
		},
		deleteFn: func(_ context.Context, _ uuid.UUID) error {
			deleted = true
			return nil
		},
	}
	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	err := svc.DeleteSession(context.Background(), sessionID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFacilitator)
	assert.False(t, deleted)

	require.NoError(t, svc.DeleteSession(context.Background(), sessionID, facilitatorID))
	assert.True(t, deleted)
}

func TestOnFirstClient_ClearsDisconnectAndIncrements(t *testing.T) {
	var cleared, incremented bool
	sessions := &mockSessionRepo{
		clearDisconnectedFn: func(_ context.Context, _ uuid.UUID) error {
			cleared = true
			return nil
		},
		incrRefCountFn: func(_ context.Context, _ uuid.UUID) (int64, error) {
			incremented = true
			return 1, nil
		},
	}
	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	require.NoError(t, svc.OnFirstClient(context.Background(), uuid.New()))
	assert.True(t, cleared)
	assert.True(t, incremented)
}

func TestOnSessionEmpty_MarksDisconnectedAtZero(t *testing.T) {
	var marked bool
	sessions := &mockSessionRepo{
		decrRefCountFn: func(_ context.Context, _ uuid.UUID) (int64, error) { return 0, nil },
		markDisconnectedFn: func(_ context.Context, _ uuid.UUID) error {
			marked = true
			return nil
		},
	}
	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	svc.OnSessionEmpty(context.Background(), uuid.New())
	assert.True(t, marked)
}

func TestOnSessionEmpty_SkipsMarkWhileOtherInstancesConnected(t *testing.T) {
	var marked bool
	sessions := &mockSessionRepo{
		decrRefCountFn: func(_ context.Context, _ uuid.UUID) (int64, error) { return 2, nil },
		markDisconnectedFn: func(_ context.Context, _ uuid.UUID) error {
			marked = true
			return nil
		},
	}
	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	svc.OnSessionEmpty(context.Background(), uuid.New())
	assert.False(t, marked)
}

func TestCleanupOrphans_SkipsReconnectedSession(t *testing.T) {
	orphanID := uuid.New()
	sessions := &mockSessionRepo{
		listOrphansFn: func(_ context.Context, _ time.Duration) ([]uuid.UUID, error) {
			return []uuid.UUID{orphanID}, nil
		},
		deleteFn: func(_ context.Context, _ uuid.UUID) error {
			// Session reconnected during the scan, ref count is positive
			return domain.ErrSessionActive
		},
	}
	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	before := testutil.ToFloat64(metrics.OrphanSessionsSkippedTotal.WithLabelValues("active"))
	svc.CleanupOrphans(context.Background())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.OrphanSessionsSkippedTotal.WithLabelValues("active")))
}

func TestCleanupOrphans_DeletesOrphans(t *testing.T) {
	orphanID := uuid.New()
	var deleted []uuid.UUID
	sessions := &mockSessionRepo{
		listOrphansFn: func(_ context.Context, _ time.Duration) ([]uuid.UUID, error) {
			return []uuid.UUID{orphanID}, nil
		},
		deleteFn: func(_ context.Context, id uuid.UUID) error {
			deleted = append(deleted, id)
			return nil
		},
	}
	svc := newTestService(sessions, nil, nil, nil, clockwork.NewFakeClock())
	defer svc.Stop()

	svc.CleanupOrphans(context.Background())
	assert.Equal(t, []uuid.UUID{orphanID}, deleted)
}

func TestShouldRunCleanup_LeaderGating(t *testing.T) {
	clock := clockwork.NewFakeClock()

	// No leader configured: always run (single instance)
	svc := newTestService(nil, nil, nil, nil, clock)
	assert.True(t, svc.shouldRunCleanup(context.Background()))
	svc.Stop()

	// Holding the lease: run
	svc = newTestService(nil, nil, nil, &mockLeader{
		renewFn: func(_ context.Context) error { return nil },
	}, clock)
	assert.True(t, svc.shouldRunCleanup(context.Background()))
	svc.Stop()

	// Lease lost but election won: run
	svc = newTestService(nil, nil, nil, &mockLeader{
		tryFn: func(_ context.Context) (bool, error) { return true, nil },
	}, clock)
	assert.True(t, svc.shouldRunCleanup(context.Background()))
	svc.Stop()

	// Someone else is leader: skip
	svc = newTestService(nil, nil, nil, &mockLeader{}, clock)
	assert.False(t, svc.shouldRunCleanup(context.Background()))
	svc.Stop()
}

func TestStop_ReleasesLease(t *testing.T) {
	var released bool
	leader := &mockLeader{
		releaseFn: func(_ context.Context) error {
			released = true
			return nil
		},
	}
	svc := newTestService(nil, nil, nil, leader, clockwork.NewFakeClock())
	svc.Stop()
	svc.Stop() // idempotent
	assert.True(t, released)
}

func TestCleanupTimer_RunsOnTick(t *testing.T) {
	clock := clockwork.NewFakeClock()

	scanned := make(chan struct{}, 1)
	sessions := &mockSessionRepo{
		listOrphansFn: func(_ context.Context, _ time.Duration) ([]uuid.UUID, error) {
			select {
			case scanned <- struct{}{}:
			default:
			}
			return nil, nil
		},
	}
	svc := newTestService(sessions, nil, nil, nil, clock)
	defer svc.Stop()

	clock.BlockUntil(1)
	clock.Advance(time.Minute)

	select {
	case <-scanned:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup did not run after tick")
	}
}
