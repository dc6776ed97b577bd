package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// --- Mock implementations ---

type mockProjectRepo struct {
	createFn  func(ctx context.Context, name, description string) (*domain.Project, error)
	getByIDFn func(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	listFn    func(ctx context.Context) ([]domain.Project, error)
	updateFn  func(ctx context.Context, id uuid.UUID, name, description string, status domain.ProjectStatus) (*domain.Project, error)
	deleteFn  func(ctx context.Context, id uuid.UUID) error
}

func (m *mockProjectRepo) Create(ctx context.Context, name, description string) (*domain.Project, error) {
	if m.createFn != nil {
		return m.createFn(ctx, name, description)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &domain.Project{ID: id, Status: domain.ProjectStatusActive}, nil
}

func (m *mockProjectRepo) List(ctx context.Context) ([]domain.Project, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockProjectRepo) Update(ctx context.Context, id uuid.UUID, name, description string, status domain.ProjectStatus) (*domain.Project, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, name, description, status)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockProjectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockEpicRepo struct {
	createFn        func(ctx context.Context, projectID uuid.UUID, name, description, color string) (*domain.Epic, error)
	getByIDFn       func(ctx context.Context, id uuid.UUID) (*domain.Epic, error)
	listByProjectFn func(ctx context.Context, projectID uuid.UUID) ([]domain.Epic, error)
	updateFn        func(ctx context.Context, id uuid.UUID, name, description, color string, status domain.EpicStatus) (*domain.Epic, error)
	deleteFn        func(ctx context.Context, id uuid.UUID) error
}

func (m *mockEpicRepo) Create(ctx context.Context, projectID uuid.UUID, name, description, color string) (*domain.Epic, error) {
	if m.createFn != nil {
		return m.createFn(ctx, projectID, name, description, color)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEpicRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Epic, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &domain.Epic{ID: id}, nil
}

func (m *mockEpicRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.Epic, error) {
	if m.listByProjectFn != nil {
		return m.listByProjectFn(ctx, projectID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEpicRepo) Update(ctx context.Context, id uuid.UUID, name, description, color string, status domain.EpicStatus) (*domain.Epic, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, name, description, color, status)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEpicRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockStoryRepo struct {
	createFn        func(ctx context.Context, story *domain.Story) (*domain.Story, error)
	getByIDFn       func(ctx context.Context, id uuid.UUID) (*domain.Story, error)
	listByProjectFn func(ctx context.Context, projectID uuid.UUID) ([]domain.Story, error)
	updateFn        func(ctx context.Context, story *domain.Story) (*domain.Story, error)
	setEstimateFn   func(ctx context.Context, id uuid.UUID, estimate string) error
	deleteFn        func(ctx context.Context, id uuid.UUID) error
}

func (m *mockStoryRepo) Create(ctx context.Context, story *domain.Story) (*domain.Story, error) {
	if m.createFn != nil {
		return m.createFn(ctx, story)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockStoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Story, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockStoryRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.Story, error) {
	if m.listByProjectFn != nil {
		return m.listByProjectFn(ctx, projectID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockStoryRepo) Update(ctx context.Context, story *domain.Story) (*domain.Story, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, story)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockStoryRepo) SetEstimate(ctx context.Context, id uuid.UUID, estimate string) error {
	if m.setEstimateFn != nil {
		return m.setEstimateFn(ctx, id, estimate)
	}
	return nil
}

func (m *mockStoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockSprintRepo struct {
	createFn        func(ctx context.Context, projectID uuid.UUID, name, goal string, startsAt, endsAt time.Time) (*domain.Sprint, error)
	getByIDFn       func(ctx context.Context, id uuid.UUID) (*domain.Sprint, error)
	listByProjectFn func(ctx context.Context, projectID uuid.UUID) ([]domain.Sprint, error)
	updateFn        func(ctx context.Context, id uuid.UUID, name, goal string, startsAt, endsAt time.Time, status domain.SprintStatus) (*domain.Sprint, error)
	deleteFn        func(ctx context.Context, id uuid.UUID) error
	getBoardFn      func(ctx context.Context, sprintID uuid.UUID) ([]domain.SprintStory, error)
	addStoryFn      func(ctx context.Context, sprintID, storyID uuid.UUID) (*domain.SprintStory, error)
	removeStoryFn   func(ctx context.Context, sprintID, storyID uuid.UUID) error
	moveStoryFn     func(ctx context.Context, sprintID, storyID uuid.UUID, toColumn domain.BoardColumn, toPosition int) ([]domain.SprintStory, error)
}

func (m *mockSprintRepo) Create(ctx context.Context, projectID uuid.UUID, name, goal string, startsAt, endsAt time.Time) (*domain.Sprint, error) {
	if m.createFn != nil {
		return m.createFn(ctx, projectID, name, goal, startsAt, endsAt)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSprintRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Sprint, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSprintRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.Sprint, error) {
	if m.listByProjectFn != nil {
		return m.listByProjectFn(ctx, projectID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSprintRepo) Update(ctx context.Context, id uuid.UUID, name, goal string, startsAt, endsAt time.Time, status domain.SprintStatus) (*domain.Sprint, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, name, goal, startsAt, endsAt, status)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSprintRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockSprintRepo) GetBoard(ctx context.Context, sprintID uuid.UUID) ([]domain.SprintStory, error) {
	if m.getBoardFn != nil {
		return m.getBoardFn(ctx, sprintID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSprintRepo) AddStory(ctx context.Context, sprintID, storyID uuid.UUID) (*domain.SprintStory, error) {
	if m.addStoryFn != nil {
		return m.addStoryFn(ctx, sprintID, storyID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSprintRepo) RemoveStory(ctx context.Context, sprintID, storyID uuid.UUID) error {
	if m.removeStoryFn != nil {
		return m.removeStoryFn(ctx, sprintID, storyID)
	}
	return nil
}

func (m *mockSprintRepo) MoveStory(ctx context.Context, sprintID, storyID uuid.UUID, toColumn domain.BoardColumn, toPosition int) ([]domain.SprintStory, error) {
	if m.moveStoryFn != nil {
		return m.moveStoryFn(ctx, sprintID, storyID, toColumn, toPosition)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockTeamRepo struct {
	createFn       func(ctx context.Context, name, description string) (*domain.Team, error)
	getByIDFn      func(ctx context.Context, id uuid.UUID) (*domain.Team, error)
	listFn         func(ctx context.Context) ([]domain.Team, error)
	updateFn       func(ctx context.Context, id uuid.UUID, name, description string) (*domain.Team, error)
	deleteFn       func(ctx context.Context, id uuid.UUID) error
	addMemberFn    func(ctx context.Context, teamID uuid.UUID, displayName, role, email string) (*domain.TeamMember, error)
	listMembersFn  func(ctx context.Context, teamID uuid.UUID) ([]domain.TeamMember, error)
	removeMemberFn func(ctx context.Context, teamID, memberID uuid.UUID) error
}

func (m *mockTeamRepo) Create(ctx context.Context, name, description string) (*domain.Team, error) {
	if m.createFn != nil {
		return m.createFn(ctx, name, description)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockTeamRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Team, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &domain.Team{ID: id}, nil
}

func (m *mockTeamRepo) List(ctx context.Context) ([]domain.Team, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockTeamRepo) Update(ctx context.Context, id uuid.UUID, name, description string) (*domain.Team, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, name, description)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockTeamRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockTeamRepo) AddMember(ctx context.Context, teamID uuid.UUID, displayName, role, email string) (*domain.TeamMember, error) {
	if m.addMemberFn != nil {
		return m.addMemberFn(ctx, teamID, displayName, role, email)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockTeamRepo) ListMembers(ctx context.Context, teamID uuid.UUID) ([]domain.TeamMember, error) {
	if m.listMembersFn != nil {
		return m.listMembersFn(ctx, teamID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockTeamRepo) RemoveMember(ctx context.Context, teamID, memberID uuid.UUID) error {
	if m.removeMemberFn != nil {
		return m.removeMemberFn(ctx, teamID, memberID)
	}
	return nil
}

type mockSessionRepo struct {
	createFn            func(ctx context.Context, session domain.Session, facilitator domain.Participant) error
	existsFn            func(ctx context.Context, id uuid.UUID) (bool, error)
	getFn               func(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	snapshotFn          func(ctx context.Context, id uuid.UUID) (*domain.SessionSnapshot, error)
	listFn              func(ctx context.Context) ([]domain.Session, error)
	byFacilitatorFn     func(ctx context.Context, participantID uuid.UUID) (uuid.UUID, bool, error)
	deleteFn            func(ctx context.Context, id uuid.UUID) error
	addParticipantFn    func(ctx context.Context, id uuid.UUID, p domain.Participant) error
	castVoteFn          func(ctx context.Context, id uuid.UUID, round int, participantID uuid.UUID, card string) error
	revealFn            func(ctx context.Context, id uuid.UUID) error
	nextRoundFn         func(ctx context.Context, id uuid.UUID, storyTitle string) (int, error)
	markDisconnectedFn  func(ctx context.Context, id uuid.UUID) error
	clearDisconnectedFn func(ctx context.Context, id uuid.UUID) error
	incrRefCountFn      func(ctx context.Context, id uuid.UUID) (int64, error)
	decrRefCountFn      func(ctx context.Context, id uuid.UUID) (int64, error)
	listOrphansFn       func(ctx context.Context, maxAge time.Duration) ([]uuid.UUID, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, session domain.Session, facilitator domain.Participant) error {
	if m.createFn != nil {
		return m.createFn(ctx, session, facilitator)
	}
	return nil
}

func (m *mockSessionRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, id)
	}
	return true, nil
}

func (m *mockSessionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSessionRepo) Snapshot(ctx context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
	if m.snapshotFn != nil {
		return m.snapshotFn(ctx, id)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSessionRepo) List(ctx context.Context) ([]domain.Session, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSessionRepo) SessionByFacilitator(ctx context.Context, participantID uuid.UUID) (uuid.UUID, bool, error) {
	if m.byFacilitatorFn != nil {
		return m.byFacilitatorFn(ctx, participantID)
	}
	return uuid.Nil, false, nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) AddParticipant(ctx context.Context, id uuid.UUID, p domain.Participant) error {
	if m.addParticipantFn != nil {
		return m.addParticipantFn(ctx, id, p)
	}
	return nil
}

func (m *mockSessionRepo) CastVote(ctx context.Context, id uuid.UUID, round int, participantID uuid.UUID, card string) error {
	if m.castVoteFn != nil {
		return m.castVoteFn(ctx, id, round, participantID, card)
	}
	return nil
}

func (m *mockSessionRepo) Reveal(ctx context.Context, id uuid.UUID) error {
	if m.revealFn != nil {
		return m.revealFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) NextRound(ctx context.Context, id uuid.UUID, storyTitle string) (int, error) {
	if m.nextRoundFn != nil {
		return m.nextRoundFn(ctx, id, storyTitle)
	}
	return 2, nil
}

func (m *mockSessionRepo) MarkDisconnected(ctx context.Context, id uuid.UUID) error {
	if m.markDisconnectedFn != nil {
		return m.markDisconnectedFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) ClearDisconnected(ctx context.Context, id uuid.UUID) error {
	if m.clearDisconnectedFn != nil {
		return m.clearDisconnectedFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) IncrRefCount(ctx context.Context, id uuid.UUID) (int64, error) {
	if m.incrRefCountFn != nil {
		return m.incrRefCountFn(ctx, id)
	}
	return 1, nil
}

func (m *mockSessionRepo) DecrRefCount(ctx context.Context, id uuid.UUID) (int64, error) {
	if m.decrRefCountFn != nil {
		return m.decrRefCountFn(ctx, id)
	}
	return 0, nil
}

func (m *mockSessionRepo) ListOrphans(ctx context.Context, maxAge time.Duration) ([]uuid.UUID, error) {
	if m.listOrphansFn != nil {
		return m.listOrphansFn(ctx, maxAge)
	}
	return nil, nil
}

type mockPublisher struct {
	publishFn func(ctx context.Context, id uuid.UUID, snapshot domain.SessionSnapshot) error
	published []domain.SessionSnapshot
}

func (m *mockPublisher) PublishSnapshot(ctx context.Context, id uuid.UUID, snapshot domain.SessionSnapshot) error {
	m.published = append(m.published, snapshot)
	if m.publishFn != nil {
		return m.publishFn(ctx, id, snapshot)
	}
	return nil
}

type mockLimiter struct {
	allowFn func(ctx context.Context, sessionID, participantID uuid.UUID) (bool, error)
}

func (m *mockLimiter) Allow(ctx context.Context, sessionID, participantID uuid.UUID) (bool, error) {
	if m.allowFn != nil {
		return m.allowFn(ctx, sessionID, participantID)
	}
	return true, nil
}

type mockLeader struct {
	tryFn     func(ctx context.Context) (bool, error)
	renewFn   func(ctx context.Context) error
	releaseFn func(ctx context.Context) error
}

func (m *mockLeader) TryBecomeLeader(ctx context.Context) (bool, error) {
	if m.tryFn != nil {
		return m.tryFn(ctx)
	}
	return false, nil
}

func (m *mockLeader) RenewLease(ctx context.Context) error {
	if m.renewFn != nil {
		return m.renewFn(ctx)
	}
	return fmt.Errorf("not leader")
}

func (m *mockLeader) ReleaseLease(ctx context.Context) error {
	if m.releaseFn != nil {
		return m.releaseFn(ctx)
	}
	return nil
}

func testDecks() map[string]domain.Deck {
	return map[string]domain.Deck{
		"fibonacci": {Name: "fibonacci", Cards: []string{"1", "2", "3", "5", "8", "13", "?"}},
	}
}

// newTestService wires a service over mocks. Nil repos default to empty mocks.
func newTestService(sessions *mockSessionRepo, publisher *mockPublisher, limiter VoteLimiter, leader Leader, clock clockwork.Clock) *Service {
	if sessions == nil {
		sessions = &mockSessionRepo{}
	}
	if publisher == nil {
		publisher = &mockPublisher{}
	}
	return NewService(
		&mockProjectRepo{}, &mockEpicRepo{}, &mockStoryRepo{}, &mockSprintRepo{}, &mockTeamRepo{},
		sessions, publisher, limiter, leader, testDecks(),
		clock, 5*time.Minute, time.Minute,
	)
}
