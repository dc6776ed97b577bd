package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/app"
	"github.com/ParashDev/sprintor-sub000/internal/config"
	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// --- In-memory fakes ---

type memProjectRepo struct {
	mu       sync.Mutex
	projects map[uuid.UUID]domain.Project
}

func newMemProjectRepo() *memProjectRepo {
	return &memProjectRepo{projects: make(map[uuid.UUID]domain.Project)}
}

func (r *memProjectRepo) Create(_ context.Context, name, description string) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := domain.Project{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Status:      domain.ProjectStatusActive,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	r.projects[p.ID] = p
	return &p, nil
}

func (r *memProjectRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	return &p, nil
}

func (r *memProjectRepo) List(_ context.Context) ([]domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	return out, nil
}

func (r *memProjectRepo) Update(_ context.Context, id uuid.UUID, name, description string, status domain.ProjectStatus) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	p.Name = name
	p.Description = description
	p.Status = status
	p.UpdatedAt = time.Now()
	r.projects[id] = p
	return &p, nil
}

func (r *memProjectRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return domain.ErrProjectNotFound
	}
	delete(r.projects, id)
	return nil
}

type stubEpicRepo struct{}

func (stubEpicRepo) Create(context.Context, uuid.UUID, string, string, string) (*domain.Epic, error) {
	return nil, fmt.Errorf("not implemented")
}
func (stubEpicRepo) GetByID(context.Context, uuid.UUID) (*domain.Epic, error) {
	return nil, domain.ErrEpicNotFound
}
func (stubEpicRepo) ListByProject(context.Context, uuid.UUID) ([]domain.Epic, error) {
	return nil, nil
}
func (stubEpicRepo) Update(context.Context, uuid.UUID, string, string, string, domain.EpicStatus) (*domain.Epic, error) {
	return nil, domain.ErrEpicNotFound
}
func (stubEpicRepo) Delete(context.Context, uuid.UUID) error { return domain.ErrEpicNotFound }

type stubStoryRepo struct{}

func (stubStoryRepo) Create(_ context.Context, story *domain.Story) (*domain.Story, error) {
	created := *story
	created.ID = uuid.New()
	return &created, nil
}
func (stubStoryRepo) GetByID(context.Context, uuid.UUID) (*domain.Story, error) {
	return nil, domain.ErrStoryNotFound
}
func (stubStoryRepo) ListByProject(context.Context, uuid.UUID) ([]domain.Story, error) {
	return nil, nil
}
func (stubStoryRepo) Update(context.Context, *domain.Story) (*domain.Story, error) {
	return nil, domain.ErrStoryNotFound
}
func (stubStoryRepo) SetEstimate(context.Context, uuid.UUID, string) error {
	return domain.ErrStoryNotFound
}
func (stubStoryRepo) Delete(context.Context, uuid.UUID) error { return domain.ErrStoryNotFound }

type stubSprintRepo struct{}

func (stubSprintRepo) Create(context.Context, uuid.UUID, string, string, time.Time, time.Time) (*domain.Sprint, error) {
	return nil, fmt.Errorf("not implemented")
}
func (stubSprintRepo) GetByID(context.Context, uuid.UUID) (*domain.Sprint, error) {
	return nil, domain.ErrSprintNotFound
}
func (stubSprintRepo) ListByProject(context.Context, uuid.UUID) ([]domain.Sprint, error) {
	return nil, nil
}
func (stubSprintRepo) Update(context.Context, uuid.UUID, string, string, time.Time, time.Time, domain.SprintStatus) (*domain.Sprint, error) {
	return nil, domain.ErrSprintNotFound
}
func (stubSprintRepo) Delete(context.Context, uuid.UUID) error { return domain.ErrSprintNotFound }
func (stubSprintRepo) GetBoard(context.Context, uuid.UUID) ([]domain.SprintStory, error) {
	return nil, domain.ErrSprintNotFound
}
func (stubSprintRepo) AddStory(context.Context, uuid.UUID, uuid.UUID) (*domain.SprintStory, error) {
	return nil, domain.ErrSprintNotFound
}
func (stubSprintRepo) RemoveStory(context.Context, uuid.UUID, uuid.UUID) error {
	return domain.ErrSprintNotFound
}
func (stubSprintRepo) MoveStory(context.Context, uuid.UUID, uuid.UUID, domain.BoardColumn, int) ([]domain.SprintStory, error) {
	return nil, domain.ErrSprintNotFound
}

type stubTeamRepo struct{}

func (stubTeamRepo) Create(context.Context, string, string) (*domain.Team, error) {
	return nil, fmt.Errorf("not implemented")
}
func (stubTeamRepo) GetByID(context.Context, uuid.UUID) (*domain.Team, error) {
	return nil, domain.ErrTeamNotFound
}
func (stubTeamRepo) List(context.Context) ([]domain.Team, error) { return nil, nil }
func (stubTeamRepo) Update(context.Context, uuid.UUID, string, string) (*domain.Team, error) {
	return nil, domain.ErrTeamNotFound
}
func (stubTeamRepo) Delete(context.Context, uuid.UUID) error { return domain.ErrTeamNotFound }
func (stubTeamRepo) AddMember(context.Context, uuid.UUID, string, string, string) (*domain.TeamMember, error) {
	return nil, domain.ErrTeamNotFound
}
func (stubTeamRepo) ListMembers(context.Context, uuid.UUID) ([]domain.TeamMember, error) {
	return nil, nil
}
func (stubTeamRepo) RemoveMember(context.Context, uuid.UUID, uuid.UUID) error {
	return domain.ErrTeamNotFound
}

// memSessionRepo keeps live sessions in maps, mirroring the Redis layout.
type memSessionRepo struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]domain.Session
	participants map[uuid.UUID][]domain.Participant
	votes        map[uuid.UUID]map[int]map[string]string
	refCounts    map[uuid.UUID]int64
	disconnected map[uuid.UUID]time.Time
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{
		sessions:     make(map[uuid.UUID]domain.Session),
		participants: make(map[uuid.UUID][]domain.Participant),
		votes:        make(map[uuid.UUID]map[int]map[string]string),
		refCounts:    make(map[uuid.UUID]int64),
		disconnected: make(map[uuid.UUID]time.Time),
	}
}

func (r *memSessionRepo) Create(_ context.Context, session domain.Session, facilitator domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	r.participants[session.ID] = []domain.Participant{facilitator}
	r.votes[session.ID] = map[int]map[string]string{1: {}}
	return nil
}

func (r *memSessionRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok, nil
}

func (r *memSessionRepo) Get(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

func (r *memSessionRepo) SessionByFacilitator(_ context.Context, participantID uuid.UUID) (uuid.UUID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.FacilitatorID == participantID {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (r *memSessionRepo) Snapshot(_ context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	votes := make(map[string]string)
	for k, v := range r.votes[id][s.Round] {
		votes[k] = v
	}
	return &domain.SessionSnapshot{
		Session:      s,
		Participants: append([]domain.Participant{}, r.participants[id]...),
		Votes:        votes,
	}, nil
}

func (r *memSessionRepo) List(_ context.Context) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (r *memSessionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refCounts[id] > 0 {
		return domain.ErrSessionActive
	}
	delete(r.sessions, id)
	delete(r.participants, id)
	delete(r.votes, id)
	delete(r.refCounts, id)
	return nil
}

func (r *memSessionRepo) AddParticipant(_ context.Context, id uuid.UUID, p domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[id] = append(r.participants[id], p)
	return nil
}

func (r *memSessionRepo) CastVote(_ context.Context, id uuid.UUID, round int, participantID uuid.UUID, card string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.votes[id][round] == nil {
		r.votes[id][round] = map[string]string{}
	}
	r.votes[id][round][participantID.String()] = card
	return nil
}

func (r *memSessionRepo) Reveal(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	s.State = domain.StateRevealed
	r.sessions[id] = s
	return nil
}

func (r *memSessionRepo) NextRound(_ context.Context, id uuid.UUID, storyTitle string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	s.Round++
	s.State = domain.StateVoting
	s.StoryTitle = storyTitle
	r.sessions[id] = s
	r.votes[id][s.Round] = map[string]string{}
	return s.Round, nil
}

func (r *memSessionRepo) MarkDisconnected(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected[id] = time.Now()
	return nil
}

func (r *memSessionRepo) ClearDisconnected(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.disconnected, id)
	return nil
}

func (r *memSessionRepo) IncrRefCount(_ context.Context, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refCounts[id]++
	return r.refCounts[id], nil
}

func (r *memSessionRepo) DecrRefCount(_ context.Context, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refCounts[id]--
	return r.refCounts[id], nil
}

func (r *memSessionRepo) ListOrphans(_ context.Context, maxAge time.Duration) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uuid.UUID
	for id, at := range r.disconnected {
		if time.Since(at) >= maxAge {
			out = append(out, id)
		}
	}
	return out, nil
}

type memPublisher struct {
	mu        sync.Mutex
	published []domain.SessionSnapshot
}

func (p *memPublisher) PublishSnapshot(_ context.Context, _ uuid.UUID, snapshot domain.SessionSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, snapshot)
	return nil
}

// --- Test server wiring ---

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:               "test",
		Port:                 "0",
		SessionSecret:        strings.Repeat("s", 32),
		MaxClientsPerSession: 10,
		OrphanMaxAge:         5 * time.Minute,
		CleanupInterval:      time.Minute,
		VoteBurst:            10,
		VotesPerMinute:       30,
		ConnectionsPerIP:     100,
		ConnectionsPerSec:    100,
	}
}

func newTestServer(t *testing.T, sessions domain.SessionRepository) (*Server, *memProjectRepo) {
	t.Helper()

	if sessions == nil {
		sessions = newMemSessionRepo()
	}

	decks, err := domain.LoadDecks("")
	if err != nil {
		t.Fatalf("failed to load decks: %v", err)
	}

	projects := newMemProjectRepo()
	svc := app.NewService(
		projects, stubEpicRepo{}, stubStoryRepo{}, stubSprintRepo{}, stubTeamRepo{},
		sessions, &memPublisher{}, nil, nil, decks,
		clockwork.NewFakeClock(), 5*time.Minute, time.Minute,
	)
	t.Cleanup(svc.Stop)

	srv := NewServer(testConfig(), svc, nil, nil, nil, clockwork.NewRealClock())
	t.Cleanup(func() { srv.broadcaster.Stop() })
	return srv, projects
}

func doRequest(srv *Server, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoHeaderContentType, "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"
