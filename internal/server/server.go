package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/app"
	"github.com/ParashDev/sprintor-sub000/internal/broadcast"
	"github.com/ParashDev/sprintor-sub000/internal/config"
	apperrors "github.com/ParashDev/sprintor-sub000/internal/errors"
	"github.com/ParashDev/sprintor-sub000/internal/redis"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
)

const sessionMaxAgeDays = 7

type Server struct {
	echo         *echo.Echo
	config       *config.Config
	app          *app.Service
	broadcaster  *broadcast.Broadcaster
	pubsub       *redis.PubSub
	redisClient  *goredis.Client
	pool         *pgxpool.Pool
	sessionStore *sessions.CookieStore
	connLimits   *ConnectionLimits
	startTime    time.Time

	// Overridable health checkers for tests
	redisHealthCheck    redisHealthChecker
	postgresHealthCheck postgresHealthChecker

	subMu         sync.Mutex
	subscriptions map[uuid.UUID]*redis.Subscription
}

// NewServer builds the HTTP server and its broadcaster. The broadcaster's
// lifecycle callbacks manage the per-session Pub/Sub subscription and the
// session ref count.
func NewServer(cfg *config.Config, svc *app.Service, pubsub *redis.PubSub, redisClient *goredis.Client, pool *pgxpool.Pool, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddleware("sprintor"))
	e.Use(apperrors.Middleware())

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * sessionMaxAgeDays,
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}

	srv := &Server{
		echo:          e,
		config:        cfg,
		app:           svc,
		pubsub:        pubsub,
		redisClient:   redisClient,
		pool:          pool,
		sessionStore:  sessionStore,
		connLimits:    NewConnectionLimits(1024, cfg.ConnectionsPerIP, cfg.ConnectionsPerSec, cfg.ConnectionsPerIP),
		startTime:     clock.Now(),
		subscriptions: make(map[uuid.UUID]*redis.Subscription),
	}

	srv.broadcaster = broadcast.NewBroadcaster(srv.onFirstClient, srv.onSessionEmpty, clock, cfg.MaxClientsPerSession)
	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(":" + s.config.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.broadcaster.Stop()
	s.closeAllSubscriptions()
	return s.echo.Shutdown(ctx)
}

// onFirstClient runs when the first local client connects to a session: bump
// the ref count and start pumping the session's snapshot channel into the
// broadcaster.
func (s *Server) onFirstClient(sessionID uuid.UUID) {
	ctx := context.Background()

	if err := s.app.OnFirstClient(ctx, sessionID); err != nil {
		slog.Error("Failed to mark session connected", "session_id", sessionID.String(), "error", err)
	}

	sub := s.pubsub.SubscribeSession(ctx, sessionID)

	s.subMu.Lock()
	if _, exists := s.subscriptions[sessionID]; exists {
		s.subMu.Unlock()
		sub.Close()
		return
	}
	s.subscriptions[sessionID] = sub
	s.subMu.Unlock()

	go func() {
		for snapshot := range sub.Ch {
			s.broadcaster.Broadcast(sessionID, snapshot)
		}
	}()
}

// onSessionEmpty runs when the last local client disconnects: stop the
// subscription and let the service decide whether the session is orphaned.
func (s *Server) onSessionEmpty(sessionID uuid.UUID) {
	s.subMu.Lock()
	if sub, exists := s.subscriptions[sessionID]; exists {
		sub.Close()
		delete(s.subscriptions, sessionID)
	}
	s.subMu.Unlock()

	s.app.OnSessionEmpty(context.Background(), sessionID)
}

func (s *Server) closeAllSubscriptions() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, sub := range s.subscriptions {
		sub.Close()
		delete(s.subscriptions, id)
	}
}
