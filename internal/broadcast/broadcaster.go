package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/ParashDev/sprintor-sub000/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	commandTimeout = 5 * time.Second  // Actor command timeout
	stopTimeout    = 10 * time.Second // Graceful shutdown timeout
)

type sessionClients map[*websocket.Conn]*clientWriter

// broadcasterCmd is the command interface for the Broadcaster actor.
type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerCmd struct {
	baseBroadcasterCmd
	sessionID    uuid.UUID
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseBroadcasterCmd
	sessionID  uuid.UUID
	connection *websocket.Conn
}

type broadcastCmd struct {
	baseBroadcasterCmd
	sessionID uuid.UUID
	payload   []byte
}

type getClientCountCmd struct {
	baseBroadcasterCmd
	sessionID    uuid.UUID
	replyChannel chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// lifecycleEvent is a presence notification emitted by the actor loop:
// a session gained its first client on this instance, or lost its last one.
type lifecycleEvent struct {
	sessionID uuid.UUID
	empty     bool
}

// Broadcaster manages WebSocket connections and fans session snapshots out
// to every client of a session. Snapshots arrive via Broadcast, which the
// service feeds from the cross-instance Pub/Sub subscription.
type Broadcaster struct {
	cmdCh                chan broadcasterCmd
	lifecycleCh          chan lifecycleEvent
	lifecycleDone        chan struct{}
	clock                clockwork.Clock
	activeClients        map[uuid.UUID]sessionClients
	onFirstClient        func(sessionID uuid.UUID)
	onSessionEmpty       func(sessionID uuid.UUID)
	done                 chan struct{}
	stopTimeout          time.Duration
	maxClientsPerSession int
}

// NewBroadcaster creates a new broadcaster.
// onFirstClient is called when the first client connects to a session on this instance.
// onSessionEmpty is called when the last client disconnects from a session.
// maxClientsPerSession limits connections per session (prevents resource exhaustion).
func NewBroadcaster(onFirstClient func(uuid.UUID), onSessionEmpty func(uuid.UUID), clock clockwork.Clock, maxClientsPerSession int) *Broadcaster {
	b := &Broadcaster{
		cmdCh:                make(chan broadcasterCmd, 256),
		lifecycleCh:          make(chan lifecycleEvent, 256),
		lifecycleDone:        make(chan struct{}),
		clock:                clock,
		activeClients:        make(map[uuid.UUID]sessionClients),
		onFirstClient:        onFirstClient,
		onSessionEmpty:       onSessionEmpty,
		done:                 make(chan struct{}),
		stopTimeout:          stopTimeout,
		maxClientsPerSession: maxClientsPerSession,
	}
	go b.dispatchLifecycle()
	go b.run()
	return b
}

// dispatchLifecycle delivers presence callbacks one at a time, in the order
// the actor loop emitted them. Callbacks hit Redis, so they cannot run on the
// actor goroutine; running each on its own goroutine could deliver an
// onSessionEmpty before the onFirstClient that preceded it.
func (b *Broadcaster) dispatchLifecycle() {
	defer close(b.lifecycleDone)
	for ev := range b.lifecycleCh {
		switch {
		case ev.empty:
			if b.onSessionEmpty != nil {
				b.onSessionEmpty(ev.sessionID)
			}
		default:
			if b.onFirstClient != nil {
				b.onFirstClient(ev.sessionID)
			}
		}
	}
}

// Register adds a client to a session.
// Returns error only if max clients per session is reached.
func (b *Broadcaster) Register(sessionID uuid.UUID, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	b.cmdCh <- registerCmd{sessionID: sessionID, connection: conn, errorChannel: errCh}

	// Use timeout to prevent blocking forever if broadcaster is stuck
	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a client from a session.
func (b *Broadcaster) Unregister(sessionID uuid.UUID, conn *websocket.Conn) {
	b.cmdCh <- unregisterCmd{sessionID: sessionID, connection: conn}
}

// Broadcast fans a snapshot out to every client of the session. Non-blocking;
// if the command channel is full the snapshot is dropped, since the next
// mutation publishes a fresher one anyway.
func (b *Broadcaster) Broadcast(sessionID uuid.UUID, snapshot domain.SessionSnapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal broadcast message", "session_id", sessionID.String(), "error", err)
		return
	}

	select {
	case b.cmdCh <- broadcastCmd{sessionID: sessionID, payload: payload}:
	default:
		slog.Warn("Broadcast dropped: command channel full", "session_id", sessionID.String())
	}
}

// GetClientCount returns the number of connected clients for a session.
// Returns -1 if the command times out.
func (b *Broadcaster) GetClientCount(sessionID uuid.UUID) int {
	replyCh := make(chan int, 1)
	b.cmdCh <- getClientCountCmd{sessionID: sessionID, replyChannel: replyCh}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("GetClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the broadcaster, closing all client connections.
// Blocks until the broadcaster goroutine has exited or timeout is reached.
func (b *Broadcaster) Stop() {
	b.cmdCh <- stopCmd{}

	timeout := b.clock.NewTimer(b.stopTimeout)
	defer timeout.Stop()

	select {
	case <-b.done:
		// Queued presence callbacks drain after the actor loop exits.
		select {
		case <-b.lifecycleDone:
			slog.Info("Broadcaster stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Broadcaster stop timeout exceeded draining presence callbacks",
				"timeout", b.stopTimeout,
			)
			metrics.BroadcasterStopTimeoutsTotal.Inc()
		}
	case <-timeout.Chan():
		slog.Warn("Broadcaster stop timeout exceeded, forcing exit",
			"timeout", b.stopTimeout,
		)
		metrics.BroadcasterStopTimeoutsTotal.Inc()

		// Force goroutine exit
		close(b.done)

		slog.Error("Broadcaster goroutine may have leaked",
			"active_sessions", len(b.activeClients),
		)
	}
}

func (b *Broadcaster) run() {
	// Runs last, after the panic handler below has queued its final events.
	defer close(b.lifecycleCh)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			metrics.BroadcasterPanicsTotal.Inc()

			b.closeAllClients("broadcaster panic")
		}
	}()
	defer close(b.done)

	for cmd := range b.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			b.handleRegister(c)
		case unregisterCmd:
			b.handleUnregister(c)
		case broadcastCmd:
			b.handleBroadcast(c)
		case getClientCountCmd:
			c.replyChannel <- len(b.activeClients[c.sessionID])
		case stopCmd:
			b.handleStop()
			return
		default:
			slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	clients, exists := b.activeClients[c.sessionID]
	if !exists {
		clients = make(sessionClients)
		b.activeClients[c.sessionID] = clients
	}

	if len(clients) >= b.maxClientsPerSession {
		slog.Warn("Rejecting client: max clients reached", "session_id", c.sessionID.String(), "max_clients", b.maxClientsPerSession)
		c.connection.Close()
		c.errorChannel <- fmt.Errorf("max clients per session (%d) reached", b.maxClientsPerSession)
		return
	}

	if !exists {
		b.lifecycleCh <- lifecycleEvent{sessionID: c.sessionID}
	}

	cw := newClientWriter(c.connection, b.clock)
	clients[c.connection] = cw

	metrics.BroadcasterActiveSessions.Set(float64(len(b.activeClients)))
	metrics.BroadcasterConnectedClients.Inc()

	slog.Debug("Client registered", "session_id", c.sessionID.String(), "total_clients", len(clients))
	c.errorChannel <- nil
}

func (b *Broadcaster) handleUnregister(c unregisterCmd) {
	clients, exists := b.activeClients[c.sessionID]
	if !exists {
		return
	}

	cw, exists := clients[c.connection]
	if !exists {
		return
	}

	cw.stop()
	delete(clients, c.connection)

	metrics.BroadcasterConnectedClients.Dec()

	if len(clients) == 0 {
		delete(b.activeClients, c.sessionID)
		metrics.BroadcasterActiveSessions.Set(float64(len(b.activeClients)))
		b.lifecycleCh <- lifecycleEvent{sessionID: c.sessionID, empty: true}
		slog.Info("Last client disconnected", "session_id", c.sessionID.String())
	} else {
		slog.Debug("Client unregistered", "session_id", c.sessionID.String(), "remaining_clients", len(clients))
	}
}

func (b *Broadcaster) handleBroadcast(c broadcastCmd) {
	clients := b.activeClients[c.sessionID]
	if len(clients) == 0 {
		return
	}

	var slow []*websocket.Conn
	for conn, writer := range clients {
		select {
		case writer.sendChannel <- c.payload:
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow client", "session_id", c.sessionID.String())
		metrics.BroadcasterSlowClientsEvicted.Inc()
		b.handleUnregister(unregisterCmd{sessionID: c.sessionID, connection: conn})
	}
}

func (b *Broadcaster) handleStop() {
	totalClients := 0
	for _, clients := range b.activeClients {
		totalClients += len(clients)
	}

	slog.Info("Broadcaster shutting down", "sessions", len(b.activeClients), "total_clients", totalClients)

	b.closeAllClients("Server shutting down")

	slog.Info("Broadcaster shutdown complete", "disconnected_clients", totalClients)
}

// closeAllClients closes all client connections with the given reason.
// Used during panic recovery and graceful shutdown.
func (b *Broadcaster) closeAllClients(reason string) {
	for sessionID, clients := range b.activeClients {
		for _, cw := range clients {
			cw.stopGraceful(reason)
		}
		delete(b.activeClients, sessionID)
		b.lifecycleCh <- lifecycleEvent{sessionID: sessionID, empty: true}
	}
	metrics.BroadcasterActiveSessions.Set(0)
}
