package broadcast

import (
	"sync"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline  = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongDeadline   = 60 * time.Second
	sendBufferSize = 16

	// Estimation sessions sit quiet while a story is being discussed, so the
	// idle window is generous. One warning goes out a minute before the cut.
	idleTimeout     = 30 * time.Minute
	idleWarningTime = 29 * time.Minute
)

var idleWarning = []byte(`{"warning":"Connection idle. Will disconnect if no activity within 1 minute."}`)

// clientWriter serializes all writes to one WebSocket connection through a
// single goroutine, since gorilla/websocket permits only one concurrent
// writer. It also owns the ping/pong liveness check and the idle timer.
type clientWriter struct {
	conn  *websocket.Conn
	clock clockwork.Clock

	sendChannel chan []byte
	done        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	activityMutex sync.Mutex
	lastActivity  time.Time
	warningSent   bool
}

func newClientWriter(conn *websocket.Conn, clock clockwork.Clock) *clientWriter {
	cw := &clientWriter{
		conn:         conn,
		clock:        clock,
		sendChannel:  make(chan []byte, sendBufferSize),
		done:         make(chan struct{}),
		lastActivity: clock.Now(),
	}

	cw.bumpReadDeadline()
	conn.SetPongHandler(func(string) error {
		cw.bumpReadDeadline()
		cw.recordActivity()
		return nil
	})

	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	defer cw.wg.Done()

	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-cw.sendChannel:
			if !ok {
				return
			}
			start := cw.clock.Now()
			if cw.write(websocket.TextMessage, msg) != nil {
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(cw.clock.Since(start).Seconds())

		case <-ticker.Chan():
			if cw.checkIdleTimeout() {
				return
			}
			if cw.write(websocket.PingMessage, nil) != nil {
				metrics.WebSocketPingFailures.Inc()
				return
			}

		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) write(messageType int, payload []byte) error {
	_ = cw.conn.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
	return cw.conn.WriteMessage(messageType, payload)
}

func (cw *clientWriter) bumpReadDeadline() {
	_ = cw.conn.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}

// stop tears the connection down without a close frame. Safe to call from
// multiple goroutines.
func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.done)
		_ = cw.conn.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a close frame with reason first. The run goroutine must
// exit before the frame is written, otherwise two goroutines would write to
// the connection at once.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		close(cw.done)
		cw.wg.Wait()

		frame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = cw.write(websocket.CloseMessage, frame)
		_ = cw.conn.Close()
	})
}

// recordActivity marks the connection live and rearms the idle warning.
func (cw *clientWriter) recordActivity() {
	cw.activityMutex.Lock()
	cw.lastActivity = cw.clock.Now()
	cw.warningSent = false
	cw.activityMutex.Unlock()
}

// checkIdleTimeout reports whether the connection has been quiet past the
// idle limit. Crossing the warning threshold sends the warning once.
func (cw *clientWriter) checkIdleTimeout() bool {
	cw.activityMutex.Lock()
	idle := cw.clock.Since(cw.lastActivity)
	warned := cw.warningSent
	cw.activityMutex.Unlock()

	switch {
	case idle >= idleTimeout:
		metrics.WebSocketIdleDisconnects.Inc()
		return true

	case idle >= idleWarningTime && !warned:
		if cw.write(websocket.TextMessage, idleWarning) == nil {
			cw.activityMutex.Lock()
			cw.warningSent = true
			cw.activityMutex.Unlock()
		}
	}

	return false
}
