package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// SessionState tracks where a session is in its lifecycle. Transitions only
// move forward: Connecting -> Active -> Closing -> Closed. A session that has
// left Active never accepts submissions or broadcast frames again.
type SessionState int32

const (
	Connecting SessionState = iota
	Active
	Closing
	Closed
)

var sessionStateNames = map[SessionState]string{
	Connecting: "connecting",
	Active:     "active",
	Closing:    "closing",
	Closed:     "closed",
}

func (s SessionState) String() string {
	if name, ok := sessionStateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s SessionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Session is the server-side handle to one connected observer. The inbound
// reader and the writePump run independently, and the outbound queue is
// bounded: a stalled observer fills only its own queue and never blocks
// another session or the broadcaster.
type Session struct {
	id   string
	conn *websocket.Conn

	send chan []byte
	done chan struct{}

	state        atomic.Int32
	closeOnce    sync.Once
	pingInterval time.Duration
	writeTimeout time.Duration
}

func newSession(id string, conn *websocket.Conn, queueSize int, pingInterval, writeTimeout time.Duration) *Session {
	s := &Session{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, queueSize),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
	}
	s.state.Store(int32(Connecting))
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// activate marks the session eligible for submissions and broadcasts and
// starts its writePump.
func (s *Session) activate() {
	s.markActive()
	go s.writePump()
}

func (s *Session) markActive() {
	s.state.CompareAndSwap(int32(Connecting), int32(Active))
}

// enqueueResult says what happened to a frame handed to enqueue. The two
// refusals mean different things to the broadcaster: a full queue is
// backpressure, a non-Active session is already on its way out.
type enqueueResult int

const (
	frameQueued enqueueResult = iota
	refusedClosed
	refusedFull
)

// enqueue hands an encoded frame to the session's outbound queue without
// blocking; the caller decides what a refusal means.
func (s *Session) enqueue(frame []byte) enqueueResult {
	if s.State() != Active {
		return refusedClosed
	}
	select {
	case <-s.done:
		return refusedClosed
	case s.send <- frame:
		return frameQueued
	default:
		return refusedFull
	}
}

// writePump owns all writes on the connection: queued frames and keepalive
// pings. A write failure starts the close sequence.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.beginClose()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.beginClose()
				return
			}
		}
	}
}

// beginClose moves the session to Closing and releases the connection. Safe
// to call from any goroutine, any number of times.
func (s *Session) beginClose() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(Closing))
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// markClosed records the terminal state once the reader has returned and the
// session is out of the registry.
func (s *Session) markClosed() {
	s.state.Store(int32(Closed))
}
