package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dirsync/server/internal/config"
	"github.com/dirsync/server/internal/snapshot"
	"github.com/dirsync/server/internal/state"
	"github.com/gorilla/websocket"
)

// Server accepts observer connections and runs each session's inbound loop:
// decode a submission, push it through the store, hand the resulting delta to
// the broadcaster. Every per-session failure is contained at that session.
type Server struct {
	cfg         *config.Config
	store       *state.Store
	broadcaster *Broadcaster
	registry    *Registry

	nextID         atomic.Uint64
	startedAt      time.Time
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	httpServer     *http.Server
}

func NewServer(cfg *config.Config, store *state.Store, broadcaster *Broadcaster, registry *Registry) *Server {
	s := &Server{
		cfg:            cfg,
		store:          store,
		broadcaster:    broadcaster,
		registry:       registry,
		startedAt:      time.Now(),
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		httpServer: &http.Server{
			Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		},
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/status", s.handleStatus)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	id := fmt.Sprintf("session-%d", s.nextID.Add(1))
	sess := newSession(id, conn, s.cfg.Server.SessionQueueSize, s.cfg.Server.PingInterval.Duration, s.cfg.Server.WriteTimeout.Duration)
	log.Printf("observer connected: %s (%s)", id, r.RemoteAddr)

	sess.activate()
	s.registry.Register(sess)
	go s.readLoop(sess)
}

// readLoop is the session's inbound path. It blocks on the next frame from
// the observer; an observer that neither submits nor answers pings within the
// idle timeout trips the read deadline and is treated as disconnected.
func (s *Server) readLoop(sess *Session) {
	defer func() {
		s.registry.Unregister(sess.ID())
		sess.beginClose()
		sess.markClosed()
		log.Printf("observer disconnected: %s", sess.ID())
	}()

	conn := sess.conn
	idle := s.cfg.Server.IdleTimeout.Duration
	conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(idle))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(idle))

		if sess.State() != Active {
			return
		}
		if err := s.handleSubmission(data); err != nil {
			log.Printf("session %s: rejecting submission: %v", sess.ID(), err)
			s.sendError(sess, err)
			return
		}
	}
}

// handleSubmission validates and applies one submission. Validation happens
// before the store is touched, so a malformed submission leaves the current
// snapshot unchanged.
func (s *Server) handleSubmission(data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	if msg.Type != MsgSubmission {
		return fmt.Errorf("unexpected message type %q", msg.Type)
	}

	var payload SubmissionPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decoding submission: %w", err)
	}
	for _, r := range payload.Records {
		if r.Path == "" {
			return fmt.Errorf("submission contains a record with an empty path")
		}
	}

	delta := s.store.Submit(snapshot.New(payload.Records))
	s.broadcaster.Publish(delta)
	return nil
}

// sendError pushes a best-effort error frame before the session closes. If
// the queue is full the observer learns about the close from the transport.
func (s *Server) sendError(sess *Session, cause error) {
	frame, err := Encode(MsgError, 0, ErrorPayload{Message: cause.Error()})
	if err != nil {
		return
	}
	sess.enqueue(frame)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SubmissionPayload{Records: s.store.Current().Records()})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

// ListenAndServe binds the configured endpoint and serves until Shutdown.
func (s *Server) ListenAndServe(mux *http.ServeMux) error {
	s.httpServer.Handler = mux
	log.Printf("server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, then closes every live session so
// their read loops drain and unregister.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	for _, sess := range s.registry.Snapshot() {
		s.registry.Unregister(sess.ID())
		sess.beginClose()
	}
	return err
}
