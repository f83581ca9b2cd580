// Package status serves the client's sync state over HTTP for local
// dashboards: JSON snapshots, the conflict list, Prometheus metrics and a
// websocket feed that pushes a snapshot after every sync pass.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dmitrijs2005/medsync/internal/client/metrics"
	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/services"
	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/gorilla/mux"
)

const writeTimeout = 5 * time.Second

type MessageType string

const (
	MessageStatus   MessageType = "status"
	MessageSyncPass MessageType = "sync_pass"
)

// Message is what websocket clients receive.
type Message struct {
	Type      MessageType            `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Status    *models.StatusSnapshot `json:"status,omitempty"`
	Report    *services.Report       `json:"report,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

type Server struct {
	addr      string
	status    services.StatusService
	conflicts services.ConflictService
	metrics   *metrics.Metrics
	logger    logging.Logger

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]struct{}
}

var _ services.Observer = (*Server)(nil)

func NewServer(addr string, status services.StatusService, conflicts services.ConflictService, m *metrics.Metrics, l logging.Logger) *Server {
	if l == nil {
		l = logging.Discard()
	}
	return &Server{
		addr:      addr,
		status:    status,
		conflicts: conflicts,
		metrics:   m,
		logger:    l.With("module", "status"),
		clients:   make(map[*websocket.Conn]struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/conflicts", s.handleConflicts).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)
	r.Handle("/metrics", s.metricsHandler()).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "status server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.closeClients()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	s.logger.Info(ctx, "status server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) snapshot(ctx context.Context) (models.StatusSnapshot, error) {
	snap, err := s.status.Snapshot(ctx)
	if err == nil {
		s.metrics.SetSnapshot(snap)
	}
	return snap, err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), "failed to build status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	list, err := s.conflicts.ListUnresolved(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if list == nil {
		list = []models.Conflict{}
	}
	writeJSON(w, http.StatusOK, list)
}

// metricsHandler refreshes the gauges before every scrape.
func (s *Server) metricsHandler() http.Handler {
	h := s.metrics.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.snapshot(r.Context()); err != nil {
			s.logger.Warn(r.Context(), "failed to refresh metrics", "error", err)
		}
		h.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	snap, err := s.snapshot(r.Context())
	msg := Message{Type: MessageStatus, Timestamp: time.Now().UTC()}
	if err != nil {
		msg.Error = err.Error()
	} else {
		msg.Status = &snap
	}
	if err := s.write(r.Context(), conn, msg); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "write failed")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = struct{}{}
	s.clientsMu.Unlock()
	s.logger.Debug(r.Context(), "websocket client connected", "clients", s.ClientCount())

	// Clients only listen; CloseRead handles control frames and reports
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	<-ctx.Done()
	s.removeClient(conn)
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		_ = conn.CloseNow()
	}
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
}

func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Broadcast sends msg to every connected client, dropping clients that
// fail to receive it.
func (s *Server) Broadcast(ctx context.Context, msg Message) {
	s.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range conns {
		if err := s.write(ctx, c, msg); err != nil {
			s.logger.Debug(ctx, "dropping websocket client", "error", err)
			s.removeClient(c)
		}
	}
}

func (s *Server) Replayed(models.EntityType, string) {}

// PassFinished pushes the post-pass snapshot to websocket clients.
func (s *Server) PassFinished(ctx context.Context, r services.Report, err error) {
	msg := Message{Type: MessageSyncPass, Timestamp: time.Now().UTC(), Report: &r}
	if err != nil {
		msg.Error = err.Error()
	}
	snap, serr := s.snapshot(context.WithoutCancel(ctx))
	if serr == nil {
		msg.Status = &snap
	}
	s.Broadcast(context.WithoutCancel(ctx), msg)
}
