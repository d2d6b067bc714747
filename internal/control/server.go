// Package control exposes the running daemon over HTTP: camera start/stop,
// a status snapshot and a websocket stream of lifecycle events.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fakeyudi/motionwatch/internal/events"
	"github.com/fakeyudi/motionwatch/internal/runner"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StatusProvider reports the frame loop's current status.
type StatusProvider interface {
	Status() runner.Status
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	runner.Status
	EventsPublished uint64 `json:"events_published"`
	Subscribers     int    `json:"subscribers"`
}

// CommandResponse is the body returned by the camera endpoints.
type CommandResponse struct {
	Command   events.Kind `json:"command"`
	Delivered int         `json:"delivered"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the control API.
type Server struct {
	bus      *events.Bus
	status   StatusProvider
	log      *zap.SugaredLogger
	now      func() time.Time
	upgrader websocket.Upgrader
}

// NewServer returns a server that publishes control events on bus and
// reports status from status.
func NewServer(bus *events.Bus, status StatusProvider, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		bus:    bus,
		status: status,
		log:    log,
		now:    time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/camera/start", s.handleCamera(events.StartCamera))
	mux.HandleFunc("POST /v1/camera/stop", s.handleCamera(events.StopCamera))
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	return s.logging(mux)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infow("control server listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warnw("graceful shutdown failed", "error", err)
		return srv.Close()
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCamera(kind events.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := s.bus.Publish(events.Control(kind, s.now()))
		s.log.Infow("control signal published", "command", kind, "delivered", n, "remote", r.RemoteAddr)
		s.writeJSON(w, http.StatusAccepted, CommandResponse{Command: kind, Delivered: n})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		EventsPublished: s.bus.Published(),
		Subscribers:     s.bus.Subscribers(),
	}
	if s.status != nil {
		resp.Status = s.status.Status()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleEvents streams every bus event published after the upgrade as a
// JSON text message. ?kind=motion_captured,motion_started filters by kind.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseKinds(r.URL.Query().Get("kind"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	sub, err := s.bus.Subscribe()
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.log.Debugw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.readLoop(conn, cancel)
	go s.pingLoop(ctx, conn)

	s.log.Debugw("event stream opened", "remote", r.RemoteAddr)
	defer s.log.Debugw("event stream closed", "remote", r.RemoteAddr)

	for {
		ev, err := sub.Receive(ctx)
		if err != nil {
			if errors.Is(err, events.ErrSubscriptionClosed) {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
			}
			return
		}
		if len(filter) > 0 && !filter[ev.Kind] {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			s.log.Debugw("event stream write failed", "error", err)
			return
		}
	}
}

// readLoop discards client messages and cancels the stream once the
// client goes away.
func (s *Server) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func parseKinds(raw string) (map[events.Kind]bool, error) {
	if raw == "" {
		return nil, nil
	}
	out := make(map[events.Kind]bool)
	for _, name := range strings.Split(raw, ",") {
		var k events.Kind
		if err := k.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
			return nil, err
		}
		out[k] = true
	}
	return out, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnw("failed to write response", "error", err)
	}
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debugw("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
