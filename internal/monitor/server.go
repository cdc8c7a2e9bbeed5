// Package monitor implements the telemetry hub of a running flock. It accepts
// telemetry over HTTP or in process, keeps the latest record per robot,
// records history in BoltDB, broadcasts every record to websocket viewers and
// relays coordinator weight pushes.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"RoboFlock/internal/model"
	"RoboFlock/internal/parser"
)

const (
	defaultHistory = 100
	writeWait      = time.Second
	maxBody        = 1 << 20
	queueDepth     = 1024
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// WeightPusher delivers a coordinator payload to the flock.
type WeightPusher interface {
	PushWeights(p model.WeightPayload) error
}

// PushFunc adapts a function to WeightPusher.
type PushFunc func(p model.WeightPayload) error

// PushWeights calls f(p).
func (f PushFunc) PushWeights(p model.WeightPayload) error { return f(p) }

// Server is the monitor HTTP endpoint.
type Server struct {
	Addr   string
	Token  string
	store  *Store
	pusher WeightPusher
	csv    parser.Parser
	json   parser.Parser
	mux    *http.ServeMux

	mu     sync.Mutex
	latest map[string]model.Telemetry
	server *http.Server

	// cmu guards clients; messages to viewers are written by the record loop only
	cmu     sync.Mutex
	clients map[*websocket.Conn]bool

	queue    chan model.Telemetry
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	dropped  atomic.Int64
}

// NewServer constructs a Server listening on addr. store and pusher may be
// nil; history and weight pushes are then unavailable.
func NewServer(addr string, store *Store, pusher WeightPusher) *Server {
	s := &Server{
		Addr:    addr,
		store:   store,
		pusher:  pusher,
		csv:     parser.NewCSVParser(),
		json:    parser.NewJSONParser(),
		mux:     http.NewServeMux(),
		clients: map[*websocket.Conn]bool{},
		latest:  map[string]model.Telemetry{},
		queue:   make(chan model.Telemetry, queueDepth),
		stop:    make(chan struct{}),
	}
	s.registerRoutes()
	s.wg.Add(1)
	go s.recordLoop()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/telemetry", s.handleTelemetry)
	s.mux.HandleFunc("GET /api/latest", s.handleLatest)
	s.mux.HandleFunc("GET /api/robots", s.handleRobots)
	s.mux.HandleFunc("GET /api/robots/{name}/history", s.handleHistory)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.mux.HandleFunc("POST /api/weights", TokenMiddleware(func() string { return s.Token }, s.handleWeights))
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	s.server = &http.Server{Addr: s.Addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	srv := s.server
	s.mu.Unlock()

	zap.S().Infof("[monitor] listening on %s", s.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down, disconnects every viewer and ends the
// record loop. Records still queued are written to the store.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	s.cmu.Lock()
	for c := range s.clients {
		_ = c.Close()
		delete(s.clients, c)
	}
	s.cmu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	if n := s.Dropped(); n > 0 {
		zap.S().Warnf("[monitor] %d telemetry records dropped", n)
	}
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.S().Warnf("[monitor] shutdown: %v", err)
	}
}

// Publish makes t the latest record of its robot and queues it for the store
// and the viewers. It never blocks: records are dropped when the queue is
// full. It implements flock.TelemetrySink for robots in the same process.
func (s *Server) Publish(t model.Telemetry) {
	s.mu.Lock()
	s.latest[t.Robot] = t
	s.mu.Unlock()

	select {
	case s.queue <- t:
	default:
		if n := s.dropped.Add(1); n%100 == 1 {
			zap.S().Warnf("[monitor] queue full, %d records dropped", n)
		}
	}
}

// Dropped reports how many records never reached the store or the viewers.
func (s *Server) Dropped() int64 { return s.dropped.Load() }

func (s *Server) recordLoop() {
	defer s.wg.Done()
	for {
		select {
		case t := <-s.queue:
			s.record(t)
			s.broadcast(t)
		case <-s.stop:
			for {
				select {
				case t := <-s.queue:
					s.record(t)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) record(t model.Telemetry) {
	if s.store == nil {
		return
	}
	if err := s.store.Put(t); err != nil {
		zap.S().Warnf("[monitor] record %s/%d: %v", t.Robot, t.Tick, err)
	}
}

func (s *Server) broadcast(t model.Telemetry) {
	msg, err := json.Marshal(t)
	if err != nil {
		return
	}
	s.cmu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.cmu.Unlock()

	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.cmu.Lock()
			delete(s.clients, c)
			s.cmu.Unlock()
			_ = c.Close()
		}
	}
}

// Latest returns the newest record of every robot ordered by robot id.
func (s *Server) Latest() []model.Telemetry {
	s.mu.Lock()
	out := make([]model.Telemetry, 0, len(s.latest))
	for _, t := range s.latest {
		out = append(out, t)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].RobotID != out[j].RobotID {
			return out[i].RobotID < out[j].RobotID
		}
		return out[i].Robot < out[j].Robot
	})
	return out
}

// handleTelemetry accepts one record as JSON or as a CSV line.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "failed to read telemetry", http.StatusBadRequest)
		return
	}
	line := strings.TrimSpace(string(body))
	t, err := s.json.DecodeTelemetry(line)
	if err != nil {
		t, err = s.csv.DecodeTelemetry(line)
		if err != nil {
			http.Error(w, "invalid telemetry", http.StatusBadRequest)
			return
		}
	}
	if t.Robot == "" {
		http.Error(w, "telemetry without robot", http.StatusBadRequest)
		return
	}
	s.Publish(t)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest := s.Latest()
	if len(latest) == 0 {
		http.Error(w, "no telemetry data", http.StatusNotFound)
		return
	}
	writeJSON(w, latest)
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "history not recorded", http.StatusServiceUnavailable)
		return
	}
	robots, err := s.store.Robots()
	if err != nil {
		http.Error(w, "failed to read robots", http.StatusInternalServerError)
		return
	}
	writeJSON(w, robots)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "history not recorded", http.StatusServiceUnavailable)
		return
	}
	limit := defaultHistory
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	hist, err := s.store.History(r.PathValue("name"), limit)
	if err != nil {
		http.Error(w, "failed to read telemetry", http.StatusInternalServerError)
		return
	}
	if len(hist) == 0 {
		http.Error(w, "no telemetry data", http.StatusNotFound)
		return
	}
	writeJSON(w, hist)
}

// handleWS upgrades HTTP to websocket and registers the client for broadcasts.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.cmu.Lock()
	s.clients[conn] = true
	s.cmu.Unlock()

	go func() {
		defer func() {
			s.cmu.Lock()
			if s.clients[conn] {
				delete(s.clients, conn)
				_ = conn.Close()
			}
			s.cmu.Unlock()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// handleWeights relays a coordinator push given as JSON or as a W CSV line.
func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	if s.pusher == nil {
		http.Error(w, "no flock attached", http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "failed to read weights", http.StatusBadRequest)
		return
	}
	line := strings.TrimSpace(string(body))
	p := s.json
	if strings.HasPrefix(line, "W,") {
		p = s.csv
	}
	u, err := p.DecodeWeights(line)
	if err != nil {
		http.Error(w, "invalid weights: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.pusher.PushWeights(u.Payload()); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	zap.S().Infof("[monitor] weights pushed: %+v", u)
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnf("[monitor] write response: %v", err)
	}
}
