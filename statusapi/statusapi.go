// Package statusapi exposes the control loop's latest snapshot over plain
// HTTP and a broadcasting WebSocket feed. It is read-only: handlers here
// never mutate anything the control loop owns, they only ever read a
// cloned snapshot off the store.
package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sixdouglas/suncalc"

	"github.com/fennerhome/batteryctl/domain"
)

// SnapshotSource is the read side of the store the server pulls from.
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context) (domain.SnapshotPayload, bool, error)
}

// Location is the site's coordinates, used only for the sun-info field.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Server serves /api/health, /api/ready and a push-on-change /api/ws feed
// of the latest snapshot.
type Server struct {
	source    SnapshotSource
	location  Location
	server    *http.Server
	startTime time.Time
	upgrader  websocket.Upgrader
	clients   sync.Map
	broadcast chan []byte
	done      chan struct{}
}

// HealthResponse is the /api/health payload.
type HealthResponse struct {
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
	UptimeStr string   `json:"uptime"`
	Sun       SunInfo  `json:"sun"`
	HasData   bool     `json:"has_snapshot"`
	Warnings  []string `json:"warnings,omitempty"`
}

// SunInfo carries the sun position and sunrise/sunset for the configured
// location.
type SunInfo struct {
	SolarAngleDeg float64 `json:"solar_angle_deg"`
	Sunrise       string  `json:"sunrise"`
	Sunset        string  `json:"sunset"`
}

// New builds a status server bound to port. Port <= 0 disables it, same
// convention used for the WebSocket status feed.
func New(source SnapshotSource, location Location, port int) *Server {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	s := &Server{
		source:    source,
		location:  location,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/api/health", s.healthHandler)
	mux.HandleFunc("/api/ready", s.readinessHandler)
	mux.HandleFunc("/api/ws", s.wsHandler)

	return s
}

// Start launches the HTTP server and the broadcast goroutines.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	go s.handleBroadcasts()
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("statusapi: server error: %v\n", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down and closes every client socket.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	close(s.done)
	s.clients.Range(func(key, _ any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close() //nolint:errcheck
		}
		return true
	})
	return s.server.Shutdown(ctx)
}

// Publish pushes the given snapshot to every connected WebSocket client.
// The control loop calls this once per cycle after replacing the
// persisted snapshot; it never blocks on slow clients past the channel's
// buffer.
func (s *Server) Publish(snap domain.SnapshotPayload) {
	if s == nil {
		return
	}
	hasClients := false
	s.clients.Range(func(key, _ any) bool { hasClients = true; return false })
	if !hasClients {
		return
	}
	message, err := json.Marshal(s.statusPayload(snap))
	if err != nil {
		fmt.Printf("statusapi: marshal status: %v\n", err)
		return
	}
	select {
	case s.broadcast <- message:
	default:
		fmt.Printf("statusapi: broadcast channel full, dropping update\n")
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, ok, err := s.source.LatestSnapshot(r.Context())
	status := "healthy"
	if err != nil || !ok {
		status = "unhealthy"
	}

	resp := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		UptimeStr: formatUptime(time.Since(s.startTime)),
		Sun:       s.sunInfo(time.Now()),
		HasData:   ok,
	}
	if ok {
		resp.Warnings = snap.Warnings
	}
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}

func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, ok, err := s.source.LatestSnapshot(r.Context())
	ready := ok && err == nil
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
		"ready":     ready,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("statusapi: websocket upgrade: %v\n", err)
		return
	}
	s.clients.Store(conn, true)

	if snap, ok, err := s.source.LatestSnapshot(r.Context()); err == nil && ok {
		conn.WriteJSON(s.statusPayload(snap)) //nolint:errcheck
	}

	defer func() {
		s.clients.Delete(conn)
		conn.Close() //nolint:errcheck
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) handleBroadcasts() {
	for {
		select {
		case message := <-s.broadcast:
			s.clients.Range(func(key, _ any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close() //nolint:errcheck
					s.clients.Delete(conn)
				}
				return true
			})
		case <-s.done:
			return
		}
	}
}

func (s *Server) statusPayload(snap domain.SnapshotPayload) map[string]any {
	return map[string]any{
		"type":      "status_update",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"snapshot":  snap,
	}
}

func (s *Server) sunInfo(now time.Time) SunInfo {
	times := suncalc.GetTimes(now, s.location.Latitude, s.location.Longitude)
	pos := suncalc.GetPosition(now, s.location.Latitude, s.location.Longitude)
	return SunInfo{
		SolarAngleDeg: pos.Altitude * 180 / math.Pi,
		Sunrise:       times["sunrise"].Value.Format(time.RFC3339),
		Sunset:        times["sunset"].Value.Format(time.RFC3339),
	}
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
