// Package api exposes the daemon over HTTP: status reads, manual status
// control, snooze, settings updates, and a websocket that pushes status
// changes so UI clients don't have to poll.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"statuslight/internal/state"
	"statuslight/internal/status"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StatusController is the slice of the scheduler the API needs.
type StatusController interface {
	UpdateNow()
	EndMeetingEarly()
	SetManualStatus(label string, expiry time.Duration)
	ClearManualStatus()
	TurnOffLightsImmediately() error
	OnStatusChange(fn func(newStatus string))
	Running() bool
}

// Server provides the HTTP API.
type Server struct {
	store  *state.Store
	ctrl   StatusController
	logger *zap.Logger
	server *http.Server

	upgrader websocket.Upgrader

	connMu sync.Mutex
	conns  map[*websocket.Conn]struct{}
}

// NewServer creates an API server listening on the given port.
func NewServer(store *state.Store, ctrl StatusController, logger *zap.Logger, port int) *Server {
	s := &Server{
		store:  store,
		ctrl:   ctrl,
		logger: logger.Named("api"),
		conns:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/update", s.handleUpdate)
	mux.HandleFunc("/api/meeting/end-early", s.handleEndMeetingEarly)
	mux.HandleFunc("/api/lights/off", s.handleLightsOff)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebsocket)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctrl.OnStatusChange(s.broadcastStatus)

	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// StatusResponse is the JSON shape of GET /api/status.
type StatusResponse struct {
	Status             string     `json:"status"`
	ManualStatus       string     `json:"manual_status,omitempty"`
	ManualStatusSetAt  *time.Time `json:"manual_status_set_at,omitempty"`
	SnoozeUntil        *time.Time `json:"snooze_until,omitempty"`
	SnoozeEventSummary string     `json:"snooze_event_summary,omitempty"`
	CalendarSync       bool       `json:"calendar_sync"`
	LightControl       bool       `json:"light_control"`
	SchedulerRunning   bool       `json:"scheduler_running"`
	LastPowerApplied   string     `json:"last_power_applied,omitempty"`
	LastColorApplied   string     `json:"last_color_applied,omitempty"`
}

func (s *Server) statusResponse() StatusResponse {
	snap := s.store.Snapshot()
	return StatusResponse{
		Status:             snap.CurrentStatus,
		ManualStatus:       snap.ManualStatus,
		ManualStatusSetAt:  snap.ManualStatusTimestamp,
		SnoozeUntil:        snap.SnoozeUntil,
		SnoozeEventSummary: snap.SnoozeEventSummary,
		CalendarSync:       !snap.DisableCalendarSync,
		LightControl:       !snap.DisableLightControl,
		SchedulerRunning:   s.ctrl.Running(),
		LastPowerApplied:   snap.LastPowerApplied,
		LastColorApplied:   snap.LastColorApplied,
	}
}

// handleStatus serves the status resource: GET reads, POST sets a manual
// status, DELETE clears it.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.statusResponse())

	case http.MethodPost:
		var req struct {
			Status        string `json:"status"`
			ExpirySeconds int    `json:"expiry_seconds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.Status == "" {
			http.Error(w, "Missing status", http.StatusBadRequest)
			return
		}

		s.ctrl.SetManualStatus(req.Status, time.Duration(req.ExpirySeconds)*time.Second)
		s.logger.Info("Manual status set via API",
			zap.String("status", req.Status),
			zap.String("remote_addr", r.RemoteAddr))
		s.writeJSON(w, http.StatusOK, s.statusResponse())

	case http.MethodDelete:
		s.ctrl.ClearManualStatus()
		s.logger.Info("Manual status cleared via API",
			zap.String("remote_addr", r.RemoteAddr))
		s.writeJSON(w, http.StatusOK, s.statusResponse())

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleUpdate forces a resolution cycle right now.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.ctrl.UpdateNow()
	s.writeJSON(w, http.StatusOK, s.statusResponse())
}

// handleEndMeetingEarly snoozes the current meeting.
func (s *Server) handleEndMeetingEarly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.ctrl.EndMeetingEarly()
	s.logger.Info("Meeting ended early via API",
		zap.String("remote_addr", r.RemoteAddr))
	s.writeJSON(w, http.StatusOK, s.statusResponse())
}

// handleLightsOff turns the light off regardless of the light-control flag.
func (s *Server) handleLightsOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.ctrl.TurnOffLightsImmediately(); err != nil {
		s.logger.Error("Failed to turn light off", zap.Error(err))
		http.Error(w, "Light did not respond", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, http.StatusOK, s.statusResponse())
}

// SettingsRequest is a partial settings update; nil fields are untouched.
type SettingsRequest struct {
	SelectedCalendarID    *string          `json:"selected_calendar_id"`
	RefreshInterval       *int             `json:"refresh_interval"`
	ManualStatusExpiry    *int             `json:"manual_status_expiry"`
	DisableCalendarSync   *bool            `json:"disable_calendar_sync"`
	DisableLightControl   *bool            `json:"disable_light_control"`
	PowerOffWhenAvailable *bool            `json:"power_off_when_available"`
	OffForUnknownStatus   *bool            `json:"off_for_unknown_status"`
	StatusColorMap        *status.ColorMap `json:"status_color_map"`
}

// handleSettings applies a partial settings update and re-resolves so the
// light reflects the new configuration immediately.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := s.store.Update(func(st *state.Settings) {
		if req.SelectedCalendarID != nil {
			st.SelectedCalendarID = *req.SelectedCalendarID
		}
		if req.RefreshInterval != nil {
			st.RefreshInterval = *req.RefreshInterval
		}
		if req.ManualStatusExpiry != nil {
			st.ManualStatusExpiry = *req.ManualStatusExpiry
		}
		if req.DisableCalendarSync != nil {
			st.DisableCalendarSync = *req.DisableCalendarSync
		}
		if req.DisableLightControl != nil {
			st.DisableLightControl = *req.DisableLightControl
		}
		if req.PowerOffWhenAvailable != nil {
			st.PowerOffWhenAvailable = *req.PowerOffWhenAvailable
		}
		if req.OffForUnknownStatus != nil {
			st.OffForUnknownStatus = *req.OffForUnknownStatus
		}
		if req.StatusColorMap != nil {
			st.StatusColorMap = req.StatusColorMap.Clone()
		}
	}); err != nil {
		s.logger.Error("Failed to update settings", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.logger.Info("Settings updated via API",
		zap.String("remote_addr", r.RemoteAddr))
	s.ctrl.UpdateNow()

	snap := s.store.Snapshot()
	s.writeJSON(w, http.StatusOK, snap)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scheduler := "running"
	if !s.ctrl.Running() {
		scheduler = "stopped"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"scheduler": scheduler,
	})
}

// statusEvent is the frame pushed to websocket clients.
type statusEvent struct {
	Status string `json:"status"`
}

// handleWebsocket upgrades the connection and streams status changes. The
// current status is sent first so clients never start blank.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	current := s.store.Snapshot().CurrentStatus
	err = conn.WriteJSON(statusEvent{Status: current})
	s.connMu.Unlock()
	if err != nil {
		s.dropConn(conn)
		return
	}

	s.logger.Debug("Websocket client connected",
		zap.String("remote_addr", r.RemoteAddr))

	// Reads only serve to notice the peer going away.
	go func() {
		defer s.dropConn(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcastStatus pushes a status change to every connected client.
func (s *Server) broadcastStatus(newStatus string) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	for conn := range s.conns {
		if err := conn.WriteJSON(statusEvent{Status: newStatus}); err != nil {
			s.logger.Debug("Dropping websocket client", zap.Error(err))
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

func (s *Server) dropConn(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if _, ok := s.conns[conn]; ok {
		conn.Close()
		delete(s.conns, conn)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Endpoint describes one API route for the sitemap.
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

// handleSitemap lists the API routes. Unknown paths land here too, so it
// answers 404 with a helpful body.
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	endpoints := []Endpoint{
		{Path: "/", Method: "GET", Description: "This sitemap"},
		{Path: "/api/status", Method: "GET", Description: "Current status, override and snooze state"},
		{Path: "/api/status", Method: "POST", Description: "Set a manual status: {\"status\": \"focus\", \"expiry_seconds\": 3600}"},
		{Path: "/api/status", Method: "DELETE", Description: "Clear the manual status and snooze"},
		{Path: "/api/update", Method: "POST", Description: "Force a resolution cycle now"},
		{Path: "/api/meeting/end-early", Method: "POST", Description: "Snooze the current meeting"},
		{Path: "/api/lights/off", Method: "POST", Description: "Turn the light off immediately"},
		{Path: "/api/settings", Method: "PUT", Description: "Partial settings update (calendar, interval, flags, color map)"},
		{Path: "/health", Method: "GET", Description: "Health check"},
		{Path: "/ws", Method: "GET", Description: "Websocket status change stream"},
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, "Status Light API\n")
	fmt.Fprintf(w, "================\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "  %-7s %-25s %s\n", ep.Method, ep.Path, ep.Description)
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr))
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server and closes websocket clients.
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	s.connMu.Lock()
	for conn := range s.conns {
		conn.Close()
		delete(s.conns, conn)
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
