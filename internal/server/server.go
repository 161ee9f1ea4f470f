package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/audiolibrelab/audiobridge/internal/config"
	"github.com/audiolibrelab/audiobridge/internal/play"
	"github.com/audiolibrelab/audiobridge/internal/recorder"
	"github.com/audiolibrelab/audiobridge/internal/service"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP remote control for an AudioService
type Server struct {
	service    *service.AudioService
	configFile string
	port       string
	hub        *hub
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	service.Status
	Message string `json:"message,omitempty"`
}

// PlayRequest selects a local file or a remote URL
type PlayRequest struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

// PlayResponse carries the token that the matching playerFinished event will echo
type PlayResponse struct {
	Success bool       `json:"success"`
	Token   play.Token `json:"token"`
}

// PrepareRequest names the recording target. Name is resolved inside the
// configured recording directory; Path is used as is.
type PrepareRequest struct {
	Path string `json:"path,omitempty"`
	Name string `json:"name,omitempty"`
}

// GenericResponse is returned by commands that carry no data
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// New creates a web server instance for svc
func New(svc *service.AudioService, configFile string, port string) *Server {
	return &Server{
		service:    svc,
		configFile: configFile,
		port:       port,
		hub:        newHub(svc.Bus()),
	}
}

// Handler returns the routes served by the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/config/profiles", s.handleProfiles)
	mux.HandleFunc("/config/select", s.handleSelectProfile)
	// Playback
	mux.HandleFunc("/api/play", s.handlePlay)
	mux.HandleFunc("/api/pause", s.command("pause", s.service.Player().Pause))
	mux.HandleFunc("/api/stop", s.command("stop", s.service.Player().Stop))
	// Recording
	mux.HandleFunc("/api/record/prepare", s.handlePrepare)
	mux.HandleFunc("/api/record/start", s.command("start_recording", s.service.Recorder().StartRecording))
	mux.HandleFunc("/api/record/pause", s.command("pause_recording", s.service.Recorder().PauseRecording))
	mux.HandleFunc("/api/record/stop", s.command("stop_recording", s.service.Recorder().StopRecording))
	mux.HandleFunc("/api/record/delete", s.command("delete_recording", s.service.Recorder().DeleteRecording))
	mux.HandleFunc("/api/record/play", s.command("play_recording", s.service.Recorder().PlayRecording))
	mux.HandleFunc("/api/record/stop-playing", s.command("stop_playing", s.service.Recorder().StopPlaying))
	// Events
	mux.HandleFunc("/ws/events", s.hub.serveWS)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting audiobridge web server",
			"port", s.port,
			"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), s.port),
			"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.hub.close()
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down web server")
	s.hub.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down web server: %w", err)
	}
	return nil
}

// command wraps a fire-and-forget command. Engine failures are reported on
// the event stream, not in the response.
func (s *Server) command(operation string, run func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		slog.Debug("Command request received", "operation", operation)
		run()
		sendJSON(w, http.StatusOK, GenericResponse{Success: true, Message: operation + " sent"})
	}
}

// handlePlay starts a local file or a URL and returns its play token
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req PlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "operation", "play", "error", err)
		return
	}

	var token play.Token
	switch {
	case req.Path != "" && req.URL != "":
		s.sendErrorResponse(w, http.StatusBadRequest, "Specify either path or url, not both", "operation", "play")
		return
	case req.Path != "":
		token = s.service.Player().Play(req.Path)
	case req.URL != "":
		token = s.service.Player().PlayWithURL(req.URL)
	default:
		s.sendErrorResponse(w, http.StatusBadRequest, "Path or url is required", "operation", "play")
		return
	}

	slog.Info("Server: playback requested", "path", req.Path, "url", req.URL, "token", token)
	sendJSON(w, http.StatusOK, PlayResponse{Success: true, Token: token})
}

// handlePrepare begins a recording session
func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req PrepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "operation", "prepare_recording", "error", err)
		return
	}

	path := req.Path
	if path == "" {
		if req.Name == "" {
			s.sendErrorResponse(w, http.StatusBadRequest, "Path or name is required", "operation", "prepare_recording")
			return
		}
		path = recordingPath(s.service.Config(), req.Name)
		if path == "" {
			s.sendErrorResponse(w, http.StatusBadRequest, "Name contains no usable characters", "operation", "prepare_recording")
			return
		}
	}

	session, err := s.service.Recorder().PrepareRecordingAtPath(path)
	if errors.Is(err, recorder.ErrAlreadyActive) {
		s.sendErrorResponse(w, http.StatusConflict, "A recording session is already active",
			"path", path, "operation", "prepare_recording")
		return
	}
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to prepare recording: %v", err),
			"path", path, "operation", "prepare_recording")
		return
	}

	slog.Info("Server: recording prepared", "session", session.ID, "path", path)
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"session": service.RecordingSession{ID: session.ID, Path: session.Path, StartTime: session.StartTime},
	})
}

// handleStatus returns the current status and session info
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	status := s.service.Status()
	sendJSON(w, http.StatusOK, StatusResponse{
		Status:  status,
		Message: generateStatusMessage(status),
	})
}

func generateStatusMessage(status service.Status) string {
	switch {
	case status.Session != nil:
		elapsed := time.Since(status.Session.StartTime).Truncate(time.Second)
		return fmt.Sprintf("Recording %s (%s)", filepath.Base(status.Session.Path), elapsed)
	case status.LastError != "":
		return "Last error: " + status.LastError
	default:
		return "Standby"
	}
}

// handleProfiles returns available configuration profiles
func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	profiles, err := config.ListProfiles(s.configFile)
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read profiles: %v", err),
			"config_file", s.configFile, "operation", "list_profiles")
		return
	}
	sort.Strings(profiles)

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"profiles":       profiles,
		"active_profile": s.service.Config().Profile,
	})
}

// handleSelectProfile switches the active profile and applies it
func (s *Server) handleSelectProfile(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Profile string `json:"profile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Profile == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Profile is required", "operation", "profile_selection")
		return
	}

	// The profile in use is locked while recording
	if s.service.Status().Status == service.StatusRecording {
		s.sendErrorResponse(w, http.StatusConflict, "Cannot change profile while recording",
			"profile", req.Profile, "operation", "profile_selection")
		return
	}

	newCfg, err := config.LoadWithProfile(s.configFile, req.Profile)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Failed to load profile '%s': %v", req.Profile, err),
			"profile", req.Profile, "operation", "profile_selection")
		return
	}

	if err := config.UpdateActiveConfig(s.configFile, req.Profile); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to save profile selection to config file: %v", err),
			"profile", req.Profile, "operation", "profile_selection")
		return
	}

	s.service.ApplyConfig(newCfg)
	slog.Info("Profile changed", "profile", req.Profile)

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Profile changed to %s", req.Profile),
		"profile": req.Profile,
	})
}

// recordingPath places a cleaned name in the configured recording directory
func recordingPath(cfg *config.Config, name string) string {
	clean := cleanFileName(name)
	if clean == "" {
		return ""
	}
	return filepath.Join(cfg.Recording.Directory, clean+"."+cfg.Recording.Format)
}

func cleanFileName(name string) string {
	// Allows letters, numbers, spaces, hyphens and underscores
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(result.String()), " ", "_")
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	sendJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
		"success": false,
		"error":   "Method not allowed",
	})
	return false
}

func sendJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

// sendErrorResponse logs the error with context and sends it as JSON
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	sendJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Dialing UDP sends nothing; it only picks the outbound interface
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
