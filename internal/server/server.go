package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiolibrelab/wavrecorder/internal/recorder"
	"github.com/audiolibrelab/wavrecorder/internal/service"
	"github.com/audiolibrelab/wavrecorder/internal/wav"
)

const shutdownTimeout = 5 * time.Second

// Server represents the web server for controlling the recorder
type Server struct {
	service  service.Service
	port     int
	gatherer prometheus.Gatherer
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status   string                `json:"status"`
	Message  string                `json:"message,omitempty"`
	Duration uint32                `json:"duration_seconds"`
	Session  *recorder.SessionInfo `json:"session,omitempty"`
	Config   *ResolvedConfigInfo   `json:"resolved_config"`
}

// ResolvedConfigInfo contains configuration information for the UI
type ResolvedConfigInfo struct {
	ActiveProfile string `json:"active_profile"`
	OutputDir     string `json:"output_dir"`
	Backend       string `json:"backend"`
	Device        string `json:"device,omitempty"`
	SampleRate    int    `json:"sample_rate"`
	BitsPerSample int    `json:"bits_per_sample"`
	Channels      int    `json:"channels"`
}

// FilesResponse represents the JSON response for the files endpoint
type FilesResponse struct {
	Success   bool                    `json:"success"`
	Files     []service.RecordingInfo `json:"files"`
	OutputDir string                  `json:"output_dir"`
}

// FileInfoResponse represents the JSON response for the file info endpoint
type FileInfoResponse struct {
	Success bool              `json:"success"`
	Info    *service.FileInfo `json:"info"`
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// New creates a new web server instance. gatherer backs /metrics; nil uses
// the default registry.
func New(svc service.Service, port int, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		service:  svc,
		port:     port,
		gatherer: gatherer,
	}
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/start", s.handleStartRecording)
	mux.HandleFunc("/pause", s.handlePauseRecording)
	mux.HandleFunc("/resume", s.handleResumeRecording)
	mux.HandleFunc("/stop", s.handleStopRecording)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/api/files", s.handleFiles)
	mux.HandleFunc("/api/files/info/", s.handleFileInfo)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Run serves HTTP until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Get local IP address
	localIP := getLocalIP()

	slog.Info("Starting WAV recorder web server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%d", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%d", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("Web server stopped")
	return nil
}

// handleIndex serves a minimal page listing the API
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>WAV Recorder</title>
</head>
<body>
    <h1>WAV Recorder</h1>
    <h2>API Endpoints:</h2>
    <ul>
        <li>POST /start - Start recording (form field: name)</li>
        <li>POST /pause - Pause recording</li>
        <li>POST /resume - Resume recording</li>
        <li>POST /stop - Stop recording and finalize the file</li>
        <li>GET /status - Get status</li>
        <li>GET /api/files - List recordings</li>
        <li>GET /api/files/info/{name} - Header and decode details of a recording</li>
        <li>GET /metrics - Prometheus metrics</li>
    </ul>
</body>
</html>`

// handleStartRecording starts a new session (STOPPED -> RECORDING)
func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	// Parse form data
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form", "operation", "start")
		return
	}
	name := r.FormValue("name")

	slog.Info("Server: Starting recording", "name", name)
	if err := s.service.StartRecording(name); err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to start recording: %v", err),
			"name", name, "operation", "start")
		return
	}

	_, session := s.service.GetRecordingStatus()
	response := map[string]interface{}{
		"success": true,
		"message": "Recording started",
	}
	if session != nil {
		response["session"] = session
	}
	s.sendJSON(w, http.StatusOK, response)
}

// handlePauseRecording pauses the active session (RECORDING -> PAUSED)
func (s *Server) handlePauseRecording(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.service.PauseRecording(); err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to pause recording: %v", err),
			"operation", "pause")
		return
	}
	s.sendJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Recording paused"})
}

// handleResumeRecording resumes a paused session (PAUSED -> RECORDING)
func (s *Server) handleResumeRecording(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.service.ResumeRecording(); err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to resume recording: %v", err),
			"operation", "resume")
		return
	}
	s.sendJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Recording resumed"})
}

// handleStopRecording stops the current recording session
func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.service.StopRecording(); err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to stop recording: %v", err),
			"operation", "stop")
		return
	}
	s.sendJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Recording stopped"})
}

// handleStatus returns the current status and session info
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	state, session := s.service.GetRecordingStatus()
	response := StatusResponse{
		Status:  state.String(),
		Message: s.generateStatusMessage(state, session),
		Session: session,
		Config:  s.getResolvedConfigInfo(),
	}
	if session != nil && state != recorder.StateError {
		response.Duration = session.Duration
	}
	s.sendJSON(w, http.StatusOK, response)
}

// handleFiles lists the recordings in the output directory
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	files, err := s.service.ListRecordings()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list recordings: %v", err),
			"operation", "list_files")
		return
	}
	s.sendJSON(w, http.StatusOK, FilesResponse{
		Success:   true,
		Files:     files,
		OutputDir: s.service.GetConfig().Output.Directory,
	})
}

// handleFileInfo reads back the header of a recording
func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	// Extract filename from URL
	filename := strings.TrimPrefix(r.URL.Path, "/api/files/info/")
	if filename == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Filename required", "operation", "file_info")
		return
	}

	info, err := s.service.GetFileInfo(filename)
	if err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to read %s: %v", filename, err),
			"file", filename, "operation", "file_info")
		return
	}
	s.sendJSON(w, http.StatusOK, FileInfoResponse{Success: true, Info: info})
}

func (s *Server) getResolvedConfigInfo() *ResolvedConfigInfo {
	cfg := s.service.GetConfig()
	if cfg == nil {
		return nil
	}
	return &ResolvedConfigInfo{
		ActiveProfile: cfg.Profile,
		OutputDir:     cfg.Output.Directory,
		Backend:       cfg.Audio.Backend,
		Device:        cfg.Audio.Device,
		SampleRate:    cfg.Audio.SampleRate,
		BitsPerSample: cfg.Audio.BitsPerSample,
		Channels:      cfg.Audio.Channels,
	}
}

func (s *Server) generateStatusMessage(state recorder.State, session *recorder.SessionInfo) string {
	switch state {
	case recorder.StateRecording:
		if session != nil {
			return fmt.Sprintf("Recording in progress - %s", session.Path)
		}
		return "Recording in progress"
	case recorder.StatePaused:
		return "Recording paused"
	case recorder.StateError:
		// Get detailed error information from service
		if errorDetails := s.service.GetLastError(); errorDetails != "" {
			return errorDetails
		}
		if session != nil && session.LastError != "" {
			return session.LastError
		}
		return "An error occurred during the operation"
	default:
		// A session that failed and was cleaned up in the background
		return s.service.GetLastError()
	}
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidName), errors.Is(err, recorder.ErrFormatNotSupported):
		return http.StatusBadRequest
	case errors.Is(err, recorder.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, wav.ErrInvalidHeader):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	s.sendJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
		"success": false,
		"error":   "Method not allowed",
	})
	return false
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	// Log the error with structured context
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	s.sendJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
