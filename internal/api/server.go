// Package api exposes the signal pipeline over HTTP: snapshot reads for the
// display shell, config get/update, reset, CSV export, and an HTML report.
package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/orangewave/cardio/internal/ecg"
	"github.com/orangewave/cardio/internal/httputil"
	"github.com/orangewave/cardio/internal/report"
	"github.com/orangewave/cardio/internal/security"
	"github.com/orangewave/cardio/internal/serialmux"
	"github.com/orangewave/cardio/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	m    serialmux.SerialMuxInterface
	pipe *ecg.Pipeline

	// defaultWindow bounds snapshot responses when the client does not pass
	// an explicit window, in seconds.
	defaultWindow float64
}

func NewServer(m serialmux.SerialMuxInterface, pipe *ecg.Pipeline, defaultWindow float64) *Server {
	if defaultWindow <= 0 {
		defaultWindow = ecg.DefaultLookbackSeconds
	}
	return &Server{
		m:             m,
		pipe:          pipe,
		defaultWindow: defaultWindow,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshot", s.showSnapshot)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/reset", s.resetPipeline)
	mux.HandleFunc("/api/export", s.exportCSV)
	mux.HandleFunc("/api/report", s.showReport)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/command", s.sendCommandHandler)
	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

// parseWindow reads an optional ?window= query parameter (seconds).
func (s *Server) parseWindow(r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return s.defaultWindow, nil
	}
	window, err := strconv.ParseFloat(raw, 64)
	if err != nil || window <= 0 {
		return 0, fmt.Errorf("invalid 'window' parameter %q", raw)
	}
	return window, nil
}

func (s *Server) showSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	window, err := s.parseWindow(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.pipe.Snapshot(window))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.pipe.Config())
	case http.MethodPost:
		// Start from the active config so partial updates only touch the
		// fields the client sent.
		cfg := s.pipe.Config()
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid config JSON: %v", err))
			return
		}
		if err := s.pipe.Configure(cfg); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, s.pipe.Config())
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) resetPipeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.pipe.Reset()
	httputil.WriteJSONOK(w, map[string]string{"status": "reset"})
}

// exportCSV streams a sequence range as a CSV attachment. The download name
// carries a UUID so repeated exports never collide on the client side.
func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	start, err := strconv.ParseUint(query.Get("start"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid 'start' parameter")
		return
	}
	end, err := strconv.ParseUint(query.Get("end"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid 'end' parameter")
		return
	}
	if start > end {
		httputil.BadRequest(w, "'start' must not exceed 'end'")
		return
	}

	filename := security.SanitizeFilename(fmt.Sprintf("ecg-%d-%d-%s.csv", start, end, uuid.NewString()))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := s.pipe.ExportRange(start, end, w); err != nil {
		// Headers are gone at this point; log and drop the connection state.
		log.Printf("export %d-%d failed: %v", start, end, err)
	}
}

func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	window, err := s.parseWindow(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderSignalChart(w, s.pipe.Snapshot(window)); err != nil {
		log.Printf("report render failed: %v", err)
	}
}

// sendCommandHandler forwards hex-encoded bytes to the device. Kept separate
// from the debug routes so tooling can script it without debug access.
func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	command := r.FormValue("command")
	if command == "" {
		httputil.BadRequest(w, "missing 'command' parameter")
		return
	}
	payload, err := hex.DecodeString(command)
	if err != nil {
		httputil.BadRequest(w, "command must be hex encoded")
		return
	}
	if err := s.m.SendCommand(payload); err != nil {
		httputil.InternalServerError(w, "failed to send command")
		return
	}
	httputil.WriteJSONOK(w, map[string]int{"bytes_written": len(payload)})
}
