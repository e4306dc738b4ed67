// Package web exposes the submission and status interface: a small HTML
// front end plus JSON endpoints that push jobs into the queue and report
// pipeline progress. It is a thin shim; all real work happens in the
// pipeline worker.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/norton62/demo2video/internal/job"
	"github.com/norton62/demo2video/internal/queue"
	"github.com/norton62/demo2video/internal/results"
	"github.com/norton62/demo2video/internal/status"
)

//go:embed templates/index.html
var templateFS embed.FS

var steam64Re = regexp.MustCompile(`^\d{17}$`)

// Server serves the submission form and status API.
type Server struct {
	queue       *queue.Queue[job.Job]
	status      *status.Broadcaster
	results     *results.Store
	defaultMode job.PublishMode
	logger      *slog.Logger
	index       *template.Template
	httpServer  *http.Server
}

// NewServer wires the web shim to the queue, status broadcaster and
// result store.
func NewServer(
	addr string,
	q *queue.Queue[job.Job],
	st *status.Broadcaster,
	rs *results.Store,
	defaultMode job.PublishMode,
	logger *slog.Logger,
) *Server {
	s := &Server{
		queue:       q,
		status:      st,
		results:     rs,
		defaultMode: defaultMode,
		logger:      logger,
		index:       template.Must(template.ParseFS(templateFS, "templates/index.html")),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleIndex)
	r.Post("/add_demo", s.handleAddDemo)
	r.Get("/run", s.handleRun)
	r.Get("/status", s.handleStatus)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler (for tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe runs the server until Shutdown. Failing to start is
// fatal for the process and is left to the caller.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting web server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.index.Execute(w, nil); err != nil {
		s.logger.Error("failed to render index", "error", err)
	}
}

// handleAddDemo accepts the submission form.
func (s *Server) handleAddDemo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "message": "Malformed form data.",
		})
		return
	}

	shareCode := r.PostFormValue("share_code")
	suspectID := r.PostFormValue("suspect_steam_id")
	submittedBy := r.PostFormValue("submitted_by")

	if shareCode == "" || suspectID == "" || submittedBy == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "message": "All fields are required.",
		})
		return
	}

	mode := s.publishMode(r.PostFormValue("youtube_upload"))
	j := s.enqueue(shareCode, suspectID, submittedBy, mode)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Demo added to the queue.",
		"job_id":  j.ID,
	})
}

// handleRun is the hyperlink entry point, e.g.
// /run?demo=CSGO-...&steam64=76561198000000000&name=Someone
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	demo := r.URL.Query().Get("demo")
	steam64 := r.URL.Query().Get("steam64")
	name := r.URL.Query().Get("name")

	var missing []string
	if demo == "" {
		missing = append(missing, "demo")
	}
	if steam64 == "" {
		missing = append(missing, "steam64")
	}
	if name == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		http.Error(w, fmt.Sprintf("Missing required parameters: %v", missing), http.StatusBadRequest)
		return
	}

	if !steam64Re.MatchString(steam64) {
		http.Error(w, "Invalid Steam64 ID format. Must be 17 digits.", http.StatusBadRequest)
		return
	}

	mode := s.publishMode(r.URL.Query().Get("youtube_upload"))
	s.enqueue(demo, steam64, name, mode)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleStatus returns the current job, the pending queue and the
// result history.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current_job": s.status.Snapshot(),
		"queue":       s.queue.Snapshot(),
		"results":     s.results.List(),
	})
}

func (s *Server) enqueue(shareCode, suspectID, submittedBy string, mode job.PublishMode) job.Job {
	j := job.Job{
		ID:          uuid.New().String(),
		ShareCode:   shareCode,
		SuspectID:   suspectID,
		SubmittedBy: submittedBy,
		PublishMode: mode,
		SubmittedAt: time.Now(),
	}
	s.queue.Enqueue(j)
	s.logger.Info("added new job to queue",
		"job_id", j.ID,
		"suspect", j.SuspectID,
		"submitted_by", j.SubmittedBy,
		"publish_mode", j.PublishMode.String())
	return j
}

// publishMode maps the optional upload flag to a publish mode, falling
// back to the configured default.
func (s *Server) publishMode(raw string) job.PublishMode {
	switch raw {
	case "true", "True":
		return job.PublishUpload
	case "false", "False":
		return job.PublishSaveLocally
	default:
		return s.defaultMode
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
