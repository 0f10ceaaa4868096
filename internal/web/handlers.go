package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/JonMunkholm/fleximart-etl/internal/logging"
	"github.com/JonMunkholm/fleximart-etl/internal/store"
	"github.com/JonMunkholm/fleximart-etl/internal/web/views"
)

// MaxRunsLimit caps the limit query parameter of the run listing.
const MaxRunsLimit = 100

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.running.Load(),
	})
}

// handleListRuns returns recent runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, r, errors.New("limit must be a positive integer"), http.StatusBadRequest)
			return
		}
		limit = min(n, MaxRunsLimit)
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.LatestRun(r.Context())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleLatestReport returns the text quality report of the latest run.
func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.LatestRun(r.Context())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := io.WriteString(w, run.Report); err != nil {
		logging.FromContext(r.Context()).Error("write report", "run_id", run.RunID, "error", err)
	}
}

func (s *Server) handleRejections(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := uuid.Parse(runID); err != nil {
		respondError(w, r, errors.New("invalid run id"), http.StatusBadRequest)
		return
	}

	rejections, err := s.runs.Rejections(r.Context(), runID)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	out := make([]rejectionJSON, 0, len(rejections))
	for _, rej := range rejections {
		out = append(out, rejectionJSON{
			Source: rej.Source,
			Line:   rej.Line,
			Key:    rej.Key,
			Reason: string(rej.Reason),
			Kind:   rej.Kind.String(),
			Detail: rej.Detail,
			Raw:    rej.Raw,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type rejectionJSON struct {
	Source string            `json:"source"`
	Line   int               `json:"line"`
	Key    string            `json:"natural_key,omitempty"`
	Reason string            `json:"reason"`
	Kind   string            `json:"kind"`
	Detail string            `json:"detail,omitempty"`
	Raw    map[string]string `json:"raw,omitempty"`
}

// handleTriggerRun starts a pipeline run in the background.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if s.run == nil {
		respondError(w, r, errors.New("run trigger is disabled"), http.StatusNotFound)
		return
	}
	if err := s.startRun(middleware.GetReqID(r.Context())); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleReportPage renders the latest report as HTML.
func (s *Server) handleReportPage(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.LatestRun(r.Context())
	if err != nil && !errors.Is(err, store.ErrNoRuns) {
		respondError(w, r, err, statusFor(err))
		return
	}

	var page views.ReportData
	if err == nil {
		page.Run = &run
	}
	page.Running = s.running.Load()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ReportPage(page).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render report page", "error", err)
	}
}
