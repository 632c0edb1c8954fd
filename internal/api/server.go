package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/metrics"
	"github.com/JakeFAU/camp-harvester/internal/middleware"
	"github.com/JakeFAU/camp-harvester/internal/review"
)

const (
	defaultRunLimit  = 20
	maxListLimit     = 500
	defaultTimeout   = 30 * time.Second
	latestReportName = "latest"
)

// SnapshotReader loads the current camp snapshot.
type SnapshotReader interface {
	Load(ctx context.Context) ([]camp.Record, error)
}

// ChangeReader lists persisted change sets, oldest first.
type ChangeReader interface {
	Entries(ctx context.Context) ([]camp.ChangeSet, error)
}

// RunReader lists pipeline runs, oldest first.
type RunReader interface {
	Entries(ctx context.Context) ([]camp.PipelineRun, error)
}

// ReportReader loads the report generated on a given day.
type ReportReader interface {
	Read(ctx context.Context, day time.Time) (camp.WeeklyReport, bool, error)
}

// ReviewReader reloads and lists the review queue.
type ReviewReader interface {
	Load(ctx context.Context) error
	Entries() []review.Entry
}

// Config tunes the server.
type Config struct {
	// APIKey, when set, is required on every /v1 request.
	APIKey  string
	Timeout time.Duration
}

// Deps are the stores the server reads from.
type Deps struct {
	Snapshots   SnapshotReader
	ChangeLog   ChangeReader
	PipelineLog RunReader
	Reports     ReportReader
	Review      ReviewReader
	Logger      *zap.Logger
}

// Server serves a read-only view of harvest results.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// CampSummary is one row of the camp listing.
type CampSummary struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	BaseURL      string        `json:"baseUrl"`
	LastQuality  int           `json:"lastQuality"`
	LastStrategy camp.Strategy `json:"lastStrategy,omitempty"`
	LastRunAt    time.Time     `json:"lastRunAt,omitempty"`
	Harvested    bool          `json:"harvested"`
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Snapshots == nil || deps.ChangeLog == nil || deps.PipelineLog == nil ||
		deps.Reports == nil || deps.Review == nil {
		return nil, errors.New("api: every store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s := &Server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		if cfg.APIKey != "" {
			r.Use(middleware.APIKey(cfg.APIKey))
		}
		r.Route("/camps", func(r chi.Router) {
			r.Get("/", s.listCamps)
			r.Route("/{camp_id}", func(r chi.Router) {
				r.Get("/", s.getCamp)
				r.Get("/changes", s.getCampChanges)
			})
		})
		r.Get("/runs", s.listRuns)
		r.Get("/reports/{date}", s.getReport)
		r.Get("/review", s.listReview)
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz checks that the snapshot can be read from storage.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Snapshots.Load(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		middleware.WriteError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listCamps(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 0)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.deps.Snapshots.Load(r.Context())
	if err != nil {
		s.storageError(w, "load snapshot", err)
		return
	}
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	out := make([]CampSummary, 0, len(records))
	for _, rec := range records {
		if q != "" && !strings.Contains(strings.ToLower(rec.Name), q) {
			continue
		}
		out = append(out, CampSummary{
			ID:           rec.ID,
			Name:         rec.Name,
			BaseURL:      rec.BaseURL,
			LastQuality:  rec.LastQuality,
			LastStrategy: rec.LastStrategy,
			LastRunAt:    rec.LastRunAt,
			Harvested:    rec.Extracted != nil,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"camps": out, "count": len(out)})
}

func (s *Server) getCamp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "camp_id")
	records, err := s.deps.Snapshots.Load(r.Context())
	if err != nil {
		s.storageError(w, "load snapshot", err)
		return
	}
	for _, rec := range records {
		if rec.ID == id {
			middleware.WriteJSON(w, http.StatusOK, rec)
			return
		}
	}
	middleware.WriteError(w, http.StatusNotFound, "camp not found")
}

// getCampChanges returns the change sets recorded for one camp, newest first.
func (s *Server) getCampChanges(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "camp_id")
	entries, err := s.deps.ChangeLog.Entries(r.Context())
	if err != nil {
		s.storageError(w, "load change log", err)
		return
	}
	out := make([]camp.ChangeSet, 0)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].EntityID == id {
			out = append(out, entries[i])
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"campId": id, "changes": out})
}

// listRuns returns the most recent pipeline runs, newest first.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultRunLimit)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.deps.PipelineLog.Entries(r.Context())
	if err != nil {
		s.storageError(w, "load pipeline log", err)
		return
	}
	runs = slices.Clone(runs)
	slices.Reverse(runs)
	if len(runs) > limit {
		runs = runs[:limit]
	}
	if runs == nil {
		runs = []camp.PipelineRun{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// getReport serves the report for a YYYY-MM-DD date, or for the most recent
// run when date is "latest".
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "date")
	var days []time.Time
	if raw == latestReportName {
		runs, err := s.deps.PipelineLog.Entries(r.Context())
		if err != nil {
			s.storageError(w, "load pipeline log", err)
			return
		}
		if len(runs) == 0 {
			middleware.WriteError(w, http.StatusNotFound, "no runs recorded")
			return
		}
		last := runs[len(runs)-1]
		days = append(days, last.FinishedAt, last.StartedAt)
	} else {
		day, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD or latest")
			return
		}
		days = append(days, day)
	}
	for _, day := range days {
		if day.IsZero() {
			continue
		}
		rep, ok, err := s.deps.Reports.Read(r.Context(), day)
		if err != nil {
			s.storageError(w, "load report", err)
			return
		}
		if ok {
			middleware.WriteJSON(w, http.StatusOK, rep)
			return
		}
	}
	middleware.WriteError(w, http.StatusNotFound, "report not found")
}

func (s *Server) listReview(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Review.Load(r.Context()); err != nil {
		s.storageError(w, "load review queue", err)
		return
	}
	entries := s.deps.Review.Entries()
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) storageError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", zap.Error(err))
	middleware.WriteError(w, http.StatusInternalServerError, op+" failed")
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, errors.New("limit must be between 1 and " + strconv.Itoa(maxListLimit))
	}
	return n, nil
}
