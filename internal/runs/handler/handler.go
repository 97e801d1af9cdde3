package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"lineageforge/internal/resolution"
	"lineageforge/internal/runs"
	"lineageforge/internal/validation"
	id "lineageforge/pkg/domain"
	dErrors "lineageforge/pkg/domain-errors"
	"lineageforge/pkg/platform/httputil"
	"lineageforge/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the run operations exposed over HTTP.
type Service interface {
	RunResolution(ctx context.Context, opts resolution.Options) (*runs.ResolutionReport, error)
	RunValidation(ctx context.Context, cfg validation.RuleConfig) (*runs.ValidationReport, error)
	Get(ctx context.Context, runID id.RunID) (*runs.Run, error)
	List(ctx context.Context, limit int) ([]*runs.Run, error)
	Preview(ctx context.Context, x, y id.PersonID) (resolution.Breakdown, error)
}

// Defaults are the configured engine options a request overlays.
type Defaults struct {
	Resolution resolution.Options
	Validation validation.RuleConfig
}

type Handler struct {
	service  Service
	defaults Defaults
	logger   *slog.Logger
}

func New(service Service, defaults Defaults, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		defaults: defaults,
		logger:   logger,
	}
}

// Register mounts run endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/runs/resolution", h.HandleRunResolution)
	r.Post("/runs/validation", h.HandleRunValidation)
	r.Get("/runs/{id}", h.HandleGetRun)
	r.Get("/runs", h.HandleListRuns)
	r.Get("/preview/{a}/{b}", h.HandlePreview)
}

// HandleRunResolution handles POST /runs/resolution. The run executes
// synchronously; a failed run answers with the mapped error.
func (h *Handler) HandleRunResolution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[ResolutionRunRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	report, err := h.service.RunResolution(ctx, req.Options(h.defaults.Resolution))
	if err != nil {
		h.logger.ErrorContext(ctx, "resolution run failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "resolution run served",
		"request_id", requestID,
		"run_id", report.Run.ID,
		"merges", len(report.Result.Events),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromResolutionReport(report))
}

// HandleRunValidation handles POST /runs/validation.
func (h *Handler) HandleRunValidation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ValidationRunRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	report, err := h.service.RunValidation(ctx, req.RuleConfig(h.defaults.Validation))
	if err != nil {
		h.logger.ErrorContext(ctx, "validation run failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromValidationReport(report))
}

// HandleGetRun handles GET /runs/{id}.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, err := id.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	run, err := h.service.Get(ctx, runID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRun(run))
}

// HandleListRuns handles GET /runs?limit=N.
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	list, err := h.service.List(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list runs",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRuns(list))
}

// HandlePreview handles GET /preview/{a}/{b}: the score breakdown the
// resolution engine would compute for the pair right now.
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	a, err := id.ParsePersonID(chi.URLParam(r, "a"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	b, err := id.ParsePersonID(chi.URLParam(r, "b"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	bd, err := h.service.Preview(ctx, a, b)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PreviewResponse{
		Breakdown:  bd,
		Threshold:  h.defaults.Resolution.Threshold,
		WouldMerge: bd.Score >= h.defaults.Resolution.Threshold,
	})
}
