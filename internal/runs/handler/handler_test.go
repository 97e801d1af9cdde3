package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"lineageforge/internal/claimgraph"
	"lineageforge/internal/resolution"
	"lineageforge/internal/runs"
	"lineageforge/internal/runs/handler/mocks"
	"lineageforge/internal/validation"
	id "lineageforge/pkg/domain"
	dErrors "lineageforge/pkg/domain-errors"
)

type RunHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestRunHandlerSuite(t *testing.T) {
	suite.Run(t, new(RunHandlerSuite))
}

func (s *RunHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.T().Cleanup(ctrl.Finish)
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := New(s.service, Defaults{
		Resolution: resolution.DefaultOptions(),
		Validation: validation.DefaultRuleConfig(),
	}, logger)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *RunHandlerSuite) do(method, target string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

var runID = id.NewRunID()

func completedRun(job runs.JobType) *runs.Run {
	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &runs.Run{
		ID:         runID,
		JobType:    job,
		Status:     runs.StatusCompleted,
		Summary:    json.RawMessage(`{"merges_executed":0}`),
		CreatedAt:  finished,
		FinishedAt: &finished,
	}
}

// =============================================================================
// POST /runs/resolution
// =============================================================================

func (s *RunHandlerSuite) TestRunResolution() {
	s.Run("overlays request on defaults", func() {
		s.SetupTest()
		s.service.EXPECT().RunResolution(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, opts resolution.Options) (*runs.ResolutionReport, error) {
				s.Equal(0.9, opts.Threshold)
				s.Equal(resolution.DefaultMinNameTokenOverlap, opts.MinNameTokenOverlap)
				return &runs.ResolutionReport{Run: completedRun(runs.JobResolution), Result: &resolution.Result{}}, nil
			})

		w := s.do(http.MethodPost, "/runs/resolution", map[string]any{"merge_threshold": 0.9})
		s.Equal(http.StatusOK, w.Code)

		var resp ResolutionRunResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal("completed", resp.Run.Status)
		s.NotNil(resp.MergeEvents)
	})

	s.Run("empty body uses defaults", func() {
		s.SetupTest()
		s.service.EXPECT().RunResolution(gomock.Any(), resolution.DefaultOptions()).
			Return(&runs.ResolutionReport{Run: completedRun(runs.JobResolution), Result: &resolution.Result{}}, nil)

		w := s.do(http.MethodPost, "/runs/resolution", nil)
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("unknown field is rejected", func() {
		s.SetupTest()
		w := s.do(http.MethodPost, "/runs/resolution", map[string]any{"threshold": 0.9})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("lock contention maps to 409", func() {
		s.SetupTest()
		s.service.EXPECT().RunResolution(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "another resolution run is in progress"))

		w := s.do(http.MethodPost, "/runs/resolution", map[string]any{})
		s.Equal(http.StatusConflict, w.Code)
		s.Contains(w.Body.String(), "another resolution run is in progress")
	})

	s.Run("inconsistent snapshot maps to 422", func() {
		s.SetupTest()
		s.service.EXPECT().RunResolution(gomock.Any(), gomock.Any()).
			Return(&runs.ResolutionReport{Run: completedRun(runs.JobResolution)}, dErrors.New(dErrors.CodeInconsistent, "dangling reference"))

		w := s.do(http.MethodPost, "/runs/resolution", map[string]any{})
		s.Equal(http.StatusUnprocessableEntity, w.Code)
	})
}

// =============================================================================
// POST /runs/validation
// =============================================================================

func (s *RunHandlerSuite) TestRunValidation() {
	s.Run("disabled rules are passed through", func() {
		s.SetupTest()
		s.service.EXPECT().RunValidation(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, cfg validation.RuleConfig) (*runs.ValidationReport, error) {
				s.Equal([]validation.FlagType{validation.FlagConflictingClaims}, cfg.Disabled)
				s.Equal(65, cfg.GenerationalMaxYears)
				return &runs.ValidationReport{Run: completedRun(runs.JobValidation), Result: &validation.Result{}}, nil
			})

		w := s.do(http.MethodPost, "/runs/validation", map[string]any{
			"disabled_rules":         []string{string(validation.FlagConflictingClaims)},
			"generational_max_years": 65,
		})
		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), `"flags":[]`)
	})

	s.Run("unknown rule is rejected before the service", func() {
		s.SetupTest()
		w := s.do(http.MethodPost, "/runs/validation", map[string]any{"disabled_rules": []string{"nope"}})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("unknown predicate is rejected", func() {
		s.SetupTest()
		w := s.do(http.MethodPost, "/runs/validation", map[string]any{"conflict_exempt_predicates": []string{"likes"}})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

// =============================================================================
// GET /runs
// =============================================================================

func (s *RunHandlerSuite) TestGetRun() {
	s.Run("found", func() {
		s.SetupTest()
		s.service.EXPECT().Get(gomock.Any(), runID).Return(completedRun(runs.JobValidation), nil)

		w := s.do(http.MethodGet, "/runs/"+runID.String(), nil)
		s.Equal(http.StatusOK, w.Code)

		var resp RunResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(runID.String(), resp.RunID)
		s.Equal("validate", resp.JobType)
	})

	s.Run("malformed id", func() {
		s.SetupTest()
		w := s.do(http.MethodGet, "/runs/not-a-uuid", nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("not found", func() {
		s.SetupTest()
		s.service.EXPECT().Get(gomock.Any(), runID).Return(nil, dErrors.New(dErrors.CodeNotFound, "run not found"))
		w := s.do(http.MethodGet, "/runs/"+runID.String(), nil)
		s.Equal(http.StatusNotFound, w.Code)
	})
}

func TestHandleListRuns(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantCode  int
	}{
		{"no limit", "", 0, http.StatusOK},
		{"explicit limit", "?limit=5", 5, http.StatusOK},
		{"negative limit", "?limit=-1", -1, http.StatusBadRequest},
		{"garbage limit", "?limit=abc", -1, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			service := mocks.NewMockService(ctrl)
			if tt.wantLimit >= 0 {
				service.EXPECT().List(gomock.Any(), tt.wantLimit).Return([]*runs.Run{completedRun(runs.JobResolution)}, nil)
			}
			h := New(service, Defaults{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

			req := httptest.NewRequest(http.MethodGet, "/runs"+tt.query, nil)
			w := httptest.NewRecorder()
			h.HandleListRuns(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				var resp RunListResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Len(t, resp.Runs, 1)
				assert.Equal(t, runID.String(), resp.Runs[0].RunID)
			}
		})
	}
}

// =============================================================================
// GET /preview/{a}/{b}
// =============================================================================

func (s *RunHandlerSuite) TestPreview() {
	a, b := id.NewPersonID(), id.NewPersonID()

	s.Run("reports the breakdown against the default threshold", func() {
		s.SetupTest()
		s.service.EXPECT().Preview(gomock.Any(), a, b).Return(resolution.Breakdown{
			Pair:     resolution.NewPair(a, b),
			Features: resolution.Features{Name: 1, Date: 0.5, Place: 0.5, Relational: 1},
			Score:    0.75,
		}, nil)

		w := s.do(http.MethodGet, "/preview/"+a.String()+"/"+b.String(), nil)
		s.Equal(http.StatusOK, w.Code)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(0.75, resp["score"])
		s.Equal(true, resp["would_merge"])
	})

	s.Run("malformed person id", func() {
		s.SetupTest()
		w := s.do(http.MethodGet, "/preview/"+a.String()+"/nope", nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func TestValidationRunRequestLeavesDefaultsAlone(t *testing.T) {
	disabled := make([]validation.FlagType, 1, 4)
	disabled[0] = validation.FlagCircularRelation
	exempt := make([]claimgraph.Predicate, 0, 4)
	defaults := validation.DefaultRuleConfig()
	defaults.Disabled = disabled
	defaults.ConflictExemptPredicates = exempt

	first := (&ValidationRunRequest{
		DisabledRules:            []string{string(validation.FlagConflictingClaims)},
		ConflictExemptPredicates: []string{string(claimgraph.PredicateResidedAt)},
	}).RuleConfig(defaults)
	second := (&ValidationRunRequest{
		DisabledRules: []string{string(validation.FlagLifespanInvalid)},
	}).RuleConfig(defaults)

	assert.Equal(t, []validation.FlagType{validation.FlagCircularRelation, validation.FlagConflictingClaims}, first.Disabled)
	assert.Equal(t, []validation.FlagType{validation.FlagCircularRelation, validation.FlagLifespanInvalid}, second.Disabled)
	assert.Equal(t, []claimgraph.Predicate{claimgraph.PredicateResidedAt}, first.ConflictExemptPredicates)
	assert.Empty(t, second.ConflictExemptPredicates)
	assert.Equal(t, []validation.FlagType{validation.FlagCircularRelation}, defaults.Disabled)
}
