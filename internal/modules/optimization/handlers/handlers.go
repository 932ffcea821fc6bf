// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// SolveRequest optimizes directly supplied statistics. AssetIDs are optional
// labels for the weights. A nil TargetReturn selects the configured default.
type SolveRequest struct {
	AssetIDs        []string    `json:"asset_ids,omitempty"`
	ExpectedReturns []float64   `json:"expected_returns" validate:"required,min=1"`
	Covariance      [][]float64 `json:"covariance" validate:"required,min=1"`
	TargetReturn    *float64    `json:"target_return,omitempty"`
}

// SolveResponse carries the weights in request order, keyed by asset when
// labels were given.
type SolveResponse struct {
	Status           string                        `json:"status"`
	Weights          []float64                     `json:"weights"`
	OptimizedWeights map[string]float64            `json:"optimized_weights,omitempty"`
	Performance      optimization.PortfolioMetrics `json:"performance"`
	Solver           string                        `json:"solver"`
	Iterations       int                           `json:"iterations"`
}

// EvaluateRequest scores an externally supplied allocation.
type EvaluateRequest struct {
	Weights         []float64   `json:"weights" validate:"required,min=1"`
	ExpectedReturns []float64   `json:"expected_returns" validate:"required,min=1"`
	Covariance      [][]float64 `json:"covariance" validate:"required,min=1"`
}

// Handler handles optimizer HTTP requests.
type Handler struct {
	service  *optimization.OptimizerService
	runs     optimization.RunStore
	defaults optimization.ServiceDefaults
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandler creates a new optimization handler. runs may be nil, in which
// case the run endpoints report no history.
func NewHandler(
	service *optimization.OptimizerService,
	runs optimization.RunStore,
	defaults optimization.ServiceDefaults,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:  service,
		runs:     runs,
		defaults: defaults,
		validate: validator.New(),
		log:      log.With().Str("component", "optimizer_handler").Logger(),
	}
}

// HandleGetStatus handles GET /api/optimizer/ - solver info and the last run.
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "ready",
		"solver":  h.service.Optimizer().SolverName(),
		"solvers": []string{optimization.ActiveSetSolverName, optimization.PenaltySolverName},
		"defaults": map[string]interface{}{
			"target_return": h.defaults.TargetReturn,
			"start_date":    h.defaults.StartDate.Format("2006-01-02"),
		},
		"last_run": nil,
	}

	if h.runs != nil {
		runs, err := h.runs.List(1)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to load last run")
		} else if len(runs) > 0 {
			response["last_run"] = runs[0]
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleOptimize handles POST /api/optimizer/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimization.OptimizeRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.Optimize(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleSolve handles POST /api/optimizer/solve
func (h *Handler) HandleSolve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.AssetIDs) > 0 && len(req.AssetIDs) != len(req.ExpectedReturns) {
		h.writeError(w, fmt.Errorf("%w: %d asset ids for %d expected returns",
			domain.ErrValidation, len(req.AssetIDs), len(req.ExpectedReturns)))
		return
	}
	cov, err := optimization.CovarianceFromRows(req.Covariance)
	if err != nil {
		h.writeError(w, err)
		return
	}

	target := h.defaults.TargetReturn
	if req.TargetReturn != nil {
		target = *req.TargetReturn
	}

	result, err := h.service.Optimizer().Optimize(optimization.OptimizationRequest{
		ExpectedReturns: req.ExpectedReturns,
		Covariance:      cov,
		TargetReturn:    target,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := SolveResponse{
		Status:  "success",
		Weights: result.Weights,
		Performance: optimization.PortfolioMetrics{
			ExpectedReturn: result.ExpectedReturn,
			Risk:           result.Risk,
			SharpeRatio:    result.SharpeRatio,
		},
		Solver:     result.Solver,
		Iterations: result.Iterations,
	}
	if len(req.AssetIDs) > 0 {
		resp.OptimizedWeights = make(map[string]float64, len(req.AssetIDs))
		// Repeated labels share one entry holding their combined weight.
		for i, id := range req.AssetIDs {
			resp.OptimizedWeights[id] += result.Weights[i]
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleEvaluate handles POST /api/optimizer/evaluate
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !h.decode(w, r, &req) {
		return
	}
	cov, err := optimization.CovarianceFromRows(req.Covariance)
	if err != nil {
		h.writeError(w, err)
		return
	}

	metrics, err := optimization.Evaluate(req.Weights, req.ExpectedReturns, cov)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"performance": metrics,
	})
}

// HandleFrontier handles POST /api/optimizer/frontier
func (h *Handler) HandleFrontier(w http.ResponseWriter, r *http.Request) {
	var req optimization.FrontierRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.Frontier(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleListRuns handles GET /api/optimizer/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs := []optimization.Run{}
	if h.runs != nil {
		var err error
		if runs, err = h.runs.List(limit); err != nil {
			h.writeError(w, err)
			return
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"runs":   runs,
		"count":  len(runs),
	})
}

// HandleGetRun handles GET /api/optimizer/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.findRun(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"run":    run,
	})
}

// HandleGetRunChart handles GET /api/optimizer/runs/{id}/allocation.png
func (h *Handler) HandleGetRunChart(w http.ResponseWriter, r *http.Request) {
	run, ok := h.findRun(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if run.Status != optimization.RunSucceeded {
		h.writeError(w, fmt.Errorf("%w: run %s has no allocation", domain.ErrData, run.ID))
		return
	}

	png, err := optimization.RenderAllocationChart(
		fmt.Sprintf("Allocation (target %.1f%%)", run.TargetReturn*100),
		run.AssetIDs,
		run.Weights,
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.log.Debug().Err(err).Msg("Failed to write chart")
	}
}

func (h *Handler) findRun(w http.ResponseWriter, id string) (*optimization.Run, bool) {
	if h.runs == nil {
		h.writeNotFound(w, id)
		return nil, false
	}
	run, err := h.runs.GetByID(id)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	if run == nil {
		h.writeNotFound(w, id)
		return nil, false
	}
	return run, true
}

// decode reads and validates a JSON body, writing a validation error on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return false
	}
	return true
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps the error kind to a status code and writes the error body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := domain.Kind(err)
	h.logFailure(err, kind)
	h.writeJSON(w, kind.HTTPStatus(), errorBody(err, kind))
}

func (h *Handler) writeNotFound(w http.ResponseWriter, id string) {
	h.writeJSON(w, http.StatusNotFound, map[string]string{
		"status":  "error",
		"kind":    "not_found",
		"message": fmt.Sprintf("run %q not found", id),
	})
}

func (h *Handler) logFailure(err error, kind domain.ErrorKind) {
	event := h.log.Warn()
	if kind == domain.KindInternal || kind == domain.KindSolver || errors.Is(err, domain.ErrDataFetch) {
		event = h.log.Error()
	}
	event.Err(err).Str("kind", string(kind)).Msg("Optimizer request failed")
}

func errorBody(err error, kind domain.ErrorKind) map[string]string {
	return map[string]string{
		"status":  "error",
		"kind":    string(kind),
		"message": err.Error(),
	}
}
