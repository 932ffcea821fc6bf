package optimization

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultFrontierPoints is used when a frontier request does not set points.
const DefaultFrontierPoints = 20

// OptimizeRequest is the service-level request. "stocks" is accepted as an
// alias of "asset_ids". A nil TargetReturn selects the configured default.
type OptimizeRequest struct {
	AssetIDs     []string `json:"asset_ids" validate:"omitempty,dive,required"`
	Stocks       []string `json:"stocks,omitempty" validate:"omitempty,dive,required"`
	TargetReturn *float64 `json:"target_return,omitempty"`
	StartDate    string   `json:"start_date,omitempty"`
	EndDate      string   `json:"end_date,omitempty"`
}

// FrontierRequest asks for the efficient frontier of a set of assets.
type FrontierRequest struct {
	AssetIDs  []string `json:"asset_ids" validate:"omitempty,dive,required"`
	Stocks    []string `json:"stocks,omitempty" validate:"omitempty,dive,required"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
	Points    int      `json:"points,omitempty" validate:"omitempty,min=2,max=200"`
}

// OptimizeResponse is returned for a successful optimization.
type OptimizeResponse struct {
	Status           string             `json:"status"`
	RunID            string             `json:"run_id,omitempty"`
	OptimizedWeights map[string]float64 `json:"optimized_weights"`
	Performance      PortfolioMetrics   `json:"performance"`
}

// FrontierResponse lists frontier points; weights follow AssetIDs.
type FrontierResponse struct {
	Status   string          `json:"status"`
	AssetIDs []string        `json:"asset_ids"`
	Points   []FrontierPoint `json:"points"`
}

// ServiceDefaults fill in omitted request fields.
type ServiceDefaults struct {
	TargetReturn float64
	StartDate    time.Time
}

// OptimizerService runs the full pipeline: prices, returns, statistics,
// optimization. Every request that passes validation is recorded as a Run.
type OptimizerService struct {
	source    PriceSource
	optimizer *MVOptimizer
	runs      RunStore
	defaults  ServiceDefaults
	validate  *validator.Validate
	now       func() time.Time
	log       zerolog.Logger
}

// NewOptimizerService creates the optimization service. runs may be nil.
func NewOptimizerService(
	source PriceSource,
	optimizer *MVOptimizer,
	runs RunStore,
	defaults ServiceDefaults,
	log zerolog.Logger,
) *OptimizerService {
	return &OptimizerService{
		source:    source,
		optimizer: optimizer,
		runs:      runs,
		defaults:  defaults,
		validate:  validator.New(),
		now:       time.Now,
		log:       log.With().Str("service", "optimizer").Logger(),
	}
}

// Optimizer returns the underlying optimizer.
func (s *OptimizerService) Optimizer() *MVOptimizer {
	return s.optimizer
}

// Optimize fetches prices for the requested assets and returns the
// minimum-variance allocation that reaches the target return.
func (s *OptimizerService) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizeResponse, error) {
	started := s.now()

	ids, err := s.assetIDs(req, req.AssetIDs, req.Stocks)
	if err != nil {
		return nil, err
	}
	target := s.defaults.TargetReturn
	if req.TargetReturn != nil {
		target = *req.TargetReturn
	}
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return nil, fmt.Errorf("%w: target_return must be finite", domain.ErrValidation)
	}
	start, end, err := historical.DateRange(req.StartDate, req.EndDate, s.defaults.StartDate, started)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:           uuid.NewString(),
		CreatedAt:    started.UTC(),
		AssetIDs:     ids,
		TargetReturn: target,
		StartDate:    start.Format(historical.DateLayout),
		EndDate:      end.Format(historical.DateLayout),
		Solver:       s.optimizer.SolverName(),
	}

	result, err := s.run(ctx, ids, start, end, target)
	run.DurationMs = s.now().Sub(started).Milliseconds()
	if err != nil {
		run.Status = RunFailed
		run.ErrorKind = domain.Kind(err)
		run.ErrorMessage = err.Error()
		s.record(run)
		return nil, err
	}

	run.Status = RunSucceeded
	run.Weights = result.Weights
	run.ExpectedReturn = result.ExpectedReturn
	run.Risk = result.Risk
	run.SharpeRatio = result.SharpeRatio
	s.record(run)

	s.log.Info().
		Str("run_id", run.ID).
		Strs("assets", ids).
		Float64("target_return", target).
		Float64("expected_return", result.ExpectedReturn).
		Float64("risk", result.Risk).
		Int64("duration_ms", run.DurationMs).
		Msg("Portfolio optimized")

	return &OptimizeResponse{
		Status:           "success",
		RunID:            run.ID,
		OptimizedWeights: run.WeightMap(),
		Performance: PortfolioMetrics{
			ExpectedReturn: result.ExpectedReturn,
			Risk:           result.Risk,
			SharpeRatio:    result.SharpeRatio,
		},
	}, nil
}

// Frontier computes the efficient frontier from fetched prices.
func (s *OptimizerService) Frontier(ctx context.Context, req FrontierRequest) (*FrontierResponse, error) {
	ids, err := s.assetIDs(req, req.AssetIDs, req.Stocks)
	if err != nil {
		return nil, err
	}
	start, end, err := historical.DateRange(req.StartDate, req.EndDate, s.defaults.StartDate, s.now())
	if err != nil {
		return nil, err
	}
	points := req.Points
	if points == 0 {
		points = DefaultFrontierPoints
	}

	stats, err := s.Statistics(ctx, ids, start, end)
	if err != nil {
		return nil, err
	}
	frontier, err := s.optimizer.Frontier(stats.ExpectedReturns, stats.Covariance, points)
	if err != nil {
		return nil, err
	}
	return &FrontierResponse{Status: "success", AssetIDs: ids, Points: frontier}, nil
}

// FetchPrices loads the price table. Source failures are data fetch errors
// and an empty table is a data error.
func (s *OptimizerService) FetchPrices(ctx context.Context, ids []string, start, end time.Time) (domain.PriceTable, error) {
	table, err := s.source.Fetch(ctx, ids, start, end)
	if err != nil {
		return domain.PriceTable{}, fmt.Errorf("%w: %v", domain.ErrDataFetch, err)
	}
	if table.IsEmpty() {
		return domain.PriceTable{}, fmt.Errorf("%w: no overlapping price data for %v between %s and %s",
			domain.ErrData, ids, start.Format(historical.DateLayout), end.Format(historical.DateLayout))
	}
	return table, nil
}

// Statistics fetches prices and returns the annualized μ and Σ.
func (s *OptimizerService) Statistics(ctx context.Context, ids []string, start, end time.Time) (*Statistics, error) {
	table, err := s.FetchPrices(ctx, ids, start, end)
	if err != nil {
		return nil, err
	}
	returns, err := ComputeReturns(table)
	if err != nil {
		return nil, err
	}
	return ComputeStatistics(returns)
}

func (s *OptimizerService) run(ctx context.Context, ids []string, start, end time.Time, target float64) (*OptimizationResult, error) {
	stats, err := s.Statistics(ctx, ids, start, end)
	if err != nil {
		return nil, err
	}
	return s.optimizer.Optimize(OptimizationRequest{
		ExpectedReturns: stats.ExpectedReturns,
		Covariance:      stats.Covariance,
		TargetReturn:    target,
	})
}

func (s *OptimizerService) assetIDs(req interface{}, ids, alias []string) ([]string, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if len(ids) == 0 {
		ids = alias
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: asset_ids must not be empty", domain.ErrValidation)
	}
	return ids, nil
}

func (s *OptimizerService) record(run *Run) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Save(run); err != nil {
		s.log.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to record optimization run")
	}
}
