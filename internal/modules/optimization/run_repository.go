package optimization

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RunStatus is the outcome of an optimization run.
type RunStatus string

const (
	RunSucceeded RunStatus = "success"
	RunFailed    RunStatus = "error"
)

// Run records the inputs and outcome of one optimization request.
// Weights follow the order of AssetIDs.
type Run struct {
	ID             string           `json:"id"`
	CreatedAt      time.Time        `json:"created_at"`
	AssetIDs       []string         `json:"asset_ids"`
	TargetReturn   float64          `json:"target_return"`
	StartDate      string           `json:"start_date"`
	EndDate        string           `json:"end_date"`
	Status         RunStatus        `json:"status"`
	ErrorKind      domain.ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	Weights        []float64        `json:"weights"`
	ExpectedReturn float64          `json:"expected_return"`
	Risk           float64          `json:"risk"`
	SharpeRatio    float64          `json:"sharpe_ratio"`
	Solver         string           `json:"solver,omitempty"`
	DurationMs     int64            `json:"duration_ms"`
}

// WeightMap keys the weights by asset ID. A repeated ID holds the sum of its
// columns, so the values still add up to 1.
func (r Run) WeightMap() map[string]float64 {
	m := make(map[string]float64, len(r.AssetIDs))
	for i, id := range r.AssetIDs {
		if i < len(r.Weights) {
			m[id] += r.Weights[i]
		}
	}
	return m
}

// runsColumns must match scanRun.
const runsColumns = `id, created_at, asset_ids, target_return, start_date, end_date, status,
	error_kind, error_message, weights, expected_return, risk, sharpe_ratio, solver, duration_ms`

// RunRepository stores optimization runs in the runs database.
type RunRepository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "optimization_runs").Logger(),
	}
}

// Save inserts or replaces run. A missing ID or creation time is filled in.
func (r *RunRepository) Save(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = r.now().UTC()
	}

	assetIDs, err := json.Marshal(run.AssetIDs)
	if err != nil {
		return fmt.Errorf("failed to encode asset ids: %w", err)
	}
	weights := []byte("[]")
	if run.Weights != nil {
		if weights, err = json.Marshal(run.Weights); err != nil {
			return fmt.Errorf("failed to encode weights: %w", err)
		}
	}

	query := `INSERT OR REPLACE INTO optimization_runs (` + runsColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Exec(query,
		run.ID,
		run.CreatedAt.UnixMilli(),
		string(assetIDs),
		run.TargetReturn,
		run.StartDate,
		run.EndDate,
		string(run.Status),
		string(run.ErrorKind),
		run.ErrorMessage,
		string(weights),
		run.ExpectedReturn,
		run.Risk,
		run.SharpeRatio,
		run.Solver,
		run.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to save optimization run: %w", err)
	}

	r.log.Debug().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Msg("Optimization run saved")
	return nil
}

// GetByID returns the run with the given ID, or nil if there is none.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	row := r.db.QueryRow("SELECT "+runsColumns+" FROM optimization_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get optimization run: %w", err)
	}
	return &run, nil
}

// List returns up to limit runs, most recent first.
func (r *RunRepository) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`SELECT `+runsColumns+` FROM optimization_runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list optimization runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan optimization run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating optimization runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		createdAt int64
		assetIDs  string
		status    string
		kind      string
		weights   string
	)
	err := row.Scan(
		&run.ID,
		&createdAt,
		&assetIDs,
		&run.TargetReturn,
		&run.StartDate,
		&run.EndDate,
		&status,
		&kind,
		&run.ErrorMessage,
		&weights,
		&run.ExpectedReturn,
		&run.Risk,
		&run.SharpeRatio,
		&run.Solver,
		&run.DurationMs,
	)
	if err != nil {
		return Run{}, err
	}

	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	run.Status = RunStatus(status)
	run.ErrorKind = domain.ErrorKind(kind)
	if err := json.Unmarshal([]byte(assetIDs), &run.AssetIDs); err != nil {
		return Run{}, fmt.Errorf("invalid asset_ids column: %w", err)
	}
	if err := json.Unmarshal([]byte(weights), &run.Weights); err != nil {
		return Run{}, fmt.Errorf("invalid weights column: %w", err)
	}
	return run, nil
}
