package optimization

import (
	"context"
	"time"

	"github.com/aristath/allocator/internal/domain"
)

// PriceSource provides aligned historical prices for a set of assets.
// Columns of the returned table follow the order of assetIDs.
type PriceSource interface {
	Fetch(ctx context.Context, assetIDs []string, start, end time.Time) (domain.PriceTable, error)
}

// RunStore persists optimization runs.
type RunStore interface {
	Save(run *Run) error
	GetByID(id string) (*Run, error)
	List(limit int) ([]Run, error)
}
