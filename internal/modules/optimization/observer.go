package optimization

import "time"

// Observer receives the outcome of every optimization. Implementations must
// be safe for concurrent use.
type Observer interface {
	OptimizationSucceeded(req OptimizationRequest, result *OptimizationResult, elapsed time.Duration)
	OptimizationFailed(req OptimizationRequest, err error, elapsed time.Duration)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) OptimizationSucceeded(OptimizationRequest, *OptimizationResult, time.Duration) {}

func (NopObserver) OptimizationFailed(OptimizationRequest, error, time.Duration) {}
