package clientdata

import "time"

// TTL constants for cached price data.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Daily closes only change once per trading day
	TTLPriceTable  = 12 * time.Hour
	TTLPriceSeries = 12 * time.Hour
)

// StaleGrace is how long expired entries survive cleanup so that a failing
// upstream can still be answered from the last good copy.
const StaleGrace = 7 * 24 * time.Hour
