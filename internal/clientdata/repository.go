// Package clientdata provides persistent caching for external price data.
// Entries are stored as msgpack blobs with expiration timestamps for cache-first behavior.
package clientdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// TablePriceTables caches aligned price tables keyed by request fingerprint.
	TablePriceTables = "price_tables"
	// TablePriceSeries caches per-asset price series keyed by asset and date range.
	TablePriceSeries = "price_series"
)

// AllTables lists all cache tables for cleanup operations.
var AllTables = []string{
	TablePriceTables,
	TablePriceSeries,
}

// validTables is a set for O(1) table name validation.
var validTables = func() map[string]bool {
	m := make(map[string]bool, len(AllTables))
	for _, t := range AllTables {
		m[t] = true
	}
	return m
}()

// Repository provides cache operations for client data.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// validateTable ensures the table name is in our allowed list.
// This prevents SQL injection through table names.
func validateTable(table string) error {
	if !validTables[table] {
		return fmt.Errorf("invalid table name: %s", table)
	}
	return nil
}

// Store saves data with expiration = now + ttl.
// Uses INSERT OR REPLACE to upsert data.
func (r *Repository) Store(table, key string, data interface{}, ttl time.Duration) error {
	if err := validateTable(table); err != nil {
		return err
	}

	blob, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	expiresAt := r.now().Add(ttl).Unix()

	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (cache_key, data, expires_at) VALUES (?, ?, ?)",
		table,
	)

	if _, err := r.db.Exec(query, key, blob, expiresAt); err != nil {
		return fmt.Errorf("failed to store data in %s: %w", table, err)
	}

	return nil
}

// GetIfFresh decodes the entry into out only if expires_at > now.
// Returns false if the key doesn't exist or the data is expired.
// Use Get() to retrieve stale data as a fallback when API calls fail.
func (r *Repository) GetIfFresh(table, key string, out interface{}) (bool, error) {
	if err := validateTable(table); err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE cache_key = ? AND expires_at > ?", table)
	return r.load(table, out, query, key, r.now().Unix())
}

// Get decodes the entry into out regardless of expiration status.
// Returns false if the key doesn't exist.
func (r *Repository) Get(table, key string, out interface{}) (bool, error) {
	if err := validateTable(table); err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE cache_key = ?", table)
	return r.load(table, out, query, key)
}

func (r *Repository) load(table string, out interface{}, query string, args ...interface{}) (bool, error) {
	var blob []byte
	err := r.db.QueryRow(query, args...).Scan(&blob)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get data from %s: %w", table, err)
	}

	if err := msgpack.Unmarshal(blob, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal data from %s: %w", table, err)
	}
	return true, nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(table, key string) error {
	if err := validateTable(table); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE cache_key = ?", table)
	if _, err := r.db.Exec(query, key); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	return nil
}

// DeleteExpired removes all rows that expired more than grace ago
// (expires_at < now - grace). Rows inside the grace window stay readable
// through Get as a stale fallback.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired(table string, grace time.Duration) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table)

	result, err := r.db.Exec(query, r.now().Add(-grace).Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired from %s: %w", table, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", table, err)
	}

	return deleted, nil
}

// DeleteAllExpired removes entries past their grace window from all tables.
// Returns a map of table name to number of rows deleted.
func (r *Repository) DeleteAllExpired(grace time.Duration) (map[string]int64, error) {
	results := make(map[string]int64)

	for _, table := range AllTables {
		deleted, err := r.DeleteExpired(table, grace)
		if err != nil {
			return results, err
		}
		results[table] = deleted
	}

	return results, nil
}
