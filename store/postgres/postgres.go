// Package postgres implements core/store.Store against a single-row
// settings table, upserted in a transaction the same way the rest of this
// codebase persists scalar operational state to Postgres.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/devskill-org/pv-load-manager/core/store"
)

const settingsRowID = 1

// Store persists settings to a Postgres table with exactly one row.
type Store struct {
	db *sql.DB
}

// New opens a Postgres connection and returns a Store using it. The caller
// is responsible for ensuring the settings table exists; Ensure creates it.
func New(connString string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres store: opening connection: %w", err)
	}
	return &Store{db: db}, nil
}

// Ensure creates the settings table if it does not already exist.
func (s *Store) Ensure(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS load_manager_settings (
			id SERIAL PRIMARY KEY,
			mode TEXT NOT NULL,
			enabled BOOLEAN NOT NULL,
			hysteresis_threshold_a DOUBLE PRECISION NOT NULL,
			hysteresis_delay_s DOUBLE PRECISION NOT NULL,
			ramp_up_delay_s DOUBLE PRECISION NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("postgres store: creating table: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the single settings row. A missing row reports ok=false.
func (s *Store) Load() (store.Settings, bool, error) {
	var settings store.Settings
	row := s.db.QueryRow(`
		SELECT mode, enabled, hysteresis_threshold_a, hysteresis_delay_s, ramp_up_delay_s
		FROM load_manager_settings WHERE id = $1
	`, settingsRowID)

	err := row.Scan(&settings.Mode, &settings.Enabled, &settings.HysteresisThresholdA, &settings.HysteresisDelayS, &settings.RampUpDelayS)
	if err == sql.ErrNoRows {
		return store.Settings{}, false, nil
	}
	if err != nil {
		return store.Settings{}, false, fmt.Errorf("postgres store: querying settings: %w", err)
	}
	return settings, true, nil
}

// Save upserts the single settings row inside a transaction.
func (s *Store) Save(settings store.Settings) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres store: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO load_manager_settings (id, mode, enabled, hysteresis_threshold_a, hysteresis_delay_s, ramp_up_delay_s)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			mode = EXCLUDED.mode,
			enabled = EXCLUDED.enabled,
			hysteresis_threshold_a = EXCLUDED.hysteresis_threshold_a,
			hysteresis_delay_s = EXCLUDED.hysteresis_delay_s,
			ramp_up_delay_s = EXCLUDED.ramp_up_delay_s
	`, settingsRowID, settings.Mode, settings.Enabled, settings.HysteresisThresholdA, settings.HysteresisDelayS, settings.RampUpDelayS)
	if err != nil {
		return fmt.Errorf("postgres store: upserting settings: %w", err)
	}

	return tx.Commit()
}
