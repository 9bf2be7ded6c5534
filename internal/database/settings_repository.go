package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// MaxSettingBytes caps stored setting values. Oversized writes are
// refused here as the last line of defense behind API validation.
const MaxSettingBytes = 200 * 1024

// SettingsRepository stores opaque merchant setting blobs. The rule
// config lives under a single fixed key; the repository never inspects
// the payload.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get retrieves the raw setting value for key. A missing row is not an
// error: callers on the read path fall back to defaults, so Get returns
// (nil, nil) when the key has never been written.
func (r *SettingsRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	query := `SELECT value FROM merchant_settings WHERE setting_key = $1`

	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get setting %q: %w", key, err)
	}

	return value, nil
}

// Set upserts the raw setting value for key.
func (r *SettingsRepository) Set(ctx context.Context, key string, value []byte) error {
	if len(value) > MaxSettingBytes {
		return fmt.Errorf("setting %q exceeds %d bytes", key, MaxSettingBytes)
	}

	query := `
		INSERT INTO merchant_settings (setting_key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (setting_key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}

	return nil
}

// Delete removes the setting row for key. Deleting a missing key is a
// no-op.
func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM merchant_settings WHERE setting_key = $1`

	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete setting %q: %w", key, err)
	}

	return nil
}
