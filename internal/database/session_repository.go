package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/merchantpulse/attribution/internal/domain"
)

// SessionRepository reads session rows and their affiliate evidence for
// diagnostics scans. Pages are keyset-paginated by session id so a slow
// scan never holds a cursor open.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// sessionRow is the joined row shape; evidence columns are nullable
// because most sessions carry none.
type sessionRow struct {
	domain.SessionRecord
	Network     sql.NullString `db:"network"`
	AffiliateID sql.NullString `db:"affiliate_id"`
	SourceKind  sql.NullString `db:"source_kind"`
	ClickParams []byte         `db:"click_params"`
}

// ScanPage returns up to limit sessions that occurred at or after since,
// ordered by session id, resuming after afterID. An empty slice means
// the window is exhausted.
func (r *SessionRepository) ScanPage(ctx context.Context, since time.Time, afterID string, limit int) ([]domain.SessionWithEvidence, error) {
	query := `
		SELECT s.session_id, s.occurred_at, s.entry_url, s.referrer_url,
		       s.utm_source, s.utm_medium, s.utm_campaign, s.utm_content, s.utm_term,
		       s.traffic_source_key_v1, s.converted,
		       e.network, e.affiliate_id, e.source_kind, e.click_params
		FROM sessions s
		LEFT JOIN affiliate_evidence e ON e.session_id = s.session_id
		WHERE s.occurred_at >= $1 AND s.session_id > $2
		ORDER BY s.session_id ASC
		LIMIT $3
	`

	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, query, since, afterID, limit); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}

	out := make([]domain.SessionWithEvidence, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}

	return out, nil
}

// GetByID retrieves a single session with its evidence.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*domain.SessionWithEvidence, error) {
	query := `
		SELECT s.session_id, s.occurred_at, s.entry_url, s.referrer_url,
		       s.utm_source, s.utm_medium, s.utm_campaign, s.utm_content, s.utm_term,
		       s.traffic_source_key_v1, s.converted,
		       e.network, e.affiliate_id, e.source_kind, e.click_params
		FROM sessions s
		LEFT JOIN affiliate_evidence e ON e.session_id = s.session_id
		WHERE s.session_id = $1
	`

	var row sessionRow
	if err := r.db.GetContext(ctx, &row, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	result := row.toDomain()
	return &result, nil
}

// CountSince returns the number of sessions in the window, used by the
// readiness probe to sanity-check the scan workload.
func (r *SessionRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM sessions WHERE occurred_at >= $1`

	if err := r.db.GetContext(ctx, &count, query, since); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	return count, nil
}

func (row *sessionRow) toDomain() domain.SessionWithEvidence {
	out := domain.SessionWithEvidence{Session: row.SessionRecord}

	if row.Network.Valid || row.SourceKind.Valid || row.AffiliateID.Valid || len(row.ClickParams) > 0 {
		out.Evidence = &domain.AffiliateEvidence{
			Network:     row.Network.String,
			AffiliateID: row.AffiliateID.String,
			SourceKind:  row.SourceKind.String,
			ClickParams: row.ClickParams,
		}
	}

	return out
}
