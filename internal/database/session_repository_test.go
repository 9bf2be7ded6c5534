package database_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantpulse/attribution/internal/database"
)

var sessionColumns = []string{
	"session_id", "occurred_at", "entry_url", "referrer_url",
	"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term",
	"traffic_source_key_v1", "converted",
	"network", "affiliate_id", "source_kind", "click_params",
}

func TestSessionRepository_ScanPage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSessionRepository(db)
	since := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("maps rows with and without evidence", func(t *testing.T) {
		rows := sqlmock.NewRows(sessionColumns).
			AddRow("s-1", since, "https://shop.example.com/?gclid=1", "", "google", "cpc", "", "", "", "", true,
				"awin", "aff-9", "affiliate", []byte(`{"awc":"123"}`)).
			AddRow("s-2", since, "https://shop.example.com/", "", "", "", "", "", "", "", false,
				nil, nil, nil, nil)

		mock.ExpectQuery("SELECT s.session_id").
			WithArgs(since, "", 100).
			WillReturnRows(rows)

		page, err := repo.ScanPage(context.Background(), since, "", 100)
		require.NoError(t, err)
		require.Len(t, page, 2)

		first := page[0]
		assert.Equal(t, "s-1", first.Session.SessionID)
		assert.True(t, first.Session.Converted)
		require.NotNil(t, first.Evidence)
		assert.Equal(t, "awin", first.Evidence.Network)
		assert.Equal(t, "affiliate", first.Evidence.SourceKind)
		assert.JSONEq(t, `{"awc":"123"}`, string(first.Evidence.ClickParams))

		assert.Nil(t, page[1].Evidence)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty page ends the scan", func(t *testing.T) {
		mock.ExpectQuery("SELECT s.session_id").
			WithArgs(since, "s-2", 100).
			WillReturnRows(sqlmock.NewRows(sessionColumns))

		page, err := repo.ScanPage(context.Background(), since, "s-2", 100)
		require.NoError(t, err)
		assert.Empty(t, page)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error propagates", func(t *testing.T) {
		mock.ExpectQuery("SELECT s.session_id").
			WithArgs(since, "", 100).
			WillReturnError(sql.ErrConnDone)

		_, err := repo.ScanPage(context.Background(), since, "", 100)
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSessionRepository(db)
	occurred := time.Date(2026, 7, 2, 12, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows(sessionColumns).
			AddRow("s-1", occurred, "https://shop.example.com/", "https://google.com/", "", "", "", "", "", "", false,
				nil, nil, nil, nil)

		mock.ExpectQuery("SELECT s.session_id").
			WithArgs("s-1").
			WillReturnRows(rows)

		got, err := repo.GetByID(context.Background(), "s-1")
		require.NoError(t, err)
		assert.Equal(t, "s-1", got.Session.SessionID)
		assert.Nil(t, got.Evidence)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT s.session_id").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(context.Background(), "missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session not found")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionRepository_CountSince(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSessionRepository(db)
	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sessions`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := repo.CountSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 42, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
