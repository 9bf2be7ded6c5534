package storage_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantpulse/attribution/internal/domain"
	"github.com/merchantpulse/attribution/internal/processor"
	"github.com/merchantpulse/attribution/internal/storage"
)

func newTestESClient(t *testing.T, handler http.HandlerFunc) *es.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := es.NewClient(es.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func esReply(w http.ResponseWriter, body string) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func attributedResult(sessionID string, occurredAt time.Time) processor.EvalResult {
	return processor.EvalResult{
		Input: domain.SessionWithEvidence{
			Session: domain.SessionRecord{SessionID: sessionID, OccurredAt: occurredAt, Converted: true},
		},
		Result: domain.MatchResult{
			Matched:     true,
			SourceKey:   "google_ads_house",
			SourceLabel: "Google Ads",
			RuleID:      "house_click",
		},
	}
}

func TestSessionIndexerBulkIndex(t *testing.T) {
	occurred := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)

	var captured []byte
	client := newTestESClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_bulk", r.URL.Path)
		captured, _ = io.ReadAll(r.Body)
		esReply(w, `{"errors":false,"items":[]}`)
	})

	indexer := storage.NewSessionIndexer(client, "attributed_sessions")

	err := indexer.BulkIndex(context.Background(), []processor.EvalResult{
		attributedResult("s-1", occurred),
		attributedResult("s-2", occurred),
	})
	require.NoError(t, err)

	// NDJSON: action line + doc line per result.
	lines := 0
	var action struct {
		Index struct {
			Index string `json:"_index"`
			ID    string `json:"_id"`
		} `json:"index"`
	}
	for _, line := range splitLines(captured) {
		lines++
		if lines == 1 {
			require.NoError(t, json.Unmarshal(line, &action))
			assert.Equal(t, "attributed_sessions-2026.07", action.Index.Index)
			assert.Equal(t, "s-1", action.Index.ID)
		}
		if lines == 2 {
			var doc storage.AttributedSessionDoc
			require.NoError(t, json.Unmarshal(line, &doc))
			assert.Equal(t, "google_ads_house", doc.SourceKey)
			assert.True(t, doc.Converted)
		}
	}
	assert.Equal(t, 4, lines)
}

func splitLines(raw []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range raw {
		if b == '\n' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	if start < len(raw) {
		out = append(out, raw[start:])
	}
	return out
}

func TestSessionIndexerBulkIndexEmptyBatch(t *testing.T) {
	client := newTestESClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for an empty batch")
		esReply(w, `{}`)
	})

	indexer := storage.NewSessionIndexer(client, "attributed_sessions")

	require.NoError(t, indexer.BulkIndex(context.Background(), nil))
}

func TestSessionIndexerBulkIndexItemFailures(t *testing.T) {
	client := newTestESClient(t, func(w http.ResponseWriter, _ *http.Request) {
		esReply(w, `{"errors":true,"items":[]}`)
	})

	indexer := storage.NewSessionIndexer(client, "attributed_sessions")

	err := indexer.BulkIndex(context.Background(), []processor.EvalResult{
		attributedResult("s-1", time.Now()),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item failures")
}

func TestSessionIndexerEnsureIndexCreatesMissing(t *testing.T) {
	at := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	var createdBody []byte
	client := newTestESClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attributed_sessions-2026.08", r.URL.Path)
		if r.Method == http.MethodHead {
			w.Header().Set("X-Elastic-Product", "Elasticsearch")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, http.MethodPut, r.Method)
		createdBody, _ = io.ReadAll(r.Body)
		esReply(w, `{"acknowledged":true}`)
	})

	indexer := storage.NewSessionIndexer(client, "attributed_sessions")

	require.NoError(t, indexer.EnsureIndex(context.Background(), at))

	var mapping struct {
		Mappings struct {
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(createdBody, &mapping))
	assert.Contains(t, mapping.Mappings.Properties, "source_key")
	assert.Contains(t, mapping.Mappings.Properties, "occurred_at")
}

func TestSessionIndexerEnsureIndexSkipsExisting(t *testing.T) {
	client := newTestESClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("unexpected %s request for existing index", r.Method)
		}
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusOK)
	})

	indexer := storage.NewSessionIndexer(client, "attributed_sessions")

	require.NoError(t, indexer.EnsureIndex(context.Background(), time.Now()))
}

func TestSessionIndexerIndexSingle(t *testing.T) {
	occurred := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	client := newTestESClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attributed_sessions-2026.08/_doc/s-9", r.URL.Path)
		esReply(w, `{"result":"created"}`)
	})

	indexer := storage.NewSessionIndexer(client, "attributed_sessions")

	require.NoError(t, indexer.Index(context.Background(), attributedResult("s-9", occurred)))
}
