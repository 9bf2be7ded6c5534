package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/merchantpulse/attribution/internal/elasticsearch/mappings"
	"github.com/merchantpulse/attribution/internal/processor"
)

// AttributedSessionDoc is the dashboard-facing document shape: the
// session row flattened together with its attribution outcome.
type AttributedSessionDoc struct {
	SessionID    string    `json:"session_id"`
	OccurredAt   time.Time `json:"occurred_at"`
	EntryURL     string    `json:"entry_url"`
	ReferrerURL  string    `json:"referrer_url"`
	UTMSource    string    `json:"utm_source"`
	UTMMedium    string    `json:"utm_medium"`
	UTMCampaign  string    `json:"utm_campaign"`
	Converted    bool      `json:"converted"`
	Matched      bool      `json:"matched"`
	SourceKey    string    `json:"source_key"`
	SourceLabel  string    `json:"source_label"`
	RuleID       string    `json:"rule_id"`
	WasAmbiguous bool      `json:"was_ambiguous"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// SessionIndexer writes attributed sessions to Elasticsearch for
// dashboard reporting.
type SessionIndexer struct {
	client      *es.Client
	indexPrefix string
}

// NewSessionIndexer creates a session indexer. Documents land in
// monthly indices named <prefix>-YYYY.MM.
func NewSessionIndexer(client *es.Client, indexPrefix string) *SessionIndexer {
	return &SessionIndexer{client: client, indexPrefix: indexPrefix}
}

func (s *SessionIndexer) indexFor(occurredAt time.Time) string {
	return s.indexPrefix + "-" + occurredAt.UTC().Format("2006.01")
}

// EnsureIndex creates the monthly index covering at with the attributed
// session mapping if it does not exist yet.
func (s *SessionIndexer) EnsureIndex(ctx context.Context, at time.Time) error {
	indexName := s.indexFor(at)

	exists, err := s.indexExists(ctx, indexName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	mapping, err := mappings.NewAttributedSessionMapping().GetJSON()
	if err != nil {
		return fmt.Errorf("failed to build index mapping: %w", err)
	}

	res, err := s.client.Indices.Create(
		indexName,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("error creating index: %s", string(body))
	}

	return nil
}

func (s *SessionIndexer) indexExists(ctx context.Context, indexName string) (bool, error) {
	res, err := s.client.Indices.Exists([]string{indexName}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, fmt.Errorf("error checking index existence: %s", res.String())
	}

	return true, nil
}

func docFor(result processor.EvalResult, now time.Time) AttributedSessionDoc {
	session := result.Input.Session
	return AttributedSessionDoc{
		SessionID:    session.SessionID,
		OccurredAt:   session.OccurredAt,
		EntryURL:     session.EntryURL,
		ReferrerURL:  session.ReferrerURL,
		UTMSource:    session.UTMSource,
		UTMMedium:    session.UTMMedium,
		UTMCampaign:  session.UTMCampaign,
		Converted:    session.Converted,
		Matched:      result.Result.Matched,
		SourceKey:    result.Result.SourceKey,
		SourceLabel:  result.Result.SourceLabel,
		RuleID:       result.Result.RuleID,
		WasAmbiguous: result.Result.WasAmbiguous,
		IndexedAt:    now,
	}
}

// Index writes a single attributed session, keyed by session id so
// re-evaluation overwrites the previous outcome.
func (s *SessionIndexer) Index(ctx context.Context, result processor.EvalResult) error {
	doc := docFor(result, time.Now().UTC())

	docBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	res, err := s.client.Index(
		s.indexFor(doc.OccurredAt),
		bytes.NewReader(docBytes),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(doc.SessionID),
	)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing document: %s", res.String())
	}

	return nil
}

// BulkIndex writes a batch of attributed sessions in one bulk request.
func (s *SessionIndexer) BulkIndex(ctx context.Context, results []processor.EvalResult) error {
	if len(results) == 0 {
		return nil
	}

	now := time.Now().UTC()
	var buf bytes.Buffer
	for i := range results {
		doc := docFor(results[i], now)

		action := map[string]any{
			"index": map[string]any{
				"_index": s.indexFor(doc.OccurredAt),
				"_id":    doc.SessionID,
			},
		}

		actionBytes, err := json.Marshal(action)
		if err != nil {
			return fmt.Errorf("failed to marshal bulk action: %w", err)
		}

		docBytes, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}

		buf.Write(actionBytes)
		buf.WriteByte('\n')
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	res, err := s.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		s.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error bulk indexing: %s", res.String())
	}

	var bulkResult struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResult); err != nil {
		return fmt.Errorf("error decoding bulk response: %w", err)
	}
	if bulkResult.Errors {
		return errors.New("bulk indexing reported item failures")
	}

	return nil
}
