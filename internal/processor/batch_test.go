package processor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantpulse/attribution/internal/domain"
	"github.com/merchantpulse/attribution/internal/logger"
	"github.com/merchantpulse/attribution/internal/processor"
)

func sessionWithEntry(id, entryURL string) domain.SessionWithEvidence {
	return domain.SessionWithEvidence{
		Session: domain.SessionRecord{SessionID: id, EntryURL: entryURL},
	}
}

func TestBatchEvaluatorPreservesInputOrder(t *testing.T) {
	eval := processor.NewBatchEvaluator(nil, 4, logger.NewNop(), nil)

	inputs := []domain.SessionWithEvidence{
		sessionWithEntry("s-1", "https://shop.example.com/?msclkid=abc"),
		sessionWithEntry("s-2", "https://shop.example.com/landing"),
		{Session: domain.SessionRecord{SessionID: "s-3", UTMMedium: "email"}},
		sessionWithEntry("s-4", "https://shop.example.com/?fbclid=xyz"),
	}

	results := eval.Evaluate(context.Background(), inputs)
	require.Len(t, results, 4)

	assert.Equal(t, "s-1", results[0].Input.Session.SessionID)
	assert.Equal(t, "microsoft_ads", results[0].Result.SourceKey)

	assert.Equal(t, "s-2", results[1].Input.Session.SessionID)
	assert.False(t, results[1].Result.Matched)

	assert.Equal(t, "email", results[2].Result.SourceKey)
	assert.Equal(t, "meta_ads", results[3].Result.SourceKey)
}

func TestBatchEvaluatorMatchesSequentialEvaluation(t *testing.T) {
	inputs := make([]domain.SessionWithEvidence, 0, 60)
	for i := 0; i < 20; i++ {
		inputs = append(inputs,
			sessionWithEntry("a", "https://shop.example.com/?gclid=1"),
			sessionWithEntry("b", "https://shop.example.com/?fbclid=1"),
			sessionWithEntry("c", "https://shop.example.com/plain"),
		)
	}

	parallel := processor.NewBatchEvaluator(nil, 8, logger.NewNop(), nil)
	serial := processor.NewBatchEvaluator(nil, 1, logger.NewNop(), nil)

	got := parallel.Evaluate(context.Background(), inputs)
	want := serial.Evaluate(context.Background(), inputs)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Result, got[i].Result, "result %d diverged", i)
	}
}

func TestBatchEvaluatorEmptyBatch(t *testing.T) {
	eval := processor.NewBatchEvaluator(nil, 0, logger.NewNop(), nil)

	results := eval.Evaluate(context.Background(), nil)

	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestBatchEvaluatorUsesConfigSnapshot(t *testing.T) {
	cfg := &domain.Config{
		Version: domain.ConfigVersion,
		Sources: []domain.Source{{
			Key:     "newsletter",
			Label:   "Newsletter",
			Enabled: true,
			Order:   10,
			Rules: []domain.Rule{{
				ID:      "nl",
				Label:   "Newsletter",
				Enabled: true,
				When: map[string]domain.Condition{
					domain.FieldUTMMedium: {Any: []string{"eq:newsletter"}},
				},
			}},
		}},
	}

	eval := processor.NewBatchEvaluator(cfg, 2, logger.NewNop(), nil)

	results := eval.Evaluate(context.Background(), []domain.SessionWithEvidence{
		{Session: domain.SessionRecord{SessionID: "s-1", UTMMedium: "newsletter"}},
		sessionWithEntry("s-2", "https://shop.example.com/?gclid=1"),
	})

	require.Len(t, results, 2)
	assert.Equal(t, "newsletter", results[0].Result.SourceKey)
	// gclid means nothing under this config
	assert.False(t, results[1].Result.Matched)
}
