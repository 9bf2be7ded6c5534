package processor

import (
	"context"
	"sync"
	"time"

	"github.com/merchantpulse/attribution/internal/attribution"
	"github.com/merchantpulse/attribution/internal/domain"
	"github.com/merchantpulse/attribution/internal/logger"
	"github.com/merchantpulse/attribution/internal/telemetry"
)

const defaultConcurrency = 10

// EvalResult pairs one input session with its attribution outcome.
type EvalResult struct {
	Input  domain.SessionWithEvidence
	Result domain.MatchResult
}

// BatchEvaluator evaluates batches of sessions in parallel using a worker
// pool. The rule config is snapshotted once at construction, so every
// session in a batch sees the same rules.
type BatchEvaluator struct {
	engine      *attribution.Engine
	concurrency int
	logger      logger.Logger
	telemetry   *telemetry.Provider
}

// NewBatchEvaluator creates a batch evaluator over a normalized config
// snapshot.
func NewBatchEvaluator(cfg *domain.Config, concurrency int, log logger.Logger, tel *telemetry.Provider) *BatchEvaluator {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &BatchEvaluator{
		engine:      attribution.NewEngine(cfg),
		concurrency: concurrency,
		logger:      log,
		telemetry:   tel,
	}
}

// Engine exposes the config snapshot the evaluator was built with.
func (b *BatchEvaluator) Engine() *attribution.Engine {
	return b.engine
}

// Evaluate evaluates a batch of sessions. Results are returned in input
// order. Evaluation never fails per item; an unattributable session
// yields the zero MatchResult.
func (b *BatchEvaluator) Evaluate(ctx context.Context, inputs []domain.SessionWithEvidence) []EvalResult {
	if len(inputs) == 0 {
		return []EvalResult{}
	}

	b.logger.Debug("starting batch evaluation",
		logger.Int("batch_size", len(inputs)),
		logger.Int("concurrency", b.concurrency),
	)

	startTime := time.Now()

	results := make([]EvalResult, len(inputs))
	jobs := make(chan int, len(inputs))

	var wg sync.WaitGroup
	for i := 0; i < b.concurrency; i++ {
		wg.Add(1)
		go b.worker(ctx, jobs, inputs, results, &wg)
	}

	for i := range inputs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	matched := 0
	for i := range results {
		if results[i].Result.Matched {
			matched++
		}
	}

	if b.telemetry != nil {
		b.telemetry.RecordBatchSize(len(inputs))
	}

	b.logger.Info("batch evaluation complete",
		logger.Int("total", len(inputs)),
		logger.Int("matched", matched),
		logger.Int("unmatched", len(inputs)-matched),
		logger.Int64("duration_ms", time.Since(startTime).Milliseconds()),
	)

	return results
}

// worker evaluates indexes from the jobs channel.
func (b *BatchEvaluator) worker(
	ctx context.Context,
	jobs <-chan int,
	inputs []domain.SessionWithEvidence,
	results []EvalResult,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	for i := range jobs {
		select {
		case <-ctx.Done():
			b.logger.Warn("worker stopping, context cancelled")
			return
		default:
		}

		results[i] = b.evaluateOne(ctx, inputs[i])
	}
}

// evaluateOne evaluates a single session against the config snapshot.
func (b *BatchEvaluator) evaluateOne(ctx context.Context, input domain.SessionWithEvidence) EvalResult {
	start := time.Now()
	matchCtx := attribution.BuildContext(input.Session, input.Evidence)
	result := b.engine.Match(matchCtx)

	if b.telemetry != nil {
		b.telemetry.RecordMatch(ctx, result.SourceKey, result.WasAmbiguous, time.Since(start))
	}

	return EvalResult{Input: input, Result: result}
}
