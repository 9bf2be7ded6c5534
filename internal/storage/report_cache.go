package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/merchantpulse/attribution/internal/processor"
)

const reportKeyPrefix = "attribution:report:"

// ReportCache caches diagnostics reports in Redis. Keys embed the
// config's stable id, so saving a new rule set invalidates every cached
// report for the old one without explicit eviction.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache creates a report cache with the given TTL.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

func reportKey(configID, window string) string {
	return reportKeyPrefix + configID + ":" + window
}

// Get returns the cached report for (configID, window), or (nil, false)
// on a miss.
func (c *ReportCache) Get(ctx context.Context, configID, window string) (*processor.Report, bool, error) {
	raw, err := c.client.Get(ctx, reportKey(configID, window)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("report cache get: %w", err)
	}

	var report processor.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		// A corrupt entry behaves like a miss; it will be overwritten.
		return nil, false, nil
	}

	return &report, true, nil
}

// Set stores the report under (configID, window) with the cache TTL.
func (c *ReportCache) Set(ctx context.Context, configID, window string, report *processor.Report) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("report cache marshal: %w", err)
	}

	if err := c.client.Set(ctx, reportKey(configID, window), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("report cache set: %w", err)
	}

	return nil
}
