// Package reports caches the latest reconciliation summary per mode and day
// so the dashboard can show results without replaying a pass.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TCaken/loancrm/internal/reconcile"
	"github.com/TCaken/loancrm/pkg/logging"
)

const summaryTTL = 48 * time.Hour

// SummaryCache stores pass summaries in Redis.
type SummaryCache struct {
	client *redis.Client
	logger *logging.Logger
}

func NewSummaryCache(client *redis.Client, logger *logging.Logger) *SummaryCache {
	if client == nil {
		panic("reports: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SummaryCache{client: client, logger: logger}
}

func summaryKey(mode reconcile.Mode, date string) string {
	return fmt.Sprintf("reconcile:summary:%s:%s", mode, date)
}

// Put stores a summary under its mode and target date, replacing any earlier
// pass for the same pair.
func (c *SummaryCache) Put(ctx context.Context, sum *reconcile.Summary) error {
	if sum == nil {
		return errors.New("reports: summary required")
	}
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("reports: encode summary: %w", err)
	}
	if err := c.client.Set(ctx, summaryKey(sum.Mode, sum.TargetDate), data, summaryTTL).Err(); err != nil {
		return fmt.Errorf("reports: store summary: %w", err)
	}
	return nil
}

// Get returns the cached summary, or nil when none is stored.
func (c *SummaryCache) Get(ctx context.Context, mode reconcile.Mode, date string) (*reconcile.Summary, error) {
	data, err := c.client.Get(ctx, summaryKey(mode, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reports: load summary: %w", err)
	}
	var sum reconcile.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("reports: decode summary: %w", err)
	}
	return &sum, nil
}
