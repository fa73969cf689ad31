package storage

import (
	"context"
	"time"

	"github.com/mstgnz/gowompi/infra/logger"
	"github.com/mstgnz/gowompi/provider"
)

// DefaultPurgeInterval is how often RunPurger drops expired tokens
const DefaultPurgeInterval = 10 * time.Minute

// RunPurger removes expired tokens from p every interval until ctx is done
func RunPurger(ctx context.Context, p provider.Purger, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := p.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("Failed to purge expired tokens", logger.LogContext{
					Fields: map[string]any{"error": err.Error()},
				})
				continue
			}
			if purged > 0 {
				logger.Debug("Purged expired tokens", logger.LogContext{
					Fields: map[string]any{"purged": purged},
				})
			}
		}
	}
}
