package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/pagelens/pkg/browser"
)

// DefaultPruneInterval is how often serve sweeps expired records.
const DefaultPruneInterval = 10 * time.Minute

// Pruner is a store that drops expired records in bulk. Backends with
// native expiry (redis, the LRU) do not need it.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// RunPruner prunes s every interval until ctx is done. It returns at once
// when s is not a Pruner.
func RunPruner(ctx context.Context, s browser.RecordStore, interval time.Duration, logger *slog.Logger) error {
	p, ok := s.(Pruner)
	if !ok || interval <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := p.Prune(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("prune identity records failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("pruned identity records", "removed", n)
			}
		}
	}
}
