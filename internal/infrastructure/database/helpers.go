package database

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// calculateAvgDuration returns total/count, or 0 when count is 0.
func calculateAvgDuration(totalDuration time.Duration, count int64) time.Duration {
	if count == 0 {
		return 0
	}
	return totalDuration / time.Duration(count)
}

// MonitorPoolHealth logs pool pressure every interval until ctx is done.
// Run it in its own goroutine.
func (db *PostgresDB) MonitorPoolHealth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if db.Pool == nil {
				continue
			}
			stats := db.Pool.Stat()

			// === POOL EXHAUSTION ===
			if stats.MaxConns() > 0 {
				utilization := float64(stats.AcquiredConns()) / float64(stats.MaxConns()) * 100
				if utilization > 80 {
					log.Warn().
						Float64("utilization_pct", utilization).
						Int32("acquired", stats.AcquiredConns()).
						Int32("max", stats.MaxConns()).
						Msg("[MONITOR] High pool utilization")
				}
			}

			// === ACQUIRE WAIT TIME ===
			if avg := calculateAvgDuration(stats.AcquireDuration(), stats.AcquireCount()); avg > 100*time.Millisecond {
				log.Warn().Dur("avg_acquire", avg).Msg("[MONITOR] High acquire latency")
			}

		case <-ctx.Done():
			log.Info().Msg("[MONITOR] Stopping pool health monitoring")
			return
		}
	}
}
