package twofactor

import (
	"context"
	"time"

	"github.com/backoffice/server/pkg/logger"
)

type SweepResult struct {
	Challenges int64
	Devices    int64
}

// Sweep deletes challenges and trusted devices whose expiry has passed.
// It only touches expired rows, so it is safe alongside live traffic.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	var err error
	if result.Challenges, err = s.channels.DeleteExpired(ctx); err != nil {
		return result, err
	}
	if result.Devices, err = s.devices.DeleteExpired(ctx); err != nil {
		return result, err
	}
	if purger, ok := s.cache.(interface{ Purge() int }); ok {
		purger.Purge()
	}

	sweepRemoved.WithLabelValues("challenge").Add(float64(result.Challenges))
	sweepRemoved.WithLabelValues("trusted_device").Add(float64(result.Devices))
	return result, nil
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				result, err := s.Sweep(ctx)
				if err != nil {
					logger.Error("twofactor_sweep_failed", err, nil)
					continue
				}
				logger.Info("twofactor_sweep_completed", map[string]interface{}{
					"challenges_removed": result.Challenges,
					"devices_removed":    result.Devices,
				})
			}
		}
	}()

	logger.Info("twofactor_sweeper_started", map[string]interface{}{
		"interval": interval.String(),
	})
}
