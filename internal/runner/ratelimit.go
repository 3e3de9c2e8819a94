package runner

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// launchLimiter throttles how often new engine processes are started.
// A nil limiter never blocks.
type launchLimiter struct {
	limiter *rate.Limiter
}

// newLaunchLimiter returns a limiter for launchesPerMinute; zero or less disables throttling.
func newLaunchLimiter(launchesPerMinute int, logger *slog.Logger) *launchLimiter {
	if launchesPerMinute <= 0 {
		return &launchLimiter{}
	}

	// Convert launches per minute to launches per second
	rps := float64(launchesPerMinute) / 60.0
	burst := max(1, launchesPerMinute/5)
	logger.Debug("Created launch limiter",
		"launches_per_minute", launchesPerMinute,
		"rps", rps,
		"burst", burst)

	return &launchLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until the next launch is allowed
func (l *launchLimiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
