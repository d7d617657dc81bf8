package league

import (
	"context"
	"log/slog"
	"time"

	"github.com/castling-club/leaguebot/telemetry"
)

// StartRefreshJob refreshes the league's rosters and schedules at an
// interval, for the lifetime of ctx. An immediate run happens first so the
// snapshot is populated right after boot.
func StartRefreshJob(ctx context.Context, lg *League, interval time.Duration) {
	slog.Info("league refresh job starting",
		slog.String("league", lg.Name()),
		slog.Duration("interval", interval))
	refreshOnce(ctx, lg)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("league refresh job stopped", slog.String("league", lg.Name()))
			return
		case <-ticker.C:
			refreshOnce(ctx, lg)
		}
	}
}

func refreshOnce(ctx context.Context, lg *League) {
	telemetry.RefreshCycles.Inc()
	telemetry.TimeFunc(telemetry.RefreshDuration, func() {
		if err := lg.Refresh(ctx); err != nil {
			slog.Error("league refresh failed", slog.String("league", lg.Name()), slog.Any("err", err))
		}
	})
}
