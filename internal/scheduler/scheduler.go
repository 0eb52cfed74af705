// Package scheduler triggers ingestion of the current month on a fixed
// cadence. It owns no pipeline logic; it only invokes the runner and logs
// the outcome.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"pangancache/internal/model"
)

// Runner is the single invocable ingestion operation.
type Runner interface {
	Run(ctx context.Context, params model.FetchParams, dryRun bool) (model.IngestSummary, error)
}

type Config struct {
	Interval time.Duration
	LevelID  int
	// ProvinceID is optional; empty means national aggregation.
	ProvinceID string
}

// Run executes one refresh immediately, then one per interval, until ctx is
// cancelled. Failures are logged and never stop the loop; idempotent upserts
// make the next tick safe regardless.
func Run(ctx context.Context, runner Runner, cfg Config, log *logrus.Logger) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.WithField("interval", interval.String()).Info("scheduler started")

	refresh(ctx, runner, cfg, log)

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopping")
			return
		case <-ticker.C:
			refresh(ctx, runner, cfg, log)
		}
	}
}

func refresh(ctx context.Context, runner Runner, cfg Config, log *logrus.Logger) {
	params := CurrentMonthParams(time.Now().UTC(), cfg.LevelID, cfg.ProvinceID)
	if _, err := runner.Run(ctx, params, false); err != nil {
		log.WithError(err).Error("scheduled ingestion failed")
	}
}

// CurrentMonthParams builds the refresh window covering the month of now.
func CurrentMonthParams(now time.Time, levelID int, provinceID string) model.FetchParams {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return model.FetchParams{
		StartYear:   now.Year(),
		EndYear:     now.Year(),
		PeriodStart: start,
		PeriodEnd:   end,
		LevelID:     levelID,
		ProvinceID:  provinceID,
	}
}
