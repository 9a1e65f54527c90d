package main

import (
	"context"
	"time"

	"github.com/pusulahq/pusula/backend/internal/insight"
	"github.com/pusulahq/pusula/backend/internal/notify"
	"github.com/pusulahq/pusula/backend/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const scheduledJobTimeout = 10 * time.Minute

// startScheduler runs the proactive agent scan and notification pruning
// on the configured cron schedule.
func startScheduler(spec string, settings *store.SettingsService, agent *insight.Agent, notifier *notify.Service, logger *zap.Logger) (*cron.Cron, error) {
	scheduler := cron.New(cron.WithSeconds())

	_, err := scheduler.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), scheduledJobTimeout)
		defer cancel()

		report, err := agent.RunScan(ctx)
		if err != nil {
			logger.Error("scheduled agent scan failed", zap.Error(err))
		} else {
			logger.Info("scheduled agent scan finished",
				zap.Int("follow_ups_drafted", report.FollowUpsDrafted),
				zap.Int("follow_ups_skipped", report.FollowUpsSkipped),
				zap.Int("at_risk_flagged", report.AtRiskFlagged))
		}

		current, err := settings.GetOrDefault(ctx)
		if err != nil {
			logger.Error("retention settings read failed", zap.Error(err))
			return
		}
		retentionDays := current.NotificationRetentionDays
		if retentionDays <= 0 {
			return
		}
		pruned, err := notifier.Prune(ctx, time.Duration(retentionDays)*24*time.Hour)
		if err != nil {
			logger.Error("notification prune failed", zap.Error(err))
			return
		}
		if pruned > 0 {
			logger.Info("notifications pruned", zap.Int64("count", pruned))
		}
	})
	if err != nil {
		return nil, err
	}

	scheduler.Start()
	return scheduler, nil
}
