package scheduler

import (
	"context"
	"time"

	"github.com/nursdev/lms-notifications/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// StartNotificationCronJobs runs the scheduled-notification activator in the
// background. Activation is idempotent, so overlapping ticks after a slow
// run are harmless.
func StartNotificationCronJobs(notificationService *services.NotificationService) *cron.Cron {
	c := cron.New()

	// Activate due scheduled notifications
	c.AddFunc("@every 1m", func() {
		activated, err := notificationService.ActivateDue(context.Background(), time.Now())
		if err != nil {
			logrus.WithError(err).Error("ActivateDue failed")
			return
		}
		if activated > 0 {
			logrus.WithField("count", activated).Info("Activated scheduled notifications")
		}
	})

	c.Start()
	return c
}
