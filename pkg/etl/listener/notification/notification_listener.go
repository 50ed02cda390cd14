// Package notification tells the creator of a job how its run ended.
package notification

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-etl/pkg/etl/core/application/port"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/notification"
)

// NotificationJobListener sends one message to the job creator after each run.
type NotificationJobListener struct {
	dispatcher *notification.Dispatcher
}

// NewNotificationJobListener creates a NotificationJobListener.
func NewNotificationJobListener(dispatcher *notification.Dispatcher) port.JobListener {
	return &NotificationJobListener{dispatcher: dispatcher}
}

// BeforeJob does nothing.
func (l *NotificationJobListener) BeforeJob(ctx context.Context, job *model.Job) {}

// AfterJob notifies the creator. Jobs without a creator or that did not finish are skipped.
func (l *NotificationJobListener) AfterJob(ctx context.Context, job *model.Job) {
	if job.CreatedBy == "" || !job.Status.IsFinished() {
		return
	}
	status := string(job.Status)
	if status != "" {
		status = strings.ToUpper(status[:1]) + status[1:]
	}
	body := fmt.Sprintf("Job '%s' (ID: %s) finished with status %s.", job.Name, job.ID, job.Status)
	if job.Output != nil {
		body += fmt.Sprintf("\nRows: %d -> %d", job.Output.OriginalRowCount, job.Output.RowCount)
	}
	if job.ErrorMessage != "" {
		body += fmt.Sprintf("\nError: %s", job.ErrorMessage)
	}
	l.dispatcher.NotifyUsers(ctx, []string{job.CreatedBy}, fmt.Sprintf("Job %s: %s", status, job.ID), body)
}

var _ port.JobListener = (*NotificationJobListener)(nil)

// Module adds the notification listener to the launcher's listeners.
var Module = fx.Provide(fx.Annotate(
	NewNotificationJobListener,
	fx.ResultTags(`group:"job_listeners"`),
))
