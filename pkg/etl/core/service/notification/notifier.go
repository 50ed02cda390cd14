// Package notification resolves recipients by role or user id and hands messages to the
// configured ports.Notifier. Delivery is best effort: failures are logged and swallowed.
package notification

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// LoggingNotifier only logs notifications.
type LoggingNotifier struct{}

// NewLoggingNotifier creates a LoggingNotifier.
func NewLoggingNotifier() *LoggingNotifier {
	logger.Infof("Notification: Initializing logging notifier.")
	return &LoggingNotifier{}
}

// Alert logs the message once per call.
func (n *LoggingNotifier) Alert(ctx context.Context, recipients []string, subject, body string) error {
	logger.Infof("Notification to [%s]: %s\n%s", strings.Join(recipients, ", "), subject, body)
	return nil
}

var _ ports.Notifier = (*LoggingNotifier)(nil)

// Dispatcher sends notifications to users resolved through the identity provider.
type Dispatcher struct {
	notifier ports.Notifier
	identity ports.IdentityProvider
}

// DispatcherParams are the dependencies of NewDispatcher.
type DispatcherParams struct {
	fx.In
	Notifier ports.Notifier
	Identity ports.IdentityProvider
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{notifier: p.Notifier, identity: p.Identity}
}

func address(u model.User) string {
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// NotifyRoles sends one message to every user holding one of roles.
func (d *Dispatcher) NotifyRoles(ctx context.Context, roles []model.Role, subject, body string) {
	users, err := d.identity.UsersWithRoles(ctx, roles...)
	if err != nil {
		logger.Warnf("Notification '%s' not sent: cannot resolve roles %v: %v", subject, roles, err)
		return
	}
	recipients := make([]string, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, address(u))
	}
	d.deliver(ctx, recipients, subject, body)
}

// NotifyUsers sends one message to each of the given user ids. Unknown ids are skipped.
func (d *Dispatcher) NotifyUsers(ctx context.Context, userIDs []string, subject, body string) {
	recipients := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		u, err := d.identity.FindUser(ctx, id)
		if err != nil {
			logger.Warnf("Notification '%s': skipping recipient '%s': %v", subject, id, err)
			continue
		}
		recipients = append(recipients, address(*u))
	}
	d.deliver(ctx, recipients, subject, body)
}

// deliver calls the notifier once per recipient so one bad address does not block the others.
func (d *Dispatcher) deliver(ctx context.Context, recipients []string, subject, body string) {
	if len(recipients) == 0 {
		logger.Debugf("Notification '%s' has no recipients.", subject)
		return
	}
	var result *multierror.Error
	for _, r := range recipients {
		if err := d.notifier.Alert(ctx, []string{r}, subject, body); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Warnf("Notification '%s' partially failed: %v", subject, err)
	}
}
