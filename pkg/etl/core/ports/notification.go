// Package ports declares the external collaborators the ETL core depends on.
package ports

import "context"

// Notifier delivers a message to a set of recipients (email addresses or user ids).
// Callers treat delivery as best effort: a returned error is logged, never propagated.
type Notifier interface {
	Alert(ctx context.Context, recipients []string, subject, body string) error
}
