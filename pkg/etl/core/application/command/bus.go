// Package command routes correction commands from the exception reporter to the
// transformation engine without either side constructing the other.
package command

import (
	"context"
	"sync"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

// CorrectionBus is an in-process, synchronous ports.CorrectionDispatcher.
type CorrectionBus struct {
	mu      sync.RWMutex
	handler ports.CorrectionHandler
}

// NewCorrectionBus creates a bus with no handler.
func NewCorrectionBus() *CorrectionBus {
	return &CorrectionBus{}
}

// Register sets the handler. A later call replaces the previous handler.
func (b *CorrectionBus) Register(h ports.CorrectionHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// Dispatch runs cmd on the registered handler in the caller's goroutine.
func (b *CorrectionBus) Dispatch(ctx context.Context, cmd ports.CorrectionCommand) error {
	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()
	if h == nil {
		return exception.NewEtlErrorf("command", exception.KindAutoCorrectionFailure, "no correction handler registered for job %s", cmd.JobID)
	}
	return h.HandleCorrection(ctx, cmd)
}

var _ ports.CorrectionDispatcher = (*CorrectionBus)(nil)

// Module provides the bus both as itself and as a ports.CorrectionDispatcher.
var Module = fx.Provide(fx.Annotate(
	NewCorrectionBus,
	fx.As(fx.Self()),
	fx.As(new(ports.CorrectionDispatcher)),
))
