package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLogger reports fx container events through this package. Wiring detail goes to DEBUG so a
// normal CLI invocation stays quiet; every failure is logged at ERROR.
type FxLogger struct{}

// NewFxLogger returns the fxevent.Logger used by Module.
func NewFxLogger() fxevent.Logger {
	return FxLogger{}
}

func (FxLogger) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("fx: provide %s: %v", trimClosure(e.ConstructorName), e.Err)
			return
		}
		Debugf("fx: provided %s by %s", strings.Join(e.OutputTypeNames, ", "), trimClosure(e.ConstructorName))
	case *fxevent.Supplied:
		if e.Err != nil {
			Errorf("fx: supply %s: %v", e.TypeName, e.Err)
		}
	case *fxevent.Decorated:
		if e.Err != nil {
			Errorf("fx: decorate %s: %v", trimClosure(e.DecoratorName), e.Err)
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("fx: invoke %s: %v", trimClosure(e.FunctionName), e.Err)
		}
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			Errorf("fx: start hook %s: %v", trimClosure(e.FunctionName), e.Err)
			return
		}
		Debugf("fx: start hook %s took %s", trimClosure(e.FunctionName), e.Runtime)
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			Errorf("fx: stop hook %s: %v", trimClosure(e.FunctionName), e.Err)
			return
		}
		Debugf("fx: stop hook %s took %s", trimClosure(e.FunctionName), e.Runtime)
	case *fxevent.RollingBack:
		Errorf("fx: start failed, rolling back: %v", e.StartErr)
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("fx: start failed: %v", e.Err)
			return
		}
		Debugf("fx: application started")
	case *fxevent.Stopping:
		Debugf("fx: stopping on %s", e.Signal)
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			Errorf("fx: custom logger: %v", e.Err)
		}
	}
}

// trimClosure drops the ".funcN" suffix fx reports for anonymous constructors and hooks.
func trimClosure(name string) string {
	if i := strings.LastIndex(name, ".func"); i >= 0 {
		return name[:i]
	}
	return name
}
