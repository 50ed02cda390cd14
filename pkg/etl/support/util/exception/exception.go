// Package exception provides the error types shared by every ETL component.
// Errors are classified by Kind so that callers can decide whether to surface,
// record or swallow them without string matching.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// Kind classifies an EtlError.
type Kind string

const (
	// KindNotFound means a job, approval, schema or exception does not exist. Never retried.
	KindNotFound Kind = "NotFound"
	// KindUnsupportedInput covers unknown source kinds, unknown rule types and bad file formats.
	KindUnsupportedInput Kind = "UnsupportedInput"
	// KindTransformationFault is an uncaught fault while a rule pipeline runs.
	KindTransformationFault Kind = "TransformationFault"
	// KindCoercionFailure is a value that could not be converted to the requested type.
	KindCoercionFailure Kind = "CoercionFailure"
	// KindAutoCorrectionFailure is a corrective rule that could not be applied.
	KindAutoCorrectionFailure Kind = "AutoCorrectionFailure"
	// KindInvalidState is a forbidden status or approval transition.
	KindInvalidState Kind = "InvalidState"
	// KindOptimisticLock is a concurrent modification detected through the version column.
	KindOptimisticLock Kind = "OptimisticLock"
	// KindValidation is malformed input such as bad rule parameters or configuration.
	KindValidation Kind = "Validation"
	// KindPermission is an actor whose role does not allow the operation.
	KindPermission Kind = "Permission"
	// KindInternal is an infrastructure failure (storage, database, encoding).
	KindInternal Kind = "Internal"
)

// errorRegistry maps names to sentinel errors for IsErrorOfType lookups.
var errorRegistry = make(map[string]error)

var registryMutex sync.RWMutex

// RegisterErrorType registers a sentinel error under a name.
// It panics if name is empty or prototype is nil.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered checks if the specified error type name is registered.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// EtlError is the error type returned by ETL components.
type EtlError struct {
	// Module is the component where the error occurred (e.g. "transform", "workflow").
	Module string
	// Kind classifies the failure.
	Kind Kind
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped cause.
	OriginalErr error
	// StackTrace is captured at construction time for debugging.
	StackTrace string
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// NewEtlError creates a new EtlError.
func NewEtlError(module string, kind Kind, message string, originalErr error) *EtlError {
	return &EtlError{
		Module:      module,
		Kind:        kind,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

// NewEtlErrorf creates a new EtlError with a formatted message.
// If the last argument is an error it becomes OriginalErr and is not used for formatting.
//
//	NewEtlErrorf("transform", KindValidation, "rule %d is invalid", 3, err)
func NewEtlErrorf(module string, kind Kind, format string, a ...interface{}) *EtlError {
	var originalErr error
	args := a
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	return &EtlError{
		Module:      module,
		Kind:        kind,
		Message:     fmt.Sprintf(format, args...),
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

// Error implements the error interface.
func (e *EtlError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Is / errors.As.
func (e *EtlError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable reports whether re-running the same operation may succeed.
// Only infrastructure failures and lost optimistic-lock races qualify.
func (e *EtlError) IsRetryable() bool {
	return e.Kind == KindInternal || e.Kind == KindOptimisticLock
}

// KindOf returns the Kind of the outermost EtlError in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var ee *EtlError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

// IsKind reports whether any EtlError in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var ee *EtlError
		if !errors.As(err, &ee) {
			return false
		}
		if ee.Kind == kind {
			return true
		}
		err = ee.OriginalErr
	}
	return false
}

// IsNotFound is a shorthand for IsKind(err, KindNotFound).
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

// IsTemporary reports whether err is worth retrying.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var ee *EtlError
	if errors.As(err, &ee) {
		return ee.IsRetryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused")
}

// IsErrorOfType checks err against a registered sentinel, a message substring or a type name.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	for current := err; current != nil; current = errors.Unwrap(current) {
		if strings.Contains(current.Error(), errorTypeName) {
			return true
		}
		errType := reflect.TypeOf(current)
		if errType.String() == errorTypeName || (errType.Kind() == reflect.Ptr && errType.Elem().String() == errorTypeName) {
			return true
		}
	}
	return false
}

// OptimisticLockingFailureException is the registry name of ErrOptimisticLockingFailure.
const OptimisticLockingFailureException = "OptimisticLockingFailureException"

// ErrOptimisticLockingFailure signals that a row changed since it was read.
var ErrOptimisticLockingFailure = errors.New(OptimisticLockingFailureException)

// NewOptimisticLockingFailureException creates an EtlError wrapping ErrOptimisticLockingFailure.
func NewOptimisticLockingFailureException(module, message string, originalErr error) *EtlError {
	errToWrap := ErrOptimisticLockingFailure
	if originalErr != nil {
		errToWrap = errors.Join(ErrOptimisticLockingFailure, originalErr)
	}
	return NewEtlError(module, KindOptimisticLock, message, errToWrap)
}

// IsOptimisticLockingFailure reports whether err indicates an optimistic locking failure.
func IsOptimisticLockingFailure(err error) bool {
	return err != nil && errors.Is(err, ErrOptimisticLockingFailure)
}

func init() {
	RegisterErrorType(OptimisticLockingFailureException, ErrOptimisticLockingFailure)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
}

// ExtractErrorMessage returns the Message of an EtlError, or err.Error() for anything else.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var ee *EtlError
	if errors.As(err, &ee) {
		return ee.Message
	}
	return err.Error()
}
