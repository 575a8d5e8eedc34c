// Package errors provides centralized error definitions and error handling
// utilities for the colony codebase. It defines domain-specific errors,
// semantic error types, error constructors with context wrapping, and
// classification helpers used by the retry policy and the scheduler.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - QueueError: errors related to the task queue and its state machine
//   - CoordinatorError: errors related to worker assignment and scheduling
//   - RoutingError: errors related to strategy-based worker selection
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Classification
//
// The retry policy never retries fatal errors. An error is fatal when it
// wraps ErrUnauthorized, ErrInvalidInput, ErrFatal, or is a NotFoundError:
//
//	if errors.IsFatal(err) { ... }   // never retry
//	if errors.IsRetryable(err) { ... } // transient, retry per policy
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Queue-related sentinel errors
var (
	// ErrTaskNotFound indicates that a task could not be found in the queue.
	ErrTaskNotFound = New("task not found")
	// ErrQueueEmpty indicates that no ready task is available to dequeue.
	ErrQueueEmpty = New("no ready tasks in queue")
	// ErrInvalidTransition indicates an illegal task status transition.
	ErrInvalidTransition = New("invalid status transition")
)

// Coordinator-related sentinel errors
var (
	// ErrWorkerNotFound indicates that a worker is not registered.
	ErrWorkerNotFound = New("worker not found")
	// ErrWorkerBusy indicates that a worker already holds an assignment.
	ErrWorkerBusy = New("worker is busy")
	// ErrNoWorkerAvailable indicates that no idle worker could take a task.
	ErrNoWorkerAvailable = New("no worker available")
	// ErrDependencyCycle indicates a circular or unsatisfiable dependency set.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrTaskFailed indicates that a task execution failed.
	ErrTaskFailed = New("task failed")
)

// Routing-related sentinel errors
var (
	// ErrNoMatch indicates that no strategy produced a worker for a task.
	ErrNoMatch = New("no matching worker")
	// ErrDomainNotFound indicates an unknown domain id.
	ErrDomainNotFound = New("domain not found")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed. Fatal: never retried.
	ErrInvalidInput = New("invalid input")
	// ErrUnauthorized indicates an authorization failure. Fatal: never retried.
	ErrUnauthorized = New("unauthorized")
	// ErrFatal tags an error as permanently unrecoverable regardless of class.
	ErrFatal = New("fatal error")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ColonyError is the base interface for all colony errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type ColonyError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity {
	return e.severity
}

func (e *baseError) IsRetryable() bool {
	return e.retryable
}

func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// QueueError represents errors from the task queue.
//
// Example:
//
//	err := errors.NewQueueError("cannot complete task", errors.ErrTaskNotFound).
//		WithTaskID("task-1")
type QueueError struct {
	baseError
	TaskID string
	Status string
}

// NewQueueError creates a new QueueError.
func NewQueueError(message string, cause error) *QueueError {
	return &QueueError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithTaskID adds a task ID to the error context.
func (e *QueueError) WithTaskID(id string) *QueueError {
	e.TaskID = id
	return e
}

// WithStatus adds the task's current status to the error context.
func (e *QueueError) WithStatus(status string) *QueueError {
	e.Status = status
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *QueueError) WithRetryable(r bool) *QueueError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *QueueError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.Status != "" {
		parts = append(parts, fmt.Sprintf("status=%s", e.Status))
	}

	prefix := "queue error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("queue error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *QueueError) Is(target error) bool {
	if _, ok := target.(*QueueError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CoordinatorError represents errors related to worker assignment and
// wave scheduling.
//
// Example:
//
//	err := errors.NewCoordinatorError("assignment failed", errors.ErrWorkerNotFound).
//		WithWorkerID("worker-3").WithTaskID("task-9")
type CoordinatorError struct {
	baseError
	TaskID   string
	WorkerID string
	Wave     int
}

// NewCoordinatorError creates a new CoordinatorError.
func NewCoordinatorError(message string, cause error) *CoordinatorError {
	return &CoordinatorError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Wave: -1, // -1 indicates not set
	}
}

// WithTaskID adds a task ID to the error context.
func (e *CoordinatorError) WithTaskID(id string) *CoordinatorError {
	e.TaskID = id
	return e
}

// WithWorkerID adds a worker ID to the error context.
func (e *CoordinatorError) WithWorkerID(id string) *CoordinatorError {
	e.WorkerID = id
	return e
}

// WithWave adds an execution wave index to the error context.
func (e *CoordinatorError) WithWave(wave int) *CoordinatorError {
	e.Wave = wave
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *CoordinatorError) WithRetryable(r bool) *CoordinatorError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *CoordinatorError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.WorkerID != "" {
		parts = append(parts, fmt.Sprintf("worker=%s", e.WorkerID))
	}
	if e.Wave >= 0 {
		parts = append(parts, fmt.Sprintf("wave=%d", e.Wave))
	}

	prefix := "coordinator error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("coordinator error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *CoordinatorError) Is(target error) bool {
	if _, ok := target.(*CoordinatorError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// RoutingError represents errors from strategy-based worker selection.
type RoutingError struct {
	baseError
	TaskID   string
	Domain   string
	Strategy string
}

// NewRoutingError creates a new RoutingError.
func NewRoutingError(message string, cause error) *RoutingError {
	return &RoutingError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithTaskID adds a task ID to the error context.
func (e *RoutingError) WithTaskID(id string) *RoutingError {
	e.TaskID = id
	return e
}

// WithDomain adds a domain id to the error context.
func (e *RoutingError) WithDomain(domain string) *RoutingError {
	e.Domain = domain
	return e
}

// WithStrategy adds the strategy name to the error context.
func (e *RoutingError) WithStrategy(name string) *RoutingError {
	e.Strategy = name
	return e
}

// Error returns the formatted error message.
func (e *RoutingError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.Domain != "" {
		parts = append(parts, fmt.Sprintf("domain=%s", e.Domain))
	}
	if e.Strategy != "" {
		parts = append(parts, fmt.Sprintf("strategy=%s", e.Strategy))
	}

	prefix := "routing error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("routing error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *RoutingError) Is(target error) bool {
	if _, ok := target.(*RoutingError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("worker", "worker-7")
//	fmt.Println(err) // "worker 'worker-7' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for result of task-4", time.Minute)
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
	TaskID    string
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithTaskID adds a task ID to the error context.
func (e *TimeoutError) WithTaskID(taskID string) *TimeoutError {
	e.TaskID = taskID
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.TaskID != "" {
		base = fmt.Sprintf("timeout error [task=%s]: %s (timeout: %s)", e.TaskID, e.Operation, e.Duration)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsFatal returns true if the error belongs to a class that must never be
// retried: authorization failures, invalid input, missing resources, and
// anything explicitly tagged with ErrFatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	if Is(err, ErrUnauthorized) || Is(err, ErrInvalidInput) || Is(err, ErrFatal) {
		return true
	}

	var notFound *NotFoundError
	if As(err, &notFound) {
		return true
	}
	return Is(err, ErrTaskNotFound) || Is(err, ErrWorkerNotFound)
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. Fatal errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsFatal(err) {
		return false
	}

	var colonyErr ColonyError
	if As(err, &colonyErr) {
		return colonyErr.IsRetryable()
	}

	if Is(err, ErrTimeout) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var colonyErr ColonyError
	if As(err, &colonyErr) {
		return colonyErr.IsUserFacing()
	}

	// Semantic errors are always user-facing
	var notFound *NotFoundError
	var validation *ValidationError
	var timeout *TimeoutError

	if As(err, &notFound) || As(err, &validation) || As(err, &timeout) {
		return true
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ColonyError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var colonyErr ColonyError
	if As(err, &colonyErr) {
		return colonyErr.Severity()
	}

	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to dispatch task")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to dispatch task %s", taskID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
