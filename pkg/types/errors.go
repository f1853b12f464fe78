// ABOUTME: Typed errors for the workflow engine
// ABOUTME: Defines distinct error kinds for validation, graph, resolution, and task failures

package types

import (
	"errors"
	"fmt"
)

// ValidationError reports a structural problem found during pre-execution
// validation (§4.12, §7). FieldPath names the offending field; Suggestion
// is an optional fix hint.
type ValidationError struct {
	FieldPath  string
	Message    string
	Suggestion string
}

func NewValidationError(fieldPath, message string) *ValidationError {
	return &ValidationError{FieldPath: fieldPath, Message: message}
}

func (e *ValidationError) Error() string {
	if e.FieldPath == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.FieldPath, e.Message)
}

// GraphError reports a cycle or unresolved dependency found while building
// the execution graph (§4.2, §7).
type GraphError struct {
	Message string
	Cycle   []string
}

func NewGraphError(message string, cycle []string) *GraphError {
	return &GraphError{Message: message, Cycle: cycle}
}

func (e *GraphError) Error() string {
	if len(e.Cycle) == 0 {
		return e.Message
	}
	path := e.Cycle[0]
	for _, c := range e.Cycle[1:] {
		path += " -> " + c
	}
	return fmt.Sprintf("%s: %s", e.Message, path)
}

// ResolutionError reports a missing input or task-output field during
// template resolution (§4.1, §7).
type ResolutionError struct {
	Path    string
	Message string
}

func NewResolutionError(path, message string) *ResolutionError {
	return &ResolutionError{Path: path, Message: message}
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func (e *ResolutionError) Unwrap() error { return nil }

// TemplateError reports a malformed template expression (§4.1).
type TemplateError struct {
	Expression string
	Message    string
}

func NewTemplateError(expression, message string) *TemplateError {
	return &TemplateError{Expression: expression, Message: message}
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("invalid template %q: %s", e.Expression, e.Message)
}

// TaskError wraps a failure raised while executing a single task (§7).
type TaskError struct {
	TaskID   string
	TaskType string
	Message  string
	Cause    error
}

func NewTaskError(taskID, taskType, message string, cause error) *TaskError {
	return &TaskError{TaskID: taskID, TaskType: taskType, Message: message, Cause: cause}
}

func (e *TaskError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("task %s (%s): %s: %v", e.TaskID, e.TaskType, e.Message, e.Cause)
	}
	return fmt.Sprintf("task %s (%s): %s", e.TaskID, e.TaskType, e.Message)
}

func (e *TaskError) Unwrap() error { return e.Cause }

// DependencyError reports a dependsOn reference to an unknown task id
// (§4.2).
type DependencyError struct {
	TaskID       string
	DependencyID string
}

func NewDependencyError(taskID, dependencyID string) *DependencyError {
	return &DependencyError{TaskID: taskID, DependencyID: dependencyID}
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("task %s depends on unknown task %s", e.TaskID, e.DependencyID)
}

// CircuitOpenError is returned by the circuit breaker when a call is
// rejected without attempting the underlying operation (§4.4).
type CircuitOpenError struct {
	TaskRef string
}

func NewCircuitOpenError(taskRef string) *CircuitOpenError {
	return &CircuitOpenError{TaskRef: taskRef}
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s", e.TaskRef)
}

// RetryableError marks an error as transient (network/timeout) so the
// retry policy's classification (§4.3) can recognize it without depending
// on concrete transport error types.
type RetryableError struct {
	Cause error
	Kind  ErrorKind
}

func NewRetryableError(cause error, kind ErrorKind) *RetryableError {
	return &RetryableError{Cause: cause, Kind: kind}
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *RetryableError) Unwrap() error { return e.Cause }

// IsRetryable reports whether err (or a wrapped cause) is a RetryableError
// whose kind is NetworkError or TimeoutError.
func IsRetryable(err error) bool {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.Kind == ErrNetwork || re.Kind == ErrTimeout
	}
	return false
}
