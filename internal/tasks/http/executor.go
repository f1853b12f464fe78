// ABOUTME: HTTP task executor: resolves templates, sends the request, retries on failure
// ABOUTME: Implements §4.6 end to end; never returns a Go error, only a packaged result

package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/flowctl/engine/internal/durationspec"
	"github.com/flowctl/engine/internal/retry"
	"github.com/flowctl/engine/internal/template"
	"github.com/flowctl/engine/pkg/types"
)

// contentHeaders are routed onto the request entity in the source systems
// this engine is modeled on; net/http has a single unified header map, so
// here they are simply recognized and passed through like any other
// header (§4.6 step 3).
var contentHeaders = map[string]bool{
	"Content-Type":        true,
	"Content-Length":      true,
	"Content-Encoding":    true,
	"Content-Language":    true,
	"Content-Location":    true,
	"Content-MD5":         true,
	"Content-Range":       true,
	"Content-Disposition": true,
	"Expires":             true,
	"Last-Modified":       true,
}

var bodyMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true}

// Executor is the base (undecorated) HTTP task executor of §4.6.
type Executor struct {
	Client  *http.Client
	Storage *ResponseStorage
	Logger  types.Logger
}

// New builds an Executor with a default http.Client and response storage.
func New(logger types.Logger) *Executor {
	return &Executor{
		Client:  &http.Client{},
		Storage: NewResponseStorage(),
		Logger:  logger,
	}
}

// Execute implements types.TaskExecutor for http-kind tasks.
func (e *Executor) Execute(ctx context.Context, step *types.TaskStep, resource *types.TaskResource, tctx *types.TemplateContext) *types.TaskExecutionResult {
	startedAt := time.Now()
	spec := resource.Spec.HTTP
	if spec == nil {
		return failResult(step.ID, startedAt, types.ErrConfiguration, "", "", 0, "task resource has no http spec")
	}

	url, err := template.EvaluateString(spec.URL, tctx)
	if err != nil {
		return failResult(step.ID, startedAt, types.ErrConfiguration, "", spec.Method, 0, err.Error())
	}
	headers, err := template.EvaluateMap(spec.Headers, tctx)
	if err != nil {
		return failResult(step.ID, startedAt, types.ErrConfiguration, url, spec.Method, 0, err.Error())
	}
	body, err := template.EvaluateString(spec.Body, tctx)
	if err != nil {
		return failResult(step.ID, startedAt, types.ErrConfiguration, url, spec.Method, 0, err.Error())
	}

	method := strings.ToUpper(spec.Method)
	if method == "" {
		method = "GET"
	}

	if timeout := durationspec.Parse(step.Timeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	policy := retry.FromConfig(step.Retry)
	backOff := retry.NewBackOff(policy)

	attempt := 1
	for {
		result := e.attempt(ctx, step.ID, method, url, headers, body, startedAt, attempt)
		if result.Success {
			result.RetryCount = attempt - 1
			return result
		}

		if ctx.Err() != nil {
			return result
		}

		retryable := result.ErrorInfo != nil && (result.ErrorInfo.ErrorType == types.ErrNetwork || result.ErrorInfo.ErrorType == types.ErrTimeout)
		statusRetryable := result.httpStatus >= 500 && result.httpStatus <= 599

		shouldRetry := false
		if statusRetryable {
			shouldRetry = policy.ShouldRetryStatusCode(result.httpStatus, attempt)
		} else if retryable {
			shouldRetry = policy.ShouldRetry(errors.New(result.Errors[0]), attempt)
		}

		if !shouldRetry {
			result.RetryCount = attempt - 1
			return result
		}

		delay := backOff.NextBackOff()
		if delay == backoff.Stop {
			result.RetryCount = attempt - 1
			return result
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.RetryCount = attempt - 1
			return result
		case <-timer.C:
		}
		attempt++
	}
}

// attemptResult augments TaskExecutionResult with the raw HTTP status for
// the retry-classification logic above.
type attemptResult struct {
	*types.TaskExecutionResult
	httpStatus int
}

func (e *Executor) attempt(ctx context.Context, taskID, method, url string, headers map[string]string, body string, startedAt time.Time, attempt int) *attemptResult {
	var reqBody io.Reader
	if bodyMethods[method] && body != "" {
		reqBody = bytes.NewBufferString(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return &attemptResult{TaskExecutionResult: failResult(taskID, startedAt, types.ErrConfiguration, url, method, attempt-1, err.Error())}
	}

	hasContentType := false
	for k, v := range headers {
		req.Header.Set(k, v)
		if strings.EqualFold(k, "Content-Type") {
			hasContentType = true
		}
	}
	if bodyMethods[method] && !hasContentType {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &attemptResult{TaskExecutionResult: failResult(taskID, startedAt, types.ErrTimeout, url, method, attempt-1, "request timed out")}
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return &attemptResult{TaskExecutionResult: failResult(taskID, startedAt, types.ErrUnknown, url, method, attempt-1, "request cancelled")}
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return &attemptResult{TaskExecutionResult: failResult(taskID, startedAt, types.ErrNetwork, url, method, attempt-1, err.Error())}
		}
		return &attemptResult{TaskExecutionResult: failResult(taskID, startedAt, types.ErrNetwork, url, method, attempt-1, err.Error())}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &attemptResult{TaskExecutionResult: failResult(taskID, startedAt, types.ErrNetwork, url, method, attempt-1, err.Error())}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res := failResult(taskID, startedAt, types.ErrHTTP, url, method, attempt-1, httpStatusMessage(resp.StatusCode, respBody))
		return &attemptResult{TaskExecutionResult: res, httpStatus: resp.StatusCode}
	}

	output, err := e.buildOutput(resp.Header.Get("Content-Type"), respBody)
	if err != nil {
		res := failResult(taskID, startedAt, types.ErrUnknown, url, method, attempt-1, err.Error())
		return &attemptResult{TaskExecutionResult: res}
	}

	completedAt := time.Now()
	return &attemptResult{
		TaskExecutionResult: &types.TaskExecutionResult{
			TaskID:      taskID,
			Success:     true,
			Output:      output,
			StartedAt:   startedAt,
			CompletedAt: completedAt,
			Duration:    completedAt.Sub(startedAt),
			ResolvedURL: url,
			HTTPMethod:  method,
		},
		httpStatus: resp.StatusCode,
	}
}

func (e *Executor) buildOutput(contentType string, body []byte) (map[string]any, error) {
	mediaType := parseMediaType(contentType)
	if isBinaryMediaType(mediaType) {
		return e.Storage.Store(mediaType, body)
	}
	if len(body) == 0 {
		return map[string]any{}, nil
	}
	return buildJSONOutput(body)
}

func httpStatusMessage(status int, body []byte) string {
	msg := http.StatusText(status)
	if len(body) > 0 && len(body) < 500 {
		msg += ": " + string(body)
	}
	return msg
}

func failResult(taskID string, startedAt time.Time, kind types.ErrorKind, url, method string, retryAttempts int, message string) *types.TaskExecutionResult {
	completedAt := time.Now()
	return &types.TaskExecutionResult{
		TaskID:      taskID,
		Success:     false,
		Errors:      []string{message},
		RetryCount:  retryAttempts,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		ResolvedURL: url,
		HTTPMethod:  method,
		ErrorInfo: &types.TaskErrorInfo{
			ErrorType:            kind,
			ErrorMessage:         message,
			ServiceURL:           url,
			HTTPMethod:           method,
			RetryAttempts:        retryAttempts,
			TaskStartedAt:        startedAt,
			DurationUntilErrorMs: completedAt.Sub(startedAt).Milliseconds(),
		},
	}
}
