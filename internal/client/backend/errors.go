package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/santinotanus/medtrace/internal/common"
	"github.com/sony/gobreaker/v2"
)

// ErrMultipleRows is returned by Single and MaybeSingle queries that match
// more than one row.
var ErrMultipleRows = errors.New("query returned more than one row")

// APIError is a request the backend answered with an error status.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// Unwrap exposes the sentinel matching the status, so callers can use
// errors.Is without inspecting codes.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return common.ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return common.ErrForbidden
	case e.Status == http.StatusNotFound:
		return common.ErrNotFound
	case e.Status >= http.StatusInternalServerError:
		return common.ErrUnavailable
	default:
		return nil
	}
}

// rejectedGrantCodes are the auth error codes that mean the refresh token
// itself will never be accepted again.
var rejectedGrantCodes = map[string]bool{
	"invalid_grant":              true,
	"refresh_token_not_found":    true,
	"refresh_token_already_used": true,
	"session_not_found":          true,
	"session_expired":            true,
}

// refreshRejected reports whether a failed token refresh should end the
// session. Rate limits, timeouts and other transient answers do not.
func (e *APIError) refreshRejected() bool {
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return rejectedGrantCodes[e.Code]
}

// mapError converts transport failures to sentinels. API errors are
// returned as they are.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
}

// errorBody covers the error shapes of the auth service and PostgREST.
type errorBody struct {
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Code             any    `json:"code"`
}

func (b errorBody) message() string {
	for _, m := range []string{b.Message, b.Msg, b.ErrorDescription, b.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

func (b errorBody) code() string {
	if b.ErrorCode != "" {
		return b.ErrorCode
	}
	if s, ok := b.Code.(string); ok {
		return s
	}
	if b.Error != "" && b.ErrorDescription != "" {
		return b.Error
	}
	return ""
}
