package client

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a failure envelope returned by the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("advocates api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("advocates api: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// fill copies the envelope's error details over the defaults. A blank
// envelope message keeps the default.
func (e *APIError) fill(body *errorBody) {
	if body == nil {
		return
	}
	e.Code = body.Code
	e.Details = body.Details
	if body.Message != "" {
		e.Message = body.Message
	}
}

// Temporary reports whether retrying the call may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Message extracts a user-facing message: the API envelope message when err
// is an APIError, otherwise err's own text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
