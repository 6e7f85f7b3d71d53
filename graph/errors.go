package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CodeInvalidSession is the error code the remote uses for an expired or unknown workbook session.
const CodeInvalidSession = "InvalidSession"

// ErrRemoteTimeout matches any APIError carrying a 504 status.
var ErrRemoteTimeout = errors.New("remote timeout")

// APIError is a non-2xx answer from the remote, with the structured error code when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrRemoteTimeout) match gateway timeouts.
func (e *APIError) Is(target error) bool {
	return target == ErrRemoteTimeout && e.StatusCode == http.StatusGatewayTimeout
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func unwrapError(resp *Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(resp.Body)}

	var envelope errorEnvelope
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}

	return apiErr
}

// IsInvalidSession reports whether err is the remote's session expiry signal.
// Variants such as "InvalidSessionReCreatable" count as well.
func IsInvalidSession(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.HasPrefix(strings.ToLower(apiErr.Code), strings.ToLower(CodeInvalidSession))
}

// IsNotFound reports whether err is a 404 from the remote.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound
}
