package relay

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/r9s-ai/snippet-relay/internal/gemini"
)

// Kind classifies a failed request. Every kind is terminal; nothing is retried.
type Kind int

const (
	ClientInput Kind = iota + 1
	Upstream
	Timeout
	Unavailable
	Internal
)

func (k Kind) String() string {
	switch k {
	case ClientInput:
		return "client_input"
	case Upstream:
		return "upstream"
	case Timeout:
		return "timeout"
	case Unavailable:
		return "unavailable"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a request failure with the status and message returned to the caller.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// FullResponse carries the model text when extraction found no code.
	FullResponse string
	// Cause is logged but never sent to the caller.
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Kind, e.Status, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Input validation messages, shared with the HTTP layer.
const (
	MsgNotJSON         = "Request must be JSON"
	MsgMissingQuestion = "Missing or empty 'question' field (should contain combined text)"
	MsgTooLarge        = "Request body too large"
)

func NewInputError(msg string) *Error {
	return &Error{Kind: ClientInput, Status: http.StatusBadRequest, Message: msg}
}

// NewTooLargeError reports a body over the server's limit of limit bytes.
func NewTooLargeError(limit int64) *Error {
	return &Error{
		Kind:    ClientInput,
		Status:  http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("%s (limit %d bytes)", MsgTooLarge, limit),
	}
}

// forwardedStatuses are upstream codes passed through to the caller. Anything else becomes 502.
var forwardedStatuses = map[int]bool{
	http.StatusBadRequest:            true,
	http.StatusUnauthorized:          true,
	http.StatusForbidden:             true,
	http.StatusNotFound:              true,
	http.StatusRequestEntityTooLarge: true,
	http.StatusTooManyRequests:       true,
	http.StatusInternalServerError:   true,
	http.StatusServiceUnavailable:    true,
}

// fromGeminiError maps a GenerateContent failure to the caller-facing error.
func fromGeminiError(err error, model string) *Error {
	if errors.Is(err, gemini.ErrTimeout) {
		return &Error{Kind: Timeout, Status: http.StatusGatewayTimeout, Message: "Gemini API request timed out", Cause: err}
	}

	var se *gemini.StatusError
	if errors.As(err, &se) {
		return &Error{
			Kind:    Upstream,
			Status:  upstreamStatus(se.StatusCode),
			Message: upstreamMessage(se.StatusCode, model, se.Message),
			Cause:   err,
		}
	}

	var de *gemini.DecodeError
	if errors.As(err, &de) {
		return &Error{Kind: Internal, Status: http.StatusInternalServerError, Message: "Error decoding response from Gemini API.", Cause: err}
	}

	var te *gemini.TransportError
	if errors.As(err, &te) {
		return &Error{
			Kind:    Unavailable,
			Status:  http.StatusServiceUnavailable,
			Message: fmt.Sprintf("Network or connection error calling Gemini API (%s): %v", model, te.Err),
			Cause:   err,
		}
	}

	return &Error{
		Kind:    Internal,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("Unexpected error processing Gemini response: %v", err),
		Cause:   err,
	}
}

func upstreamStatus(code int) int {
	if forwardedStatuses[code] {
		return code
	}
	return http.StatusBadGateway
}

func upstreamMessage(code int, model, detail string) string {
	var msg string
	switch code {
	case http.StatusTooManyRequests:
		msg = fmt.Sprintf("Rate limit exceeded for Gemini API (%s). Please wait and try again.", model)
	case http.StatusUnauthorized, http.StatusForbidden:
		msg = fmt.Sprintf("Authentication/Permission error (%d) accessing Gemini API (%s). Check API Key.", code, model)
	case http.StatusBadRequest:
		msg = fmt.Sprintf("Bad Request (400) to Gemini API (%s).", model)
	case http.StatusNotFound:
		msg = fmt.Sprintf("Model '%s' not found or not supported (404).", model)
	case http.StatusRequestEntityTooLarge:
		msg = fmt.Sprintf("Request payload too large (413) for Gemini API (%s).", model)
	case http.StatusInternalServerError:
		msg = fmt.Sprintf("Internal Server Error (500) received from Gemini API (%s).", model)
	case http.StatusServiceUnavailable:
		msg = fmt.Sprintf("Gemini API (%s) Service Unavailable (503).", model)
	default:
		msg = fmt.Sprintf("Error %d calling Gemini API (%s).", code, model)
	}
	return strings.TrimSpace(msg + " " + detail)
}
