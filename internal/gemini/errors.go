package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrTimeout is returned (wrapped) when the call exceeds the client timeout.
var ErrTimeout = errors.New("gemini request timed out")

// StatusError is a non-2xx reply from the API.
type StatusError struct {
	StatusCode int
	Status     string
	// Message is error.message from the reply body, if it had one.
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gemini http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gemini http %d", e.StatusCode)
}

// TransportError means no HTTP response was received (DNS, refused connection, TLS, ...).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means a 2xx reply whose body was not a decodable envelope.
type DecodeError struct {
	Body []byte
	Err  error
}

func (e *DecodeError) Error() string { return "decode gemini response: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

func newStatusError(code int, status string, body []byte) *StatusError {
	e := &StatusError{StatusCode: code, Status: status, Body: body}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		e.Message = strings.TrimSpace(env.Error.Message)
	}
	return e
}
