package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tootline/internal/domain"
	"tootline/internal/transport"
)

// NotFoundReason is the message attached to every 404.
const NotFoundReason = "Resource not found"

// Kind tags a FetchError.
type Kind string

const (
	KindUnknown                 Kind = "unknown"
	KindTransportError          Kind = "transport_error"
	KindUnexpectedResponseShape Kind = "unexpected_response_shape"
	KindMessage                 Kind = "message"
	KindDecodeError             Kind = "decode_error"
	KindServerError             Kind = "server_error"
)

// FetchError is the structured failure of a network call.
type FetchError struct {
	Kind       Kind
	Reason     string
	StatusCode int
	Payload    []byte
	Server     *domain.ServerError
	Cause      error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindServerError:
		if e.Server != nil {
			return fmt.Sprintf("server error (status %d): %s", e.StatusCode, e.Server.Message())
		}
	case KindMessage:
		return e.Reason
	case KindDecodeError:
		return fmt.Sprintf("decode response (status %d): %v", e.StatusCode, e.Cause)
	case KindTransportError:
		return fmt.Sprintf("transport: %v", e.Cause)
	case KindUnexpectedResponseShape:
		return fmt.Sprintf("unexpected response shape (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("unknown error: %v", e.Cause)
	}
	return fmt.Sprintf("unknown error (status %d)", e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Retryable is true for transport-level failures, which the user may retry.
func (e *FetchError) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindTransportError:
		return true
	case KindUnknown:
		return e.StatusCode == 0 || e.StatusCode >= 500
	}
	return false
}

// Category groups kinds into transport, protocol, decode and not_found.
func (e *FetchError) Category() string {
	switch e.Kind {
	case KindUnknown, KindTransportError:
		return "transport"
	case KindServerError:
		return "protocol"
	case KindDecodeError, KindUnexpectedResponseShape:
		return "decode"
	case KindMessage:
		if e.StatusCode == http.StatusNotFound {
			return "not_found"
		}
		return "protocol"
	}
	return "transport"
}

// IsNotFound reports whether err is the 404 message.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindMessage && fe.StatusCode == http.StatusNotFound
}

// Result is the uniform outcome of a network call.
type Result[T any] struct {
	Value T
	Err   *FetchError
}

func Success[T any](v T) Result[T] { return Result[T]{Value: v} }

func Failure[T any](err *FetchError) Result[T] { return Result[T]{Err: err} }

func (r Result[T]) OK() bool { return r.Err == nil }

// Unwrap returns the value or the error as a plain Go error.
func (r Result[T]) Unwrap() (T, error) {
	if r.Err != nil {
		var zero T
		return zero, r.Err
	}
	return r.Value, nil
}

// Classify turns a transport outcome into a Result.
func Classify[T any](p transport.Payload, err error) Result[T] {
	if err != nil {
		var terr *transport.Error
		if errors.As(err, &terr) && terr.Partial {
			return Failure[T](&FetchError{Kind: KindTransportError, StatusCode: p.StatusCode, Cause: err})
		}
		return Failure[T](&FetchError{Kind: KindUnknown, Cause: err})
	}
	switch {
	case p.StatusCode >= 200 && p.StatusCode <= 299:
		return decodeSuccess[T](p)
	case p.StatusCode == http.StatusNotFound:
		return Failure[T](&FetchError{Kind: KindMessage, Reason: NotFoundReason, StatusCode: p.StatusCode, Payload: p.Body})
	}
	var se domain.ServerError
	if derr := json.Unmarshal(p.Body, &se); derr == nil && strings.TrimSpace(se.Error) != "" {
		return Failure[T](&FetchError{Kind: KindServerError, StatusCode: p.StatusCode, Payload: p.Body, Server: &se})
	}
	return Failure[T](&FetchError{Kind: KindUnknown, StatusCode: p.StatusCode, Payload: p.Body})
}

func decodeSuccess[T any](p transport.Payload) Result[T] {
	var out T
	body := bytes.TrimSpace(p.Body)
	if len(body) == 0 {
		if _, ok := any(out).(domain.Empty); ok {
			return Success(out)
		}
		return Failure[T](&FetchError{Kind: KindUnexpectedResponseShape, StatusCode: p.StatusCode, Payload: p.Body})
	}
	if bytes.Equal(body, []byte("null")) {
		return Failure[T](&FetchError{Kind: KindUnexpectedResponseShape, StatusCode: p.StatusCode, Payload: p.Body})
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Failure[T](&FetchError{Kind: KindDecodeError, StatusCode: p.StatusCode, Payload: p.Body, Cause: err})
	}
	return Success(out)
}
