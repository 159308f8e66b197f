package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrTransport is the sentinel every provider failure matches via errors.Is.
// A transport failure aborts the whole generation with zero commits.
var ErrTransport = errors.New("llm transport failure")

// ErrorKind categorizes provider failures, mostly for logging and for
// callers that want to hint the user at a fix (bad key vs. rate limit).
type ErrorKind int8

const (
	KindUnknown ErrorKind = iota
	KindAuth
	KindRateLimit
	KindTransient
	KindEmptyResponse
	KindBadPrompt
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindTransient:
		return "transient"
	case KindEmptyResponse:
		return "empty_response"
	case KindBadPrompt:
		return "bad_prompt"
	default:
		return "unknown"
	}
}

// TransportError wraps a provider failure with its classification.
type TransportError struct {
	Cause    error
	Provider string
	Message  string
	Kind     ErrorKind
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s error: %s: %v", e.Provider, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Is makes every TransportError match ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func newTransportError(provider string, kind ErrorKind, message string, cause error) *TransportError {
	return &TransportError{Provider: provider, Kind: kind, Message: message, Cause: cause}
}

// classify buckets a provider error by its context state and message. The
// SDKs expose status codes inconsistently, so the message sniffing here is
// deliberately coarse.
func classify(provider string, err error) *TransportError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newTransportError(provider, KindTransient, "request timeout", err)
	case errors.Is(err, context.Canceled):
		return newTransportError(provider, KindTransient, "request canceled", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "api key"):
		return newTransportError(provider, KindAuth, "authentication failed, check API key", err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota"):
		return newTransportError(provider, KindRateLimit, "rate limit exceeded", err)
	case strings.Contains(msg, "400") || strings.Contains(msg, "bad request") ||
		strings.Contains(msg, "context length") || strings.Contains(msg, "too long"):
		return newTransportError(provider, KindBadPrompt, "request rejected, check prompt size and format", err)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "eof") || strings.Contains(msg, "timeout"):
		return newTransportError(provider, KindTransient, "provider unavailable", err)
	default:
		return newTransportError(provider, KindUnknown, "request failed", err)
	}
}
