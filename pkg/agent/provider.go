package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Provider opens a streaming chat request against an agent backend.
// Implementations handle transport details such as authentication and
// status handling; the returned body is the raw event stream and must be
// closed by the caller.
type Provider interface {
	Stream(ctx context.Context, req *Request) (io.ReadCloser, error)
}

// Config holds connection settings for an agent backend.
type Config struct {
	BaseURL  string
	ChatPath string
	APIKey   string
	// ConnectTimeout bounds dialing and waiting for response headers. The
	// stream body itself is bounded by the request context.
	ConnectTimeout time.Duration
}

// ErrStatus is wrapped by StatusError so callers can match any non-OK reply.
var ErrStatus = errors.New("agent returned non-OK status")

// StatusError reports a non-OK HTTP response from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent error (status %d): %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }
