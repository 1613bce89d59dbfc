// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"errors"
	"fmt"
)

// Kind classifies a model failure.
type Kind int

const (
	// KindTransient covers timeouts, connection failures, and HTTP 429.
	// Transient failures are retried inside the client and never returned.
	KindTransient Kind = iota

	// KindFatal covers an exhausted retry budget, a non-retryable HTTP
	// status, a malformed response envelope, and a missing credential.
	KindFatal
)

func (k Kind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "fatal"
}

// ErrMissingCredential is returned when the client has no API key.
var ErrMissingCredential = errors.New("completion API key is not configured")

// ModelError is the failure type of Generate.
type ModelError struct {
	Kind  Kind
	Model string

	// StatusCode is the HTTP status when the endpoint answered, else 0.
	StatusCode int

	// Attempts is the number of requests issued.
	Attempts int

	Err error
}

func (e *ModelError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("model %s: %s error: %v", e.Model, e.Kind, e.Err)
	case e.Attempts > 1:
		return fmt.Sprintf("model %s: failed to get a completion after %d attempts: %v", e.Model, e.Attempts, e.Err)
	default:
		return fmt.Sprintf("model %s: %s error: %v", e.Model, e.Kind, e.Err)
	}
}

func (e *ModelError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a fatal ModelError.
func IsFatal(err error) bool {
	var me *ModelError
	return errors.As(err, &me) && me.Kind == KindFatal
}
