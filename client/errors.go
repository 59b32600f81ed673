package client

import (
	"errors"
	"fmt"
)

// ErrDiscarded is returned by PostStore.Load when its result was dropped
// because a newer load started or the store was closed.
var ErrDiscarded = errors.New("load result discarded")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Status > 0 {
		return fmt.Sprintf("api error: %d", e.Status)
	}
	return "api error"
}

// DraftError is a local validation failure; nothing was sent.
type DraftError struct {
	Message string
}

func (e *DraftError) Error() string {
	return e.Message
}
