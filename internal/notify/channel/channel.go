// Package channel defines the contract shared by push channel senders.
package channel

import (
	"errors"
	"fmt"
	"net/http"
)

// Notification is the content delivered to a device. It is never persisted.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Error is a failed delivery on one channel.
type Error struct {
	// Platform is the channel tag: FCM, WP or TG.
	Platform string
	// Code is the provider's error code or description, when it sent one.
	Code string
	// Status is the provider's HTTP status; 0 when no response was received.
	Status int
	// Endpoint is the push service URL, set for WebPush.
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Platform + " delivery failed"
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsGone reports whether the push service says the subscription no longer exists.
func (e *Error) IsGone() bool {
	return e.Status == http.StatusGone || e.Status == http.StatusForbidden
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
