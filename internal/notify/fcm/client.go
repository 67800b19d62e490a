// Package fcm sends notifications through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"splan/backend/internal/notify/channel"
)

const (
	defaultTimeout = 15 * time.Second
	messagingScope = "https://www.googleapis.com/auth/firebase.messaging"

	// Platform is the channel tag reported in errors.
	Platform = "FCM"
	// CodeUnregistered is the FCM error code for a registration token that is no longer valid.
	CodeUnregistered = "UNREGISTERED"
)

// errorCodes maps Firebase error predicates to the code reported in channel.Error. FCM
// specific codes come first; the platform codes cover responses without FCM details.
var errorCodes = []struct {
	code string
	is   func(error) bool
}{
	{CodeUnregistered, messaging.IsUnregistered},
	{"SENDER_ID_MISMATCH", messaging.IsSenderIDMismatch},
	{"QUOTA_EXCEEDED", messaging.IsQuotaExceeded},
	{"THIRD_PARTY_AUTH_ERROR", messaging.IsThirdPartyAuthError},
	{"INVALID_ARGUMENT", errorutils.IsInvalidArgument},
	{"UNAUTHENTICATED", errorutils.IsUnauthenticated},
	{"PERMISSION_DENIED", errorutils.IsPermissionDenied},
	{"NOT_FOUND", errorutils.IsNotFound},
	{"RESOURCE_EXHAUSTED", errorutils.IsResourceExhausted},
	{"INTERNAL", errorutils.IsInternal},
	{"UNAVAILABLE", errorutils.IsUnavailable},
	{"DEADLINE_EXCEEDED", errorutils.IsDeadlineExceeded},
}

// Client sends FCM messages for one Firebase project.
type Client struct {
	ProjectID string
	// Timeout bounds one Send, retries included.
	Timeout time.Duration

	messaging *messaging.Client
}

// New returns a client for projectID. opts carry credentials and, in tests, the endpoint.
func New(ctx context.Context, projectID string, opts ...option.ClientOption) (*Client, error) {
	if projectID == "" {
		return nil, errors.New("fcm: project id not set and not present in credentials")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("fcm: app: %w", err)
	}
	mc, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("fcm: messaging: %w", err)
	}
	return &Client{ProjectID: projectID, Timeout: defaultTimeout, messaging: mc}, nil
}

// NewFromCredentials builds a client from a service-account JSON key. projectID overrides
// the project in the key when non-empty.
func NewFromCredentials(ctx context.Context, credentialsJSON []byte, projectID string) (*Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, messagingScope)
	if err != nil {
		return nil, fmt.Errorf("fcm: credentials: %w", err)
	}
	if projectID == "" {
		projectID = creds.ProjectID
	}
	return New(ctx, projectID, option.WithCredentials(creds))
}

// NewFromFile reads a service-account JSON key from path and calls NewFromCredentials.
func NewFromFile(ctx context.Context, path, projectID string) (*Client, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fcm: read credentials: %w", err)
	}
	return NewFromCredentials(ctx, raw, projectID)
}

// Send delivers n to the registration token. Failures are returned as *channel.Error;
// Code carries the FCM error code (e.g. UNREGISTERED) when one is known.
func (c *Client) Send(ctx context.Context, token string, n channel.Notification) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	_, err := c.messaging.Send(ctx, &messaging.Message{
		Token:        token,
		Notification: &messaging.Notification{Title: n.Title, Body: n.Body},
	})
	if err == nil {
		return nil
	}
	ce := &channel.Error{Platform: Platform, Err: err}
	if resp := errorutils.HTTPResponse(err); resp != nil {
		ce.Status = resp.StatusCode
	}
	for _, ec := range errorCodes {
		if ec.is(err) {
			ce.Code = ec.code
			break
		}
	}
	return ce
}
