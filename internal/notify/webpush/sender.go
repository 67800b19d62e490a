// Package webpush delivers encrypted Web Push messages signed with VAPID.
package webpush

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"splan/backend/internal/notify/channel"
)

const (
	defaultTimeout = 15 * time.Second
	defaultTTL     = 24 * 60 * 60

	// Platform is the channel tag reported in errors.
	Platform = "WP"
)

// ErrInvalidSubscription is returned for a stored payload that is not a usable push subscription.
var ErrInvalidSubscription = errors.New("webpush: invalid subscription")

// Sender holds the VAPID identity used for every push.
type Sender struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// TTL is how long, in seconds, the push service keeps an undelivered message.
	TTL        int
	HTTPClient webpush.HTTPClient
}

// New returns a Sender. subscriber is a mailto: address or https URL identifying the operator.
func New(subscriber, publicKey, privateKey string) *Sender {
	return &Sender{
		Subscriber:      subscriber,
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		TTL:             defaultTTL,
		HTTPClient:      &http.Client{Timeout: defaultTimeout},
	}
}

// ParseSubscription decodes the JSON PushSubscription a browser hands out.
func ParseSubscription(payload string) (*webpush.Subscription, error) {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(payload), &sub); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSubscription, err)
	}
	if sub.Endpoint == "" || sub.Keys.Auth == "" || sub.Keys.P256dh == "" {
		return nil, fmt.Errorf("%w: endpoint and keys are required", ErrInvalidSubscription)
	}
	return &sub, nil
}

// EncodeSubscription renders sub in the single form registrations are stored in, so
// endpoint lookups match regardless of how the browser escaped the original JSON.
func EncodeSubscription(sub *webpush.Subscription) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(sub); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// Send encrypts n as {"title","body"} for sub and posts it to the subscription endpoint.
// A response status of 400 or above returns a *channel.Error carrying the endpoint.
func (s *Sender) Send(ctx context.Context, sub *webpush.Subscription, n channel.Notification) error {
	msg, err := json.Marshal(n)
	if err != nil {
		return err
	}
	resp, err := webpush.SendNotificationWithContext(ctx, msg, sub, &webpush.Options{
		HTTPClient:      s.HTTPClient,
		Subscriber:      s.Subscriber,
		VAPIDPublicKey:  s.VAPIDPublicKey,
		VAPIDPrivateKey: s.VAPIDPrivateKey,
		TTL:             s.TTL,
	})
	if err != nil {
		return &channel.Error{Platform: Platform, Endpoint: sub.Endpoint, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &channel.Error{Platform: Platform, Status: resp.StatusCode, Endpoint: sub.Endpoint, Code: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
