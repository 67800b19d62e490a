package notify

import (
	"context"
	"errors"
	"fmt"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"splan/backend/internal/device/domain"
	"splan/backend/internal/notify/channel"
	"splan/backend/internal/notify/fcm"
)

const instrumentationName = "splan/backend/internal/notify"

// ErrChannelDisabled is returned when a device's platform has no configured sender.
var ErrChannelDisabled = errors.New("notify: channel not configured")

// FCMSender delivers to a Firebase registration token.
type FCMSender interface {
	Send(ctx context.Context, token string, n channel.Notification) error
}

// WebPushSender delivers to a browser push subscription.
type WebPushSender interface {
	Send(ctx context.Context, sub *webpushgo.Subscription, n channel.Notification) error
}

// TelegramSender posts a text message to a chat.
type TelegramSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// DeviceStore is the subset of the device repository used to prune dead registrations.
type DeviceStore interface {
	DeleteByEndpoint(ctx context.Context, endpoint string) (int64, error)
	DeleteByPayload(ctx context.Context, platform domain.Platform, payload string) (int64, error)
}

// Senders holds one sender per channel. A nil sender disables its channel.
type Senders struct {
	FCM      FCMSender
	WebPush  WebPushSender
	Telegram TelegramSender
}

type outcome string

const (
	outcomeDelivered outcome = "delivered"
	outcomePruned    outcome = "pruned"
	outcomeGone      outcome = "gone"
	outcomeFailed    outcome = "failed"
)

// Dispatcher sends one notification per device, removing registrations the provider reports as gone.
type Dispatcher struct {
	senders Senders
	devices DeviceStore
	log     zerolog.Logger
	tracer  trace.Tracer
	sends   metric.Int64Counter
}

// NewDispatcher returns a Dispatcher instrumented with the global tracer and meter providers.
func NewDispatcher(senders Senders, devices DeviceStore, log zerolog.Logger) (*Dispatcher, error) {
	return newDispatcher(senders, devices, log, otel.GetTracerProvider(), otel.GetMeterProvider())
}

func newDispatcher(senders Senders, devices DeviceStore, log zerolog.Logger, tp trace.TracerProvider, mp metric.MeterProvider) (*Dispatcher, error) {
	sends, err := mp.Meter(instrumentationName).Int64Counter("notify.sends",
		metric.WithDescription("Push notification send attempts by platform and outcome."))
	if err != nil {
		return nil, fmt.Errorf("notify: counter: %w", err)
	}
	return &Dispatcher{
		senders: senders,
		devices: devices,
		log:     log.With().Str("component", "dispatcher").Logger(),
		tracer:  tp.Tracer(instrumentationName),
		sends:   sends,
	}, nil
}

// Send delivers title and body to one registration.
//
// A WebPush subscription the push service reports as gone is deleted and Send returns nil.
// An FCM token reported UNREGISTERED is deleted and the delivery error is still returned.
// Deletes match payload as stored.
// Telegram receives "title: body".
func (d *Dispatcher) Send(ctx context.Context, platform domain.Platform, payload, title, body string) error {
	_, err := d.send(ctx, platform, payload, channel.Notification{Title: title, Body: body})
	return err
}

func (d *Dispatcher) send(ctx context.Context, platform domain.Platform, payload string, n channel.Notification) (out outcome, err error) {
	ctx, span := d.tracer.Start(ctx, "notify.Send", trace.WithAttributes(attribute.String("notify.platform", string(platform))))
	defer func() {
		span.SetAttributes(attribute.String("notify.outcome", string(out)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		d.sends.Add(ctx, 1, metric.WithAttributes(
			attribute.String("platform", string(platform)),
			attribute.String("outcome", string(out)),
		))
	}()

	target, err := ParseTarget(platform, payload)
	if err != nil {
		return outcomeFailed, err
	}

	switch t := target.(type) {
	case FCMTarget:
		if d.senders.FCM == nil {
			return outcomeFailed, fmt.Errorf("%w: %s", ErrChannelDisabled, platform)
		}
		err = d.senders.FCM.Send(ctx, t.Token, n)
		if ce, ok := channel.AsError(err); ok && ce.Code == fcm.CodeUnregistered {
			removed, delErr := d.devices.DeleteByPayload(ctx, domain.PlatformFCM, payload)
			if delErr != nil {
				return outcomeFailed, errors.Join(err, delErr)
			}
			if removed == 0 {
				return outcomeFailed, err
			}
			d.log.Info().Int64("removed", removed).Msg("removed unregistered FCM token")
			return outcomePruned, err
		}
	case WebPushTarget:
		if d.senders.WebPush == nil {
			return outcomeFailed, fmt.Errorf("%w: %s", ErrChannelDisabled, platform)
		}
		err = d.senders.WebPush.Send(ctx, t.Subscription, n)
		if ce, ok := channel.AsError(err); ok && ce.IsGone() {
			removed, delErr := d.devices.DeleteByEndpoint(ctx, t.Subscription.Endpoint)
			if delErr != nil {
				return outcomeFailed, delErr
			}
			if removed == 0 {
				return outcomeGone, nil
			}
			d.log.Info().Int("status", ce.Status).Int64("removed", removed).Msg("removed expired WebPush subscription")
			return outcomePruned, nil
		}
	case TelegramTarget:
		if d.senders.Telegram == nil {
			return outcomeFailed, fmt.Errorf("%w: %s", ErrChannelDisabled, platform)
		}
		err = d.senders.Telegram.SendMessage(ctx, t.ChatID, n.Title+": "+n.Body)
	}
	if err != nil {
		return outcomeFailed, err
	}
	return outcomeDelivered, nil
}

// Failure is one device that did not receive the notification.
type Failure struct {
	DeviceID string
	Platform domain.Platform
	Err      error
}

// Report summarises a bulk send.
type Report struct {
	Attempted int
	Delivered int
	// Pruned counts registrations removed because the provider reported them gone.
	Pruned   int
	Failures []Failure
}

// AllFailed reports whether there were devices and every one of them failed. A
// subscription removed as gone is not a failure.
func (r Report) AllFailed() bool {
	return r.Attempted > 0 && len(r.Failures) == r.Attempted
}

// SendBulk sends to each device in order. It never fails as a whole; per-device errors are
// logged and collected in the report.
func (d *Dispatcher) SendBulk(ctx context.Context, devices []*domain.Device, title, body string) Report {
	n := channel.Notification{Title: title, Body: body}
	var r Report
	for _, dev := range devices {
		if dev == nil {
			continue
		}
		r.Attempted++
		out, err := d.send(ctx, dev.Platform, dev.Payload, n)
		if out == outcomePruned {
			r.Pruned++
		}
		if err != nil {
			d.log.Warn().Err(err).Str("device_id", dev.ID).Str("platform", string(dev.Platform)).Msg("notification send failed")
			r.Failures = append(r.Failures, Failure{DeviceID: dev.ID, Platform: dev.Platform, Err: err})
			continue
		}
		if out == outcomeDelivered {
			r.Delivered++
			d.log.Debug().Str("device_id", dev.ID).Str("platform", string(dev.Platform)).Msg("notification sent")
		}
	}
	return r
}
