// Package notify fans notifications out to registered devices over their push channel.
package notify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	webpushgo "github.com/SherClockHolmes/webpush-go"

	"splan/backend/internal/device/domain"
	"splan/backend/internal/notify/telegram"
	"splan/backend/internal/notify/webpush"
)

// ErrInvalidTarget is returned when a stored registration cannot be turned into a Target.
var ErrInvalidTarget = errors.New("notify: invalid target")

// Target is a parsed device registration. The set of implementations is closed: FCMTarget,
// WebPushTarget and TelegramTarget.
type Target interface {
	Platform() domain.Platform
	// Payload is the normalised form a registration is stored under.
	Payload() string
	target()
}

// FCMTarget is a Firebase registration token.
type FCMTarget struct {
	Token string
}

// WebPushTarget is a browser push subscription.
type WebPushTarget struct {
	Subscription *webpushgo.Subscription
}

// TelegramTarget is a chat linked through the bot.
type TelegramTarget struct {
	ChatID int64
}

func (FCMTarget) Platform() domain.Platform      { return domain.PlatformFCM }
func (WebPushTarget) Platform() domain.Platform  { return domain.PlatformWebPush }
func (TelegramTarget) Platform() domain.Platform { return domain.PlatformTelegram }

func (t FCMTarget) Payload() string      { return t.Token }
func (t WebPushTarget) Payload() string  { return webpush.EncodeSubscription(t.Subscription) }
func (t TelegramTarget) Payload() string { return strconv.FormatInt(t.ChatID, 10) }

func (FCMTarget) target()      {}
func (WebPushTarget) target()  {}
func (TelegramTarget) target() {}

// ParseTarget decodes a stored payload for its platform.
func ParseTarget(platform domain.Platform, payload string) (Target, error) {
	switch platform {
	case domain.PlatformFCM:
		token := strings.TrimSpace(payload)
		if token == "" {
			return nil, fmt.Errorf("%w: empty FCM token", ErrInvalidTarget)
		}
		return FCMTarget{Token: token}, nil
	case domain.PlatformWebPush:
		sub, err := webpush.ParseSubscription(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
		}
		return WebPushTarget{Subscription: sub}, nil
	case domain.PlatformTelegram:
		chatID, err := telegram.ParseChatID(strings.TrimSpace(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
		}
		return TelegramTarget{ChatID: chatID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown platform %q", ErrInvalidTarget, platform)
	}
}
