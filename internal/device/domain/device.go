package domain

import (
	"errors"
	"strings"
	"time"
)

// Platform tags which push channel a device registration belongs to.
type Platform string

const (
	PlatformFCM      Platform = "FCM"
	PlatformWebPush  Platform = "WP"
	PlatformTelegram Platform = "TG"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformFCM, PlatformWebPush, PlatformTelegram:
		return true
	}
	return false
}

// Device is one push registration of a user. Payload is an FCM registration token,
// a JSON WebPush subscription, or a numeric Telegram chat id, depending on Platform.
type Device struct {
	ID        string
	UserID    int64
	Platform  Platform
	Payload   string
	CreatedAt time.Time
}

// Validate validates the device for persistence.
func (d *Device) Validate() error {
	if !d.Platform.Valid() {
		return errors.New("unknown platform")
	}
	if strings.TrimSpace(d.Payload) == "" {
		return errors.New("device payload is required")
	}
	return nil
}
