package telegram

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"splan/backend/internal/device/domain"
	"splan/backend/internal/security"
)

// DefaultPollTimeout is how long one getUpdates call waits for an update.
const DefaultPollTimeout = 30 * time.Second

// ErrUpdatesClosed is returned by Run when polling stopped before ctx was done.
var ErrUpdatesClosed = errors.New("telegram: update channel closed")

// LinkStore persists pending link requests created by /start.
type LinkStore interface {
	Create(ctx context.Context, tokenHash string, chatID int64) error
}

// DeviceRemover deletes TG registrations when a chat sends /stop.
type DeviceRemover interface {
	DeleteByPayload(ctx context.Context, platform domain.Platform, payload string) (int64, error)
}

// Sender is the part of Client the bot replies through.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type updateSource interface {
	Sender
	Updates(timeout time.Duration) tgbotapi.UpdatesChannel
	StopUpdates()
}

// Bot answers /start with a one-time link to attach the chat to an account, and /stop
// by removing the chat's registrations.
type Bot struct {
	api         updateSource
	links       LinkStore
	devices     DeviceRemover
	linkURL     string
	log         zerolog.Logger
	pollTimeout time.Duration
}

func NewBot(client *Client, links LinkStore, devices DeviceRemover, linkURL string, log zerolog.Logger) *Bot {
	return &Bot{
		api:         client,
		links:       links,
		devices:     devices,
		linkURL:     linkURL,
		log:         log.With().Str("component", "telegram_bot").Logger(),
		pollTimeout: DefaultPollTimeout,
	}
}

// Run polls for updates until ctx is done. The bot library retries failed polls itself.
func (b *Bot) Run(ctx context.Context) error {
	updates := b.api.Updates(b.pollTimeout)
	defer b.api.StopUpdates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return ErrUpdatesClosed
			}
			if err := b.HandleUpdate(ctx, u); err != nil {
				b.log.Error().Err(err).Int("update_id", u.UpdateID).Msg("handle update failed")
			}
		}
	}
}

// HandleUpdate reacts to one update. Non-command messages are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) error {
	if u.Message == nil || u.Message.Chat == nil {
		return nil
	}
	chatID := u.Message.Chat.ID
	switch command(u.Message.Text) {
	case "/start":
		return b.start(ctx, chatID)
	case "/stop":
		return b.stop(ctx, chatID)
	}
	return nil
}

func (b *Bot) start(ctx context.Context, chatID int64) error {
	token, err := security.NewOpaqueToken()
	if err != nil {
		return err
	}
	if err := b.links.Create(ctx, security.HashOpaqueToken(token), chatID); err != nil {
		return err
	}
	link, err := linkFor(b.linkURL, token)
	if err != nil {
		return err
	}
	b.log.Debug().Int64("chat_id", chatID).Msg("link token issued")
	return b.api.SendMessage(ctx, chatID, "Open this link to receive notifications here: "+link)
}

func (b *Bot) stop(ctx context.Context, chatID int64) error {
	n, err := b.devices.DeleteByPayload(ctx, domain.PlatformTelegram, strconv.FormatInt(chatID, 10))
	if err != nil {
		return err
	}
	b.log.Info().Int64("chat_id", chatID).Int64("removed", n).Msg("chat unsubscribed")
	return b.api.SendMessage(ctx, chatID, "You will no longer receive notifications in this chat.")
}

// command returns the bot command in text, without arguments or @botname suffix.
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd)
}

func linkFor(base, token string) (string, error) {
	if base == "" {
		return "", errors.New("telegram: link url not configured")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
