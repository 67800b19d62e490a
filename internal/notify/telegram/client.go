// Package telegram talks to the Telegram Bot API: message delivery, update polling and chat linking.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"splan/backend/internal/notify/channel"
)

const (
	defaultTimeout = 15 * time.Second

	// Platform is the channel tag reported in errors.
	Platform = "TG"
)

// Client wraps a bot API handle for one bot token.
type Client struct {
	api *tgbotapi.BotAPI
}

// New returns a Client for the bot token. It calls getMe, so an invalid token fails here.
// The HTTP timeout leaves room for a getUpdates long poll of pollTimeout.
func New(token string, pollTimeout time.Duration) (*Client, error) {
	return newClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: pollTimeout + defaultTimeout})
}

func newClient(token, endpoint string, hc tgbotapi.HTTPClient) (*Client, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, hc)
	if err != nil {
		return nil, apiError(err)
	}
	return &Client{api: api}, nil
}

// Username is the bot's @username as reported by getMe.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// ParseChatID parses a stored TG device payload.
func ParseChatID(payload string) (int64, error) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q", payload)
	}
	return id, nil
}

// SendMessage posts text to chatID. Failures are returned as *channel.Error with the
// API description as Code. The bot API takes no context, so ctx is only checked before sending.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return &channel.Error{Platform: Platform, Err: err}
	}
	_, err := c.api.Send(tgbotapi.NewMessage(chatID, text))
	return apiError(err)
}

// Updates starts long-polling for message updates, waiting up to timeout per poll.
// StopUpdates ends polling and closes the channel.
func (c *Client) Updates(timeout time.Duration) tgbotapi.UpdatesChannel {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(timeout / time.Second)
	cfg.AllowedUpdates = []string{"message"}
	return c.api.GetUpdatesChan(cfg)
}

// StopUpdates stops the poller started by Updates. Call it at most once.
func (c *Client) StopUpdates() {
	c.api.StopReceivingUpdates()
}

// apiError maps bot API failures to *channel.Error. Transport errors drop the request
// URL, which embeds the bot token.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	var te *tgbotapi.Error
	if errors.As(err, &te) {
		return &channel.Error{Platform: Platform, Status: te.Code, Code: te.Message}
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	return &channel.Error{Platform: Platform, Err: err}
}

// SetLogger routes the bot library's own log lines through log, with token redacted.
func SetLogger(log zerolog.Logger, token string) {
	_ = tgbotapi.SetLogger(libLogger{log: log.With().Str("component", "telegram_api").Logger(), token: token})
}

type libLogger struct {
	log   zerolog.Logger
	token string
}

func (l libLogger) redact(s string) string {
	if l.token == "" {
		return s
	}
	return strings.ReplaceAll(s, l.token, "<token>")
}

func (l libLogger) Println(v ...interface{}) {
	l.log.Warn().Msg(l.redact(strings.TrimSuffix(fmt.Sprintln(v...), "\n")))
}

func (l libLogger) Printf(format string, v ...interface{}) {
	l.log.Warn().Msg(l.redact(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n")))
}
