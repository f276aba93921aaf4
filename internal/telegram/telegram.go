// Package telegram publishes incidents to a Telegram chat or channel via the
// Bot API. Bots cannot read back message text, so amendments are posted as
// replies threaded under the original message.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MattIPv4/Discord-Status/internal/publish"
	"github.com/MattIPv4/Discord-Status/internal/statuspage"
)

// MaxMessage is the Bot API limit on message text.
const MaxMessage = 4096

// Bot is the subset of *tgbotapi.BotAPI used here.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// BotFactory creates Bot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (Bot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (Bot, error) {
	return tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
}

// Config configures one chat target.
type Config struct {
	Token string
	// Chat is a numeric chat id or an @channel username.
	Chat        string
	APIEndpoint string
	Timeout     time.Duration
	Pin         bool
	// Icons maps a status indicator to an image used as the chat photo.
	Icons map[string]string
}

// Chat is a publish target.
type Chat struct {
	bot      Bot
	chatID   int64
	username string
	pin      bool
	icons    map[string]string
}

// New connects to the Bot API.
func New(cfg Config) (*Chat, error) {
	return NewWithFactory(cfg, defaultBotFactory)
}

// NewWithFactory creates a Chat with a custom bot factory (for testing)
func NewWithFactory(cfg Config, factory BotFactory) (*Chat, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	c := &Chat{pin: cfg.Pin, icons: cfg.Icons}
	chat := strings.TrimSpace(cfg.Chat)
	switch {
	case strings.HasPrefix(chat, "@") && len(chat) > 1:
		c.username = chat
	default:
		id, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram: chat %q is neither an id nor an @username", cfg.Chat)
		}
		c.chatID = id
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	bot, err := factory(strings.TrimSpace(cfg.Token), endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	c.bot = bot
	return c, nil
}

func (c *Chat) Target() publish.Target {
	return publish.Target{Kind: publish.Telegram, Name: c.name()}
}

func (c *Chat) name() string {
	if c.username != "" {
		return c.username
	}
	return strconv.FormatInt(c.chatID, 10)
}

func (c *Chat) message(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if c.username != "" {
		msg = tgbotapi.NewMessageToChannel(c.username, text)
	} else {
		msg = tgbotapi.NewMessage(c.chatID, text)
	}
	msg.DisableWebPagePreview = true
	return msg
}

func (c *Chat) send(text string, replyTo int) (tgbotapi.Message, error) {
	if utf8.RuneCountInString(text) > MaxMessage {
		return tgbotapi.Message{}, publish.ErrContentTooLong
	}
	msg := c.message(text)
	msg.ReplyToMessageID = replyTo
	return c.bot.Send(msg)
}

func (c *Chat) Create(_ context.Context, content publish.Content) publish.Result {
	text := content.Body
	if content.Title != "" {
		text = content.Title + "\n\n" + content.Body
	}
	sent, err := c.send(text, 0)
	if err != nil {
		return publish.Failed(fmt.Errorf("send to %s: %w", c.name(), err))
	}
	id := strconv.Itoa(sent.MessageID)
	return publish.Result{ExternalID: id, Link: c.link(id)}
}

// Amend posts the appended text as a reply to the original message.
func (c *Chat) Amend(_ context.Context, externalID, appended string) publish.Result {
	msgID, err := strconv.Atoi(externalID)
	if err != nil {
		return publish.Failed(fmt.Errorf("bad message id %q", externalID))
	}
	text := strings.TrimSpace(appended)
	if text == "" {
		return publish.Result{ExternalID: externalID, Link: c.link(externalID)}
	}
	if _, err := c.send(text, msgID); err != nil {
		return publish.Failed(fmt.Errorf("reply to %s/%d: %w", c.name(), msgID, err))
	}
	return publish.Result{ExternalID: externalID, Link: c.link(externalID)}
}

// Announce pins the message when pinning is enabled.
func (c *Chat) Announce(_ context.Context, externalID string) error {
	if !c.pin {
		return nil
	}
	msgID, err := strconv.Atoi(externalID)
	if err != nil {
		return fmt.Errorf("bad message id %q", externalID)
	}
	_, err = c.bot.Request(tgbotapi.PinChatMessageConfig{
		ChatID:          c.chatID,
		ChannelUsername: c.username,
		MessageID:       msgID,
	})
	return err
}

// SetIcon replaces the chat photo with the image configured for the indicator.
func (c *Chat) SetIcon(_ context.Context, ind statuspage.Indicator) error {
	path, ok := c.icons[string(ind)]
	if !ok || path == "" {
		return nil
	}
	_, err := c.bot.Request(tgbotapi.SetChatPhotoConfig{
		BaseFile: tgbotapi.BaseFile{
			BaseChat: tgbotapi.BaseChat{ChatID: c.chatID, ChannelUsername: c.username},
			File:     tgbotapi.FilePath(path),
		},
	})
	return err
}

// link builds a t.me link; private groups without a -100 supergroup id have none.
func (c *Chat) link(id string) string {
	if c.username != "" {
		return "https://t.me/" + strings.TrimPrefix(c.username, "@") + "/" + id
	}
	if s := strconv.FormatInt(c.chatID, 10); strings.HasPrefix(s, "-100") {
		return "https://t.me/c/" + strings.TrimPrefix(s, "-100") + "/" + id
	}
	return ""
}
