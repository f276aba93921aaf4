// Package discord publishes incidents to Discord channels through the REST
// API with a bot token.
package discord

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/MattIPv4/Discord-Status/internal/httpclient"
	"github.com/MattIPv4/Discord-Status/internal/publish"
	"github.com/MattIPv4/Discord-Status/internal/statuspage"
)

const (
	DefaultAPIBase = "https://discord.com/api/v10"
	WebBase        = "https://discord.com/channels"

	// MaxMessage is the character limit of a message's content.
	MaxMessage = 2000
)

// Config configures one bot.
type Config struct {
	Token     string
	APIBase   string
	UserAgent string
	Timeout   time.Duration
	// Icons maps a status indicator to an image file used as the bot avatar.
	Icons map[string]string
}

// Bot is an authenticated Discord bot user.
type Bot struct {
	http  *httpclient.Client
	api   string
	icons map[string]string
}

// NewBot builds a bot client.
func NewBot(cfg Config) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord: bot token is required")
	}
	api := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if api == "" {
		api = DefaultAPIBase
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "DiscordBot (https://github.com/MattIPv4/Discord-Status, 1.0)"
	}
	hc := httpclient.New(cfg.Timeout, cfg.UserAgent).WithHeader("Authorization", "Bot "+strings.TrimSpace(cfg.Token))
	return &Bot{http: hc, api: api, icons: cfg.Icons}, nil
}

// Channel is a publish target. Announce crossposts from announcement channels.
type Channel struct {
	bot      *Bot
	id       string
	guildID  string
	announce bool
}

// Channel returns the publisher for one channel. guildID is only used to
// build message links and may be empty.
func (b *Bot) Channel(id, guildID string, announce bool) *Channel {
	return &Channel{bot: b, id: strings.TrimSpace(id), guildID: strings.TrimSpace(guildID), announce: announce}
}

func (c *Channel) Target() publish.Target {
	return publish.Target{Kind: publish.Discord, Name: c.id}
}

// FormatMessage lays a rendered post out as one message.
func FormatMessage(content publish.Content) string {
	if content.Title == "" {
		return content.Body
	}
	return "**" + content.Title + "**\n\n" + content.Body
}

type messagePayload struct {
	Content         string          `json:"content"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

// no pings from relayed text
type allowedMentions struct {
	Parse []string `json:"parse"`
}

func payload(text string) messagePayload {
	return messagePayload{Content: text, AllowedMentions: allowedMentions{Parse: []string{}}}
}

func (c *Channel) Create(ctx context.Context, content publish.Content) publish.Result {
	text := FormatMessage(content)
	if utf8.RuneCountInString(text) > MaxMessage {
		return publish.Failed(publish.ErrContentTooLong)
	}
	body, err := c.bot.http.SendJSON(ctx, http.MethodPost, c.messagesURL(""), payload(text))
	if err != nil {
		return publish.Failed(fmt.Errorf("send to channel %s: %w", c.id, err))
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return publish.Failed(fmt.Errorf("send to channel %s: response carries no message id", c.id))
	}
	return publish.Result{ExternalID: id, Link: c.link(id)}
}

// Amend fetches the message and edits it with text appended.
func (c *Channel) Amend(ctx context.Context, externalID, appended string) publish.Result {
	body, err := c.bot.http.Get(ctx, c.messagesURL(externalID))
	if err != nil {
		return publish.Failed(fmt.Errorf("fetch message %s: %w", externalID, err))
	}
	current := gjson.GetBytes(body, "content")
	if !current.Exists() {
		return publish.Failed(fmt.Errorf("fetch message %s: no content field", externalID))
	}
	text := current.String() + appended
	if utf8.RuneCountInString(text) > MaxMessage {
		return publish.Failed(publish.ErrContentTooLong)
	}
	if _, err := c.bot.http.SendJSON(ctx, http.MethodPatch, c.messagesURL(externalID), payload(text)); err != nil {
		return publish.Failed(fmt.Errorf("edit message %s: %w", externalID, err))
	}
	return publish.Result{ExternalID: externalID, Link: c.link(externalID)}
}

// Announce crossposts the message to following servers.
func (c *Channel) Announce(ctx context.Context, externalID string) error {
	if !c.announce {
		return nil
	}
	_, err := c.bot.http.SendJSON(ctx, http.MethodPost, c.messagesURL(externalID)+"/crosspost", nil)
	return err
}

func (c *Channel) messagesURL(id string) string {
	u := c.bot.api + "/channels/" + c.id + "/messages"
	if id != "" {
		u += "/" + id
	}
	return u
}

func (c *Channel) link(id string) string {
	if c.guildID == "" {
		return ""
	}
	return WebBase + "/" + c.guildID + "/" + c.id + "/" + id
}

// SetIcon swaps the bot avatar for the image configured for the indicator.
// Indicators without an image are ignored.
func (b *Bot) SetIcon(ctx context.Context, ind statuspage.Indicator) error {
	path, ok := b.icons[string(ind)]
	if !ok || path == "" {
		return nil
	}
	uri, err := dataURI(path)
	if err != nil {
		return err
	}
	_, err = b.http.SendJSON(ctx, http.MethodPatch, b.api+"/users/@me", map[string]string{"avatar": uri})
	return err
}

func dataURI(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read icon: %w", err)
	}
	mime := http.DetectContentType(raw)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("icon %s is %s, not an image", path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
