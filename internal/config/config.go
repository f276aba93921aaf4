package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

type ConfigLoad func() (Config, error)

// Loader returns a ConfigLoad reading path, or the default location when
// path is empty.
func Loader(path string) ConfigLoad {
	return func() (Config, error) {
		return Load(path)
	}
}

type Config struct {
	DatabasePath     string `yaml:"database_path"`
	LogFile          string `yaml:"log_file"`
	LogLevel         string `yaml:"log_level"`
	TemplatesDir     string `yaml:"templates_dir"`
	DiscoveryBacklog string `yaml:"discovery_backlog"`
	Schedule         string `yaml:"schedule"`

	StatusPage StatusPage `yaml:"status_page"`
	Reddit     Reddit     `yaml:"reddit"`
	Discord    Discord    `yaml:"discord"`
	Telegram   Telegram   `yaml:"telegram"`
}

type StatusPage struct {
	BaseURL        string `yaml:"base_url"`
	Service        string `yaml:"service"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
}

type Reddit struct {
	Enabled      bool     `yaml:"enabled"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	UserAgent    string   `yaml:"user_agent"`
	Subreddits   []string `yaml:"subreddits"`
	Corrections  bool     `yaml:"corrections"`
	APIBase      string   `yaml:"api_base,omitempty"`
	TokenURL     string   `yaml:"token_url,omitempty"`
}

type Discord struct {
	Token    string            `yaml:"token"`
	APIBase  string            `yaml:"api_base,omitempty"`
	Channels []DiscordChannel  `yaml:"channels"`
	Icons    map[string]string `yaml:"icons"`
}

type DiscordChannel struct {
	ID       string `yaml:"id"`
	GuildID  string `yaml:"guild_id"`
	Announce bool   `yaml:"announce"`
}

type Telegram struct {
	Token       string            `yaml:"token"`
	APIEndpoint string            `yaml:"api_endpoint,omitempty"`
	Chats       []TelegramChat    `yaml:"chats"`
	Icons       map[string]string `yaml:"icons"`
}

type TelegramChat struct {
	Chat string `yaml:"chat"`
	Pin  bool   `yaml:"pin"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:     FallbackDBPath(),
		LogLevel:         "info",
		DiscoveryBacklog: "drop",
		Schedule:         "@every 2m",
		StatusPage: StatusPage{
			BaseURL:        "https://discordstatus.com/api/v2",
			Service:        "Discord",
			TimeoutSeconds: 20,
			UserAgent:      "discord-status (+https://github.com/MattIPv4/Discord-Status)",
		},
		Reddit: Reddit{
			Subreddits:  []string{"discordstatus"},
			Corrections: true,
		},
	}
}

func FallbackDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "discord-status.db"
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Discord-Status", "ledger.db")
	}
	return filepath.Join(home, ".local", "share", "discord-status", "ledger.db")
}

// DefaultConfigPath is ~/.config/discord-status/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "discord-status", "config.yaml"), nil
}

// Load reads path over the defaults. A missing file at the default location
// yields the defaults; a missing explicit path is an error.
func Load(path string) (Config, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		p, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	cfg := DefaultConfig()
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg.resolve()
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg.resolve()
}

// resolve expands paths and ${VAR} references in secrets, then validates.
func (c Config) resolve() (Config, error) {
	c.DatabasePath = ExpandPath(c.DatabasePath)
	c.LogFile = ExpandPath(c.LogFile)
	c.TemplatesDir = ExpandPath(c.TemplatesDir)

	c.Reddit.ClientID = expandSecret(c.Reddit.ClientID)
	c.Reddit.ClientSecret = expandSecret(c.Reddit.ClientSecret)
	c.Reddit.Username = expandSecret(c.Reddit.Username)
	c.Reddit.Password = expandSecret(c.Reddit.Password)
	c.Discord.Token = expandSecret(c.Discord.Token)
	c.Telegram.Token = expandSecret(c.Telegram.Token)

	c.Discord.Icons = expandPaths(c.Discord.Icons)
	c.Telegram.Icons = expandPaths(c.Telegram.Icons)

	if c.StatusPage.TimeoutSeconds <= 0 {
		c.StatusPage.TimeoutSeconds = 20
	}
	return c, c.Validate()
}

// Validate reports configuration that cannot produce a working cycle.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabasePath) == "" {
		errs = append(errs, errors.New("database_path is empty"))
	}
	if strings.TrimSpace(c.StatusPage.BaseURL) == "" {
		errs = append(errs, errors.New("status_page.base_url is empty"))
	}
	switch strings.ToLower(strings.TrimSpace(c.DiscoveryBacklog)) {
	case "", "drop", "fold":
	default:
		errs = append(errs, fmt.Errorf("discovery_backlog %q must be drop or fold", c.DiscoveryBacklog))
	}
	if c.Reddit.Enabled {
		if c.Reddit.ClientID == "" || c.Reddit.Username == "" || c.Reddit.Password == "" {
			errs = append(errs, errors.New("reddit is enabled but client_id, username or password is missing"))
		}
	}
	if len(c.Discord.Channels) > 0 && c.Discord.Token == "" {
		errs = append(errs, errors.New("discord channels configured without a token"))
	}
	for i, ch := range c.Discord.Channels {
		if strings.TrimSpace(ch.ID) == "" {
			errs = append(errs, fmt.Errorf("discord.channels[%d] has no id", i))
		}
	}
	if len(c.Telegram.Chats) > 0 && c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram chats configured without a token"))
	}
	return errors.Join(errs...)
}

// ExpandPath expands leading ~ and environment variables in a filesystem path.
func ExpandPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
		}
	}
	return p
}

func expandSecret(s string) string {
	return strings.TrimSpace(os.ExpandEnv(s))
}

func expandPaths(m map[string]string) map[string]string {
	if len(m) == 0 {
		return m
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = ExpandPath(v)
	}
	return out
}
