package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WriteConfig writes a commented starter configuration to path (the default
// location when empty). Secrets are written as ${VAR} references, never
// inline. An existing database_path is preserved.
func WriteConfig(path string, cfg Config) (string, error) {
	if strings.TrimSpace(path) == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = p
	}
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	// Preserve existing database_path and keep a copy of whatever was there.
	if prev, err := loadExistingConfig(path); err == nil {
		if v, ok := prev["database_path"].(string); ok && strings.TrimSpace(v) != "" {
			cfg.DatabasePath = v
		}
	}
	if _, err := os.Stat(path); err == nil {
		if err := BackupFile(path); err != nil {
			return "", fmt.Errorf("back up existing config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# Discord Status relay configuration\n")
	sb.WriteString(fmt.Sprintf("database_path: %q\n", cfg.DatabasePath))
	sb.WriteString(fmt.Sprintf("log_level: %q\n", cfg.LogLevel))
	if cfg.LogFile != "" {
		sb.WriteString(fmt.Sprintf("log_file: %q\n", cfg.LogFile))
	}
	sb.WriteString("# directory with new.md, new_title.md, update.md, update_body.md, mod.md overrides\n")
	sb.WriteString(fmt.Sprintf("templates_dir: %q\n", cfg.TemplatesDir))
	sb.WriteString("# drop: older updates of a new incident are never appended; fold: append them after the post\n")
	sb.WriteString(fmt.Sprintf("discovery_backlog: %q\n", cfg.DiscoveryBacklog))
	sb.WriteString("# cron spec used by `discord-status watch`\n")
	sb.WriteString(fmt.Sprintf("schedule: %q\n", cfg.Schedule))

	sb.WriteString("status_page:\n")
	sb.WriteString(fmt.Sprintf("  base_url: %q\n", cfg.StatusPage.BaseURL))
	sb.WriteString(fmt.Sprintf("  service: %q\n", cfg.StatusPage.Service))
	sb.WriteString(fmt.Sprintf("  timeout_seconds: %d\n", cfg.StatusPage.TimeoutSeconds))
	sb.WriteString(fmt.Sprintf("  user_agent: %q\n", cfg.StatusPage.UserAgent))

	sb.WriteString("reddit:\n")
	sb.WriteString(fmt.Sprintf("  enabled: %t\n", cfg.Reddit.Enabled))
	sb.WriteString("  client_id: \"${REDDIT_CLIENT_ID}\"\n")
	sb.WriteString("  client_secret: \"${REDDIT_CLIENT_SECRET}\"\n")
	sb.WriteString("  username: \"${REDDIT_USERNAME}\"\n")
	sb.WriteString("  password: \"${REDDIT_PASSWORD}\"\n")
	sb.WriteString("  # moderators of these subreddits may append ?update notes\n")
	sb.WriteString(fmt.Sprintf("  corrections: %t\n", cfg.Reddit.Corrections))
	sb.WriteString("  subreddits:\n")
	for _, s := range cfg.Reddit.Subreddits {
		sb.WriteString(fmt.Sprintf("    - %s\n", strings.TrimSpace(s)))
	}

	sb.WriteString("discord:\n")
	sb.WriteString("  token: \"${DISCORD_BOT_TOKEN}\"\n")
	sb.WriteString("  # channels:\n")
	sb.WriteString("  #   - id: \"123456789012345678\"\n")
	sb.WriteString("  #     guild_id: \"123456789012345678\"\n")
	sb.WriteString("  #     announce: true\n")
	writeChannels(&sb, cfg.Discord.Channels)
	writeIcons(&sb, cfg.Discord.Icons)

	sb.WriteString("telegram:\n")
	sb.WriteString("  token: \"${TELEGRAM_BOT_TOKEN}\"\n")
	sb.WriteString("  # chats:\n")
	sb.WriteString("  #   - chat: \"@discordstatus\"\n")
	sb.WriteString("  #     pin: false\n")
	if len(cfg.Telegram.Chats) > 0 {
		sb.WriteString("  chats:\n")
		for _, c := range cfg.Telegram.Chats {
			sb.WriteString(fmt.Sprintf("    - chat: %q\n", c.Chat))
			sb.WriteString(fmt.Sprintf("      pin: %t\n", c.Pin))
		}
	}
	writeIcons(&sb, cfg.Telegram.Icons)

	return path, os.WriteFile(path, []byte(sb.String()), 0o600)
}

func writeChannels(sb *strings.Builder, chans []DiscordChannel) {
	if len(chans) == 0 {
		return
	}
	sb.WriteString("  channels:\n")
	for _, c := range chans {
		sb.WriteString(fmt.Sprintf("    - id: %q\n", c.ID))
		if c.GuildID != "" {
			sb.WriteString(fmt.Sprintf("      guild_id: %q\n", c.GuildID))
		}
		sb.WriteString(fmt.Sprintf("      announce: %t\n", c.Announce))
	}
}

func writeIcons(sb *strings.Builder, icons map[string]string) {
	if len(icons) == 0 {
		sb.WriteString("  # icons: {none: ~/icons/ok.png, minor: ~/icons/minor.png, major: ~/icons/major.png}\n")
		return
	}
	sb.WriteString("  icons:\n")
	for _, k := range []string{"none", "minor", "major", "critical", "maintenance"} {
		if v, ok := icons[k]; ok {
			sb.WriteString(fmt.Sprintf("    %s: %q\n", k, v))
		}
	}
}

// loadExistingConfig loads existing configuration from a file
func loadExistingConfig(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// BackupFile creates a backup of the specified file with a timestamp
func BackupFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ts := time.Now().Format("20060102-150405")
	bak := path + ".bak-" + ts
	return os.WriteFile(bak, b, 0o600)
}
