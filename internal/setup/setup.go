package setup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/robfig/cron/v3"

	"github.com/MattIPv4/Discord-Status/internal/config"
	"github.com/MattIPv4/Discord-Status/internal/launchd"
)

// Run executes the interactive setup flow:
// 1) greet and decide whether to replace an existing config
// 2) ask for subreddits, Discord channels and Telegram chats
// 3) ask for the schedule
// 4) write config and install the launchd agent (macOS)
//
// Secrets are never prompted for; the written config references them as
// environment variables.
func Run(ctx context.Context, cfgPath string) error {
	if strings.TrimSpace(cfgPath) == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return err
		}
		cfgPath = p
	}
	cfgExists := fileExists(cfgPath)

	p := tea.NewProgram(newWizardModel(cfgExists), tea.WithContext(ctx))
	res, err := p.Run()
	if err != nil {
		return err
	}
	wm, ok := res.(*wizardModel)
	if !ok || wm.cancelled {
		return errors.New("setup cancelled")
	}

	cfg := config.DefaultConfig()
	if wm.override {
		cfg = wm.apply(cfg)
		written, err := config.WriteConfig(cfgPath, cfg)
		if err != nil {
			return err
		}
		fmt.Printf("\nConfig written to %s\n", written)
	} else if existing, err := config.Load(cfgPath); err == nil {
		cfg = existing
		cfg.Schedule = wm.schedule
	}

	if runtime.GOOS == "darwin" {
		fmt.Println("\nInstalling launchd agent to run on a schedule…")
		if err := installAgent(cfgPath, cfg.Schedule); err != nil {
			fmt.Printf("launchd install failed: %v\n", err)
		} else {
			fmt.Println("launchd agent installed and loaded.")
		}
	} else {
		fmt.Println("\nNote: Automatic scheduling is only implemented for macOS (launchd).\nUse 'discord-status watch' or cron/systemd running 'discord-status run' periodically.")
	}

	fmt.Println("\nSetup complete!")
	fmt.Println("- Export REDDIT_CLIENT_ID, REDDIT_CLIENT_SECRET, REDDIT_USERNAME, REDDIT_PASSWORD, DISCORD_BOT_TOKEN and TELEGRAM_BOT_TOKEN as needed")
	fmt.Printf("- Edit %s to configure status icons\n", cfgPath)
	return nil
}

func installAgent(cfgPath, schedule string) error {
	every, err := launchd.IntervalFromSchedule(schedule)
	if err != nil {
		return err
	}
	exe, _ := os.Executable()
	home, _ := os.UserHomeDir()
	logPath := filepath.Join(home, "Library", "Logs", "Discord-Status", "relay.launchd.log")
	_, err = launchd.Install(launchd.InstallOptions{
		Label:       launchd.DefaultLabel,
		Interval:    every,
		ProgramPath: exe,
		ProgramArgs: []string{"--config", cfgPath, "run"},
		StdOutPath:  logPath,
		StdErrPath:  logPath,
	})
	return err
}

// -------------- Bubble Tea Wizard --------------
type wizardStep int

const (
	stepIntro wizardStep = iota
	stepConfigChoice
	stepSubreddits
	stepDiscord
	stepTelegram
	stepSchedule
	stepSummary
	stepDone
)

type wizardModel struct {
	step      wizardStep
	hasCfg    bool
	override  bool
	cancelled bool

	subredditInput textinput.Model
	discordInput   textinput.Model
	telegramInput  textinput.Model
	scheduleInput  textinput.Model

	subreddits []string
	channels   []config.DiscordChannel
	chats      []string
	schedule   string

	errMsg string
}

func newWizardModel(hasCfg bool) *wizardModel {
	sub := textinput.New()
	sub.Placeholder = "discordstatus"

	disc := textinput.New()
	disc.Placeholder = "guild_id/channel_id, ... (optional)"

	tg := textinput.New()
	tg.Placeholder = "@channel or -100123..., ... (optional)"

	sched := textinput.New()
	sched.Placeholder = config.DefaultConfig().Schedule

	return &wizardModel{
		step:           stepIntro,
		hasCfg:         hasCfg,
		subredditInput: sub,
		discordInput:   disc,
		telegramInput:  tg,
		scheduleInput:  sched,
		schedule:       config.DefaultConfig().Schedule,
	}
}

func (m *wizardModel) Init() tea.Cmd { return nil }

func (m *wizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if key.Type == tea.KeyCtrlC || key.Type == tea.KeyEsc {
		m.cancelled = true
		return m, tea.Quit
	}
	enter := key.Type == tea.KeyEnter

	switch m.step {
	case stepIntro:
		if enter {
			if m.hasCfg {
				m.step = stepConfigChoice
			} else {
				m.override = true
				return m, m.goTo(stepSubreddits)
			}
		}
	case stepConfigChoice:
		if key.Type == tea.KeyRunes {
			switch strings.ToLower(string(key.Runes)) {
			case "o":
				m.override = true
				return m, m.goTo(stepSubreddits)
			case "k":
				m.override = false
				return m, m.goTo(stepSchedule)
			}
		}
	case stepSubreddits:
		if enter {
			m.subreddits = splitCSV(m.subredditInput.Value())
			if len(m.subreddits) == 0 {
				m.subreddits = []string{"discordstatus"}
			}
			return m, m.goTo(stepDiscord)
		}
		return m.updateInput(&m.subredditInput, key)
	case stepDiscord:
		if enter {
			chans, err := parseChannels(m.discordInput.Value())
			if err != nil {
				m.errMsg = err.Error()
				return m, nil
			}
			m.channels = chans
			return m, m.goTo(stepTelegram)
		}
		return m.updateInput(&m.discordInput, key)
	case stepTelegram:
		if enter {
			m.chats = splitCSV(m.telegramInput.Value())
			return m, m.goTo(stepSchedule)
		}
		return m.updateInput(&m.telegramInput, key)
	case stepSchedule:
		if enter {
			v := strings.TrimSpace(m.scheduleInput.Value())
			if v == "" {
				v = config.DefaultConfig().Schedule
			}
			if _, err := cron.ParseStandard(v); err != nil {
				m.errMsg = fmt.Sprintf("Invalid schedule: %v", err)
				return m, nil
			}
			m.schedule = v
			m.step = stepSummary
			m.errMsg = ""
			return m, nil
		}
		return m.updateInput(&m.scheduleInput, key)
	case stepSummary:
		if enter {
			m.step = stepDone
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *wizardModel) goTo(step wizardStep) tea.Cmd {
	m.step = step
	m.errMsg = ""
	for _, in := range []*textinput.Model{&m.subredditInput, &m.discordInput, &m.telegramInput, &m.scheduleInput} {
		in.Blur()
	}
	switch step {
	case stepSubreddits:
		return m.subredditInput.Focus()
	case stepDiscord:
		return m.discordInput.Focus()
	case stepTelegram:
		return m.telegramInput.Focus()
	case stepSchedule:
		return m.scheduleInput.Focus()
	}
	return nil
}

func (m *wizardModel) updateInput(in *textinput.Model, key tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	*in, cmd = in.Update(key)
	return m, cmd
}

// apply copies the collected answers over base.
func (m *wizardModel) apply(base config.Config) config.Config {
	base.Schedule = m.schedule
	if len(m.subreddits) > 0 {
		base.Reddit.Enabled = true
		base.Reddit.Subreddits = m.subreddits
	}
	base.Discord.Channels = m.channels
	base.Telegram.Chats = nil
	for _, c := range m.chats {
		base.Telegram.Chats = append(base.Telegram.Chats, config.TelegramChat{Chat: c})
	}
	return base
}

func (m *wizardModel) View() string {
	b := &strings.Builder{}
	switch m.step {
	case stepIntro:
		fmt.Fprintln(b, "Welcome to Discord Status setup!")
		fmt.Fprintln(b, "This wizard will configure where incidents are relayed and how often the status page is checked.")
		fmt.Fprintln(b, "\nPress Enter to begin · Esc to quit")
	case stepConfigChoice:
		fmt.Fprintln(b, "Found an existing config.")
		fmt.Fprintln(b, "Override it (will create a .bak) or keep it?")
		fmt.Fprintln(b, "[o] Override    [k] Keep existing")
	case stepSubreddits:
		fmt.Fprintln(b, "Step 1 – Reddit")
		fmt.Fprintln(b, "Subreddits to post incidents to, separated by commas [discordstatus]:")
		fmt.Fprintln(b, m.subredditInput.View())
	case stepDiscord:
		fmt.Fprintln(b, "Step 2 – Discord")
		fmt.Fprintln(b, "Channels to post incidents to, as guild_id/channel_id separated by commas.")
		fmt.Fprintln(b, "Leave empty to skip.")
		fmt.Fprintln(b, m.discordInput.View())
	case stepTelegram:
		fmt.Fprintln(b, "Step 3 – Telegram")
		fmt.Fprintln(b, "Chats to post incidents to, separated by commas. Leave empty to skip.")
		fmt.Fprintln(b, m.telegramInput.View())
	case stepSchedule:
		fmt.Fprintln(b, "Step 4 – Schedule")
		fmt.Fprintf(b, "How often should the status page be checked? [%s]:\n", config.DefaultConfig().Schedule)
		fmt.Fprintln(b, m.scheduleInput.View())
	case stepSummary:
		fmt.Fprintln(b, "Summary")
		fmt.Fprintf(b, "Schedule: %s\n", m.schedule)
		if m.override {
			fmt.Fprintf(b, "Subreddits: %s\n", strings.Join(m.subreddits, ", "))
			for _, c := range m.channels {
				fmt.Fprintf(b, "Discord channel: %s (guild %s)\n", c.ID, c.GuildID)
			}
			for _, c := range m.chats {
				fmt.Fprintf(b, "Telegram chat: %s\n", c)
			}
		} else {
			fmt.Fprintln(b, "\nKeeping existing config. Only the launchd schedule will be installed/updated.")
		}
		fmt.Fprintln(b, "\nPress Enter to finish · Esc to cancel")
	case stepDone:
		fmt.Fprintln(b, "Finishing…")
	}
	if m.errMsg != "" {
		fmt.Fprintf(b, "\n%s\n", m.errMsg)
	}
	if m.step >= stepSubreddits && m.step <= stepSchedule {
		fmt.Fprintln(b, "\nPress Enter to continue")
	}
	return b.String()
}

// parseChannels reads "guild/channel" or bare "channel" entries.
func parseChannels(s string) ([]config.DiscordChannel, error) {
	var out []config.DiscordChannel
	for _, v := range splitCSV(s) {
		guild, id, found := strings.Cut(v, "/")
		if !found {
			guild, id = "", v
		}
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("invalid Discord channel %q", v)
		}
		out = append(out, config.DiscordChannel{ID: strings.TrimSpace(id), GuildID: strings.TrimSpace(guild), Announce: true})
	}
	return out, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		v := strings.TrimSpace(p)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	if _, err := os.Stat(p); err == nil {
		return true
	}
	return false
}
