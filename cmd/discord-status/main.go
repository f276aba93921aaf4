package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"

	"github.com/MattIPv4/Discord-Status/internal/config"
	"github.com/MattIPv4/Discord-Status/internal/launchd"
	"github.com/MattIPv4/Discord-Status/internal/list"
	"github.com/MattIPv4/Discord-Status/internal/logging"
	"github.com/MattIPv4/Discord-Status/internal/relay"
	"github.com/MattIPv4/Discord-Status/internal/server"
	"github.com/MattIPv4/Discord-Status/internal/setup"
	"github.com/MattIPv4/Discord-Status/internal/tui"
	"github.com/MattIPv4/Discord-Status/internal/version"
)

func main() {
	app := &cli.Command{
		Name:    "discord-status",
		Usage:   "Relay status page incidents to Reddit, Discord and Telegram",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to config file (default ~/.config/discord-status/config.yaml)"},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a single relay cycle and exit",
				Flags: logFlags(),
				Action: func(ctx context.Context, c *cli.Command) error {
					_, err := relay.Run(ctx, runOptions(c), config.Loader(c.String("config")))
					return err
				},
			},
			{
				Name:  "watch",
				Usage: "Run relay cycles on the configured schedule until interrupted",
				Flags: append(logFlags(),
					&cli.StringFlag{Name: "schedule", Usage: "Override the schedule from config (cron spec or @every)"},
				),
				Action: watch,
			},
			{
				Name:  "list",
				Usage: "List ledgered incidents",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Number of incidents to show", Value: 20},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return list.Run(ctx, config.Loader(c.String("config")), c.Int("limit"), os.Stdout)
				},
			},
			{
				Name:  "browse",
				Usage: "Browse ledgered incidents interactively",
				Action: func(ctx context.Context, c *cli.Command) error {
					return tui.Run(ctx, config.Loader(c.String("config")))
				},
			},
			{
				Name:  "server",
				Usage: "Run MCP server on stdio",
				Action: func(ctx context.Context, c *cli.Command) error {
					return server.Run(ctx, config.Loader(c.String("config")))
				},
			},
			{
				Name:  "init",
				Usage: "Write a starter config file",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Run the setup wizard"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Bool("interactive") {
						return setup.Run(ctx, c.String("config"))
					}
					path := c.String("config")
					if path == "" {
						var err error
						if path, err = config.DefaultConfigPath(); err != nil {
							return err
						}
					}
					written, err := config.WriteConfig(path, config.DefaultConfig())
					if err != nil {
						return err
					}
					fmt.Printf("Config written to %s\n", written)
					return nil
				},
			},
			{
				Name:  "schedule",
				Usage: "Manage the launchd agent (macOS)",
				Commands: []*cli.Command{
					{
						Name:  "install",
						Usage: "Install launchd agent",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "label", Value: launchd.DefaultLabel, Usage: "launchd label"},
							&cli.StringFlag{Name: "log-file", Usage: "relay log file path"},
							&cli.StringFlag{Name: "plist", Usage: "custom plist path (default ~/Library/LaunchAgents/<label>.plist)"},
						},
						Action: install,
					},
					{
						Name:  "uninstall",
						Usage: "Uninstall launchd agent",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "label", Value: launchd.DefaultLabel, Usage: "launchd label"},
							&cli.StringFlag{Name: "plist", Usage: "path to plist (default ~/Library/LaunchAgents/<label>.plist)"},
						},
						Action: func(ctx context.Context, c *cli.Command) error {
							if err := launchd.Uninstall(c.String("label"), c.String("plist")); err != nil {
								return err
							}
							fmt.Println("launchd agent unloaded and removed")
							return nil
						},
					},
					{
						Name:  "status",
						Usage: "Show launchd agent state",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "label", Value: launchd.DefaultLabel, Usage: "launchd label"},
						},
						Action: func(ctx context.Context, c *cli.Command) error {
							label := c.String("label")
							loaded, state := launchd.Status(label)
							fmt.Printf("%s: %s\n", label, state)
							if !loaded {
								return nil
							}
							if p, err := launchd.DefaultAgentPath(label); err == nil {
								if every, err := launchd.ExtractStartInterval(p); err == nil {
									fmt.Printf("interval: %s\n", every)
								}
							}
							return nil
						},
					},
				},
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(ctx context.Context, c *cli.Command) error {
					fmt.Println(version.GetVersion())
					return nil
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func logFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "log-file", Usage: "Path to log file (default stderr)"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
	}
}

func runOptions(c *cli.Command) relay.Options {
	return relay.Options{LogFile: c.String("log-file"), LogLevel: c.String("log-level")}
}

// watch runs one cycle per schedule tick. A tick that lands while the
// previous cycle is still running is skipped.
func watch(ctx context.Context, c *cli.Command) error {
	load := config.Loader(c.String("config"))
	cfg, err := load()
	if err != nil {
		return err
	}
	spec := cfg.Schedule
	if v := strings.TrimSpace(c.String("schedule")); v != "" {
		spec = v
	}

	logger, closeLog, err := logging.New(config.ExpandPath(firstNonEmpty(c.String("log-file"), cfg.LogFile)), firstNonEmpty(c.String("log-level"), cfg.LogLevel))
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cronLog := cron.PrintfLogger(&logger)
	sched := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	_, err = sched.AddFunc(spec, func() {
		res, err := relay.Run(ctx, runOptions(c), load)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Str("run_id", res.RunID).Msg("cycle failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	logger.Info().Str("schedule", spec).Msg("watching")
	sched.Start()
	<-ctx.Done()
	<-sched.Stop().Done()
	logger.Info().Msg("stopped")
	return nil
}

func install(ctx context.Context, c *cli.Command) error {
	exe, _ := os.Executable()
	if strings.TrimSpace(exe) == "" {
		return fmt.Errorf("cannot discover program path")
	}
	cfg, err := config.Loader(c.String("config"))()
	if err != nil {
		return err
	}
	every, err := launchd.IntervalFromSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	args := []string{"run"}
	if v := c.String("config"); strings.TrimSpace(v) != "" {
		args = []string{"--config", v, "run"}
	}
	if v := c.String("log-file"); strings.TrimSpace(v) != "" {
		args = append(args, "--log-file", v)
	}
	path, err := launchd.Install(launchd.InstallOptions{
		Label:       c.String("label"),
		Interval:    every,
		ProgramPath: exe,
		ProgramArgs: args,
		StdOutPath:  c.String("log-file"),
		StdErrPath:  c.String("log-file"),
		PlistPath:   c.String("plist"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("launchd agent installed and loaded: %s\n", path)
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
