package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/parley/internal/config"
	"github.com/zulandar/parley/internal/dashboard"
	"github.com/zulandar/parley/internal/db"
	"github.com/zulandar/parley/internal/generate"
	"github.com/zulandar/parley/internal/prompt"
	"github.com/zulandar/parley/internal/relay"
	discordadapter "github.com/zulandar/parley/internal/relay/discord"
	slackadapter "github.com/zulandar/parley/internal/relay/slack"
	"gorm.io/gorm"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the relay daemon",
		Long:  "Connects to the configured chat platform and relays channel conversations to the local model.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	return cmd
}

func runStart(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	catalog, err := prompt.Load(cfg.Chat.PromptsPath)
	if err != nil {
		return err
	}

	var gormDB *gorm.DB
	if cfg.Archive.Path != "" {
		gormDB, err = db.Open(cfg.Archive.Path)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
	}

	client := generate.NewClient(generate.ClientOpts{
		Host:    cfg.Ollama.Host,
		Model:   cfg.Ollama.Model,
		Timeout: time.Duration(cfg.Ollama.TimeoutSec) * time.Second,
	})

	adapter, err := createAdapter(cfg)
	if err != nil {
		return err
	}

	daemon, err := relay.NewDaemon(relay.DaemonOpts{
		Config:  cfg,
		Adapter: adapter,
		Client:  client,
		Catalog: catalog,
		DB:      gormDB,
		Out:     cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if cfg.Dashboard.Enabled {
		go func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{
				DB:       gormDB,
				Sessions: daemonSessions{daemon},
				Port:     cfg.Dashboard.Port,
				Out:      cmd.OutOrStdout(),
			})
			if err != nil {
				log.Printf("dashboard: %v", err)
			}
		}()
	}

	return daemon.Run(ctx)
}

// daemonSessions defers session registry lookups until the daemon has
// built it, so the dashboard can start before Run does.
type daemonSessions struct {
	daemon *relay.Daemon
}

func (s daemonSessions) ActiveCount() int {
	if mgr := s.daemon.Sessions(); mgr != nil {
		return mgr.ActiveCount()
	}
	return 0
}

func (s daemonSessions) ActiveChannels() []string {
	if mgr := s.daemon.Sessions(); mgr != nil {
		return mgr.ActiveChannels()
	}
	return nil
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config) (relay.Adapter, error) {
	switch cfg.Platform {
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken:  cfg.Discord.BotToken,
			ChannelID: cfg.Discord.ChannelID,
		})
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Slack.AppToken,
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.ChannelID,
		})
	default:
		return nil, fmt.Errorf("unsupported platform %q", cfg.Platform)
	}
}
