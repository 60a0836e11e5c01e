package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/parley/internal/config"
	discordadapter "github.com/zulandar/parley/internal/relay/discord"
)

func newDeployCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Register slash commands with Discord",
		Long:  "Registers the /start-chat and /user commands for the configured application. Run once after install or when commands change.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	return cmd
}

func runDeploy(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	switch cfg.Platform {
	case "discord":
		if cfg.Discord.AppID == "" {
			return fmt.Errorf("discord.app_id is required to deploy commands")
		}
		adapter, err := discordadapter.New(discordadapter.AdapterOpts{
			BotToken: cfg.Discord.BotToken,
		})
		if err != nil {
			return err
		}
		if err := adapter.RegisterCommands(context.Background(), cfg.Discord.AppID, cfg.Discord.GuildID); err != nil {
			return err
		}
		scope := "globally"
		if cfg.Discord.GuildID != "" {
			scope = fmt.Sprintf("for guild %s", cfg.Discord.GuildID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Commands registered %s\n", scope)
		return nil

	case "slack":
		return fmt.Errorf("slack slash commands are configured in the Slack app settings, not deployed from here")

	default:
		return fmt.Errorf("unsupported platform %q", cfg.Platform)
	}
}
