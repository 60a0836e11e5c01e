package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/zulandar/parley/internal/prompt"
	"golang.org/x/term"
)

const configFileName = "parley.yaml"
const promptsFileName = "prompts.yaml"

func newInitCmd() *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create starter config and prompt files",
		Long:  "Writes parley.yaml and prompts.yaml in the current directory, prompting for tokens when run interactively.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, platform)
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", "discord", "chat platform (discord or slack)")
	return cmd
}

func runInit(cmd *cobra.Command, platform string) error {
	out := cmd.OutOrStdout()

	if platform != "discord" && platform != "slack" {
		return fmt.Errorf("unsupported platform %q (discord, slack)", platform)
	}
	if _, err := os.Stat(configFileName); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", configFileName)
	}

	var botToken, appToken string
	if term.IsTerminal(int(os.Stdin.Fd())) {
		var err error
		botToken, err = readSecret(out, "Bot token: ")
		if err != nil {
			return err
		}
		if platform == "slack" {
			appToken, err = readSecret(out, "App-level token (xapp-...): ")
			if err != nil {
				return err
			}
		}
	} else {
		fmt.Fprintf(out, "Not a terminal; writing placeholder tokens to %s\n", configFileName)
		botToken = "REPLACE_ME"
		appToken = "REPLACE_ME"
	}

	cfgData := renderConfig(platform, botToken, appToken)
	if err := os.WriteFile(configFileName, []byte(cfgData), 0600); err != nil {
		return fmt.Errorf("write %s: %w", configFileName, err)
	}
	fmt.Fprintf(out, "Wrote %s\n", configFileName)

	if _, err := os.Stat(promptsFileName); os.IsNotExist(err) {
		if err := os.WriteFile(promptsFileName, []byte(prompt.DefaultDocument), 0644); err != nil {
			return fmt.Errorf("write %s: %w", promptsFileName, err)
		}
		fmt.Fprintf(out, "Wrote %s\n", promptsFileName)
	} else {
		fmt.Fprintf(out, "Keeping existing %s\n", promptsFileName)
	}

	fmt.Fprintf(out, "Edit %s, then run: parley deploy && parley start\n", configFileName)
	return nil
}

// readSecret reads a token without echoing it to the terminal.
func readSecret(out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return string(data), nil
}

// renderConfig produces a starter parley.yaml for the chosen platform.
func renderConfig(platform, botToken, appToken string) string {
	switch platform {
	case "slack":
		return fmt.Sprintf(`platform: slack

slack:
  app_token: %q
  bot_token: %q
  channel_id: ""

ollama:
  host: http://127.0.0.1:11434
  model: gemma3:latest

chat:
  prompts_path: prompts.yaml
  window_sec: 30

archive:
  path: parley.db

dashboard:
  enabled: false
  port: 8080

digest:
  enabled: false
  cron: "0 9 * * *"
`, appToken, botToken)
	default:
		return fmt.Sprintf(`platform: discord

discord:
  bot_token: %q
  app_id: ""
  guild_id: ""
  channel_id: ""

ollama:
  host: http://127.0.0.1:11434
  model: gemma3:latest

chat:
  prompts_path: prompts.yaml
  window_sec: 30

archive:
  path: parley.db

dashboard:
  enabled: false
  port: 8080

digest:
  enabled: false
  cron: "0 9 * * *"
`, botToken)
	}
}
