package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/zulandar/parley/internal/config"
	discordadapter "github.com/zulandar/parley/internal/relay/discord"
	slackadapter "github.com/zulandar/parley/internal/relay/slack"
)

func TestStart_MissingConfig(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"start", "--config", filepath.Join(t.TempDir(), "nope.yaml")})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestStart_MissingPrompts(t *testing.T) {
	path := writeConfigFile(t, `platform: discord
discord:
  bot_token: tok-1
chat:
  prompts_path: `+filepath.Join(t.TempDir(), "absent.yaml")+`
`)
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"start", "--config", path})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for missing prompts file")
	}
}

// ----------------------------------------------------------------------------
// createAdapter
// ----------------------------------------------------------------------------

func TestCreateAdapter_Discord(t *testing.T) {
	cfg := &config.Config{Platform: "discord"}
	cfg.Discord.BotToken = "tok-1"

	adapter, err := createAdapter(cfg)
	if err != nil {
		t.Fatalf("createAdapter failed: %v", err)
	}
	if _, ok := adapter.(*discordadapter.Adapter); !ok {
		t.Errorf("expected discord adapter, got %T", adapter)
	}
}

func TestCreateAdapter_Slack(t *testing.T) {
	cfg := &config.Config{Platform: "slack"}
	cfg.Slack.AppToken = "xapp-1"
	cfg.Slack.BotToken = "xoxb-1"

	adapter, err := createAdapter(cfg)
	if err != nil {
		t.Fatalf("createAdapter failed: %v", err)
	}
	if _, ok := adapter.(*slackadapter.Adapter); !ok {
		t.Errorf("expected slack adapter, got %T", adapter)
	}
}

func TestCreateAdapter_Unsupported(t *testing.T) {
	cfg := &config.Config{Platform: "irc"}
	if _, err := createAdapter(cfg); err == nil {
		t.Error("expected error for unsupported platform")
	}
}
