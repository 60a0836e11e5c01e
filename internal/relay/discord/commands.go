package discord

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/parley/internal/relay"
)

// Commands returns the application command set Parley registers.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        relay.CommandStartChat,
			Description: "Starts a chat with the local AI model.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        relay.OptionFirstMessage,
					Description: "Your message to start the chat with.",
					Required:    false,
				},
			},
		},
		{
			Name:        relay.CommandUser,
			Description: "Provides information about the user.",
		},
	}
}

// RegisterCommands bulk-overwrites the application's slash commands. An
// empty guildID registers them globally. This is a plain REST call; the
// gateway connection is not required.
func (a *Adapter) RegisterCommands(ctx context.Context, appID, guildID string) error {
	if appID == "" {
		return fmt.Errorf("discord: app id is required to register commands")
	}
	if err := a.ensureSession(); err != nil {
		return err
	}

	var registered []*discordgo.ApplicationCommand
	err := a.retryOnRateLimit(ctx, func() error {
		var apiErr error
		registered, apiErr = a.sess.ApplicationCommandBulkOverwrite(appID, guildID, Commands())
		return apiErr
	})
	if err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}

	scope := "globally"
	if guildID != "" {
		scope = "for guild " + guildID
	}
	log.Printf("discord: registered %d commands %s", len(registered), scope)
	return nil
}
