package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/veikko/twitch-harvester/internal/model"
)

// DiscordBot posts embeds to a channel through a bot token. Unlike the
// webhook notifier it can post to any channel the bot can see, and survives
// webhook rotation.
type DiscordBot struct {
	baseNotifier
	session   *discordgo.Session
	channelID string
}

// newDiscordBot builds the notifier. Message sends go over the Discord REST
// API, so the gateway connection is never opened.
func newDiscordBot(base baseNotifier, token, channelID string) (*DiscordBot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord bot: create session: %w", err)
	}
	return &DiscordBot{
		baseNotifier: base,
		session:      session,
		channelID:    channelID,
	}, nil
}

// Send posts an embed to the configured channel.
func (d *DiscordBot) Send(ctx context.Context, _ model.Event, title, message string) error {
	_, err := d.session.ChannelMessageSendComplex(d.channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{
			{
				Title:       title,
				Description: message,
				Color:       6570404, // Twitch purple
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord bot: send message: %w", err)
	}
	return nil
}
