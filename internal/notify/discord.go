package notify

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo methods we use, enabling test mocks.
type discordSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts workflow notifications to a Discord channel. Messages
// go over the REST API, so no gateway connection is opened.
type DiscordNotifier struct {
	session   discordSession
	channelID string
}

// NewDiscord creates a Discord notifier from a bot token and target channel.
func NewDiscord(botToken, channelID string) (*DiscordNotifier, error) {
	sess, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("notify: discord session: %w", err)
	}
	return &DiscordNotifier{session: sess, channelID: channelID}, nil
}

// ExportFinished posts the export completion notice. Best-effort.
func (d *DiscordNotifier) ExportFinished(sessionID string, exported, failed int) {
	msg := exportMessage(sessionID, exported, failed)
	if _, err := d.session.ChannelMessageSend(d.channelID, msg); err != nil {
		log.Printf("notify: discord post failed: %v", err)
	}
}
