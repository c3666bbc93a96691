package report

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts reports to a Discord channel.
type DiscordNotifier struct {
	sess discordSession
}

// NewDiscordNotifier creates a DiscordNotifier from a bot token. Report
// delivery uses the REST API only; no gateway connection is opened.
func NewDiscordNotifier(botToken string) (*DiscordNotifier, error) {
	dg, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("report: create discord session: %w", err)
	}
	return &DiscordNotifier{sess: dg}, nil
}

// Send posts a plain-text message to the given channel.
func (n *DiscordNotifier) Send(ctx context.Context, channelID, text string) error {
	_, err := n.sess.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("report: discord post to %s: %w", channelID, err)
	}
	return nil
}
