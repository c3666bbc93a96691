package report

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackNotifier posts reports to a Slack channel.
type SlackNotifier struct {
	client slackClient
}

// NewSlackNotifier creates a SlackNotifier from a bot token.
func NewSlackNotifier(botToken string) *SlackNotifier {
	return &SlackNotifier{client: slackapi.New(botToken)}
}

// Send posts a plain-text message to the given channel.
func (n *SlackNotifier) Send(ctx context.Context, channelID, text string) error {
	_, _, err := n.client.PostMessageContext(ctx, channelID,
		slackapi.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("report: slack post to %s: %w", channelID, err)
	}
	return nil
}
