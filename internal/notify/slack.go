package notify

import (
	"log"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackNotifier posts workflow notifications to a Slack channel.
type SlackNotifier struct {
	client    slackClient
	channelID string
}

// NewSlack creates a Slack notifier from a bot token and target channel.
func NewSlack(botToken, channelID string) *SlackNotifier {
	return &SlackNotifier{
		client:    slackapi.New(botToken),
		channelID: channelID,
	}
}

// ExportFinished posts the export completion notice. Best-effort.
func (s *SlackNotifier) ExportFinished(sessionID string, exported, failed int) {
	msg := exportMessage(sessionID, exported, failed)
	if _, _, err := s.client.PostMessage(s.channelID, slackapi.MsgOptionText(msg, false)); err != nil {
		log.Printf("notify: slack post failed: %v", err)
	}
}
