package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// SlackPrefix marks recipients addressed to a Slack channel, e.g. "slack:C0123ABCD".
// Channel names ("slack:#reports") work for posts but not for attachment uploads.
const SlackPrefix = "slack:"

type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// SlackSender posts the plain-text body to a channel and uploads the attachment, if any.
type SlackSender struct {
	client slackPoster
}

// NewSlackSender builds a sender from a bot token.
func NewSlackSender(token string) *SlackSender {
	return &SlackSender{client: slack.New(token)}
}

// Send posts env to the channel named after the slack: prefix.
func (s *SlackSender) Send(ctx context.Context, env Envelope) error {
	channel := strings.TrimSpace(strings.TrimPrefix(env.Recipient, SlackPrefix))
	if channel == "" {
		return fmt.Errorf("slack recipient %q has no channel", env.Recipient)
	}
	attachment := slack.Attachment{
		Title: env.Subject,
		Text:  env.Text,
		Color: "#2eb886",
	}
	if _, _, err := s.client.PostMessageContext(ctx, channel, slack.MsgOptionText(env.Subject, false), slack.MsgOptionAttachments(attachment)); err != nil {
		return fmt.Errorf("slack post to %s: %w", channel, err)
	}
	if att := env.Attachment; att != nil && len(att.Content) > 0 {
		// files.upload v2 addresses channels by ID; use "slack:C0123..." recipients when attaching.
		_, err := s.client.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
			Reader:   bytes.NewReader(att.Content),
			FileSize: len(att.Content),
			Filename: att.Filename,
			Title:    att.Filename,
			Channel:  channel,
		})
		if err != nil {
			return fmt.Errorf("slack upload to %s: %w", channel, err)
		}
	}
	return nil
}
