package delivery

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Channel is the outbound delivery contract. Rendering and transport are
// owned by the provider behind it; the worker only needs a template name and
// a context.
type Channel interface {
	SendTemplated(ctx context.Context, to, template string, data map[string]interface{}) (messageID string, err error)
}

// Template names the worker dispatches with.
const (
	TemplateNewAnnouncement = "new_announcement"
	TemplateDailyDigest     = "daily_digest"
)

// LogChannel is the development stand-in for a real email provider: it
// accepts everything and logs the send.
type LogChannel struct{}

func NewLogChannel() *LogChannel {
	return &LogChannel{}
}

func (c *LogChannel) SendTemplated(ctx context.Context, to, template string, data map[string]interface{}) (string, error) {
	messageID := uuid.New().String()
	slog.Info("Successfully delivered message",
		"to", to,
		"template", template,
		"message_id", messageID,
	)
	return messageID, nil
}
