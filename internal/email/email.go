package email

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is a templated transactional email.
type Message struct {
	To         string
	TemplateID string
	Variables  map[string]string
}

type Sender interface {
	// Send delivers msg and returns the provider's message id.
	Send(ctx context.Context, msg Message) (string, error)
}

// LogSender only logs messages; for local development.
type LogSender struct {
	Log *zap.Logger
}

func (s *LogSender) Send(_ context.Context, msg Message) (string, error) {
	id := "log-" + uuid.NewString()
	s.Log.Info("email (log sender)",
		zap.String("message_id", id),
		zap.String("to", msg.To),
		zap.String("template_id", msg.TemplateID),
		zap.Any("variables", msg.Variables),
	)
	return id, nil
}
