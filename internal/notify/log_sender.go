package notify

import (
	"context"

	"github.com/ternarybob/arbor"
)

// LogSender writes messages to the logger instead of delivering them. It
// always succeeds and is used for dry runs.
type LogSender struct {
	logger arbor.ILogger
}

func NewLogSender(logger arbor.ILogger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(_ context.Context, text string) error {
	l.logger.Info().Str("message", text).Msg("Notification (log sender)")
	return nil
}
