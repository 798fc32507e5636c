package notify

import (
	"context"

	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the application log.
type LogNotifier struct {
	logger *observability.Logger
}

func NewLogNotifier(logger *observability.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Name() string { return "log" }

func (l *LogNotifier) Notify(ctx context.Context, n domain.Notification) error {
	l.logger.Info(ctx, "Notification",
		zap.String("recipient_id", n.RecipientID),
		zap.String("recipient_kind", string(n.RecipientKind)),
		zap.String("type", n.Type),
		zap.String("title", n.Title),
	)
	return nil
}
