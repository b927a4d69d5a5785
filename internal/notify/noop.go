package notify

import (
	"context"
	"log/slog"

	"github.com/pribylovaa/identity-service/internal/pkg/redact"
)

// LogNotifier пишет событие доставки в лог вместо реальной отправки.
// Используется в локальном окружении, когда SMTP не настроен.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier создаёт логирующую заглушку.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendConfirmation(_ context.Context, email, token, _ string) error {
	n.log.Info("confirmation_mail_skipped",
		slog.String("email", redact.Email(email)),
		slog.String("token", token),
	)

	return nil
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, email, token, _ string) error {
	n.log.Info("password_reset_mail_skipped",
		slog.String("email", redact.Email(email)),
		slog.String("token", token),
	)

	return nil
}
