// Package notify отправляет служебные письма аккаунтам: подтверждение email
// и сброс пароля. Для локального запуска без SMTP есть логирующая заглушка.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/pribylovaa/identity-service/internal/config"
)

// Mailer отправляет письма подтверждения и сброса пароля.
type Mailer struct {
	cfg config.SMTPConfig
}

// NewMailer создаёт SMTP-нотификатор из конфигурации.
func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// SendConfirmation отправляет письмо со ссылкой подтверждения email.
func (m *Mailer) SendConfirmation(ctx context.Context, email, token, displayName string) error {
	const op = "notify.Mailer.SendConfirmation"

	link := joinURL(m.cfg.ConfirmURL, token)
	body := buildMessage(m.cfg.From, email, "Подтверждение email",
		fmt.Sprintf("Здравствуйте%s!\r\n\r\nДля подтверждения адреса перейдите по ссылке:\r\n%s\r\n\r\nСсылка действует ограниченное время.",
			greeting(displayName), link))

	if err := m.send(ctx, email, body); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SendPasswordReset отправляет письмо со ссылкой сброса пароля.
func (m *Mailer) SendPasswordReset(ctx context.Context, email, token, displayName string) error {
	const op = "notify.Mailer.SendPasswordReset"

	link := joinURL(m.cfg.ResetURL, token)
	body := buildMessage(m.cfg.From, email, "Сброс пароля",
		fmt.Sprintf("Здравствуйте%s!\r\n\r\nДля смены пароля перейдите по ссылке:\r\n%s\r\n\r\nЕсли вы не запрашивали сброс — проигнорируйте это письмо.",
			greeting(displayName), link))

	if err := m.send(ctx, email, body); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// send выполняет отправку, уважая отмену контекста до начала SMTP-диалога.
func (m *Mailer) send(ctx context.Context, to string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
}

func buildMessage(from, to, subject, text string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(text)
	b.WriteString("\r\n")

	return []byte(b.String())
}

func greeting(displayName string) string {
	if displayName == "" {
		return ""
	}

	return ", " + displayName
}

func joinURL(base, token string) string {
	if strings.Contains(base, "?") {
		return base + "&token=" + token
	}

	return base + "?token=" + token
}
