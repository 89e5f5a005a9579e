// Package service contains out-of-process collaborators of the account
// manager, currently the notification sender
package service

import (
	"context"
	"fmt"

	"wopsai/auth-api/internal/model"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Notifier delivers a verification or reset link out-of-band. The account
// manager fires it asynchronously and never fails an operation on a
// delivery error.
type Notifier interface {
	Send(ctx context.Context, email, purpose, token string) error
}

// NewNotifier returns the SMTP sender when mail.enabled is set and a
// log-only sender otherwise, which is how development runs.
func NewNotifier() Notifier {
	if viper.GetBool("mail.enabled") {
		return &mailNotifier{
			host:     viper.GetString("mail.host"),
			port:     viper.GetInt("mail.port"),
			from:     viper.GetString("mail.sender_address"),
			password: viper.GetString("mail.password"),
			frontend: viper.GetString("host.frontend_url"),
		}
	}

	return &logNotifier{frontend: viper.GetString("host.frontend_url")}
}

func buildLink(frontend, email, purpose, token string) string {
	switch purpose {
	case model.PurposeReset:
		return fmt.Sprintf("%s/reset-password?email=%s&token=%s", frontend, email, token)
	default:
		return fmt.Sprintf("%s/verify?email=%s&token=%s", frontend, email, token)
	}
}

type mailNotifier struct {
	host     string
	port     int
	from     string
	password string
	frontend string
}

func (n *mailNotifier) Send(_ context.Context, email, purpose, token string) error {
	link := buildLink(n.frontend, email, purpose, token)

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", email)

	switch purpose {
	case model.PurposeReset:
		m.SetHeader("Subject", "Reset your password")
		m.SetBody("text/html", fmt.Sprintf("Click <a href='%s'>here</a> to reset your password.<br><br>This link will expire in 1 hour. If you didn't request this, you can ignore this email.", link))
	default:
		m.SetHeader("Subject", "Verify your email to get started")
		m.SetBody("text/html", fmt.Sprintf("Click <a href='%s'>here</a> to verify your account.<br><br>This link will expire in 24 hours", link))
	}

	d := gomail.NewDialer(n.host, n.port, n.from, n.password)

	return d.DialAndSend(m)
}

// logNotifier prints the link instead of mailing it
type logNotifier struct {
	frontend string
}

func (n *logNotifier) Send(_ context.Context, email, purpose, token string) error {
	zap.L().Info("Notification (mail disabled)",
		zap.String("email", email),
		zap.String("purpose", purpose),
		zap.String("link", buildLink(n.frontend, email, purpose, token)))

	return nil
}
