package report

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/zulandar/peakwatch/internal/config"
)

// sendMailFunc matches smtp.SendMail, swappable in tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier delivers reports over SMTP.
type EmailNotifier struct {
	host     string
	port     int
	sender   string
	password string
	send     sendMailFunc
}

// NewEmailNotifier creates an EmailNotifier from SMTP settings.
func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		sender:   cfg.Sender,
		password: cfg.Password,
		send:     smtp.SendMail,
	}
}

// Send delivers a plain-text message to the given address.
func (n *EmailNotifier) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := strings.Join([]string{
		"From: " + n.sender,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	auth := smtp.PlainAuth("", n.sender, n.password, n.host)
	if err := n.send(addr, auth, n.sender, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("report: send mail to %s via %s: %w", to, addr, err)
	}
	return nil
}
