package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
)

// Notifier delivers verification messages. Formatting and transport belong to
// the implementation.
type Notifier interface {
	SendVerification(ctx context.Context, emailAddress, token string) error
}

// VerificationLink builds the confirmation URL for token under baseURL.
func VerificationLink(baseURL, token string) string {
	return strings.TrimSuffix(baseURL, "/") + "/api/users/verify?token=" + url.QueryEscape(token)
}

// ConsoleEmailSender is a development Notifier that logs messages.
type ConsoleEmailSender struct {
	BaseURL string
	Logger  *slog.Logger
}

func (c *ConsoleEmailSender) SendVerification(ctx context.Context, to, token string) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "verification email",
		"to", to,
		"subject", "Verify your email address",
		"link", VerificationLink(c.BaseURL, token))
	return nil
}

// SMTPConfig is the outbound mail transport configuration.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	BaseURL  string
}

// SMTPSender sends verification mail through an SMTP relay.
type SMTPSender struct {
	config SMTPConfig
	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(config SMTPConfig) *SMTPSender {
	if config.Port == 0 {
		config.Port = 587
	}
	return &SMTPSender{config: config, send: smtp.SendMail}
}

func (s *SMTPSender) SendVerification(ctx context.Context, to, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	if err := s.send(addr, auth, s.config.From, []string{to}, s.message(to, token)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	return nil
}

func (s *SMTPSender) message(to, token string) []byte {
	link := VerificationLink(s.config.BaseURL, token)
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Verify your email address\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	fmt.Fprintf(&b, "<p>Please confirm your email address by clicking <a href=\"%s\">this link</a>.</p>\r\n", link)
	return []byte(b.String())
}
