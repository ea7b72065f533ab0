package email

import (
	"context"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	// From is the envelope sender (MAIL FROM).
	From string
	// FromName is an optional display name for the From header.
	FromName string
}

// Sender delivers HTML mail over SMTP, one recipient per message.
type Sender struct {
	config Config
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSender(config Config) *Sender {
	var auth smtp.Auth
	if config.User != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.User, config.Password, config.Host)
	}
	return &Sender{
		config: config,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// ValidAddress reports whether to parses as a single bare mailbox.
func ValidAddress(to string) bool {
	addr, err := mail.ParseAddress(to)
	return err == nil && addr.Address == strings.TrimSpace(to)
}

// SendMail sends one HTML message. ctx is only checked before dialing; net/smtp
// has no cancellation.
func (s *Sender) SendMail(ctx context.Context, to, subject, htmlBody string) error {
	if !ValidAddress(to) {
		return fmt.Errorf("invalid email address: %s", to)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fromHeader := s.config.From
	if strings.TrimSpace(s.config.FromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []string{
		fmt.Sprintf("From: %s", sanitizeHeader(fromHeader)),
		fmt.Sprintf("To: %s", sanitizeHeader(to)),
		fmt.Sprintf("Subject: %s", sanitizeHeader(subject)),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		htmlBody,
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	return s.send(addr, s.auth, s.config.From, []string{to}, []byte(strings.Join(msg, "\r\n")))
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
