// Package notify sends job completion and interruption notices.
package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-crawler/pkg/driver"
	"github.com/Sternrassler/catalog-crawler/pkg/logging"
	"github.com/rs/zerolog"
)

// Message is one notification.
type Message struct {
	Subject string
	Body    string
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// SMTPConfig configures the SMTP notifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends messages through an SMTP server with STARTTLS (via smtp.SendMail).
type SMTP struct {
	config SMTPConfig
	send   SendFunc
	now    func() time.Time
}

// NewSMTP creates an SMTP notifier.
func NewSMTP(cfg SMTPConfig) *SMTP {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTP{config: cfg, send: smtp.SendMail, now: time.Now}
}

// Notify sends msg to all recipients.
func (s *SMTP) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	if err := s.send(addr, auth, s.config.From, s.config.To, s.compose(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (s *SMTP) compose(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.config.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", headerSafe(msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// Log writes messages to the logger instead of sending them.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a log-only notifier.
func NewLog() *Log {
	return &Log{logger: logging.NewLogger("notify")}
}

// Notify logs msg.
func (l *Log) Notify(_ context.Context, msg Message) error {
	l.logger.Info().
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("Notification")
	return nil
}

// Send delivers msg and logs, but never returns, a delivery failure.
func Send(ctx context.Context, n Notifier, msg Message) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, msg); err != nil {
		logger := logging.NewLogger("notify")
		logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Failed to send notification")
	}
}

// ForRun builds the notice for a finished or interrupted run. runErr is the error Driver.Run returned.
func ForRun(s *driver.Summary, runErr error) Message {
	status := "completed"
	switch {
	case s.Interrupted:
		status = "interrupted"
	case runErr != nil:
		status = "failed"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s %s.\n\n", s.RunID, status)
	fmt.Fprintf(&b, "Identifiers: %d\n", s.TotalIDs)
	fmt.Fprintf(&b, "Batches: %d total, %d skipped, %d processed, %d remaining\n",
		s.TotalBatches, s.Skipped, s.Processed, s.Remaining())
	fmt.Fprintf(&b, "Succeeded: %d of %d attempted\n", s.Succeeded, s.Attempted)
	fmt.Fprintf(&b, "Not found: %d, rejected: %d, failed: %d\n", s.NotFound, s.Rejected, s.Failed)
	fmt.Fprintf(&b, "Duration: %s\n", s.Duration.Round(time.Second))
	if runErr != nil && !s.Interrupted {
		fmt.Fprintf(&b, "Error: %v\n", runErr)
	}

	return Message{
		Subject: fmt.Sprintf("catalog-crawler run %s (%d/%d succeeded)", status, s.Succeeded, s.Attempted),
		Body:    b.String(),
	}
}
