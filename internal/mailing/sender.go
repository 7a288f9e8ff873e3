package mailing

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/google/uuid"
)

// Message is one outbound email, already personalized and rewritten.
type Message struct {
	To          string
	ToName      string
	FromName    string
	FromEmail   string
	Subject     string
	HTMLContent string
	TextContent string
}

// Mailer dispatches a single message and returns the provider message id.
type Mailer interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// SMTPSender delivers mail through an authenticated SMTP relay.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
}

// Provider presets accepted by the send API.
var smtpProviders = map[string]struct {
	host string
	port int
}{
	"gmail":   {"smtp.gmail.com", 587},
	"outlook": {"smtp-mail.outlook.com", 587},
}

// NewSMTPSender builds a sender for a named provider preset.
func NewSMTPSender(provider, username, password string) (*SMTPSender, error) {
	preset, ok := smtpProviders[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported email provider %q", provider)
	}
	return &SMTPSender{
		host:     preset.host,
		port:     preset.port,
		username: username,
		password: password,
	}, nil
}

// Send performs one SMTP transaction. The message goes out as
// multipart/alternative with the text part first.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) (string, error) {
	messageID := fmt.Sprintf("%s@%s", uuid.New().String(), s.host)
	boundary := fmt.Sprintf("=_%s", uuid.New().String()[:16])

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("From: %s <%s>\r\n", msg.FromName, msg.FromEmail))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	buf.WriteString(fmt.Sprintf("Message-ID: <%s>\r\n", messageID))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	buf.WriteString("\r\n")

	if msg.TextContent != "" {
		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		buf.WriteString(msg.TextContent)
		buf.WriteString("\r\n")
	}
	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	buf.WriteString(msg.HTMLContent)
	buf.WriteString("\r\n")
	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	if err := s.transact(ctx, msg.FromEmail, msg.To, buf.Bytes()); err != nil {
		return "", err
	}
	return messageID, nil
}

func (s *SMTPSender) transact(ctx context.Context, from, to string, body []byte) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	dialer := &net.Dialer{Timeout: 30 * time.Second}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("SMTP connect to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}
	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("DATA close: %w", err)
	}
	return client.Quit()
}
