package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Mail описывает простое текстовое письмо.
type Mail struct {
	To      string
	Subject string
	Text    string
}

// Mailer доставляет письма.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// SMTPOptions описывает почтовый сервер.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer отправляет письма через SMTP. На порту 465 используется неявный TLS,
// на остальных STARTTLS, если сервер его поддерживает.
type SMTPMailer struct {
	opts SMTPOptions
}

// NewSMTPMailer создаёт SMTPMailer.
func NewSMTPMailer(opts SMTPOptions) *SMTPMailer {
	if opts.Port == 0 {
		opts.Port = 587
	}
	return &SMTPMailer{opts: opts}
}

// Send отправляет письмо, соблюдая дедлайн ctx.
func (s *SMTPMailer) Send(ctx context.Context, m Mail) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	tlsCfg := &tls.Config{ServerName: s.opts.Host}
	if s.opts.Port == 465 {
		conn = tls.Client(conn, tlsCfg)
	}

	client, err := smtp.NewClient(conn, s.opts.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp: handshake: %w", err)
	}
	defer client.Close()

	if s.opts.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsCfg); err != nil {
				return fmt.Errorf("smtp: starttls: %w", err)
			}
		}
	}

	if s.opts.Username != "" {
		auth := smtp.PlainAuth("", s.opts.Username, s.opts.Password, s.opts.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp: auth: %w", err)
		}
	}

	if err := client.Mail(s.opts.From); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	if err := client.Rcpt(m.To); err != nil {
		return fmt.Errorf("smtp: rcpt %s: %w", m.To, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp: data: %w", err)
	}
	if _, err := w.Write(buildMessage(s.opts.From, m, time.Now())); err != nil {
		w.Close()
		return fmt.Errorf("smtp: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: data close: %w", err)
	}

	return client.Quit()
}

func buildMessage(from string, m Mail, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + m.To + "\r\n")
	b.WriteString("Subject: " + m.Subject + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.Text)
	return []byte(b.String())
}

// LogMailer пишет письма в лог вместо отправки. Используется, если SMTP не настроен.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer создаёт LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send записывает письмо в лог.
func (l *LogMailer) Send(_ context.Context, m Mail) error {
	l.logger.Info("mail",
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
		zap.String("text", m.Text),
	)
	return nil
}
