package channel

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPSender submits email through a configured relay. The message id
// reported back is locally generated (Message-ID header), since SMTP gives
// us no provider-assigned identifier at submission time.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string

	// dial is swappable in tests.
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		},
	}
}

func (s *SMTPSender) Send(ctx context.Context, req SendRequest) Result {
	if s.host == "" || s.from == "" {
		return Failed(KindConfiguration, "SMTP relay not configured (SMTP_HOST and SMTP_FROM required)")
	}

	msgID := fmt.Sprintf("<%s@%s>", req.IdempotencyKey, s.host)
	data := s.buildMessage(req, msgID)

	if err := s.submit(ctx, req.To, data); err != nil {
		return Failed(KindProvider, fmt.Sprintf("smtp submit: %v", err))
	}

	return Sent(msgID)
}

func (s *SMTPSender) submit(ctx context.Context, to string, data []byte) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))

	conn, err := s.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConf := &tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsConf); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data start: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("data write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("data close: %w", err)
	}

	return client.Quit()
}

func (s *SMTPSender) buildMessage(req SendRequest, msgID string) []byte {
	var b strings.Builder

	subject := req.Content
	if i := strings.IndexByte(subject, '\n'); i >= 0 {
		subject = subject[:i]
	}
	if len(subject) > 78 {
		subject = subject[:78]
	}

	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", req.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", msgID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(req.Content)

	if len(req.Attachments) > 0 {
		b.WriteString("\r\n\r\nAttachments:\r\n")
		for _, a := range req.Attachments {
			b.WriteString(a)
			b.WriteString("\r\n")
		}
	}

	return []byte(b.String())
}
