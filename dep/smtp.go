package dep

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"mailflow/config"
	"mailflow/entity"
	"mailflow/pkg/errutil"
	"mailflow/pkg/goutil"
)

const (
	smtpBoundary    = "mailflow-alt"
	smtpDialTimeout = 10 * time.Second
	smtpIOTimeout   = 30 * time.Second
)

type smtpSender struct {
	cfg config.SMTP
}

func NewSMTPSender(cfg config.SMTP) EmailSender {
	return &smtpSender{cfg: cfg}
}

func (s *smtpSender) Type() entity.ProviderType {
	return entity.ProviderTypeSMTP
}

func (s *smtpSender) IsConfigured() bool {
	return s.cfg.Host != "" && s.cfg.Port != 0
}

// Send runs one SMTP conversation per message. The connection deadline
// comes from the context so a stuck server cannot hold a dispatcher
// worker past its per-attempt timeout.
func (s *smtpSender) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	dialer := net.Dialer{Timeout: smtpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errutil.TransientProviderError(err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(smtpIOTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, errutil.TransientProviderError(err)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, classifySMTPError(err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return nil, classifySMTPError(err)
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return nil, classifySMTPError(err)
		}
	}

	if err := client.Mail(req.FromEmail); err != nil {
		return nil, classifySMTPError(err)
	}
	if err := client.Rcpt(req.ToEmail); err != nil {
		return nil, classifySMTPError(err)
	}

	messageID := goutil.NewTrackingID()
	msg := buildMimeMessage(messageID, req)

	w, err := client.Data()
	if err != nil {
		return nil, classifySMTPError(err)
	}
	if _, err := w.Write(msg); err != nil {
		return nil, classifySMTPError(err)
	}
	if err := w.Close(); err != nil {
		return nil, classifySMTPError(err)
	}

	if err := client.Quit(); err != nil {
		return nil, classifySMTPError(err)
	}

	return &SendResult{MessageID: messageID}, nil
}

func buildMimeMessage(messageID string, req *SendRequest) []byte {
	var b strings.Builder

	from := req.FromEmail
	if req.FromName != "" {
		from = fmt.Sprintf("%s <%s>", req.FromName, req.FromEmail)
	}

	b.WriteString(fmt.Sprintf("Message-ID: <%s@mailflow>\r\n", messageID))
	b.WriteString(fmt.Sprintf("From: %s\r\n", from))
	b.WriteString(fmt.Sprintf("To: %s\r\n", req.ToEmail))
	if req.ReplyTo != "" {
		b.WriteString(fmt.Sprintf("Reply-To: %s\r\n", req.ReplyTo))
	}
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", req.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", smtpBoundary))
	b.WriteString("\r\n")

	if req.TextContent != "" {
		b.WriteString(fmt.Sprintf("--%s\r\n", smtpBoundary))
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(req.TextContent)
		b.WriteString("\r\n")
	}

	b.WriteString(fmt.Sprintf("--%s\r\n", smtpBoundary))
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(req.HtmlContent)
	b.WriteString("\r\n")

	b.WriteString(fmt.Sprintf("--%s--\r\n", smtpBoundary))

	return []byte(b.String())
}

// 4xx replies are temporary per RFC 5321, 5xx are permanent. Anything
// that never reached the server is retried.
func classifySMTPError(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 500 {
			return errutil.PermanentProviderError(err)
		}
		return errutil.TransientProviderError(err)
	}
	return errutil.TransientProviderError(err)
}
