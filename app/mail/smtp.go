package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/vibast-solutions/ms-go-member/config"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"
)

// defaultSendTimeout bounds a delivery when the caller's context carries no deadline.
const defaultSendTimeout = 30 * time.Second

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type SMTPOption func(*SMTPSender)

func WithDialFunc(dial DialFunc) SMTPOption {
	return func(s *SMTPSender) {
		if dial != nil {
			s.dial = dial
		}
	}
}

// SMTPSender hands reset code messages to an SMTP relay.
type SMTPSender struct {
	cfg  config.MailConfig
	ttl  time.Duration
	dial DialFunc
	now  func() time.Time
}

func NewSMTPSender(cfg config.MailConfig, codeTTL time.Duration, opts ...SMTPOption) *SMTPSender {
	s := &SMTPSender{
		cfg:  cfg,
		ttl:  codeTTL,
		dial: (&net.Dialer{}).DialContext,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SMTPSender) SendResetCode(ctx context.Context, to, code string) error {
	msg, err := ComposeResetCode(s.cfg.From, to, code, s.ttl, s.now())
	if err != nil {
		return fmt.Errorf("compose reset code mail: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultSendTimeout)
		defer cancel()
	}
	deadline, _ := ctx.Deadline()

	addr := net.JoinHostPort(s.cfg.SMTPHost, s.cfg.SMTPPort)
	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	// Closing the connection unblocks any pending read or write once ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err = conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp deadline: %w", err)
	}

	if err = s.deliver(conn, deadline, to, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp send: %w", errors.Join(ctxErr, err))
		}
		return fmt.Errorf("smtp send: %w", err)
	}

	logrus.WithField("smtp_host", s.cfg.SMTPHost).Debug("Reset code mail sent")
	return nil
}

func (s *SMTPSender) deliver(conn net.Conn, deadline time.Time, to string, msg []byte) error {
	client := smtp.NewClient(conn)
	defer client.Close()

	remaining := time.Until(deadline)
	client.CommandTimeout = remaining
	client.SubmissionTimeout = remaining

	if err := client.Hello("localhost"); err != nil {
		return err
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.SMTPHost}); err != nil {
			return err
		}
	}
	if s.cfg.SMTPUsername != "" {
		if err := client.Auth(sasl.NewPlainClient("", s.cfg.SMTPUsername, s.cfg.SMTPPassword)); err != nil {
			return err
		}
	}
	if err := client.SendMail(s.cfg.From, []string{to}, bytes.NewReader(msg)); err != nil {
		return err
	}
	return client.Quit()
}
