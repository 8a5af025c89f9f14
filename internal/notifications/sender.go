package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/config"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/adapter"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/connector"
)

// ErrNoRecipients is returned when a notice has nobody to go to.
var ErrNoRecipients = errors.New("no recipients specified")

// Transport delivers composed messages.
type Transport interface {
	Name() string
	Connect(ctx context.Context) (connector.SessionInfo, error)
	EnsureConnected(ctx context.Context) error
	Available() bool
	Close() error
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// Sender composes and sends administrator notices.
type Sender struct {
	transport Transport
	from      string
	to        []string
	logger    *zap.Logger
	now       func() time.Time
}

// SenderOption customizes a Sender.
type SenderOption func(*Sender)

// WithSenderLogger overrides the sender logger.
func WithSenderLogger(logger *zap.Logger) SenderOption {
	return func(s *Sender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSenderClock overrides the clock stamped into the Date header.
func WithSenderClock(now func() time.Time) SenderOption {
	return func(s *Sender) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSender sends from the given address to every recipient through transport.
func NewSender(transport Transport, from string, to []string, opts ...SenderOption) *Sender {
	s := &Sender{
		transport: transport,
		from:      from,
		to:        append([]string(nil), to...),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSenderFromConfig builds the SMTP backed sender described by cfg.
func NewSenderFromConfig(cfg config.OutboundConfig, logger *zap.Logger) *Sender {
	session := NewSMTPSession(adapter.AccountFromConfig(cfg.Server), WithSMTPLogger(logger))
	return NewSender(session, cfg.From, cfg.To, WithSenderLogger(logger))
}

// Probe connects the transport so availability is known before a run.
func (s *Sender) Probe(ctx context.Context) bool {
	if _, err := s.transport.Connect(ctx); err != nil {
		s.logger.Warn("outbound server unavailable", zap.String("server", s.transport.Name()), zap.Error(err))
		return false
	}
	return true
}

// Available reports whether the last probe or send found the server reachable.
func (s *Sender) Available() bool {
	return s.transport.Available()
}

// SendMessage composes a notice and sends it. html may be empty.
func (s *Sender) SendMessage(ctx context.Context, subject, text, html string) error {
	if len(s.to) == 0 {
		return ErrNoRecipients
	}
	body, err := Compose(Message{
		From:    s.from,
		To:      s.to,
		Subject: subject,
		Text:    text,
		HTML:    html,
		Date:    s.now(),
	})
	if err != nil {
		return err
	}
	if err := s.transport.EnsureConnected(ctx); err != nil {
		return fmt.Errorf("outbound %s: %w", s.transport.Name(), err)
	}
	if err := s.transport.Send(ctx, s.from, s.to, body); err != nil {
		return fmt.Errorf("outbound %s: %w", s.transport.Name(), err)
	}
	s.logger.Info("notice sent",
		zap.String("subject", subject),
		zap.String("to", strings.Join(s.to, ", ")))
	return nil
}

// Close ends the transport session.
func (s *Sender) Close() error {
	return s.transport.Close()
}
