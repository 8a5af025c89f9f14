package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/connector"
)

type smtpClient interface {
	Hello(localName string) error
	SupportsAuth(mech string) bool
	Auth(a sasl.Client) error
	Mail(from string, opts *smtp.MailOptions) error
	Rcpt(to string, opts *smtp.RcptOptions) error
	Data() (io.WriteCloser, error)
	Noop() error
	Quit() error
	Close() error
}

type goSMTPClient struct {
	*smtp.Client
}

func (c goSMTPClient) Data() (io.WriteCloser, error) {
	return c.Client.Data()
}

type smtpClientFactory func(ctx context.Context, account connector.Account) (smtpClient, net.Conn, error)

// SMTPSession is the outbound session used for administrator notices. It
// shares connect, probe and reconnect behaviour with the inbound mailboxes.
type SMTPSession struct {
	*connector.Lifecycle

	account     connector.Account
	localName   string
	dialTimeout time.Duration
	tlsConfig   *tls.Config
	logger      *zap.Logger
	newClient   smtpClientFactory
	client      smtpClient
}

// SMTPOption customizes an SMTPSession.
type SMTPOption func(*SMTPSession)

// WithSMTPLogger overrides the session logger.
func WithSMTPLogger(logger *zap.Logger) SMTPOption {
	return func(s *SMTPSession) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSMTPLocalName sets the name announced in EHLO.
func WithSMTPLocalName(name string) SMTPOption {
	return func(s *SMTPSession) {
		if name != "" {
			s.localName = name
		}
	}
}

// WithSMTPTLSConfig overrides the TLS settings used for implicit TLS and STARTTLS.
func WithSMTPTLSConfig(cfg *tls.Config) SMTPOption {
	return func(s *SMTPSession) {
		if cfg != nil {
			s.tlsConfig = cfg
		}
	}
}

func withSMTPClientFactory(factory smtpClientFactory) SMTPOption {
	return func(s *SMTPSession) {
		s.newClient = factory
	}
}

// NewSMTPSession returns an unconnected session for account.
func NewSMTPSession(account connector.Account, opts ...SMTPOption) *SMTPSession {
	account.Protocol = connector.ProtocolSMTP
	s := &SMTPSession{
		account:     account,
		localName:   "localhost",
		dialTimeout: 10 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newClient == nil {
		s.newClient = s.defaultClientFactory
	}
	if s.tlsConfig == nil {
		s.tlsConfig = &tls.Config{ServerName: account.Host, MinVersion: tls.VersionTLS12}
	}
	s.Lifecycle = connector.NewLifecycle(account, connector.ProtocolSMTP, connector.Hooks{
		Dial:      s.dial,
		Handshake: s.handshake,
		Probe:     func() error { return s.client.Noop() },
		Quit:      s.quit,
		Drop:      s.dropClient,
	}, s.logger, nil)
	return s
}

func (s *SMTPSession) dial(ctx context.Context) (net.Conn, error) {
	client, conn, err := s.newClient(ctx, s.account)
	if err != nil {
		return nil, err
	}
	s.client = client
	return conn, nil
}

func (s *SMTPSession) handshake() error {
	// A STARTTLS client has already greeted the server while upgrading.
	if s.account.Encryption != connector.EncryptionStartTLS {
		if err := s.client.Hello(s.localName); err != nil {
			return fmt.Errorf("smtp hello: %w", err)
		}
	}
	if s.account.Username == "" {
		return nil
	}
	if err := s.client.Auth(s.saslClient()); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	return nil
}

func (s *SMTPSession) saslClient() sasl.Client {
	password := string(s.account.Password)
	if !s.client.SupportsAuth(sasl.Plain) && s.client.SupportsAuth(sasl.Login) {
		return sasl.NewLoginClient(s.account.Username, password)
	}
	return sasl.NewPlainClient("", s.account.Username, password)
}

func (s *SMTPSession) quit() error {
	client := s.client
	s.client = nil
	if client == nil {
		return nil
	}
	if err := client.Quit(); err != nil {
		_ = client.Close()
		return err
	}
	return nil
}

func (s *SMTPSession) dropClient() {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
}

// Send transmits one composed message. A failed transaction is retried once
// on a fresh connection.
func (s *SMTPSession) Send(ctx context.Context, from string, to []string, msg []byte) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	return s.Do(ctx, "send", func() error {
		if err := s.client.Mail(from, nil); err != nil {
			return fmt.Errorf("failed to set sender: %w", err)
		}
		for _, rcpt := range to {
			if err := s.client.Rcpt(rcpt, nil); err != nil {
				return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
			}
		}
		w, err := s.client.Data()
		if err != nil {
			return fmt.Errorf("failed to initiate data transfer: %w", err)
		}
		if _, err := io.Copy(w, bytes.NewReader(msg)); err != nil {
			_ = w.Close()
			return fmt.Errorf("failed to write message: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("failed to close data transfer: %w", err)
		}
		return nil
	})
}

func (s *SMTPSession) defaultClientFactory(ctx context.Context, account connector.Account) (smtpClient, net.Conn, error) {
	if strings.TrimSpace(account.Host) == "" {
		return nil, nil, fmt.Errorf("smtp host is required")
	}
	dialer := &net.Dialer{Timeout: s.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", account.Address(587, 465))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	switch account.Encryption {
	case connector.EncryptionTLS:
		tlsConn := tls.Client(conn, s.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("failed to connect via SMTPS: %w", err)
		}
		conn = tlsConn
	case connector.EncryptionStartTLS:
		_ = conn.SetDeadline(time.Now().Add(account.CallTimeout()))
		client, err := smtp.NewClientStartTLS(conn, s.tlsConfig)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("smtp starttls: %w", err)
		}
		_ = conn.SetDeadline(time.Time{})
		return goSMTPClient{client}, conn, nil
	}
	return goSMTPClient{smtp.NewClient(conn)}, conn, nil
}
