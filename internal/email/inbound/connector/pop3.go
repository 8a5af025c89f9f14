package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/knadh/go-pop3"
	"go.uber.org/zap"
)

type pop3Connection interface {
	Auth(user, password string) error
	Noop() error
	Stat() (int, int, error)
	Cmd(cmd string, isMulti bool, args ...interface{}) (*bytes.Buffer, error)
	RetrRaw(msgID int) (*bytes.Buffer, error)
	Quit() error
}

type pop3ConnFactory func(ctx context.Context, account Account) (pop3Connection, net.Conn, error)

// POP3Mailbox is a long-lived POP3/POP3S session. Messages are addressed by
// their ordinal within the session.
type POP3Mailbox struct {
	*Lifecycle

	account     Account
	dialTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger
	newConn     pop3ConnFactory
	conn        pop3Connection
	socket      net.Conn
}

// POP3Option customizes mailbox behavior.
type POP3Option func(*POP3Mailbox)

// NewPOP3Mailbox returns an unconnected POP3 session for account.
func NewPOP3Mailbox(account Account, opts ...POP3Option) *POP3Mailbox {
	m := &POP3Mailbox{
		account:     account,
		dialTimeout: 10 * time.Second,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	m.newConn = m.defaultConnFactory
	for _, opt := range opts {
		opt(m)
	}
	if m.newConn == nil {
		m.newConn = m.defaultConnFactory
	}
	m.Lifecycle = NewLifecycle(account, ProtocolPOP3, Hooks{
		Dial:      m.dial,
		Handshake: m.auth,
		Probe:     func() error { return m.conn.Noop() },
		Quit:      m.quit,
		Drop:      m.dropConn,
	}, m.logger, m.now)
	return m
}

// WithPOP3Logger overrides the logger used for connector diagnostics.
func WithPOP3Logger(logger *zap.Logger) POP3Option {
	return func(m *POP3Mailbox) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPOP3DialTimeout overrides the socket dial timeout.
func WithPOP3DialTimeout(timeout time.Duration) POP3Option {
	return func(m *POP3Mailbox) {
		if timeout > 0 {
			m.dialTimeout = timeout
		}
	}
}

// WithPOP3Clock overrides the wall clock, primarily for tests.
func WithPOP3Clock(now func() time.Time) POP3Option {
	return func(m *POP3Mailbox) {
		if now != nil {
			m.now = now
		}
	}
}

func withPOP3ConnFactory(factory pop3ConnFactory) POP3Option {
	return func(m *POP3Mailbox) {
		m.newConn = factory
	}
}

func (m *POP3Mailbox) dial(ctx context.Context) (net.Conn, error) {
	if err := validateAccount(m.account); err != nil {
		return nil, err
	}
	conn, socket, err := m.newConn(ctx, m.account)
	if err != nil {
		return nil, fmt.Errorf("pop3 connect: %w", err)
	}
	m.conn = conn
	m.socket = socket
	return socket, nil
}

func (m *POP3Mailbox) auth() error {
	if err := m.conn.Auth(m.account.Username, string(m.account.Password)); err != nil {
		return fmt.Errorf("pop3 auth: %w", err)
	}
	return nil
}

func (m *POP3Mailbox) quit() error {
	if m.conn == nil {
		return nil
	}
	err := m.conn.Quit()
	m.conn = nil
	m.socket = nil
	if err != nil {
		return fmt.Errorf("pop3 quit: %w", err)
	}
	return nil
}

func (m *POP3Mailbox) dropConn() {
	if m.socket != nil {
		_ = m.socket.Close()
	}
	m.conn = nil
	m.socket = nil
}

// List returns ordinals 1..N for the messages present when called.
func (m *POP3Mailbox) List(ctx context.Context) ([]string, error) {
	var count int
	err := m.Do(ctx, "stat", func() error {
		n, _, err := m.conn.Stat()
		if err != nil {
			return fmt.Errorf("pop3 stat: %w", err)
		}
		count = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		ids = append(ids, strconv.Itoa(i))
	}
	return ids, nil
}

// FetchHeader issues TOP n 0. The header is parsed after the round-trip so a
// malformed message fails on its own without costing the session.
func (m *POP3Mailbox) FetchHeader(ctx context.Context, id string) (Header, error) {
	n, err := parseOrdinal(id)
	if err != nil {
		return Header{ID: id}, err
	}
	var raw []byte
	err = m.Do(ctx, "top", func() error {
		buf, err := m.conn.Cmd("TOP", true, n, 0)
		if err != nil {
			return fmt.Errorf("pop3 top %d: %w", n, err)
		}
		raw = append([]byte(nil), buf.Bytes()...)
		return nil
	})
	if err != nil {
		return Header{ID: id}, err
	}
	return ParseHeader(id, raw)
}

// FetchMessage issues RETR n.
func (m *POP3Mailbox) FetchMessage(ctx context.Context, id string) (*RawMessage, error) {
	n, err := parseOrdinal(id)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = m.Do(ctx, "retr", func() error {
		buf, err := m.conn.RetrRaw(n)
		if err != nil {
			return fmt.Errorf("pop3 retr %d: %w", n, err)
		}
		raw = append([]byte(nil), buf.Bytes()...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ParseMessage(id, raw)
}

// MarkRead is a no-op; POP3 has no flags.
func (m *POP3Mailbox) MarkRead(context.Context, []string) error {
	return nil
}

func parseOrdinal(id string) (int, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid pop3 message number %q", id)
	}
	return n, nil
}

func (m *POP3Mailbox) defaultConnFactory(ctx context.Context, account Account) (pop3Connection, net.Conn, error) {
	if account.Host == "" {
		return nil, nil, errors.New("pop3 account missing host")
	}
	port := account.Port
	if port == 0 {
		port = 110
		if account.Encryption == EncryptionTLS {
			port = 995
		}
	}
	dialer := &trackingDialer{ctx: ctx, dialer: &net.Dialer{Timeout: m.dialTimeout}}
	client := pop3.New(pop3.Opt{
		Host:        account.Host,
		Port:        port,
		DialTimeout: m.dialTimeout,
		Dialer:      dialer,
		TLSEnabled:  account.Encryption == EncryptionTLS,
	})
	conn, err := client.NewConn()
	if err != nil {
		if dialer.conn != nil {
			_ = dialer.conn.Close()
		}
		return nil, nil, err
	}
	return conn, dialer.conn, nil
}

// trackingDialer keeps hold of the socket pop3 dials so round-trips can be
// bounded with deadlines.
type trackingDialer struct {
	ctx    context.Context
	dialer *net.Dialer
	conn   net.Conn
}

func (d *trackingDialer) Dial(network, address string) (net.Conn, error) {
	conn, err := d.dialer.DialContext(d.ctx, network, address)
	if err != nil {
		return nil, err
	}
	d.conn = conn
	return conn, nil
}
