package connector

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"
)

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Noop() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
	Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

type imapClientFactory func(ctx context.Context, account Account) (imapClient, net.Conn, error)

// IMAPMailbox is a long-lived IMAP/IMAPS session over one folder.
type IMAPMailbox struct {
	*Lifecycle

	account     Account
	dialTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger
	newClient   imapClientFactory
	client      imapClient
}

// IMAPOption customizes mailbox behavior.
type IMAPOption func(*IMAPMailbox)

// NewIMAPMailbox returns an unconnected IMAP session for account.
func NewIMAPMailbox(account Account, opts ...IMAPOption) *IMAPMailbox {
	m := &IMAPMailbox{
		account:     account,
		dialTimeout: 10 * time.Second,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	m.newClient = m.defaultClientFactory
	for _, opt := range opts {
		opt(m)
	}
	if m.newClient == nil {
		m.newClient = m.defaultClientFactory
	}
	m.Lifecycle = NewLifecycle(account, ProtocolIMAP, Hooks{
		Dial:      m.dial,
		Handshake: m.handshake,
		Probe:     func() error { return m.client.Noop().Wait() },
		Quit:      m.logout,
		Drop:      m.dropClient,
	}, m.logger, m.now)
	return m
}

// WithIMAPLogger overrides the logger used for connector diagnostics.
func WithIMAPLogger(logger *zap.Logger) IMAPOption {
	return func(m *IMAPMailbox) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithIMAPDialTimeout overrides the socket dial timeout.
func WithIMAPDialTimeout(timeout time.Duration) IMAPOption {
	return func(m *IMAPMailbox) {
		if timeout > 0 {
			m.dialTimeout = timeout
		}
	}
}

// WithIMAPClock overrides the wall clock, primarily for tests.
func WithIMAPClock(now func() time.Time) IMAPOption {
	return func(m *IMAPMailbox) {
		if now != nil {
			m.now = now
		}
	}
}

func withIMAPClientFactory(factory imapClientFactory) IMAPOption {
	return func(m *IMAPMailbox) {
		m.newClient = factory
	}
}

func (m *IMAPMailbox) folder() string {
	if m.account.IMAPFolder == "" {
		return "INBOX"
	}
	return m.account.IMAPFolder
}

func (m *IMAPMailbox) dial(ctx context.Context) (net.Conn, error) {
	if err := validateAccount(m.account); err != nil {
		return nil, err
	}
	client, conn, err := m.newClient(ctx, m.account)
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}
	m.client = client
	return conn, nil
}

func (m *IMAPMailbox) handshake() error {
	if err := m.client.Login(m.account.Username, string(m.account.Password)).Wait(); err != nil {
		return fmt.Errorf("imap auth: %w", err)
	}
	if _, err := m.client.Select(m.folder(), nil).Wait(); err != nil {
		return fmt.Errorf("imap select %s: %w", m.folder(), err)
	}
	return nil
}

func (m *IMAPMailbox) logout() error {
	if m.client == nil {
		return nil
	}
	defer m.dropClient()
	if err := m.client.Logout().Wait(); err != nil {
		return fmt.Errorf("imap logout: %w", err)
	}
	return nil
}

func (m *IMAPMailbox) dropClient() {
	if m.client == nil {
		return
	}
	if err := m.client.Close(); err != nil {
		m.logger.Debug("imap close error", zap.Error(err))
	}
	m.client = nil
}

// List returns message UIDs in the selected folder, optionally only unseen ones.
func (m *IMAPMailbox) List(ctx context.Context) ([]string, error) {
	criteria := &imap.SearchCriteria{}
	if m.account.UnreadOnly {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}
	var uids []imap.UID
	err := m.Do(ctx, "search", func() error {
		data, err := m.client.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return fmt.Errorf("imap search: %w", err)
		}
		uids = data.AllUIDs()
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

// FetchHeader retrieves only the header block without setting \Seen.
func (m *IMAPMailbox) FetchHeader(ctx context.Context, id string) (Header, error) {
	section := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierHeader, Peek: true}
	raw, err := m.fetchSection(ctx, id, section)
	if err != nil {
		return Header{ID: id}, err
	}
	return ParseHeader(id, raw)
}

// FetchMessage retrieves the full message without setting \Seen.
func (m *IMAPMailbox) FetchMessage(ctx context.Context, id string) (*RawMessage, error) {
	raw, err := m.fetchSection(ctx, id, &imap.FetchItemBodySection{Peek: true})
	if err != nil {
		return nil, err
	}
	return ParseMessage(id, raw)
}

func (m *IMAPMailbox) fetchSection(ctx context.Context, id string, section *imap.FetchItemBodySection) ([]byte, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}
	opts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}
	var body []byte
	err = m.Do(ctx, "fetch", func() error {
		buffers, err := m.client.Fetch(imap.UIDSetNum(uid), opts).Collect()
		if err != nil {
			return fmt.Errorf("imap fetch: %w", err)
		}
		body = nil
		for _, buf := range buffers {
			if buf.UID != uid {
				continue
			}
			body = buf.FindBodySection(section)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("imap message %s not found", id)
	}
	return append([]byte(nil), body...), nil
}

// MarkRead adds \Seen to the given UIDs.
func (m *IMAPMailbox) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	uids := make([]imap.UID, 0, len(ids))
	for _, id := range ids {
		uid, err := parseUID(id)
		if err != nil {
			return err
		}
		uids = append(uids, uid)
	}
	store := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Silent: true, Flags: []imap.Flag{imap.FlagSeen}}
	return m.Do(ctx, "store", func() error {
		if err := m.client.Store(imap.UIDSetNum(uids...), store, nil).Close(); err != nil {
			return fmt.Errorf("imap store seen: %w", err)
		}
		return nil
	})
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid imap uid %q", id)
	}
	return imap.UID(n), nil
}

func (m *IMAPMailbox) defaultClientFactory(ctx context.Context, account Account) (imapClient, net.Conn, error) {
	if account.Host == "" {
		return nil, nil, errors.New("imap account missing host")
	}
	dialer := &net.Dialer{Timeout: m.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", account.Address(143, 993))
	if err != nil {
		return nil, nil, err
	}
	if account.Encryption == EncryptionTLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: account.Host, MinVersion: tls.VersionTLS12})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("imap tls: %w", err)
		}
		conn = tlsConn
	}
	return &imapClientWrapper{Client: imapclient.New(conn, nil)}, conn, nil
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Noop() commandWaiter   { return w.Client.Noop() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}
func (w *imapClientWrapper) Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter {
	return w.Client.Store(numSet, store, options)
}

func validateAccount(account Account) error {
	if account.Username == "" {
		return fmt.Errorf("%s account missing username", account.Protocol)
	}
	if len(account.Password) == 0 {
		return fmt.Errorf("%s account missing password", account.Protocol)
	}
	return nil
}
