package connector

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Protocol names the wire protocol spoken with a mail server.
type Protocol string

const (
	ProtocolIMAP Protocol = "imap"
	ProtocolPOP3 Protocol = "pop3"
	ProtocolSMTP Protocol = "smtp"
)

// Encryption selects how the socket is secured.
type Encryption string

const (
	EncryptionNone     Encryption = "none"
	EncryptionTLS      Encryption = "tls"
	EncryptionStartTLS Encryption = "starttls"
)

const defaultTimeout = 30 * time.Second

// Account carries the settings a session needs to reach one mail server.
type Account struct {
	Name       string
	Protocol   Protocol
	Host       string
	Port       int
	Encryption Encryption
	Username   string
	Password   []byte
	IMAPFolder string
	UnreadOnly bool
	MarkRead   bool
	KeepAlive  bool
	Timeout    time.Duration
}

// Label identifies the account in logs and summaries.
func (a Account) Label() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Username == "" {
		return fmt.Sprintf("%s://%s", a.Protocol, a.Host)
	}
	return fmt.Sprintf("%s://%s@%s", a.Protocol, a.Username, a.Host)
}

// Address returns host:port, falling back to the protocol default for the encryption mode.
func (a Account) Address(plainPort, tlsPort int) string {
	port := a.Port
	if port == 0 {
		port = plainPort
		if a.Encryption == EncryptionTLS {
			port = tlsPort
		}
	}
	return fmt.Sprintf("%s:%d", a.Host, port)
}

// CallTimeout bounds every network round-trip made for the account.
func (a Account) CallTimeout() time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return defaultTimeout
}

// SessionInfo describes an established session.
type SessionInfo struct {
	Server      string
	Protocol    Protocol
	ConnectedAt time.Time
	Reconnects  int
}

// Header carries the envelope fields the pipeline keys on.
type Header struct {
	// ID is the server-assigned handle (IMAP UID or POP3 ordinal).
	ID        string
	MessageID string
	Subject   string
	Date      time.Time
	// UTCOffset is the sender's zone offset in seconds as stated by the Date header.
	UTCOffset int
}

// RawMessage is one retrieved message with its decoded text body.
type RawMessage struct {
	Header
	Body string
}

// Session is the lifecycle contract shared by every server connection.
type Session interface {
	Name() string
	Connect(ctx context.Context) (SessionInfo, error)
	EnsureConnected(ctx context.Context) error
	Close() error
	Available() bool
}

// Mailbox is a retrieval session able to enumerate and fetch messages.
type Mailbox interface {
	Session
	List(ctx context.Context) ([]string, error)
	FetchHeader(ctx context.Context, id string) (Header, error)
	FetchMessage(ctx context.Context, id string) (*RawMessage, error)
	MarkRead(ctx context.Context, ids []string) error
}

// Factory resolves the correct mailbox implementation for an account.
type Factory interface {
	MailboxFor(account Account) (Mailbox, error)
}

func normalizeProtocol(value string) Protocol {
	return Protocol(strings.ToLower(strings.TrimSpace(value)))
}
