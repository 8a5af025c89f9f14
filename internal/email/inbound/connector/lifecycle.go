package connector

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
)

// Hooks binds a Lifecycle to one protocol client.
type Hooks struct {
	// Dial opens the socket and builds the protocol client. The returned conn is
	// used to bound later round-trips and may be nil for in-memory clients.
	Dial func(ctx context.Context) (net.Conn, error)
	// Handshake authenticates and selects whatever the session needs.
	Handshake func() error
	// Probe is a cheap liveness check such as NOOP.
	Probe func() error
	// Quit says goodbye politely and releases the socket.
	Quit func() error
	// Drop releases the socket without talking to the server.
	Drop func()
}

// Lifecycle implements connect, liveness probing and the single transparent
// reconnect shared by every protocol session. It is not safe for concurrent use.
type Lifecycle struct {
	account Account
	proto   Protocol
	hooks   Hooks
	logger  *zap.Logger
	now     func() time.Time

	conn      net.Conn
	live      bool
	available bool
	broken    bool
	info      SessionInfo
}

// NewLifecycle wires hooks to the account settings.
func NewLifecycle(account Account, proto Protocol, hooks Hooks, logger *zap.Logger, now func() time.Time) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{
		account: account,
		proto:   proto,
		hooks:   hooks,
		logger:  logger.With(zap.String("server", account.Label()), zap.String("protocol", string(proto))),
		now:     now,
	}
}

// Name returns the account label.
func (l *Lifecycle) Name() string { return l.account.Label() }

// Account exposes the settings the session was built with.
func (l *Lifecycle) Account() Account { return l.account }

// Available reports whether the last connect succeeded and the session has not been escalated.
func (l *Lifecycle) Available() bool { return l.available && !l.broken }

// Info returns details about the current session.
func (l *Lifecycle) Info() SessionInfo { return l.info }

// Connect establishes a fresh session, replacing any existing one. It is the
// only call that clears an earlier escalation, so long-lived sessions recover
// on the next run.
func (l *Lifecycle) Connect(ctx context.Context) (SessionInfo, error) {
	l.broken = false
	if l.live {
		l.drop()
	}
	reconnects := l.info.Reconnects
	if err := l.open(ctx); err != nil {
		l.available = false
		l.logger.Warn("connect failed", zap.Error(err))
		return SessionInfo{}, &ConnectionError{Server: l.Name(), Op: "connect", Err: err}
	}
	l.live = true
	l.available = true
	l.info = SessionInfo{
		Server:      l.Name(),
		Protocol:    l.proto,
		ConnectedAt: l.now(),
		Reconnects:  reconnects,
	}
	l.logger.Debug("connected")
	return l.info, nil
}

func (l *Lifecycle) open(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, l.account.CallTimeout())
	defer cancel()
	conn, err := l.hooks.Dial(dialCtx)
	if err != nil {
		return err
	}
	l.conn = conn
	if l.hooks.Handshake == nil {
		return nil
	}
	if err := l.guard(l.hooks.Handshake); err != nil {
		l.dropSocket()
		return err
	}
	return nil
}

// EnsureConnected probes the session and reconnects once when the probe fails.
// Sessions configured without keep-alive are always re-established.
func (l *Lifecycle) EnsureConnected(ctx context.Context) error {
	if l.broken {
		return &ConnectionError{Server: l.Name(), Op: "probe", Err: ErrUnavailable}
	}
	if !l.live {
		_, err := l.Connect(ctx)
		return err
	}
	if !l.account.KeepAlive {
		_, err := l.Connect(ctx)
		return err
	}
	if l.hooks.Probe == nil {
		return nil
	}
	if err := l.guard(l.hooks.Probe); err != nil {
		return l.reconnect(ctx, &TransientError{Server: l.Name(), Op: "noop", Err: err})
	}
	return nil
}

// Do runs fn against the live session. A failure tears the session down and
// fn is retried once on a fresh connection; a second failure is escalated to a
// ConnectionError and the server stays unavailable for the rest of the run.
func (l *Lifecycle) Do(ctx context.Context, op string, fn func() error) error {
	if l.broken {
		return &ConnectionError{Server: l.Name(), Op: op, Err: ErrUnavailable}
	}
	if !l.live {
		if _, err := l.Connect(ctx); err != nil {
			return err
		}
	}
	err := l.guard(fn)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err := l.reconnect(ctx, &TransientError{Server: l.Name(), Op: op, Err: err}); err != nil {
		return err
	}
	if err := l.guard(fn); err != nil {
		l.escalate()
		return &ConnectionError{Server: l.Name(), Op: op, Err: err}
	}
	return nil
}

func (l *Lifecycle) reconnect(ctx context.Context, cause *TransientError) error {
	l.logger.Warn("session failed, reconnecting", zap.String("op", cause.Op), zap.Error(cause.Err))
	l.drop()
	if _, err := l.Connect(ctx); err != nil {
		l.escalate()
		return err
	}
	l.info.Reconnects++
	return nil
}

func (l *Lifecycle) escalate() {
	l.broken = true
	l.available = false
	l.drop()
}

// Close ends the session politely. It is safe to call more than once.
func (l *Lifecycle) Close() error {
	if !l.live {
		return nil
	}
	l.live = false
	var err error
	if l.hooks.Quit != nil {
		err = l.guard(l.hooks.Quit)
	}
	l.conn = nil
	if err != nil {
		l.logger.Debug("quit failed", zap.Error(err))
		return err
	}
	l.logger.Debug("closed")
	return nil
}

func (l *Lifecycle) drop() {
	if !l.live {
		return
	}
	l.live = false
	l.dropSocket()
}

func (l *Lifecycle) dropSocket() {
	if l.hooks.Drop != nil {
		l.hooks.Drop()
	} else if l.conn != nil {
		_ = l.conn.Close()
	}
	l.conn = nil
}

// guard bounds fn with the account timeout by arming a socket deadline.
func (l *Lifecycle) guard(fn func() error) error {
	conn := l.conn
	if conn == nil {
		return fn()
	}
	if err := conn.SetDeadline(time.Now().Add(l.account.CallTimeout())); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	defer func() { _ = conn.SetDeadline(time.Time{}) }()
	return fn()
}
