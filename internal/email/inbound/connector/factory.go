package connector

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Builder constructs a mailbox session for one account.
type Builder func(account Account) Mailbox

// FactoryOption customizes a connector factory.
type FactoryOption func(*simpleFactory)

type simpleFactory struct {
	mu       sync.RWMutex
	builders map[Protocol]Builder
}

// NewFactory builds a connector factory with the provided options.
func NewFactory(opts ...FactoryOption) Factory {
	f := &simpleFactory{builders: make(map[Protocol]Builder)}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// DefaultFactory returns a factory preloaded with the IMAP and POP3 sessions.
func DefaultFactory(logger *zap.Logger) Factory {
	return NewFactory(
		WithBuilder(func(a Account) Mailbox { return NewPOP3Mailbox(a, WithPOP3Logger(logger)) }, "pop3", "pop3s"),
		WithBuilder(func(a Account) Mailbox { return NewIMAPMailbox(a, WithIMAPLogger(logger)) }, "imap", "imaps"),
	)
}

// WithBuilder registers a builder for the provided protocol names.
func WithBuilder(builder Builder, protocols ...string) FactoryOption {
	return func(f *simpleFactory) {
		if f == nil || builder == nil {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, p := range protocols {
			key := normalizeProtocol(p)
			if key == "" {
				continue
			}
			f.builders[key] = builder
		}
	}
}

func (f *simpleFactory) MailboxFor(account Account) (Mailbox, error) {
	key := normalizeProtocol(string(account.Protocol))
	f.mu.RLock()
	builder, ok := f.builders[key]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no connector registered for protocol %s", account.Protocol)
	}
	return builder(account), nil
}
