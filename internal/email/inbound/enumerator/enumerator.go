// Package enumerator walks the messages of one mailbox, drops those that are
// not backup reports and recognizes reports that were already recorded.
package enumerator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/connector"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/filters"
)

// ErrEndOfBatch is returned by NextMessage once every listed message was visited.
var ErrEndOfBatch = errors.New("enumerator: end of batch")

// Outcome classifies one visited message.
type Outcome int

const (
	// OutcomeCandidate carries a fully fetched report ready for extraction.
	OutcomeCandidate Outcome = iota
	// OutcomeKnown marks a report whose job record already exists.
	OutcomeKnown
	// OutcomeSkipped marks a message that is not of interest.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCandidate:
		return "candidate"
	case OutcomeKnown:
		return "known"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Item is the result of one NextMessage call.
type Item struct {
	Outcome     Outcome
	Header      connector.Header
	Source      string
	Destination string
	Message     *connector.RawMessage
	SkipReason  filters.SkipReason
	SkipDetail  string
}

// Store answers whether a message was recorded before.
type Store interface {
	MessageExists(ctx context.Context, messageID string) (bool, error)
	MarkSeen(ctx context.Context, messageID string) error
}

// Enumerator holds the identifier list of one mailbox and a cursor into it.
type Enumerator struct {
	mailbox connector.Mailbox
	account connector.Account
	chain   filters.Chain
	store   Store
	logger  *zap.Logger

	ids      []string
	cursor   int
	consumed []string
}

// Option customizes an Enumerator.
type Option func(*Enumerator)

// WithLogger sets the enumerator logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Enumerator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New binds an enumerator to mailbox. chain decides which headers are reports.
func New(mailbox connector.Mailbox, account connector.Account, chain filters.Chain, store Store, opts ...Option) *Enumerator {
	e := &Enumerator{
		mailbox: mailbox,
		account: account,
		chain:   chain,
		store:   store,
		logger:  zap.NewNop(),
		cursor:  -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckForNewMessages lists the mailbox and rewinds the cursor.
func (e *Enumerator) CheckForNewMessages(ctx context.Context) (int, error) {
	ids, err := e.mailbox.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", e.mailbox.Name(), err)
	}
	e.ids = ids
	e.cursor = -1
	e.consumed = e.consumed[:0]
	return len(ids), nil
}

// NextMessage advances the cursor and classifies the message under it. An
// error leaves the cursor on the failed message so the caller may move on.
func (e *Enumerator) NextMessage(ctx context.Context) (Item, error) {
	if e.cursor+1 >= len(e.ids) {
		e.cursor = len(e.ids)
		return Item{}, ErrEndOfBatch
	}
	e.cursor++
	id := e.ids[e.cursor]

	header, err := e.mailbox.FetchHeader(ctx, id)
	if err != nil {
		return Item{Header: connector.Header{ID: id}}, fmt.Errorf("fetch header %s: %w", id, err)
	}
	header.ID = id

	mc := &filters.MessageContext{Account: e.account, Header: header}
	if err := e.chain.Run(ctx, mc); err != nil {
		return Item{Header: header}, fmt.Errorf("filter %s: %w", id, err)
	}
	if reason, detail, skipped := mc.Skipped(); skipped {
		e.logger.Debug("message skipped",
			zap.String("id", id),
			zap.String("reason", string(reason)),
			zap.String("detail", detail))
		return Item{Outcome: OutcomeSkipped, Header: header, SkipReason: reason, SkipDetail: detail}, nil
	}

	item := Item{Header: header, Source: mc.Source, Destination: mc.Destination}

	known, err := e.store.MessageExists(ctx, header.MessageID)
	if err != nil {
		return item, fmt.Errorf("lookup %s: %w", header.MessageID, err)
	}
	if known {
		if err := e.store.MarkSeen(ctx, header.MessageID); err != nil {
			return item, fmt.Errorf("mark seen %s: %w", header.MessageID, err)
		}
		e.consumed = append(e.consumed, id)
		item.Outcome = OutcomeKnown
		return item, nil
	}

	msg, err := e.mailbox.FetchMessage(ctx, id)
	if err != nil {
		return item, fmt.Errorf("fetch message %s: %w", id, err)
	}
	msg.ID = id
	item.Outcome = OutcomeCandidate
	item.Message = msg
	return item, nil
}

// Consumed records that the message under the cursor was durably stored.
func (e *Enumerator) Consumed(id string) {
	e.consumed = append(e.consumed, id)
}

// ConsumedIDs lists known and stored messages of the current batch.
func (e *Enumerator) ConsumedIDs() []string {
	return append([]string(nil), e.consumed...)
}

// Remaining reports how many listed messages are still ahead of the cursor.
func (e *Enumerator) Remaining() int {
	if n := len(e.ids) - e.cursor - 1; n > 0 {
		return n
	}
	return 0
}
