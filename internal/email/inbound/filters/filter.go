package filters

import (
	"context"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/connector"
)

// SkipReason explains why a message is not of interest.
type SkipReason string

const (
	SkipMissingHeaders    SkipReason = "missing_headers"
	SkipSubjectMismatch   SkipReason = "subject_mismatch"
	SkipSourceDestination SkipReason = "source_destination"
)

// MessageContext is the mutable envelope filters operate on.
type MessageContext struct {
	Account     connector.Account
	Header      connector.Header
	Source      string
	Destination string

	skip   SkipReason
	detail string
}

// Skip marks the message as not of interest; later filters do not run.
func (m *MessageContext) Skip(reason SkipReason, detail string) {
	m.skip = reason
	m.detail = detail
}

// Skipped returns the skip reason, if any.
func (m *MessageContext) Skipped() (SkipReason, string, bool) {
	return m.skip, m.detail, m.skip != ""
}

// Filter inspects or annotates a message header before it is fetched in full.
type Filter interface {
	ID() string
	Apply(ctx context.Context, m *MessageContext) error
}

// Chain executes filters in order, short-circuiting on error or skip.
type Chain struct {
	filters []Filter
}

// NewChain returns a filter chain that runs the provided filters sequentially.
func NewChain(fs ...Filter) Chain {
	return Chain{filters: fs}
}

// Run executes the chain.
func (c Chain) Run(ctx context.Context, m *MessageContext) error {
	for _, f := range c.filters {
		if err := f.Apply(ctx, m); err != nil {
			return err
		}
		if _, _, skipped := m.Skipped(); skipped {
			return nil
		}
	}
	return nil
}
