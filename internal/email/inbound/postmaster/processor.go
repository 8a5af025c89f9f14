package postmaster

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/enumerator"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/payload"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/models"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/store"
)

// Processor turns a candidate report into a durable job record.
type Processor interface {
	Process(ctx context.Context, item enumerator.Item) (Result, error)
}

// Actions reported in Result.
const (
	ActionStored    = "stored"
	ActionDuplicate = "duplicate"
)

// Result tracks what happened to a message.
type Result struct {
	MessageID string
	Action    string
	Record    *models.JobRecord
}

// JobStore persists job records.
type JobStore interface {
	InsertJobRecord(ctx context.Context, rec models.JobRecord) error
	MarkSeen(ctx context.Context, messageID string) error
}

// JobProcessor extracts report fields and writes the job record.
type JobProcessor struct {
	extractor *payload.Extractor
	store     JobStore
	logger    *zap.Logger
}

// NewJobProcessor wires the extractor to the store.
func NewJobProcessor(extractor *payload.Extractor, store JobStore, logger *zap.Logger) *JobProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobProcessor{extractor: extractor, store: store, logger: logger}
}

// Process implements Processor. A failed write is retried once; a record that
// already exists only has its seen flag set.
func (p *JobProcessor) Process(ctx context.Context, item enumerator.Item) (Result, error) {
	msg := item.Message
	if msg == nil {
		return Result{}, fmt.Errorf("process %s: no message body", item.Header.ID)
	}
	fields, err := p.extractor.Extract(msg.Body, msg.Date, msg.UTCOffset)
	if err != nil {
		return Result{MessageID: msg.MessageID}, fmt.Errorf("extract %s: %w", msg.MessageID, err)
	}
	rec := models.NewJobRecord(msg.MessageID, item.Source, item.Destination, msg.Date, fields)
	rec.Structured = payload.IsStructured(msg.Body)

	err = p.store.InsertJobRecord(ctx, rec)
	if err != nil && !errors.Is(err, store.ErrDuplicate) && ctx.Err() == nil {
		p.logger.Warn("storing job record failed, retrying",
			zap.String("message_id", rec.MessageID), zap.Error(err))
		err = p.store.InsertJobRecord(ctx, rec)
	}
	switch {
	case errors.Is(err, store.ErrDuplicate):
		if err := p.store.MarkSeen(ctx, rec.MessageID); err != nil {
			return Result{MessageID: rec.MessageID}, fmt.Errorf("mark seen %s: %w", rec.MessageID, err)
		}
		return Result{MessageID: rec.MessageID, Action: ActionDuplicate}, nil
	case err != nil:
		return Result{MessageID: rec.MessageID}, fmt.Errorf("store %s: %w", rec.MessageID, err)
	}

	p.logger.Info("job recorded",
		zap.String("message_id", rec.MessageID),
		zap.String("source", rec.Source),
		zap.String("destination", rec.Destination),
		zap.String("result", rec.ParsedResult),
		zap.Bool("structured", rec.Structured))
	return Result{MessageID: rec.MessageID, Action: ActionStored, Record: &rec}, nil
}
