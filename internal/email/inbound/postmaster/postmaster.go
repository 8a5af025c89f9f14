// Package postmaster drives a collection run: every configured mailbox is
// enumerated and each new backup report becomes one stored job record.
package postmaster

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/cache"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/connector"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/enumerator"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/filters"
)

// Notifier sends the administrator notice.
type Notifier interface {
	Probe(ctx context.Context) bool
	SendMessage(ctx context.Context, subject, text, html string) error
	Close() error
}

// Recorder receives run metrics.
type Recorder interface {
	ObserveMessage(server, outcome string)
	SetAvailable(server string, ok bool)
	ObserveRun(started time.Time, d time.Duration, ok bool)
}

// StatusStore keeps the latest poll status per server.
type StatusStore interface {
	Save(ctx context.Context, status cache.PollStatus) error
}

// Service wires connectors, filters and the job processor together.
type Service struct {
	factory   connector.Factory
	chain     filters.Chain
	processor Processor
	known     enumerator.Store

	notifier      Notifier
	warnOnCollect bool
	recorder      Recorder
	status        StatusStore
	logger        *zap.Logger
	now           func() time.Time
	newRunID      func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier configures the outbound server. When warnOnCollect is set a
// notice goes out after runs that hit warnings, errors or unavailable servers.
func WithNotifier(n Notifier, warnOnCollect bool) Option {
	return func(s *Service) {
		s.notifier = n
		s.warnOnCollect = warnOnCollect
	}
}

// WithRecorder records run metrics.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithStatusStore publishes per-server poll status.
func WithStatusStore(st StatusStore) Option {
	return func(s *Service) {
		s.status = st
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func withRunIDs(next func() string) Option {
	return func(s *Service) {
		s.newRunID = next
	}
}

// NewService builds the orchestrator. known answers whether a report was
// stored before and flips its seen flag.
func NewService(factory connector.Factory, chain filters.Chain, processor Processor, known enumerator.Store, opts ...Option) *Service {
	s := &Service{
		factory:   factory,
		chain:     chain,
		processor: processor,
		known:     known,
		logger:    zap.NewNop(),
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run collects from every account in order. It never fails as a whole; the
// returned Summary tells what happened.
func (s *Service) Run(ctx context.Context, accounts []connector.Account) Summary {
	summary := Summary{RunID: s.newRunID(), Started: s.now()}
	logger := s.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("collection started", zap.Int("servers", len(accounts)))

	if s.notifier != nil {
		summary.OutboundConfigured = true
		summary.OutboundAvailable = s.notifier.Probe(ctx)
		defer func() { _ = s.notifier.Close() }()
	}

	for _, account := range accounts {
		srv := s.collect(ctx, account, logger)
		summary.Servers = append(summary.Servers, srv)
		s.publish(ctx, summary.RunID, srv, logger)
	}

	summary.Duration = s.now().Sub(summary.Started)
	summary.evaluate()

	if s.notifier != nil && s.warnOnCollect && summary.OutboundAvailable && summary.HasIssues() {
		subject, text, html := renderNotice(summary)
		if err := s.notifier.SendMessage(ctx, subject, text, html); err != nil {
			summary.NoticeError = err.Error()
			logger.Warn("notice not sent", zap.Error(err))
		} else {
			summary.NoticeSent = true
		}
	}

	if s.recorder != nil {
		s.recorder.ObserveRun(summary.Started, summary.Duration, summary.OK)
	}
	logger.Info("collection finished", zap.Bool("ok", summary.OK), zap.Duration("duration", summary.Duration))
	return summary
}

func (s *Service) collect(ctx context.Context, account connector.Account, logger *zap.Logger) ServerSummary {
	srv := ServerSummary{Server: account.Label(), Protocol: account.Protocol}
	logger = logger.With(zap.String("server", srv.Server))

	mailbox, err := s.factory.MailboxFor(account)
	if err != nil {
		srv.Error = err.Error()
		logger.Error("no mailbox for server", zap.Error(err))
		s.setAvailable(srv.Server, false)
		return srv
	}
	defer func() {
		if err := mailbox.Close(); err != nil {
			logger.Debug("close failed", zap.Error(err))
		}
	}()

	if _, err := mailbox.Connect(ctx); err != nil {
		srv.Error = err.Error()
		logger.Warn("server unavailable", zap.Error(err))
		s.setAvailable(srv.Server, false)
		return srv
	}
	srv.Available = true

	en := enumerator.New(mailbox, account, s.chain, s.known, enumerator.WithLogger(logger))
	n, err := en.CheckForNewMessages(ctx)
	if err != nil {
		srv.Error = err.Error()
		srv.Available = mailbox.Available()
		logger.Warn("listing failed", zap.Error(err))
		s.setAvailable(srv.Server, srv.Available)
		return srv
	}
	srv.Found = n
	logger.Info("messages listed", zap.Int("count", n))

	srv.Drained = s.drain(ctx, en, mailbox, &srv, logger)
	srv.Available = mailbox.Available()
	s.setAvailable(srv.Server, srv.Available)

	if srv.Drained && account.MarkRead {
		ids := en.ConsumedIDs()
		if len(ids) > 0 {
			if err := mailbox.MarkRead(ctx, ids); err != nil {
				logger.Warn("mark read failed", zap.Error(err))
			} else {
				srv.MarkedRead = len(ids)
			}
		}
	}
	return srv
}

// drain visits every message. It returns false when cancellation or a broken
// session stopped it early.
func (s *Service) drain(ctx context.Context, en *enumerator.Enumerator, mailbox connector.Mailbox, srv *ServerSummary, logger *zap.Logger) bool {
	for {
		if err := ctx.Err(); err != nil {
			srv.Error = err.Error()
			logger.Warn("collection cancelled", zap.Int("remaining", en.Remaining()))
			return false
		}

		item, err := en.NextMessage(ctx)
		if errors.Is(err, enumerator.ErrEndOfBatch) {
			return true
		}
		if err != nil {
			if !mailbox.Available() {
				srv.Error = err.Error()
				logger.Warn("session lost", zap.Error(err), zap.Int("remaining", en.Remaining()))
				return false
			}
			srv.Failed++
			s.observe(srv.Server, "failed")
			logger.Warn("message failed", zap.String("id", item.Header.ID), zap.Error(err))
			continue
		}

		switch item.Outcome {
		case enumerator.OutcomeSkipped:
			srv.Skipped++
			s.observe(srv.Server, "skipped")
		case enumerator.OutcomeKnown:
			srv.Known++
			s.observe(srv.Server, "known")
		case enumerator.OutcomeCandidate:
			s.process(ctx, en, item, srv, logger)
		}
	}
}

func (s *Service) process(ctx context.Context, en *enumerator.Enumerator, item enumerator.Item, srv *ServerSummary, logger *zap.Logger) {
	res, err := s.processor.Process(ctx, item)
	if err != nil {
		srv.Failed++
		s.observe(srv.Server, "failed")
		logger.Error("report not recorded",
			zap.String("message_id", item.Header.MessageID),
			zap.String("subject", item.Header.Subject),
			zap.Error(err))
		return
	}
	en.Consumed(item.Header.ID)
	if res.Action == ActionDuplicate {
		srv.Known++
		s.observe(srv.Server, "known")
		return
	}
	srv.Stored++
	s.observe(srv.Server, "stored")
	if res.Record == nil {
		return
	}
	switch {
	case res.Record.RunFailed:
		srv.FailedJobs++
	case res.Record.HasProblems():
		srv.Warnings++
	}
}

func (s *Service) observe(server, outcome string) {
	if s.recorder != nil {
		s.recorder.ObserveMessage(server, outcome)
	}
}

func (s *Service) setAvailable(server string, ok bool) {
	if s.recorder != nil {
		s.recorder.SetAvailable(server, ok)
	}
}

func (s *Service) publish(ctx context.Context, runID string, srv ServerSummary, logger *zap.Logger) {
	if s.status == nil {
		return
	}
	err := s.status.Save(ctx, cache.PollStatus{
		Server:    srv.Server,
		RunID:     runID,
		Available: srv.Available,
		Found:     srv.Found,
		Stored:    srv.Stored,
		Known:     srv.Known,
		Skipped:   srv.Skipped,
		Failed:    srv.Failed,
		Warnings:  srv.Warnings + srv.FailedJobs,
		Error:     srv.Error,
		PolledAt:  s.now(),
	})
	if err != nil {
		logger.Warn("poll status not saved", zap.String("server", srv.Server), zap.Error(err))
	}
}
