package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/config"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/connector"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/postmaster"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/runner"
)

// CollectTaskName is the registry name of the collection task.
const CollectTaskName = "collect"

const defaultSchedule = "*/15 * * * *"

// ErrCollectFailed is returned when a run could not reach its servers.
var ErrCollectFailed = errors.New("collection failed")

// Collector runs one collection pass.
type Collector interface {
	Run(ctx context.Context, accounts []connector.Account) postmaster.Summary
}

// AccountSource yields the servers to poll. It is called on every run so
// configuration reloads take effect on the next tick.
type AccountSource func() []connector.Account

// CollectTask polls every inbound server on a schedule.
type CollectTask struct {
	collector Collector
	accounts  AccountSource
	schedule  string
	timeout   time.Duration
	logger    *zap.Logger

	mu   sync.Mutex
	last *postmaster.Summary
}

// NewCollectTask creates the collection task.
func NewCollectTask(collector Collector, accounts AccountSource, cfg config.ScheduleConfig, logger *zap.Logger) runner.Task {
	return newCollectTask(collector, accounts, cfg, logger)
}

func newCollectTask(collector Collector, accounts AccountSource, cfg config.ScheduleConfig, logger *zap.Logger) *CollectTask {
	if logger == nil {
		logger = zap.NewNop()
	}
	schedule := strings.TrimSpace(cfg.Cron)
	if schedule == "" {
		schedule = defaultSchedule
	}
	return &CollectTask{
		collector: collector,
		accounts:  accounts,
		schedule:  schedule,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
}

// Name returns the task name
func (t *CollectTask) Name() string { return CollectTaskName }

// Schedule returns the cron schedule
func (t *CollectTask) Schedule() string { return t.schedule }

// Timeout returns the task timeout
func (t *CollectTask) Timeout() time.Duration { return t.timeout }

// Run collects once. Problems with single messages or some servers are part
// of the summary; only a run that could not work at all returns an error.
func (t *CollectTask) Run(ctx context.Context) error {
	summary := t.collector.Run(ctx, t.accounts())

	t.mu.Lock()
	t.last = &summary
	t.mu.Unlock()

	t.logger.Info("collection summary", zap.String("run_id", summary.RunID), zap.String("summary", summary.String()))
	if summary.OK {
		return nil
	}
	if summary.OutboundConfigured && !summary.OutboundAvailable {
		return fmt.Errorf("%w: outbound server unavailable", ErrCollectFailed)
	}
	return fmt.Errorf("%w: unavailable %s", ErrCollectFailed, strings.Join(summary.Unavailable(), ", "))
}

// Last returns the summary of the latest run.
func (t *CollectTask) Last() (postmaster.Summary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return postmaster.Summary{}, false
	}
	return *t.last, true
}
