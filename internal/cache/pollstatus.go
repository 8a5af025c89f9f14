package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/config"
)

// PollStatus is the outcome of the latest collection for one server.
type PollStatus struct {
	Server    string    `json:"server"`
	RunID     string    `json:"run_id"`
	Available bool      `json:"available"`
	Found     int       `json:"found"`
	Stored    int       `json:"stored"`
	Known     int       `json:"known"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Warnings  int       `json:"warnings"`
	Error     string    `json:"error,omitempty"`
	PolledAt  time.Time `json:"polled_at"`
}

type statusClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// PollStatusStore keeps poll status in Redis so dashboards can show when each
// mailbox was last read.
type PollStatusStore struct {
	client statusClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewPollStatusStore connects to the Redis instance described by cfg.
func NewPollStatusStore(cfg config.StatusConfig, logger *zap.Logger) *PollStatusStore {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return newPollStatusStore(client, cfg.Prefix, cfg.TTL, logger)
}

func newPollStatusStore(client statusClient, prefix string, ttl time.Duration, logger *zap.Logger) *PollStatusStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "dupreport:poll"
	}
	return &PollStatusStore{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (s *PollStatusStore) key(server string) string {
	return fmt.Sprintf("%s:%s", s.prefix, server)
}

// Ping checks that Redis answers.
func (s *PollStatusStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Save records status under its server name.
func (s *PollStatusStore) Save(ctx context.Context, status PollStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode poll status: %w", err)
	}
	if err := s.client.Set(ctx, s.key(status.Server), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save poll status %s: %w", status.Server, err)
	}
	s.logger.Debug("poll status saved", zap.String("server", status.Server), zap.String("run_id", status.RunID))
	return nil
}

// Load returns the last status for server, or nil when none was recorded.
func (s *PollStatusStore) Load(ctx context.Context, server string) (*PollStatus, error) {
	data, err := s.client.Get(ctx, s.key(server)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load poll status %s: %w", server, err)
	}
	var status PollStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("decode poll status %s: %w", server, err)
	}
	return &status, nil
}

// Close releases the Redis client.
func (s *PollStatusStore) Close() error {
	return s.client.Close()
}
