package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/config"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/connector"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/postmaster"
)

type stubCollector struct {
	summary postmaster.Summary
	got     []connector.Account
}

func (s *stubCollector) Run(_ context.Context, accounts []connector.Account) postmaster.Summary {
	s.got = accounts
	return s.summary
}

func accounts(names ...string) AccountSource {
	return func() []connector.Account {
		out := make([]connector.Account, 0, len(names))
		for _, n := range names {
			out = append(out, connector.Account{Name: n, Protocol: connector.ProtocolIMAP})
		}
		return out
	}
}

func TestCollectTaskDefaults(t *testing.T) {
	task := newCollectTask(&stubCollector{}, accounts(), config.ScheduleConfig{}, nil)
	assert.Equal(t, "collect", task.Name())
	assert.Equal(t, "*/15 * * * *", task.Schedule())
	assert.Zero(t, task.Timeout())

	task = newCollectTask(&stubCollector{}, accounts(), config.ScheduleConfig{Cron: " @hourly ", Timeout: time.Minute}, nil)
	assert.Equal(t, "@hourly", task.Schedule())
	assert.Equal(t, time.Minute, task.Timeout())
}

func TestCollectTaskRunPassesAccountsAndKeepsSummary(t *testing.T) {
	c := &stubCollector{summary: postmaster.Summary{RunID: "r1", OK: true}}
	task := newCollectTask(c, accounts("main", "backup"), config.ScheduleConfig{}, nil)

	_, ok := task.Last()
	assert.False(t, ok)

	require.NoError(t, task.Run(context.Background()))
	require.Len(t, c.got, 2)
	assert.Equal(t, "backup", c.got[1].Name)

	last, ok := task.Last()
	require.True(t, ok)
	assert.Equal(t, "r1", last.RunID)
}

func TestCollectTaskRunFailures(t *testing.T) {
	tests := []struct {
		name    string
		summary postmaster.Summary
		want    string
	}{
		{
			name: "inbound down",
			summary: postmaster.Summary{Servers: []postmaster.ServerSummary{
				{Server: "a"}, {Server: "b"},
			}},
			want: "collection failed: unavailable a, b",
		},
		{
			name: "outbound down",
			summary: postmaster.Summary{
				Servers:            []postmaster.ServerSummary{{Server: "a", Available: true}},
				OutboundConfigured: true,
			},
			want: "collection failed: outbound server unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := newCollectTask(&stubCollector{summary: tt.summary}, accounts(), config.ScheduleConfig{}, nil)
			err := task.Run(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCollectFailed))
			assert.EqualError(t, err, tt.want)
		})
	}
}
