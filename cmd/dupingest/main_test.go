package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/config"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/connector"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/runner/tasks"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/store"
)

const report = `ExaminedFiles: 120
AddedFiles: 3
ParsedResult: Success
EndTime: 3/1/2024 10:01:50 AM (1709287310)
BeginTime: 3/1/2024 10:00:00 AM (1709287200)
`

type staticMailbox struct {
	header    connector.Header
	available bool
}

func (m *staticMailbox) Name() string { return "static" }

func (m *staticMailbox) Connect(context.Context) (connector.SessionInfo, error) {
	m.available = true
	return connector.SessionInfo{}, nil
}

func (m *staticMailbox) EnsureConnected(context.Context) error { return nil }

func (m *staticMailbox) Close() error { return nil }

func (m *staticMailbox) Available() bool { return m.available }

func (m *staticMailbox) List(context.Context) ([]string, error) { return []string{"1"}, nil }

func (m *staticMailbox) FetchHeader(context.Context, string) (connector.Header, error) {
	return m.header, nil
}

func (m *staticMailbox) FetchMessage(context.Context, string) (*connector.RawMessage, error) {
	return &connector.RawMessage{Header: m.header, Body: report}, nil
}

func (m *staticMailbox) MarkRead(context.Context, []string) error { return nil }

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "jobs.db")
	cfg := `app:
  timezone: UTC
database:
  driver: sqlite
  dsn: ` + dbPath + `
ingest:
  subject_regex: "^Duplicati Backup report for"
inbound:
  - name: main
    protocol: imap
    host: mail.example.com
    encryption: tls
schedule:
  cron: "@every 1h"
`
	path := filepath.Join(dir, "dupreport.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path, dbPath
}

func TestAppCollectsIntoConfiguredStore(t *testing.T) {
	path, dbPath := writeConfig(t)
	loader, err := config.NewLoader(path, nil)
	require.NoError(t, err)

	box := &staticMailbox{header: connector.Header{
		MessageID: "<a1@example.com>",
		Subject:   "Duplicati Backup report for workstation1-nas2",
		Date:      time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC),
	}}
	factory := connector.NewFactory(connector.WithBuilder(func(connector.Account) connector.Mailbox { return box }, "imap"))

	ctx := context.Background()
	a, err := newApp(ctx, loader, zaptest.NewLogger(t), withFactory(factory))
	require.NoError(t, err)
	defer a.close()

	reg, err := a.tasks()
	require.NoError(t, err)
	task, ok := reg.Get(tasks.CollectTaskName)
	require.True(t, ok)
	assert.Equal(t, "@every 1h", task.Schedule())
	require.NoError(t, task.Run(ctx))

	summary, ok := task.(*tasks.CollectTask).Last()
	require.True(t, ok)
	assert.Equal(t, 1, summary.Totals().Stored)

	st, err := store.Open(ctx, "sqlite", dbPath)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	rec, err := st.GetJobRecord(ctx, "<a1@example.com>")
	require.NoError(t, err)
	assert.Equal(t, "workstation1", rec.Source)
	assert.Equal(t, 110*time.Second, rec.Duration)
}

func TestAppRejectsBadTimezone(t *testing.T) {
	path, _ := writeConfig(t)
	loader, err := config.NewLoader(path, nil)
	require.NoError(t, err)
	loader.Get().App.Timezone = "Mars/Olympus"

	_, err = newApp(context.Background(), loader, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mars/Olympus")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "dupingest dev"))
}

func TestJobsCommandListsStoredJobs(t *testing.T) {
	path, dbPath := writeConfig(t)
	ctx := context.Background()
	st, err := store.Open(ctx, "sqlite", dbPath)
	require.NoError(t, err)
	require.NoError(t, st.EnsureSchema(ctx))
	_ = st.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"jobs", "--config", path, "--source", "workstation1"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "SOURCE", strings.Fields(out.String())[0])
}
