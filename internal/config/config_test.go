package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  timezone: UTC
  date_format: YYYY-MM-DD
  time_format: HH:MM:SS
  apply_utc_offset: true
database:
  driver: sqlite
  dsn: ":memory:"
ingest:
  subject_regex: "^Backup report for"
  delimiter: "-"
  warn_on_collect: true
inbound:
  - name: office
    protocol: imap
    host: imap.example.com
    encryption: tls
    username: reports
    password: secret
    folder: Backups
    unread_only: true
    mark_read: true
    keep_alive: true
    timeout: 45s
  - name: legacy
    protocol: pop3
    host: pop.example.com
    username: reports
    password: secret
outbound:
  enabled: true
  from: dupreport@example.com
  to: [admin@example.com]
  server:
    protocol: smtp
    host: smtp.example.com
    port: 587
    encryption: starttls
    username: reports
    password: secret
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dupreport.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "YYYY-MM-DD", cfg.App.DateFormat)
	assert.True(t, cfg.App.ApplyUTCOffset)
	assert.True(t, cfg.App.Hour24, "default should survive a partial app section")
	assert.Equal(t, "^Backup report for", cfg.Ingest.SubjectRegex)
	assert.Equal(t, `\w*`, cfg.Ingest.SourceRegex)

	require.Len(t, cfg.Inbound, 2)
	office := cfg.Inbound[0]
	assert.Equal(t, "imap", office.Protocol)
	assert.Equal(t, "Backups", office.Folder)
	assert.True(t, office.UnreadOnly)
	assert.Equal(t, 45*time.Second, office.Timeout)
	assert.Equal(t, "pop3", cfg.Inbound[1].Protocol)

	assert.True(t, cfg.Outbound.Enabled)
	assert.Equal(t, "starttls", cfg.Outbound.Server.Encryption)
	assert.Equal(t, []string{"admin@example.com"}, cfg.Outbound.To)
	assert.Equal(t, "*/15 * * * *", cfg.Schedule.Cron)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("DUPREPORT_INGEST_DELIMITER", "_")
	t.Setenv("DUPREPORT_LOGGING_LEVEL", "debug")
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "_", cfg.Ingest.Delimiter)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	body := `
app:
  date_format: HH:MM:SS
ingest:
  subject_regex: "(["
inbound:
  - protocol: smtp
    encryption: starttls
schedule:
  cron: "not a schedule"
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "app:")
	assert.Contains(t, msg, "ingest.subject_regex")
	assert.Contains(t, msg, "inbound[0].protocol")
	assert.Contains(t, msg, "inbound[0].host is required")
	assert.Contains(t, msg, "starttls is only supported for smtp")
	assert.Contains(t, msg, "schedule.cron")
}

func TestValidatorWarnings(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	cfg.Inbound[1].MarkRead = true
	warnings := cfg.Warnings()
	assert.Contains(t, warnings, "inbound[1] sends credentials without encryption")
	assert.Contains(t, warnings, "inbound[1].mark_read has no effect for pop3")
}

func TestDatabaseDataSource(t *testing.T) {
	testCases := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name:     "explicit dsn wins",
			config:   DatabaseConfig{Driver: "postgres", DSN: "postgres://x"},
			expected: "postgres://x",
		},
		{
			name: "postgres from parts",
			config: DatabaseConfig{
				Driver: "postgres", Host: "localhost", Port: 5432,
				User: "dup", Password: "pw", Name: "reports", SSLMode: "disable",
			},
			expected: "host=localhost port=5432 user=dup password=pw dbname=reports sslmode=disable",
		},
		{
			name:     "mysql from parts",
			config:   DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "dup", Password: "pw", Name: "reports"},
			expected: "dup:pw@tcp(db:3306)/reports?parseTime=true",
		},
		{
			name:     "sqlite fallback",
			config:   DatabaseConfig{Driver: "sqlite"},
			expected: "dupreport.db",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.config.DataSource())
		})
	}
}

func TestStatusAddrAndLocation(t *testing.T) {
	s := StatusConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", s.Addr())

	app := AppConfig{Timezone: "Europe/Berlin"}
	loc, err := app.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	app.Timezone = ""
	loc, err = app.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}
