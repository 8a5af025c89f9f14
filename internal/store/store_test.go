package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/models"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func jobAt(id string, begin, end time.Time) models.JobRecord {
	return models.NewJobRecord(id, "workstation1", "nas2", end.Add(time.Minute), models.PartialJobFields{
		ExaminedFiles:       120,
		AddedFiles:          3,
		SizeOfExaminedFiles: 2048,
		BeginTime:           begin,
		EndTime:             end,
		MainOperation:       "Backup",
		ParsedResult:        "Success",
		Version:             "2.0.4.5",
		Messages:            "line one\nline two",
	})
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	s := openMemory(t)
	require.NoError(t, s.EnsureSchema(context.Background()))
}

func TestInsertAndGetJobRecord(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	begin := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := jobAt("report-1@example.com", begin, begin.Add(110*time.Second))
	require.NoError(t, s.InsertJobRecord(ctx, rec))

	exists, err := s.MessageExists(ctx, rec.MessageID)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := s.GetJobRecord(ctx, rec.MessageID)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
	assert.Equal(t, 110*time.Second, got.Duration)

	set, err := s.GetBackupSet(ctx, "workstation1", "nas2")
	require.NoError(t, err)
	assert.Equal(t, int64(120), set.LastFileCount)
	assert.Equal(t, int64(2048), set.LastFileSize)
	assert.Equal(t, rec.EndTime, set.LastTimestamp)
	assert.Equal(t, "2.0.4.5", set.LastVersion)
}

func TestInsertDuplicateMessageID(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	begin := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := jobAt("dup@example.com", begin, begin.Add(time.Minute))
	require.NoError(t, s.InsertJobRecord(ctx, rec))

	err := s.InsertJobRecord(ctx, rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))

	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "insert job record", storeErr.Op)

	all, err := s.ListJobRecords(ctx, JobQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBackupSetOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := jobAt("b@example.com", base.Add(time.Hour), base.Add(time.Hour+time.Minute))
	newer.ExaminedFiles = 200
	older := jobAt("a@example.com", base, base.Add(time.Minute))
	older.ExaminedFiles = 100

	require.NoError(t, s.InsertJobRecord(ctx, newer))
	require.NoError(t, s.InsertJobRecord(ctx, older))

	set, err := s.GetBackupSet(ctx, "workstation1", "nas2")
	require.NoError(t, err)
	assert.Equal(t, int64(200), set.LastFileCount)
	assert.Equal(t, newer.EndTime, set.LastTimestamp)

	failed := jobAt("c@example.com", base.Add(2*time.Hour), base.Add(2*time.Hour))
	failed.RunFailed = true
	failed.ExaminedFiles = 0
	require.NoError(t, s.InsertJobRecord(ctx, failed))

	set, err = s.GetBackupSet(ctx, "workstation1", "nas2")
	require.NoError(t, err)
	assert.Equal(t, int64(200), set.LastFileCount, "failed runs leave the backup set untouched")
}

func TestFailedRunCreatesZeroedBackupSet(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := jobAt("f@example.com", at, at)
	rec.Source, rec.Destination = "laptop", "cloud"
	rec.RunFailed = true
	require.NoError(t, s.InsertJobRecord(ctx, rec))

	set, err := s.GetBackupSet(ctx, "laptop", "cloud")
	require.NoError(t, err)
	assert.Equal(t, int64(0), set.LastFileCount)
	assert.True(t, set.LastTimestamp.IsZero())
}

func TestUpsertBackupSet(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertBackupSet(ctx, models.BackupSetRecord{
		Source: "pc", Destination: "usb", LastFileCount: 5, LastTimestamp: at,
	}))
	require.NoError(t, s.UpsertBackupSet(ctx, models.BackupSetRecord{
		Source: "pc", Destination: "usb", LastFileCount: 1, LastTimestamp: at.Add(-time.Hour),
	}))

	sets, err := s.ListBackupSets(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, int64(5), sets[0].LastFileCount)
}

func TestMarkSeen(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertJobRecord(ctx, jobAt("seen@example.com", at, at)))
	require.NoError(t, s.MarkSeen(ctx, "seen@example.com"))

	got, err := s.GetJobRecord(ctx, "seen@example.com")
	require.NoError(t, err)
	assert.True(t, got.Seen)

	err = s.MarkSeen(ctx, "missing@example.com")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListJobRecordsFilters(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"1@x", "2@x", "3@x"} {
		start := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.InsertJobRecord(ctx, jobAt(id, start, start.Add(time.Minute))))
	}
	other := jobAt("4@x", base, base.Add(time.Minute))
	other.Destination = "cloud"
	require.NoError(t, s.InsertJobRecord(ctx, other))

	recs, err := s.ListJobRecords(ctx, JobQuery{Destination: "nas2", Since: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "3@x", recs[0].MessageID)
	assert.Equal(t, "2@x", recs[1].MessageID)

	recs, err = s.ListJobRecords(ctx, JobQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "3@x", recs[0].MessageID)
}

func TestGetMissingRecords(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	_, err := s.GetJobRecord(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.GetBackupSet(ctx, "a", "b")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func TestInsertJobRecordMySQLDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT last_timestamp FROM backupsets").
		WithArgs("workstation1", "nas2").
		WillReturnRows(sqlmock.NewRows([]string{"last_timestamp"}).AddRow(0))
	mock.ExpectExec("INSERT INTO emails").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	err := s.InsertJobRecord(context.Background(), jobAt("x@example.com", at, at))
	assert.True(t, errors.Is(err, ErrDuplicate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertJobRecordRollsBackOnUpdateFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT last_timestamp FROM backupsets").
		WillReturnRows(sqlmock.NewRows([]string{"last_timestamp"}).AddRow(0))
	mock.ExpectExec("INSERT INTO emails").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE backupsets").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	err := s.InsertJobRecord(context.Background(), jobAt("y@example.com", at, at))
	require.ErrorContains(t, err, "disk full")
	assert.False(t, errors.Is(err, ErrDuplicate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageExistsQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("connection reset"))

	_, err := s.MessageExists(context.Background(), "z@example.com")
	require.ErrorContains(t, err, "store: message exists: connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}
