package store

import (
	"strings"
	"time"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/models"
)

var jobColumns = []string{
	"message_id", "source", "destination", "delivered_at",
	"begin_time", "end_time", "duration_seconds",
	"examined_files", "added_files", "deleted_files", "modified_files",
	"opened_files", "not_processed_files", "too_large_files", "files_with_error",
	"added_folders", "deleted_folders", "modified_folders",
	"size_of_examined_files", "size_of_modified_files", "size_of_added_files", "size_of_opened_files",
	"main_operation", "parsed_result", "partial_backup", "dry_run", "version",
	"messages", "warnings", "errors", "details", "failed", "log_data",
	"structured", "run_failed", "seen",
}

var backupSetColumns = []string{
	"source", "destination", "last_file_count", "last_file_size", "last_timestamp", "last_version",
}

var (
	jobColumnList       = strings.Join(jobColumns, ", ")
	backupSetColumnList = strings.Join(backupSetColumns, ", ")
	insertJobSQL        = `INSERT INTO emails (` + jobColumnList + `) VALUES (:` + strings.Join(jobColumns, ", :") + `)`
)

type jobRow struct {
	MessageID       string `db:"message_id"`
	Source          string `db:"source"`
	Destination     string `db:"destination"`
	DeliveredAt     int64  `db:"delivered_at"`
	BeginTime       int64  `db:"begin_time"`
	EndTime         int64  `db:"end_time"`
	DurationSeconds int64  `db:"duration_seconds"`

	ExaminedFiles     int64 `db:"examined_files"`
	AddedFiles        int64 `db:"added_files"`
	DeletedFiles      int64 `db:"deleted_files"`
	ModifiedFiles     int64 `db:"modified_files"`
	OpenedFiles       int64 `db:"opened_files"`
	NotProcessedFiles int64 `db:"not_processed_files"`
	TooLargeFiles     int64 `db:"too_large_files"`
	FilesWithError    int64 `db:"files_with_error"`
	AddedFolders      int64 `db:"added_folders"`
	DeletedFolders    int64 `db:"deleted_folders"`
	ModifiedFolders   int64 `db:"modified_folders"`

	SizeOfExaminedFiles int64 `db:"size_of_examined_files"`
	SizeOfModifiedFiles int64 `db:"size_of_modified_files"`
	SizeOfAddedFiles    int64 `db:"size_of_added_files"`
	SizeOfOpenedFiles   int64 `db:"size_of_opened_files"`

	MainOperation string `db:"main_operation"`
	ParsedResult  string `db:"parsed_result"`
	PartialBackup string `db:"partial_backup"`
	DryRun        string `db:"dry_run"`
	Version       string `db:"version"`

	Messages string `db:"messages"`
	Warnings string `db:"warnings"`
	Errors   string `db:"errors"`
	Details  string `db:"details"`
	Failed   string `db:"failed"`
	LogData  string `db:"log_data"`

	Structured int `db:"structured"`
	RunFailed  int `db:"run_failed"`
	Seen       int `db:"seen"`
}

type backupSetRow struct {
	Source        string `db:"source"`
	Destination   string `db:"destination"`
	LastFileCount int64  `db:"last_file_count"`
	LastFileSize  int64  `db:"last_file_size"`
	LastTimestamp int64  `db:"last_timestamp"`
	LastVersion   string `db:"last_version"`
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toJobRow(rec models.JobRecord) jobRow {
	f := rec.PartialJobFields
	return jobRow{
		MessageID:           rec.MessageID,
		Source:              rec.Source,
		Destination:         rec.Destination,
		DeliveredAt:         toUnix(rec.DeliveredAt),
		BeginTime:           toUnix(f.BeginTime),
		EndTime:             toUnix(f.EndTime),
		DurationSeconds:     int64(rec.Duration / time.Second),
		ExaminedFiles:       f.ExaminedFiles,
		AddedFiles:          f.AddedFiles,
		DeletedFiles:        f.DeletedFiles,
		ModifiedFiles:       f.ModifiedFiles,
		OpenedFiles:         f.OpenedFiles,
		NotProcessedFiles:   f.NotProcessedFiles,
		TooLargeFiles:       f.TooLargeFiles,
		FilesWithError:      f.FilesWithError,
		AddedFolders:        f.AddedFolders,
		DeletedFolders:      f.DeletedFolders,
		ModifiedFolders:     f.ModifiedFolders,
		SizeOfExaminedFiles: f.SizeOfExaminedFiles,
		SizeOfModifiedFiles: f.SizeOfModifiedFiles,
		SizeOfAddedFiles:    f.SizeOfAddedFiles,
		SizeOfOpenedFiles:   f.SizeOfOpenedFiles,
		MainOperation:       f.MainOperation,
		ParsedResult:        f.ParsedResult,
		PartialBackup:       f.PartialBackup,
		DryRun:              f.DryRun,
		Version:             f.Version,
		Messages:            f.Messages,
		Warnings:            f.Warnings,
		Errors:              f.Errors,
		Details:             f.Details,
		Failed:              f.Failed,
		LogData:             f.LogData,
		Structured:          boolInt(rec.Structured),
		RunFailed:           boolInt(f.RunFailed),
		Seen:                boolInt(rec.Seen),
	}
}

func (r jobRow) toModel() models.JobRecord {
	return models.JobRecord{
		MessageID:   r.MessageID,
		Source:      r.Source,
		Destination: r.Destination,
		DeliveredAt: fromUnix(r.DeliveredAt),
		Duration:    time.Duration(r.DurationSeconds) * time.Second,
		Seen:        r.Seen != 0,
		Structured:  r.Structured != 0,
		PartialJobFields: models.PartialJobFields{
			ExaminedFiles:       r.ExaminedFiles,
			AddedFiles:          r.AddedFiles,
			DeletedFiles:        r.DeletedFiles,
			ModifiedFiles:       r.ModifiedFiles,
			OpenedFiles:         r.OpenedFiles,
			NotProcessedFiles:   r.NotProcessedFiles,
			TooLargeFiles:       r.TooLargeFiles,
			FilesWithError:      r.FilesWithError,
			AddedFolders:        r.AddedFolders,
			DeletedFolders:      r.DeletedFolders,
			ModifiedFolders:     r.ModifiedFolders,
			SizeOfExaminedFiles: r.SizeOfExaminedFiles,
			SizeOfModifiedFiles: r.SizeOfModifiedFiles,
			SizeOfAddedFiles:    r.SizeOfAddedFiles,
			SizeOfOpenedFiles:   r.SizeOfOpenedFiles,
			BeginTime:           fromUnix(r.BeginTime),
			EndTime:             fromUnix(r.EndTime),
			MainOperation:       r.MainOperation,
			ParsedResult:        r.ParsedResult,
			PartialBackup:       r.PartialBackup,
			DryRun:              r.DryRun,
			Version:             r.Version,
			Messages:            r.Messages,
			Warnings:            r.Warnings,
			Errors:              r.Errors,
			Details:             r.Details,
			Failed:              r.Failed,
			LogData:             r.LogData,
			RunFailed:           r.RunFailed != 0,
		},
	}
}

func backupSetFromJob(rec models.JobRecord) models.BackupSetRecord {
	return models.BackupSetRecord{
		Source:        rec.Source,
		Destination:   rec.Destination,
		LastFileCount: rec.ExaminedFiles,
		LastFileSize:  rec.SizeOfExaminedFiles,
		LastTimestamp: rec.EndTime,
		LastVersion:   rec.Version,
	}
}

func (r backupSetRow) toModel() models.BackupSetRecord {
	return models.BackupSetRecord{
		Source:        r.Source,
		Destination:   r.Destination,
		LastFileCount: r.LastFileCount,
		LastFileSize:  r.LastFileSize,
		LastTimestamp: fromUnix(r.LastTimestamp),
		LastVersion:   r.LastVersion,
	}
}
