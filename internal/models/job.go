package models

import (
	"time"
)

// ResultFailure is forced onto jobs whose run never completed.
const ResultFailure = "Failure"

// PartialJobFields holds everything the payload extractor could recover from one
// report body. Fields that were absent keep their zero value.
type PartialJobFields struct {
	ExaminedFiles     int64
	AddedFiles        int64
	DeletedFiles      int64
	ModifiedFiles     int64
	OpenedFiles       int64
	NotProcessedFiles int64
	TooLargeFiles     int64
	FilesWithError    int64
	AddedFolders      int64
	DeletedFolders    int64
	ModifiedFolders   int64

	SizeOfExaminedFiles int64
	SizeOfModifiedFiles int64
	SizeOfAddedFiles    int64
	SizeOfOpenedFiles   int64

	BeginTime time.Time
	EndTime   time.Time

	MainOperation string
	ParsedResult  string
	PartialBackup string
	DryRun        string
	Version       string

	Messages string
	Warnings string
	Errors   string
	Details  string
	Failed   string
	LogData  string

	// RunFailed marks a report describing a job that did not complete.
	RunFailed bool
}

// HasProblems reports whether the run produced warnings or errors worth surfacing.
func (p PartialJobFields) HasProblems() bool {
	return p.RunFailed || p.Warnings != "" || p.Errors != "" || p.FilesWithError > 0
}

// JobRecord is the persisted, normalized form of one job run.
type JobRecord struct {
	MessageID   string        `json:"message_id" db:"message_id"`
	Source      string        `json:"source" db:"source"`
	Destination string        `json:"destination" db:"destination"`
	DeliveredAt time.Time     `json:"delivered_at" db:"delivered_at"`
	Duration    time.Duration `json:"duration" db:"duration"`
	Seen        bool          `json:"seen" db:"seen"`

	// Structured is true when the body was decoded from the JSON encoding.
	Structured bool `json:"structured" db:"structured"`

	PartialJobFields
}

// NewJobRecord combines routing metadata with extracted fields and derives the duration.
func NewJobRecord(messageID, source, destination string, delivered time.Time, fields PartialJobFields) JobRecord {
	rec := JobRecord{
		MessageID:        messageID,
		Source:           source,
		Destination:      destination,
		DeliveredAt:      delivered,
		PartialJobFields: fields,
	}
	if !fields.EndTime.IsZero() && !fields.BeginTime.IsZero() && !fields.EndTime.Before(fields.BeginTime) {
		rec.Duration = fields.EndTime.Sub(fields.BeginTime)
	}
	return rec
}

// BackupSetRecord tracks the latest known state of a source/destination pair.
type BackupSetRecord struct {
	Source        string    `json:"source" db:"source"`
	Destination   string    `json:"destination" db:"destination"`
	LastFileCount int64     `json:"last_file_count" db:"last_file_count"`
	LastFileSize  int64     `json:"last_file_size" db:"last_file_size"`
	LastTimestamp time.Time `json:"last_timestamp" db:"last_timestamp"`
	LastVersion   string    `json:"last_version" db:"last_version"`
}
