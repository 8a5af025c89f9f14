// Package payload extracts job telemetry from the body of a backup report mail.
//
// Reports arrive in one of two encodings: the legacy "Label: value" text layout
// or a JSON document whose "Data" object carries the same logical fields. Both
// are driven by the single field table below.
package payload

import (
	"regexp"
	"time"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/models"
)

// Kind is the storage type of a field.
type Kind int

const (
	KindInt Kind = iota
	KindString
)

// RawRole describes how a "display (raw)" value is resolved.
type RawRole int

const (
	RawNone RawRole = iota
	// RawBytes fields carry an exact byte count in parentheses.
	RawBytes
	// RawTimestamp fields carry unix seconds in parentheses.
	RawTimestamp
)

type value struct {
	n int64
	s string
	t time.Time
}

// Field is one entry of the extraction table.
type Field struct {
	Name      string
	Label     string
	JSONKey   string
	MultiLine bool
	Kind      Kind
	Raw       RawRole

	// TopLevel fields are read from the JSON root instead of "Data".
	TopLevel bool

	assign  func(*models.PartialJobFields, value)
	pattern *regexp.Regexp
}

func intField(name string, set func(*models.PartialJobFields, int64)) Field {
	return Field{Name: name, Label: name, JSONKey: name, Kind: KindInt,
		assign: func(p *models.PartialJobFields, v value) { set(p, v.n) }}
}

func sizeField(name string, set func(*models.PartialJobFields, int64)) Field {
	f := intField(name, set)
	f.Raw = RawBytes
	return f
}

func timeField(name string, set func(*models.PartialJobFields, time.Time)) Field {
	return Field{Name: name, Label: name, JSONKey: name, Kind: KindString, Raw: RawTimestamp,
		assign: func(p *models.PartialJobFields, v value) { set(p, v.t) }}
}

func stringField(name string, set func(*models.PartialJobFields, string)) Field {
	return Field{Name: name, Label: name, JSONKey: name, Kind: KindString,
		assign: func(p *models.PartialJobFields, v value) { set(p, v.s) }}
}

func blockField(name string, set func(*models.PartialJobFields, string)) Field {
	f := stringField(name, set)
	f.MultiLine = true
	return f
}

var fields = []Field{
	intField("DeletedFiles", func(p *models.PartialJobFields, v int64) { p.DeletedFiles = v }),
	intField("DeletedFolders", func(p *models.PartialJobFields, v int64) { p.DeletedFolders = v }),
	intField("ModifiedFiles", func(p *models.PartialJobFields, v int64) { p.ModifiedFiles = v }),
	intField("ExaminedFiles", func(p *models.PartialJobFields, v int64) { p.ExaminedFiles = v }),
	intField("OpenedFiles", func(p *models.PartialJobFields, v int64) { p.OpenedFiles = v }),
	intField("AddedFiles", func(p *models.PartialJobFields, v int64) { p.AddedFiles = v }),
	intField("NotProcessedFiles", func(p *models.PartialJobFields, v int64) { p.NotProcessedFiles = v }),
	intField("AddedFolders", func(p *models.PartialJobFields, v int64) { p.AddedFolders = v }),
	intField("TooLargeFiles", func(p *models.PartialJobFields, v int64) { p.TooLargeFiles = v }),
	intField("FilesWithError", func(p *models.PartialJobFields, v int64) { p.FilesWithError = v }),
	intField("ModifiedFolders", func(p *models.PartialJobFields, v int64) { p.ModifiedFolders = v }),

	sizeField("SizeOfModifiedFiles", func(p *models.PartialJobFields, v int64) { p.SizeOfModifiedFiles = v }),
	sizeField("SizeOfAddedFiles", func(p *models.PartialJobFields, v int64) { p.SizeOfAddedFiles = v }),
	sizeField("SizeOfExaminedFiles", func(p *models.PartialJobFields, v int64) { p.SizeOfExaminedFiles = v }),
	sizeField("SizeOfOpenedFiles", func(p *models.PartialJobFields, v int64) { p.SizeOfOpenedFiles = v }),

	timeField("BeginTime", func(p *models.PartialJobFields, v time.Time) { p.BeginTime = v }),
	timeField("EndTime", func(p *models.PartialJobFields, v time.Time) { p.EndTime = v }),

	stringField("MainOperation", func(p *models.PartialJobFields, v string) { p.MainOperation = v }),
	stringField("ParsedResult", func(p *models.PartialJobFields, v string) { p.ParsedResult = v }),
	stringField("PartialBackup", func(p *models.PartialJobFields, v string) { p.PartialBackup = v }),
	stringField("Dryrun", func(p *models.PartialJobFields, v string) { p.DryRun = v }),
	stringField("Version", func(p *models.PartialJobFields, v string) { p.Version = v }),
	stringField("Failed", func(p *models.PartialJobFields, v string) { p.Failed = v }),

	blockField("Messages", func(p *models.PartialJobFields, v string) { p.Messages = v }),
	blockField("Warnings", func(p *models.PartialJobFields, v string) { p.Warnings = v }),
	blockField("Errors", func(p *models.PartialJobFields, v string) { p.Errors = v }),
	blockField("Details", func(p *models.PartialJobFields, v string) { p.Details = v }),
	{
		Name: "LogData", Label: "Log data", JSONKey: "LogLines", MultiLine: true, Kind: KindString, TopLevel: true,
		assign: func(p *models.PartialJobFields, v value) { p.LogData = v.s },
	},
}

func init() {
	for i := range fields {
		fields[i].pattern = labelPattern(fields[i])
	}
}

// Fields returns a copy of the extraction table.
func Fields() []Field {
	return append([]Field(nil), fields...)
}

func labelPattern(f Field) *regexp.Regexp {
	label := regexp.QuoteMeta(f.Label)
	if !f.MultiLine {
		return regexp.MustCompile(`(?m)^[ \t]*` + label + `:[ \t]*(.*)$`)
	}
	// A bracketed block either closes on its own label line or on a later line
	// holding only "]"; entries ending in "]" do not close it. Unbracketed
	// blocks run to the next blank line or the end.
	return regexp.MustCompile(`(?ms)^[ \t]*` + label + `:[ \t]*(?:\[([^\n]*)\][ \t]*$|\[(.*?)^[ \t]*\][ \t]*$|(.*?)(?:\n[ \t]*\n|\z))`)
}
