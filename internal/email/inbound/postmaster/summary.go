package postmaster

import (
	"fmt"
	"strings"
	"time"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/connector"
)

// ServerSummary counts what happened on one inbound server.
type ServerSummary struct {
	Server    string
	Protocol  connector.Protocol
	Available bool
	// Drained is true when every listed message was visited.
	Drained bool

	Found   int
	Stored  int
	Known   int
	Skipped int
	// Failed counts messages that could not be extracted or stored.
	Failed int
	// Warnings counts stored jobs that reported warnings or errors.
	Warnings int
	// FailedJobs counts stored jobs describing a run that did not complete.
	FailedJobs int

	MarkedRead int
	Error      string
}

// Summary describes one collection run.
type Summary struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Servers  []ServerSummary

	OutboundConfigured bool
	OutboundAvailable  bool
	NoticeSent         bool
	NoticeError        string

	OK bool
}

// Totals sums the per-server counters.
func (s Summary) Totals() ServerSummary {
	var t ServerSummary
	for _, srv := range s.Servers {
		t.Found += srv.Found
		t.Stored += srv.Stored
		t.Known += srv.Known
		t.Skipped += srv.Skipped
		t.Failed += srv.Failed
		t.Warnings += srv.Warnings
		t.FailedJobs += srv.FailedJobs
		t.MarkedRead += srv.MarkedRead
	}
	return t
}

// Unavailable lists servers that could not be used.
func (s Summary) Unavailable() []string {
	var out []string
	for _, srv := range s.Servers {
		if !srv.Available {
			out = append(out, srv.Server)
		}
	}
	return out
}

// HasIssues reports whether an administrator should hear about the run.
func (s Summary) HasIssues() bool {
	t := s.Totals()
	return t.Failed > 0 || t.Warnings > 0 || t.FailedJobs > 0 || len(s.Unavailable()) > 0
}

func (s *Summary) evaluate() {
	s.OK = true
	if len(s.Servers) > 0 && len(s.Unavailable()) == len(s.Servers) {
		s.OK = false
	}
	if s.OutboundConfigured && !s.OutboundAvailable {
		s.OK = false
	}
}

func (s Summary) String() string {
	var b strings.Builder
	t := s.Totals()
	status := "ok"
	if !s.OK {
		status = "failed"
	}
	fmt.Fprintf(&b, "run %s %s in %s: %d found, %d stored, %d known, %d skipped, %d failed, %d with warnings",
		s.RunID, status, s.Duration.Round(time.Millisecond), t.Found, t.Stored, t.Known, t.Skipped, t.Failed, t.Warnings)
	for _, srv := range s.Servers {
		fmt.Fprintf(&b, "\n  %s (%s): ", srv.Server, srv.Protocol)
		if !srv.Available {
			b.WriteString("unavailable")
			if srv.Error != "" {
				fmt.Fprintf(&b, " (%s)", srv.Error)
			}
			continue
		}
		fmt.Fprintf(&b, "%d found, %d stored, %d known, %d skipped, %d failed",
			srv.Found, srv.Stored, srv.Known, srv.Skipped, srv.Failed)
		if !srv.Drained {
			b.WriteString(", interrupted")
		}
	}
	if s.OutboundConfigured && !s.OutboundAvailable {
		b.WriteString("\n  outbound server unavailable")
	}
	return b.String()
}
