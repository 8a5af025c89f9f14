package postmaster

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var noticeMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM, extension.Table))

// renderNotice builds the administrator notice for a run with issues. The
// markdown doubles as the plain text part.
func renderNotice(s Summary) (subject, text, html string) {
	t := s.Totals()
	subject = fmt.Sprintf("Backup report collection: %d failed, %d with warnings", t.Failed+t.FailedJobs, t.Warnings)
	if n := len(s.Unavailable()); n > 0 {
		subject += fmt.Sprintf(", %d server(s) unavailable", n)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Collection run %s\n\n", s.RunID)
	fmt.Fprintf(&b, "Started %s, took %s.\n\n", s.Started.Format("2006-01-02 15:04:05 MST"), s.Duration.Round(time.Millisecond))
	b.WriteString("| Server | Status | Found | Stored | Known | Skipped | Failed | Warnings | Failed jobs |\n")
	b.WriteString("|---|---|---:|---:|---:|---:|---:|---:|---:|\n")
	for _, srv := range s.Servers {
		status := "ok"
		switch {
		case !srv.Available:
			status = "unavailable"
		case !srv.Drained:
			status = "interrupted"
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %d | %d | %d | %d | %d |\n",
			escapeCell(srv.Server), status, srv.Found, srv.Stored, srv.Known, srv.Skipped, srv.Failed, srv.Warnings, srv.FailedJobs)
	}
	for _, srv := range s.Servers {
		if srv.Error != "" {
			fmt.Fprintf(&b, "\n- **%s**: %s", escapeCell(srv.Server), srv.Error)
		}
	}
	text = b.String()

	var out bytes.Buffer
	if err := noticeMarkdown.Convert([]byte(text), &out); err != nil {
		return subject, text, ""
	}
	return subject, text, out.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
