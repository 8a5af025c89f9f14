package filters

import (
	"context"
	"strings"
)

// RequiredHeadersFilter skips messages lacking a Message-ID, Date or Subject.
type RequiredHeadersFilter struct{}

// ID implements Filter.
func (RequiredHeadersFilter) ID() string { return "required_headers" }

// Apply implements Filter.
func (RequiredHeadersFilter) Apply(_ context.Context, m *MessageContext) error {
	var missing []string
	if strings.TrimSpace(m.Header.MessageID) == "" {
		missing = append(missing, "message-id")
	}
	if m.Header.Date.IsZero() {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(m.Header.Subject) == "" {
		missing = append(missing, "subject")
	}
	if len(missing) > 0 {
		m.Skip(SkipMissingHeaders, "missing "+strings.Join(missing, ", "))
	}
	return nil
}
