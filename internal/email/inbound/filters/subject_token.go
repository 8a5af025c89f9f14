package filters

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/config"
)

// SubjectFilter keeps messages whose subject matches the report pattern and
// extracts the source and destination labels around the delimiter.
type SubjectFilter struct {
	logger      *zap.Logger
	subject     *regexp.Regexp
	source      *regexp.Regexp
	destination *regexp.Regexp
	delimiter   string
}

// NewSubjectFilter compiles the configured patterns.
func NewSubjectFilter(cfg config.IngestConfig, logger *zap.Logger) (*SubjectFilter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Delimiter == "" {
		return nil, fmt.Errorf("subject filter: delimiter is required")
	}
	subject, err := regexp.Compile(cfg.SubjectRegex)
	if err != nil {
		return nil, fmt.Errorf("subject filter: subject pattern: %w", err)
	}
	delim := regexp.QuoteMeta(cfg.Delimiter)
	source, err := regexp.Compile(cfg.SourceRegex + delim)
	if err != nil {
		return nil, fmt.Errorf("subject filter: source pattern: %w", err)
	}
	destination, err := regexp.Compile(delim + cfg.DestinationRegex)
	if err != nil {
		return nil, fmt.Errorf("subject filter: destination pattern: %w", err)
	}
	return &SubjectFilter{
		logger:      logger,
		subject:     subject,
		source:      source,
		destination: destination,
		delimiter:   cfg.Delimiter,
	}, nil
}

// ID implements Filter.
func (f *SubjectFilter) ID() string { return "subject" }

// Apply implements Filter.
func (f *SubjectFilter) Apply(_ context.Context, m *MessageContext) error {
	subject := m.Header.Subject
	if !f.subject.MatchString(subject) {
		m.Skip(SkipSubjectMismatch, "subject does not match")
		return nil
	}
	source, destination, ok := f.SourceDestination(subject)
	if !ok {
		f.logger.Warn("subject matched but source/destination not found",
			zap.String("subject", subject),
			zap.String("message_id", m.Header.MessageID),
			zap.String("delimiter", f.delimiter))
		m.Skip(SkipSourceDestination, "source/destination not found in subject")
		return nil
	}
	m.Source = source
	m.Destination = destination
	return nil
}

// SourceDestination pulls both labels out of a subject line.
func (f *SubjectFilter) SourceDestination(subject string) (string, string, bool) {
	src := f.source.FindString(subject)
	dst := f.destination.FindString(subject)
	src = strings.TrimSpace(strings.TrimSuffix(src, f.delimiter))
	dst = strings.TrimSpace(strings.TrimPrefix(dst, f.delimiter))
	if src == "" || dst == "" {
		return "", "", false
	}
	return src, dst, true
}
