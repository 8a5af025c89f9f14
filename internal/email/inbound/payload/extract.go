package payload

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/datetime"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/models"
)

var (
	structuredSentinel = regexp.MustCompile(`^\s*\{\s*"Data"\s*:`)
	rawValuePattern    = regexp.MustCompile(`\(\s*(-?\d+)\s*\)\s*$`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
)

// ParseError reports a body that claimed an encoding but could not be decoded.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("payload: decode %s body: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extractor turns report bodies into PartialJobFields.
type Extractor struct {
	normalizer *datetime.Normalizer
	dateLayout string
	timeLayout string
	logger     *zap.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for degraded field values.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor uses normalizer with the given layout pair for wall clock
// timestamps that lack a raw unix value.
func NewExtractor(normalizer *datetime.Normalizer, dateLayout, timeLayout string, opts ...Option) *Extractor {
	if normalizer == nil {
		normalizer = datetime.NewNormalizer()
	}
	if timeLayout == "" {
		timeLayout = datetime.ClockLayout
	}
	e := &Extractor{
		normalizer: normalizer,
		dateLayout: dateLayout,
		timeLayout: timeLayout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsStructured reports whether body uses the JSON encoding.
func IsStructured(body string) bool {
	return structuredSentinel.MatchString(body)
}

// Extract reads every known field from body. delivered and utcOffset come from
// the message header; delivered stands in for the job timing of failed runs.
func (e *Extractor) Extract(body string, delivered time.Time, utcOffset int) (models.PartialJobFields, error) {
	var (
		out models.PartialJobFields
		err error
	)
	if IsStructured(body) {
		out, err = e.extractJSON(body, utcOffset)
		if err != nil {
			return models.PartialJobFields{}, err
		}
		out.RunFailed = !successfulResult(out.ParsedResult)
	} else {
		out = e.extractText(body, utcOffset)
		out.RunFailed = out.Failed != ""
	}

	if out.RunFailed {
		applyFailure(&out, delivered)
	}
	return out, nil
}

func successfulResult(result string) bool {
	return strings.EqualFold(result, "Success") || strings.EqualFold(result, "Warning")
}

func applyFailure(out *models.PartialJobFields, delivered time.Time) {
	if out.Errors == "" {
		out.Errors = out.Failed
	}
	if out.Errors == "" {
		out.Errors = out.Details
	}
	if out.LogData == "" {
		out.LogData = out.Details
	}
	if out.ParsedResult == "" {
		out.ParsedResult = models.ResultFailure
	}
	out.BeginTime = delivered
	out.EndTime = delivered
}

func (e *Extractor) extractText(body string, utcOffset int) models.PartialJobFields {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var out models.PartialJobFields
	for _, f := range fields {
		raw, ok := matchText(f, body)
		if !ok {
			continue
		}
		v, ok := e.resolve(f, raw, utcOffset, false)
		if ok {
			f.assign(&out, v)
		}
	}
	return out
}

func matchText(f Field, body string) (string, bool) {
	m := f.pattern.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	if !f.MultiLine {
		return strings.Join(strings.Fields(m[1]), " "), true
	}
	for _, block := range m[1:3] {
		if block != "" {
			return cleanBlock(block), true
		}
	}
	return cleanBlock(m[3]), true
}

// cleanBlock collapses whitespace, swaps double quotes for single quotes and
// turns comma separated entries into lines.
func cleanBlock(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, `"`, `'`)
	parts := strings.Split(s, ",")
	lines := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	return strings.Join(lines, "\n")
}

// resolve converts a cleaned string to the field's value. Values that cannot be
// converted are reported at debug level and left at zero.
func (e *Extractor) resolve(f Field, raw string, utcOffset int, structured bool) (value, bool) {
	switch f.Raw {
	case RawBytes:
		n, ok := rawOrInt(raw)
		if !ok {
			e.degraded(f, raw)
			return value{}, false
		}
		return value{n: n}, true
	case RawTimestamp:
		if m := rawValuePattern.FindStringSubmatch(raw); m != nil {
			secs, err := strconv.ParseInt(m[1], 10, 64)
			if err == nil {
				return value{t: time.Unix(secs, 0).UTC()}, true
			}
		}
		t, ok := e.parseTime(raw, utcOffset, structured)
		if !ok {
			e.degraded(f, raw)
			return value{}, false
		}
		return value{t: t}, true
	}

	if f.Kind == KindInt {
		n, err := strconv.ParseInt(firstToken(raw), 10, 64)
		if err != nil {
			e.degraded(f, raw)
			return value{}, false
		}
		return value{n: n}, true
	}
	return value{s: raw}, true
}

// rawOrInt prefers a parenthesized exact value and otherwise accepts the bare
// value only when it is an integer.
func rawOrInt(raw string) (int64, bool) {
	if m := rawValuePattern.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return n, true
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (e *Extractor) parseTime(raw string, utcOffset int, structured bool) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if structured {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return t.UTC().Truncate(time.Second), true
		}
	}
	if e.dateLayout == "" {
		return time.Time{}, false
	}
	t, err := e.normalizer.Parse(raw, e.dateLayout, e.timeLayout, &utcOffset)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (e *Extractor) degraded(f Field, raw string) {
	e.logger.Debug("unusable field value", zap.String("field", f.Name), zap.String("value", raw))
}

func firstToken(s string) string {
	if fs := strings.Fields(s); len(fs) > 0 {
		return fs[0]
	}
	return ""
}
