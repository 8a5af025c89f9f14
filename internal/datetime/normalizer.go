package datetime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoMatch is wrapped by ParseError when the input holds no usable value.
var ErrNoMatch = errors.New("datetime: no match")

// ParseError reports text that could not be resolved against a layout pair.
type ParseError struct {
	Input  string
	Layout string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("datetime: parse %q with %s: %v", e.Input, e.Layout, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Normalizer converts between layout strings and absolute instants.
type Normalizer struct {
	loc         *time.Location
	applyOffset bool
	hour24      bool
	now         func() time.Time
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// NewNormalizer returns a normalizer interpreting wall clock values in the local zone.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		loc:    time.Local,
		hour24: true,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// WithLocation sets the zone used to interpret and render wall clock values.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// WithUTCOffset enables adding a caller supplied UTC offset to parsed values.
func WithUTCOffset(enabled bool) Option {
	return func(n *Normalizer) {
		n.applyOffset = enabled
	}
}

// With24Hour toggles the 24 hour clock used by Format.
func With24Hour(enabled bool) Option {
	return func(n *Normalizer) {
		n.hour24 = enabled
	}
}

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// Location returns the interpretation zone.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Parse locates a date and a clock value anywhere in text and resolves them to
// an instant. utcOffset, when non-nil and offset application is enabled, is added
// in seconds.
func (n *Normalizer) Parse(text, dateLayout, timeLayout string, utcOffset *int) (time.Time, error) {
	dl, err := Lookup(dateLayout)
	if err != nil {
		return time.Time{}, err
	}
	tl, err := Lookup(timeLayout)
	if err != nil {
		return time.Time{}, err
	}
	pair := dl.ID + " " + tl.ID

	date, ok := dl.match(text)
	if !ok {
		return time.Time{}, &ParseError{Input: text, Layout: pair, Err: ErrNoMatch}
	}
	clock, ok := tl.match(text)
	if !ok {
		return time.Time{}, &ParseError{Input: text, Layout: pair, Err: ErrNoMatch}
	}

	hour := clock[Hour]
	if m := meridiemRe.FindStringSubmatch(text); m != nil && hour <= 12 {
		switch strings.ToLower(m[1]) {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
	}

	if date[Month] < 1 || date[Month] > 12 || date[Day] < 1 || date[Day] > 31 ||
		hour > 23 || clock[Minute] > 59 || clock[Second] > 59 {
		return time.Time{}, &ParseError{Input: text, Layout: pair, Err: fmt.Errorf("value out of range")}
	}

	t := time.Date(date[Year], time.Month(date[Month]), date[Day], hour, clock[Minute], clock[Second], 0, n.loc)
	if t.Day() != date[Day] {
		return time.Time{}, &ParseError{Input: text, Layout: pair, Err: fmt.Errorf("day %d outside month", date[Day])}
	}
	if n.applyOffset && utcOffset != nil {
		t = t.Add(time.Duration(*utcOffset) * time.Second)
	}
	return t, nil
}

// Format renders t as a date string and a clock string.
func (n *Normalizer) Format(t time.Time, dateLayout, timeLayout string) (string, string, error) {
	dl, err := Lookup(dateLayout)
	if err != nil {
		return "", "", err
	}
	tl, err := Lookup(timeLayout)
	if err != nil {
		return "", "", err
	}
	local := t.In(n.loc)
	values := map[Field]int{
		Year:   local.Year(),
		Month:  int(local.Month()),
		Day:    local.Day(),
		Hour:   local.Hour(),
		Minute: local.Minute(),
		Second: local.Second(),
	}

	suffix := ""
	if !n.hour24 {
		h := values[Hour]
		suffix = " AM"
		if h >= 12 {
			suffix = " PM"
		}
		h %= 12
		if h == 0 {
			h = 12
		}
		values[Hour] = h
	}

	return render(dl, values), render(tl, values) + suffix, nil
}

func render(l Layout, values map[Field]int) string {
	parts := make([]string, 0, 3)
	for _, f := range l.Order {
		if f == Year {
			parts = append(parts, fmt.Sprintf("%04d", values[f]))
			continue
		}
		parts = append(parts, fmt.Sprintf("%02d", values[f]))
	}
	return strings.Join(parts, l.Delimiter)
}

// DaysSince returns the number of whole days elapsed between t and now.
func (n *Normalizer) DaysSince(t time.Time) int {
	return int(n.now().Sub(t).Hours() / 24)
}
