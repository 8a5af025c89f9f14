// Package datetime parses and formats the locale-specific date and time strings
// found in backup report mails and converts them to absolute instants.
package datetime

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Field identifies one column of a layout.
type Field int

const (
	Year Field = iota
	Month
	Day
	Hour
	Minute
	Second
)

// Layout describes one of the supported textual layouts.
type Layout struct {
	ID        string
	Delimiter string
	Order     [3]Field
	pattern   *regexp.Regexp
}

// IsClock reports whether the layout carries hour/minute/second columns.
func (l Layout) IsClock() bool {
	return l.Order[0] >= Hour
}

// ClockLayout is the only supported time layout.
const ClockLayout = "HH:MM:SS"

var (
	layouts     = map[string]Layout{}
	dateIDs     []string
	meridiemRe  = regexp.MustCompile(`(?i)(?:^|[^a-z])(am|pm)(?:$|[^a-z])`)
	fieldTokens = map[Field]string{Year: "YYYY", Month: "MM", Day: "DD", Hour: "HH", Minute: "MM", Second: "SS"}
)

func init() {
	orders := [][3]Field{
		{Year, Month, Day},
		{Year, Day, Month},
		{Month, Day, Year},
		{Day, Month, Year},
		{Month, Year, Day},
		{Day, Year, Month},
	}
	for _, delim := range []string{"/", "-", "."} {
		for _, order := range orders {
			l := newLayout(delim, order)
			layouts[l.ID] = l
			dateIDs = append(dateIDs, l.ID)
		}
	}
	clock := newLayout(":", [3]Field{Hour, Minute, Second})
	layouts[clock.ID] = clock
	sort.Strings(dateIDs)
}

func newLayout(delim string, order [3]Field) Layout {
	ids := make([]string, 0, 3)
	groups := make([]string, 0, 3)
	for _, f := range order {
		ids = append(ids, fieldTokens[f])
		if f == Year {
			groups = append(groups, `(\d{4})`)
		} else {
			groups = append(groups, `(\d{1,2})`)
		}
	}
	return Layout{
		ID:        strings.Join(ids, delim),
		Delimiter: delim,
		Order:     order,
		pattern:   regexp.MustCompile(`(?:^|\D)` + strings.Join(groups, regexp.QuoteMeta(delim)) + `(?:\D|$)`),
	}
}

// Lookup returns the layout registered under id.
func Lookup(id string) (Layout, error) {
	l, ok := layouts[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return Layout{}, fmt.Errorf("datetime: unknown layout %q", id)
	}
	return l, nil
}

// DateLayouts lists every supported date layout id.
func DateLayouts() []string {
	return append([]string(nil), dateIDs...)
}

// ValidatePair checks that dateLayout is a date layout and timeLayout a clock layout.
func ValidatePair(dateLayout, timeLayout string) error {
	d, err := Lookup(dateLayout)
	if err != nil {
		return err
	}
	if d.IsClock() {
		return fmt.Errorf("datetime: %s is not a date layout", dateLayout)
	}
	t, err := Lookup(timeLayout)
	if err != nil {
		return err
	}
	if !t.IsClock() {
		return fmt.Errorf("datetime: %s is not a time layout", timeLayout)
	}
	return nil
}

// match finds the first occurrence of the layout in text and returns the
// three numeric columns keyed by field. Columns never start or end inside a
// longer run of digits.
func (l Layout) match(text string) (map[Field]int, bool) {
	m := l.pattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	out := make(map[Field]int, 3)
	for i, f := range l.Order {
		var v int
		for _, r := range m[i+1] {
			v = v*10 + int(r-'0')
		}
		out[f] = v
	}
	return out, true
}
