package payload

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/models"
)

type document struct {
	Data     map[string]any `json:"Data"`
	Extra    map[string]any `json:"Extra"`
	LogLines any            `json:"LogLines"`
}

func (d document) lookup(f Field) (any, bool) {
	if f.TopLevel {
		if f.JSONKey == "LogLines" && d.LogLines != nil {
			return d.LogLines, true
		}
		return nil, false
	}
	if v, ok := d.Data[f.JSONKey]; ok && v != nil {
		return v, true
	}
	if v, ok := d.Extra[f.JSONKey]; ok && v != nil {
		return v, true
	}
	return nil, false
}

func (e *Extractor) extractJSON(body string, utcOffset int) (models.PartialJobFields, error) {
	var doc document
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return models.PartialJobFields{}, &ParseError{Format: "json", Err: err}
	}

	var out models.PartialJobFields
	for _, f := range fields {
		v, ok := doc.lookup(f)
		if !ok {
			continue
		}
		text := stringify(v)
		if f.MultiLine {
			text = cleanBlock(text)
		} else {
			text = strings.Join(strings.Fields(text), " ")
		}
		if text == "" {
			continue
		}
		val, ok := e.resolve(f, text, utcOffset, true)
		if ok {
			f.assign(&out, val)
		}
	}

	// Fatal runs replace Data with the exception that stopped the job.
	if !successfulResult(out.ParsedResult) {
		if out.Failed == "" {
			out.Failed = strings.Join(strings.Fields(stringify(doc.Data["Message"])), " ")
		}
		if out.Details == "" {
			out.Details = cleanBlock(stringify(doc.Data["Exception"]))
		}
	}
	return out, nil
}

// stringify renders a decoded JSON value the way the text layout prints it.
// Arrays become a comma separated list, one entry per line after cleanBlock.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			items = append(items, stringify(item))
		}
		return strings.Join(items, ",")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
