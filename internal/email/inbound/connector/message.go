package connector

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"regexp"
	"strings"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
	htmlcharset "golang.org/x/net/html/charset"
)

const defaultBodyLimit int64 = 4 << 20

var (
	htmlBreakRe = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|tr|li|h[1-6])\s*>`)
	stripPolicy = bluemonday.StrictPolicy()
)

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

// ParseHeader decodes a raw header block (or a whole message) into a Header.
func ParseHeader(id string, raw []byte) (Header, error) {
	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return Header{ID: id}, fmt.Errorf("parse header: %w", err)
	}
	return headerFromFields(id, entity.Header), nil
}

// ParseMessage decodes a full RFC 5322 message, preferring the text/plain part
// and falling back to a stripped rendition of text/html.
func ParseMessage(id string, raw []byte) (*RawMessage, error) {
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	msg := &RawMessage{Header: headerFromFields(id, reader.Header.Header)}
	plain, htmlBody := readBodyParts(reader)
	switch {
	case plain != "":
		msg.Body = plain
	case htmlBody != "":
		msg.Body = HTMLToText(htmlBody)
	}
	return msg, nil
}

func headerFromFields(id string, fields gomessage.Header) Header {
	h := gomail.Header{Header: fields}
	out := Header{ID: id}

	if mid, err := h.MessageID(); err == nil && mid != "" {
		out.MessageID = mid
	} else {
		out.MessageID = strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")
	}
	if subject, err := h.Subject(); err == nil {
		out.Subject = strings.TrimSpace(subject)
	} else {
		out.Subject = strings.TrimSpace(h.Get("Subject"))
	}
	if date, err := h.Date(); err == nil && !date.IsZero() {
		out.Date = date
		_, out.UTCOffset = date.Zone()
	}
	return out
}

func readBodyParts(reader *gomail.Reader) (string, string) {
	var plain, htmlBody string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			break
		}
		header, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		mediaType := inlineMediaType(header)
		data, err := io.ReadAll(io.LimitReader(part.Body, defaultBodyLimit))
		if err != nil || len(data) == 0 {
			continue
		}
		switch {
		case strings.HasPrefix(mediaType, "text/html"):
			if htmlBody == "" {
				htmlBody = string(data)
			}
		case strings.HasPrefix(mediaType, "text/plain"), mediaType == "":
			if plain == "" {
				plain = string(data)
			}
		}
	}
	return plain, htmlBody
}

func inlineMediaType(header *gomail.InlineHeader) string {
	if mediaType, _, err := header.ContentType(); err == nil {
		return strings.ToLower(mediaType)
	}
	if parsed, _, err := mime.ParseMediaType(header.Get("Content-Type")); err == nil {
		return strings.ToLower(parsed)
	}
	return ""
}

// HTMLToText strips markup while keeping block boundaries as line breaks.
func HTMLToText(body string) string {
	body = htmlBreakRe.ReplaceAllString(body, "$0\n")
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(body)))
}
