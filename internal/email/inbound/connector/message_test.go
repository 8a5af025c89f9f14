package connector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMessagePrefersPlainText(t *testing.T) {
	raw := "Message-ID: <multi@example.com>\r\n" +
		"Subject: =?UTF-8?B?RHVwbGljYXRpIHLDqXBvcnQ=?=\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>ignored</p>\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"AddedFiles: 3\r\n" +
		"--XYZ--\r\n"

	msg, err := ParseMessage("7", []byte(raw))
	require.NoError(t, err)
	require.Equal(t, "7", msg.ID)
	require.Equal(t, "Duplicati réport", msg.Subject)
	require.Contains(t, msg.Body, "AddedFiles: 3")
	require.NotContains(t, msg.Body, "ignored")
}

func TestParseMessageFallsBackToHTML(t *testing.T) {
	raw := "Message-ID: <html@example.com>\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><body>ParsedResult: Success<br>AddedFiles: 4 &amp; more</body></html>\r\n"

	msg, err := ParseMessage("1", []byte(raw))
	require.NoError(t, err)
	require.Contains(t, msg.Body, "ParsedResult: Success\n")
	require.Contains(t, msg.Body, "AddedFiles: 4 & more")
}

func TestParseHeaderWithoutDate(t *testing.T) {
	hdr, err := ParseHeader("3", []byte("Subject: hello\r\nMessage-Id: <a@b>\r\n\r\n"))
	require.NoError(t, err)
	require.Equal(t, "a@b", hdr.MessageID)
	require.Equal(t, "hello", hdr.Subject)
	require.True(t, hdr.Date.IsZero())
	require.Zero(t, hdr.UTCOffset)
}
