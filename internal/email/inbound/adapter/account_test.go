package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/config"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/connector"
)

func TestAccountFromConfig(t *testing.T) {
	acc := AccountFromConfig(config.ServerConfig{
		Name:       " office ",
		Protocol:   "IMAP",
		Host:       "imap.example.com ",
		Port:       993,
		Encryption: "TLS",
		Username:   "reports",
		Password:   "secret",
		Folder:     "Backups",
		UnreadOnly: true,
		MarkRead:   true,
		KeepAlive:  true,
		Timeout:    20 * time.Second,
	})

	require.Equal(t, "office", acc.Name)
	require.Equal(t, connector.ProtocolIMAP, acc.Protocol)
	require.Equal(t, "imap.example.com", acc.Host)
	require.Equal(t, connector.EncryptionTLS, acc.Encryption)
	require.Equal(t, []byte("secret"), acc.Password)
	require.Equal(t, "Backups", acc.IMAPFolder)
	require.True(t, acc.UnreadOnly)
	require.True(t, acc.MarkRead)
	require.True(t, acc.KeepAlive)
	require.Equal(t, 20*time.Second, acc.Timeout)
}

func TestAccountFromConfigDefaults(t *testing.T) {
	acc := AccountFromConfig(config.ServerConfig{Host: "mail"})
	require.Equal(t, connector.ProtocolIMAP, acc.Protocol)
	require.Equal(t, connector.EncryptionNone, acc.Encryption)

	accounts := AccountsFromConfig([]config.ServerConfig{{Name: "a", Protocol: "pop3"}, {Name: "b"}})
	require.Len(t, accounts, 2)
	require.Equal(t, connector.ProtocolPOP3, accounts[0].Protocol)
	require.Equal(t, "b", accounts[1].Name)
}
