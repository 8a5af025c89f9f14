package adapter

import (
	"strings"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/config"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/connector"
)

// AccountFromConfig converts a configured server to the connector payload.
func AccountFromConfig(server config.ServerConfig) connector.Account {
	protocol := strings.ToLower(strings.TrimSpace(server.Protocol))
	if protocol == "" {
		protocol = string(connector.ProtocolIMAP)
	}
	encryption := strings.ToLower(strings.TrimSpace(server.Encryption))
	if encryption == "" {
		encryption = string(connector.EncryptionNone)
	}

	return connector.Account{
		Name:       strings.TrimSpace(server.Name),
		Protocol:   connector.Protocol(protocol),
		Host:       strings.TrimSpace(server.Host),
		Port:       server.Port,
		Encryption: connector.Encryption(encryption),
		Username:   server.Username,
		Password:   []byte(server.Password),
		IMAPFolder: strings.TrimSpace(server.Folder),
		UnreadOnly: server.UnreadOnly,
		MarkRead:   server.MarkRead,
		KeepAlive:  server.KeepAlive,
		Timeout:    server.Timeout,
	}
}

// AccountsFromConfig converts every inbound server, preserving order.
func AccountsFromConfig(servers []config.ServerConfig) []connector.Account {
	accounts := make([]connector.Account, 0, len(servers))
	for _, s := range servers {
		accounts = append(accounts, AccountFromConfig(s))
	}
	return accounts
}
