package connector

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFactoryReturnsRegisteredBuilder(t *testing.T) {
	var built Account
	factory := NewFactory(WithBuilder(func(a Account) Mailbox {
		built = a
		return NewPOP3Mailbox(a)
	}, "Pop3"))

	mb, err := factory.MailboxFor(Account{Name: "box", Protocol: "POP3"})
	require.NoError(t, err)
	require.Equal(t, "box", mb.Name())
	require.Equal(t, "box", built.Name)

	_, err = factory.MailboxFor(Account{Protocol: "smtp"})
	require.ErrorContains(t, err, "no connector registered")
}

func TestDefaultFactoryResolvesProtocols(t *testing.T) {
	factory := DefaultFactory(zap.NewNop())

	mb, err := factory.MailboxFor(Account{Protocol: ProtocolIMAP})
	require.NoError(t, err)
	require.IsType(t, &IMAPMailbox{}, mb)

	mb, err = factory.MailboxFor(Account{Protocol: ProtocolPOP3})
	require.NoError(t, err)
	require.IsType(t, &POP3Mailbox{}, mb)
}

func TestAccountAddressDefaults(t *testing.T) {
	require.Equal(t, "mail.example:143", Account{Host: "mail.example"}.Address(143, 993))
	require.Equal(t, "mail.example:993", Account{Host: "mail.example", Encryption: EncryptionTLS}.Address(143, 993))
	require.Equal(t, "mail.example:1143", Account{Host: "mail.example", Port: 1143}.Address(143, 993))
	require.Equal(t, "imap://agent@mail.example", Account{Protocol: ProtocolIMAP, Host: "mail.example", Username: "agent"}.Label())
}
