package mailer

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drak0niii/Launch-CTRL/pkg/config"
)

func TestMailer_DryRunWithoutHost(t *testing.T) {
	m := New(config.MailerConfig{To: "noc@example.com"})
	assert.True(t, m.DryRun())

	sent := false
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = true
		return nil
	}

	require.NoError(t, m.Send(context.Background(), "subject", "body"))
	assert.False(t, sent)
}

func TestMailer_SendsViaSMTP(t *testing.T) {
	m := New(config.MailerConfig{
		SMTPHost: "smtp.example.com",
		SMTPPort: "2525",
		Username: "user",
		Password: "pass",
		From:     "fleet@example.com",
		To:       "noc@example.com",
	})
	assert.False(t, m.DryRun())

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	var gotAuth smtp.Auth
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, string(msg)
		return nil
	}

	require.NoError(t, m.Send(context.Background(), "[DISPATCH] S1", "line one"))

	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "fleet@example.com", gotFrom)
	assert.Equal(t, []string{"noc@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [DISPATCH] S1\r\n")
	assert.Contains(t, gotMsg, "To: noc@example.com\r\n")
	assert.Contains(t, gotMsg, "\r\n\r\nline one")
}

func TestMailer_DefaultPortAndNoAuth(t *testing.T) {
	m := New(config.MailerConfig{SMTPHost: "smtp.example.com", To: "noc@example.com"})

	var gotAddr string
	var gotAuth smtp.Auth
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth = addr, a
		return nil
	}

	require.NoError(t, m.Send(context.Background(), "s", "b"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Nil(t, gotAuth)
}

func TestMailer_CancelledContext(t *testing.T) {
	m := New(config.MailerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, m.Send(ctx, "s", "b"))
}
