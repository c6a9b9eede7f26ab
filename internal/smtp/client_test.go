package smtp

import (
	"context"
	"testing"
	"time"

	"github.com/sheetmail/sheetmail/internal/config"
	"github.com/sheetmail/sheetmail/internal/message"
)

func testAccount() config.MailAccount {
	return config.MailAccount{
		Label:  "test",
		Host:   "smtp.example.com",
		Port:   587,
		User:   "mailer@example.com",
		Pass:   "secret",
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(testAccount(), 0, nil)
	if c.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want default %v", c.timeout, defaultTimeout)
	}

	c = NewClient(testAccount(), time.Minute, nil)
	if c.timeout != time.Minute {
		t.Errorf("timeout = %v, want 1m", c.timeout)
	}
}

func TestAddr(t *testing.T) {
	c := NewClient(testAccount(), 0, nil)
	if got := c.Addr(); got != "smtp.example.com:587" {
		t.Errorf("Addr() = %q, want smtp.example.com:587", got)
	}
}

func TestSendCancelledContext(t *testing.T) {
	c := NewClient(testAccount(), 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Send(ctx, &message.Message{From: "a@example.com", To: "b@example.com"})
	if err == nil {
		t.Error("Send() with cancelled context should fail before dialing")
	}
}

func TestCloseWithoutSession(t *testing.T) {
	c := NewClient(testAccount(), 0, nil)
	if err := c.Close(); err != nil {
		t.Errorf("Close() without session = %v, want nil", err)
	}
}
