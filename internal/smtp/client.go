// Package smtp implements the mail-submission transport: one
// authenticated session per mailing run, one message per transaction.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/sheetmail/sheetmail/internal/config"
	"github.com/sheetmail/sheetmail/internal/dkim"
	"github.com/sheetmail/sheetmail/internal/message"
)

const defaultTimeout = 30 * time.Second

// Client submits messages through one SMTP account. The session is
// established lazily on the first Send and reused until Close; a mailing
// run maps to exactly one session.
type Client struct {
	account config.MailAccount
	timeout time.Duration
	signer  *dkim.Signer
	logger  *slog.Logger

	mu   sync.Mutex
	conn *smtp.Client
}

// NewClient creates a client for the account. timeout 0 means the
// default command timeout.
func NewClient(account config.MailAccount, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		account: account,
		timeout: timeout,
		logger:  logger.With("component", "smtp_client", "account", account.Label),
	}
}

// SetDKIMSigner enables DKIM signing of outgoing messages.
func (c *Client) SetDKIMSigner(signer *dkim.Signer) {
	c.signer = signer
}

// Addr returns the host:port the client submits to.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.account.Host, strconv.Itoa(c.account.Port))
}

// Send submits one message in its own MAIL/RCPT/DATA transaction.
// The returned error text is what lands in the recipient's outcome.
func (c *Client) Send(ctx context.Context, msg *message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if c.conn == nil {
		conn, err := c.dial()
		if err != nil {
			return err
		}
		c.conn = conn
	}

	// Abort any half-finished transaction from a previous failure.
	if err := c.conn.Reset(); err != nil {
		return fmt.Errorf("RSET failed: %w", err)
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}
	if c.signer != nil {
		signed, err := c.signer.Sign(data)
		if err != nil {
			c.logger.Warn("DKIM signing failed, sending unsigned", "error", err)
		} else {
			data = signed
		}
	}

	if err := c.conn.Mail(msg.From, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := c.conn.Rcpt(msg.To, nil); err != nil {
		return fmt.Errorf("RCPT TO %s failed: %w", msg.To, err)
	}

	wc, err := c.conn.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("DATA close failed: %w", err)
	}

	c.logger.Debug("message submitted", "to", msg.To)
	return nil
}

// dial opens and authenticates the session. The account's secure flag
// selects implicit TLS; otherwise the connection upgrades via STARTTLS.
func (c *Client) dial() (*smtp.Client, error) {
	addr := c.Addr()
	tlsConfig := &tls.Config{ServerName: c.account.Host, MinVersion: tls.VersionTLS12}

	var (
		conn *smtp.Client
		err  error
	)
	if c.account.Secure {
		conn, err = smtp.DialTLS(addr, tlsConfig)
	} else {
		conn, err = smtp.DialStartTLS(addr, tlsConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("connection failed to %s: %w", addr, err)
	}

	conn.CommandTimeout = c.timeout

	if err := conn.Auth(sasl.NewPlainClient("", c.account.User, c.account.Pass)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("auth failed: %w", err)
	}

	c.logger.Info("smtp session established", "addr", addr, "implicit_tls", c.account.Secure)
	return conn, nil
}

// Close releases the session with a QUIT, falling back to closing the
// connection when the server misbehaves.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil

	if err := conn.Quit(); err != nil {
		if cerr := conn.Close(); cerr != nil && cerr != io.EOF {
			return fmt.Errorf("quit failed: %v, close failed: %w", err, cerr)
		}
	}
	return nil
}
