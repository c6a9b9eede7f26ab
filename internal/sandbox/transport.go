package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sheetmail/sheetmail/internal/message"
)

// Transport captures messages into sandbox storage instead of
// submitting them. It satisfies the pipeline's transport contract, so a
// dry run exercises the entire send path short of the SMTP session.
type Transport struct {
	storage *Storage
	runID   string
	logger  *slog.Logger
}

// NewTransport creates a capturing transport for one run.
func NewTransport(storage *Storage, runID string, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		storage: storage,
		runID:   runID,
		logger:  logger,
	}
}

// Send renders and stores the message without touching the network.
func (t *Transport) Send(ctx context.Context, msg *message.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	captured := &Message{
		ID:         uuid.New().String(),
		RunID:      t.runID,
		From:       msg.From,
		To:         msg.To,
		Subject:    msg.Subject,
		Data:       data,
		CapturedAt: time.Now(),
	}
	if err := t.storage.Save(ctx, captured); err != nil {
		return fmt.Errorf("failed to capture message: %w", err)
	}

	t.logger.Info("message captured",
		"id", captured.ID,
		"to", captured.To,
		"size", len(data),
	)
	return nil
}
