package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sheetmail/sheetmail/internal/message"
)

// fakeTransport records sent messages and fails on demand.
type fakeTransport struct {
	sent    []*message.Message
	failAll error
}

func (f *fakeTransport) Send(_ context.Context, msg *message.Message) error {
	if f.failAll != nil {
		return f.failAll
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestRunner(t *testing.T, transport Transport, cfg Config) (*Runner, *int) {
	t.Helper()
	if cfg.Pacer == nil {
		p, err := NewPacer(0, 0)
		if err != nil {
			t.Fatal(err)
		}
		cfg.Pacer = p
	}
	r := NewRunner(transport, cfg, nil)
	waits := 0
	r.wait = func(context.Context) error {
		waits++
		return nil
	}
	return r, &waits
}

func TestRunMixedContacts(t *testing.T) {
	transport := &fakeTransport{}
	recipients := []Recipient{
		{Name: "A", Contacts: "a@x.co", RowNumber: 1},
		{Name: "B", Contacts: "no-email-here", RowNumber: 2},
	}

	r, _ := newTestRunner(t, transport, Config{
		From:            "sender@example.com",
		SubjectTemplate: "Hi {{name}}",
		BodyTemplate:    "<p>Hello {{name}}</p>",
	})

	start := time.Now()
	outcomes := r.Run(context.Background(), recipients)

	if len(outcomes) != len(recipients) {
		t.Fatalf("len(outcomes) = %d, want %d", len(outcomes), len(recipients))
	}

	first := outcomes[0]
	if first.Status != StatusOK || first.Email != "a@x.co" || first.Name != "A" {
		t.Errorf("outcomes[0] = %+v, want OK for a@x.co", first)
	}
	if first.SentAt.Before(start) || first.SentAt.After(time.Now()) {
		t.Errorf("SentAt %v outside run window", first.SentAt)
	}

	second := outcomes[1]
	if second.Status != StatusFail || second.Error != ErrInvalidEmail || second.Email != "" {
		t.Errorf("outcomes[1] = %+v, want FAIL/invalid email", second)
	}

	if len(transport.sent) != 1 {
		t.Errorf("transport sent %d messages, want 1", len(transport.sent))
	}
	if got := transport.sent[0].Subject; got != "Hi A" {
		t.Errorf("rendered subject = %q, want %q", got, "Hi A")
	}
}

func TestRunInvalidContactSkipsPacing(t *testing.T) {
	transport := &fakeTransport{}
	recipients := []Recipient{
		{Name: "B", Contacts: "no-email-here", RowNumber: 1},
		{Name: "A", Contacts: "a@x.co", RowNumber: 2},
	}

	r, waits := newTestRunner(t, transport, Config{From: "s@example.com"})
	r.Run(context.Background(), recipients)

	if *waits != 0 {
		t.Errorf("pacing invoked %d times, want 0 (invalid contact first, last send unpaced)", *waits)
	}
}

func TestRunPacesBetweenSends(t *testing.T) {
	transport := &fakeTransport{}
	recipients := []Recipient{
		{Name: "A", Contacts: "a@x.co", RowNumber: 1},
		{Name: "B", Contacts: "b@x.co", RowNumber: 2},
		{Name: "C", Contacts: "c@x.co", RowNumber: 3},
	}

	r, waits := newTestRunner(t, transport, Config{From: "s@example.com"})
	r.Run(context.Background(), recipients)

	// Pause after every paced recipient except the last.
	if *waits != 2 {
		t.Errorf("pacing invoked %d times, want 2", *waits)
	}
}

func TestRunTransportFailure(t *testing.T) {
	transport := &fakeTransport{failAll: errors.New("auth failed")}
	recipients := []Recipient{
		{Name: "A", Contacts: "a@x.co", RowNumber: 1},
		{Name: "B", Contacts: "b@x.co", RowNumber: 2},
	}

	r, _ := newTestRunner(t, transport, Config{From: "s@example.com"})
	outcomes := r.Run(context.Background(), recipients)

	if len(outcomes) != 2 {
		t.Fatalf("len(outcomes) = %d, want 2: run must complete despite failures", len(outcomes))
	}
	for i, out := range outcomes {
		if out.Status != StatusFail {
			t.Errorf("outcomes[%d].Status = %s, want FAIL", i, out.Status)
		}
		if out.Error != "auth failed" {
			t.Errorf("outcomes[%d].Error = %q, want transport error text", i, out.Error)
		}
		if !out.SentAt.IsZero() {
			t.Errorf("outcomes[%d].SentAt set on failure", i)
		}
	}
}

func TestRunDuplicatesSkippedByDefault(t *testing.T) {
	transport := &fakeTransport{}
	recipients := []Recipient{
		{Name: "A", Contacts: "dup@x.co", RowNumber: 1},
		{Name: "B", Contacts: "Also DUP@x.co here", RowNumber: 2},
		{Name: "C", Contacts: "c@x.co", RowNumber: 3},
	}

	r, _ := newTestRunner(t, transport, Config{From: "s@example.com"})
	outcomes := r.Run(context.Background(), recipients)

	if outcomes[1].Status != StatusDuplicate {
		t.Errorf("outcomes[1].Status = %s, want DUPLICATE", outcomes[1].Status)
	}
	if len(transport.sent) != 2 {
		t.Errorf("transport sent %d messages, want 2 (duplicate skipped)", len(transport.sent))
	}
}

func TestRunSendDuplicatesOption(t *testing.T) {
	transport := &fakeTransport{}
	recipients := []Recipient{
		{Name: "A", Contacts: "dup@x.co", RowNumber: 1},
		{Name: "B", Contacts: "dup@x.co", RowNumber: 2},
	}

	r, _ := newTestRunner(t, transport, Config{From: "s@example.com", SendDuplicates: true})
	outcomes := r.Run(context.Background(), recipients)

	if outcomes[1].Status != StatusOK {
		t.Errorf("outcomes[1].Status = %s, want OK with SendDuplicates", outcomes[1].Status)
	}
	if len(transport.sent) != 2 {
		t.Errorf("transport sent %d messages, want 2", len(transport.sent))
	}
}

func TestRunProgressOrder(t *testing.T) {
	transport := &fakeTransport{}
	recipients := []Recipient{
		{Name: "A", Contacts: "a@x.co", RowNumber: 1},
		{Name: "B", Contacts: "nope", RowNumber: 2},
		{Name: "C", Contacts: "c@x.co", RowNumber: 3},
	}

	var events []Outcome
	cfg := Config{
		From:     "s@example.com",
		Progress: func(o Outcome) { events = append(events, o) },
	}
	r, _ := newTestRunner(t, transport, cfg)
	outcomes := r.Run(context.Background(), recipients)

	if len(events) != len(outcomes) {
		t.Fatalf("progress events = %d, want %d", len(events), len(outcomes))
	}
	for i := range events {
		if events[i].RowNumber != outcomes[i].RowNumber {
			t.Errorf("event %d row = %d, want %d (processing order)", i, events[i].RowNumber, outcomes[i].RowNumber)
		}
	}
}

func TestRunCancelledContextKeepsInvariant(t *testing.T) {
	transport := &fakeTransport{}
	recipients := []Recipient{
		{Name: "A", Contacts: "a@x.co", RowNumber: 1},
		{Name: "B", Contacts: "b@x.co", RowNumber: 2},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, _ := newTestRunner(t, transport, Config{From: "s@example.com"})
	outcomes := r.Run(ctx, recipients)

	if len(outcomes) != len(recipients) {
		t.Fatalf("len(outcomes) = %d, want %d even when cancelled", len(outcomes), len(recipients))
	}
	for i, out := range outcomes {
		if out.Status != StatusFail {
			t.Errorf("outcomes[%d].Status = %s, want FAIL", i, out.Status)
		}
	}
	if len(transport.sent) != 0 {
		t.Errorf("transport sent %d messages after cancellation, want 0", len(transport.sent))
	}
}
