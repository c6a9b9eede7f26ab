package metrics

import (
	"io"
	"log/slog"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/sheetmail/sheetmail/internal/pipeline"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}

	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	if m.MessagesSentTotal == nil {
		t.Error("MessagesSentTotal is nil")
	}
	if m.MessagesFailedTotal == nil {
		t.Error("MessagesFailedTotal is nil")
	}
	if m.DuplicatesTotal == nil {
		t.Error("DuplicatesTotal is nil")
	}
	if m.RunsTotal == nil {
		t.Error("RunsTotal is nil")
	}
	if m.RunActive == nil {
		t.Error("RunActive is nil")
	}
	if m.SendDurationSeconds == nil {
		t.Error("SendDurationSeconds is nil")
	}
	if m.ReportRowsTotal == nil {
		t.Error("ReportRowsTotal is nil")
	}
}

func TestObserveOutcome(t *testing.T) {
	m := New()

	m.ObserveOutcome(pipeline.Outcome{Status: pipeline.StatusOK}, "example.com")
	m.ObserveOutcome(pipeline.Outcome{Status: pipeline.StatusOK}, "example.com")
	m.ObserveOutcome(pipeline.Outcome{Status: pipeline.StatusFail, Error: "connection refused"}, "other.com")
	m.ObserveOutcome(pipeline.Outcome{Status: pipeline.StatusFail, Error: pipeline.ErrInvalidEmail}, "")
	m.ObserveOutcome(pipeline.Outcome{Status: pipeline.StatusDuplicate}, "example.com")

	counter, err := m.MessagesSentTotal.GetMetricWithLabelValues("example.com")
	if err != nil {
		t.Fatalf("Failed to get counter: %v", err)
	}
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 2 {
		t.Errorf("sent counter = %v, want 2", got)
	}

	failed, err := m.MessagesFailedTotal.GetMetricWithLabelValues("", "invalid_email")
	if err != nil {
		t.Fatalf("Failed to get counter: %v", err)
	}
	metric = &dto.Metric{}
	if err := failed.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Errorf("invalid_email counter = %v, want 1", got)
	}

	metric = &dto.Metric{}
	if err := m.DuplicatesTotal.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Errorf("duplicates counter = %v, want 1", got)
	}
}

func TestNewServerDefaults(t *testing.T) {
	m := New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(m, "", "", logger)

	if s.addr != ":9090" {
		t.Errorf("addr = %q, want :9090", s.addr)
	}
	if s.path != "/metrics" {
		t.Errorf("path = %q, want /metrics", s.path)
	}
}
