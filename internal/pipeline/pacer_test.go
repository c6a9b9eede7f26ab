package pipeline

import (
	"context"
	"testing"
	"time"
)

func TestNewPacerBounds(t *testing.T) {
	tests := []struct {
		name     string
		min, max time.Duration
		wantErr  bool
	}{
		{"valid range", 100 * time.Millisecond, 200 * time.Millisecond, false},
		{"equal bounds", 2 * time.Second, 2 * time.Second, false},
		{"zero bounds", 0, 0, false},
		{"inverted", 200 * time.Millisecond, 100 * time.Millisecond, true},
		{"negative min", -time.Millisecond, time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPacer(tt.min, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewPacer(%v, %v) error = %v, wantErr %v", tt.min, tt.max, err, tt.wantErr)
			}
		})
	}
}

func TestPacerDelayEqualBounds(t *testing.T) {
	p, err := NewPacer(2*time.Second, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		if d := p.Delay(); d != 2*time.Second {
			t.Fatalf("Delay() = %v, want exactly 2s", d)
		}
	}
}

func TestPacerDelayWithinBounds(t *testing.T) {
	min, max := 100*time.Millisecond, 200*time.Millisecond
	p, err := NewPacer(min, max)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		d := p.Delay()
		if d < min || d > max {
			t.Fatalf("Delay() = %v, want within [%v, %v]", d, min, max)
		}
	}
}

func TestPacerWaitCancelled(t *testing.T) {
	p, err := NewPacer(time.Hour, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := p.Wait(ctx); err == nil {
		t.Error("Wait() with cancelled context should return an error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait() blocked for %v after cancellation", elapsed)
	}
}
