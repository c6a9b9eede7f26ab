package dns

import (
	"context"
	"net"
	"testing"
	"time"
)

// fakeLookuper counts lookups and serves a fixed record set.
type fakeLookuper struct {
	records map[string][]*net.MX
	calls   int
}

func (f *fakeLookuper) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	f.calls++
	records, ok := f.records[name]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	return records, nil
}

func TestLookupMXSortsByPriority(t *testing.T) {
	lookup := &fakeLookuper{records: map[string][]*net.MX{
		"example.com": {
			{Host: "mx2.example.com.", Pref: 20},
			{Host: "mx1.example.com.", Pref: 10},
		},
	}}
	resolver := newResolver(lookup, time.Hour)

	records, err := resolver.LookupMX(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("LookupMX: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Host != "mx1.example.com" || records[0].Priority != 10 {
		t.Errorf("first record = %+v, want mx1 priority 10", records[0])
	}
}

func TestLookupMXCaches(t *testing.T) {
	lookup := &fakeLookuper{records: map[string][]*net.MX{
		"example.com": {{Host: "mx.example.com.", Pref: 10}},
	}}
	resolver := newResolver(lookup, time.Hour)

	ctx := context.Background()
	for range 3 {
		if _, err := resolver.LookupMX(ctx, "example.com"); err != nil {
			t.Fatalf("LookupMX: %v", err)
		}
	}
	// Case-insensitive cache key
	if _, err := resolver.LookupMX(ctx, "EXAMPLE.COM"); err != nil {
		t.Fatalf("LookupMX: %v", err)
	}

	if lookup.calls != 1 {
		t.Errorf("lookup called %d times, want 1", lookup.calls)
	}
}

func TestLookupMXNotFound(t *testing.T) {
	lookup := &fakeLookuper{}
	resolver := newResolver(lookup, time.Hour)

	records, err := resolver.LookupMX(context.Background(), "nomx.example")
	if err != nil {
		t.Fatalf("LookupMX: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}

	// The negative result is cached too
	resolver.LookupMX(context.Background(), "nomx.example")
	if lookup.calls != 1 {
		t.Errorf("lookup called %d times, want 1", lookup.calls)
	}
}

func TestHasMX(t *testing.T) {
	lookup := &fakeLookuper{records: map[string][]*net.MX{
		"example.com": {{Host: "mx.example.com.", Pref: 10}},
	}}
	resolver := newResolver(lookup, time.Hour)

	ctx := context.Background()
	if !resolver.HasMX(ctx, "example.com") {
		t.Error("HasMX(example.com) = false, want true")
	}
	if resolver.HasMX(ctx, "nomx.example") {
		t.Error("HasMX(nomx.example) = true, want false")
	}
	if resolver.HasMX(ctx, "") {
		t.Error("HasMX(\"\") = true, want false")
	}
}
