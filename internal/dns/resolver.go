// Package dns provides cached MX lookups used to verify that recipient
// domains can actually receive mail before a run.
package dns

import (
	"context"
	"net"
	"sort"
	"strings"
	"sync"
	"time"
)

// MXRecord represents an MX record
type MXRecord struct {
	Host     string
	Priority uint16
}

// Lookuper is the subset of net.Resolver the resolver relies on.
type Lookuper interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Resolver performs MX lookups with a TTL cache. Safe for concurrent
// use.
type Resolver struct {
	lookup Lookuper
	cache  map[string]cacheEntry
	ttl    time.Duration
	mu     sync.RWMutex
}

type cacheEntry struct {
	records   []MXRecord
	expiresAt time.Time
}

// NewResolver creates a resolver backed by the system resolver.
func NewResolver(cacheTTL time.Duration) *Resolver {
	return newResolver(net.DefaultResolver, cacheTTL)
}

func newResolver(lookup Lookuper, cacheTTL time.Duration) *Resolver {
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Resolver{
		lookup: lookup,
		cache:  make(map[string]cacheEntry),
		ttl:    cacheTTL,
	}
}

// LookupMX returns MX records sorted by priority. A domain without MX
// records yields an empty slice and no error.
func (r *Resolver) LookupMX(ctx context.Context, domain string) ([]MXRecord, error) {
	domain = strings.ToLower(domain)

	r.mu.RLock()
	entry, ok := r.cache[domain]
	r.mu.RUnlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.records, nil
	}

	mxRecords, err := r.lookup.LookupMX(ctx, domain)
	if err != nil {
		if dnsErr, ok := err.(*net.DNSError); ok && dnsErr.IsNotFound {
			r.store(domain, nil)
			return nil, nil
		}
		return nil, err
	}

	records := make([]MXRecord, len(mxRecords))
	for i, mx := range mxRecords {
		records[i] = MXRecord{
			Host:     strings.TrimSuffix(mx.Host, "."),
			Priority: mx.Pref,
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Priority < records[j].Priority
	})

	r.store(domain, records)
	return records, nil
}

// HasMX reports whether the domain publishes at least one MX record.
// Lookup failures count as deliverable so transient DNS trouble never
// drops recipients.
func (r *Resolver) HasMX(ctx context.Context, domain string) bool {
	if domain == "" {
		return false
	}
	records, err := r.LookupMX(ctx, domain)
	if err != nil {
		return true
	}
	return len(records) > 0
}

func (r *Resolver) store(domain string, records []MXRecord) {
	r.mu.Lock()
	r.cache[domain] = cacheEntry{
		records:   records,
		expiresAt: time.Now().Add(r.ttl),
	}
	r.mu.Unlock()
}
