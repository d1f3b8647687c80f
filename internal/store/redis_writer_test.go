package store

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/tessera-markets/tessera/internal/auction"
	"github.com/tessera-markets/tessera/internal/vault"
)

// mockRedis records every HSet call for assertion.
type mockRedis struct {
	mu    sync.Mutex
	calls []hsetCall
}

type hsetCall struct {
	Key    string
	Fields map[string]string
}

func (m *mockRedis) HSet(_ context.Context, key string, values ...any) error {
	fields := make(map[string]string)
	for i := 0; i+1 < len(values); i += 2 {
		k, _ := values[i].(string)
		v, _ := values[i+1].(string)
		fields[k] = v
	}
	m.mu.Lock()
	m.calls = append(m.calls, hsetCall{Key: key, Fields: fields})
	m.mu.Unlock()
	return nil
}

func (m *mockRedis) getCalls() []hsetCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]hsetCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// mockBids serves a fixed best bid for one auction.
type mockBids struct {
	mu   sync.Mutex
	id   string
	best auction.Bid
	has  bool
}

func (m *mockBids) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == "" {
		return nil
	}
	return []string{m.id}
}

func (m *mockBids) BestBid(auctionID string) (auction.Bid, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if auctionID != m.id || !m.has {
		return auction.Bid{}, false
	}
	return m.best, true
}

func waitForCalls(t *testing.T, mock *mockRedis, n int) []hsetCall {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		calls := mock.getCalls()
		if len(calls) >= n {
			return calls
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d writes, have %d", n, len(mock.getCalls()))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWriter_MirrorsQuoteChanges(t *testing.T) {
	mock := &mockRedis{}
	quotes := make(chan vault.Quote, 4)
	w := NewWriter(mock, &mockBids{}, quotes, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go w.Run(ctx)

	quotes <- vault.Quote{
		ChainID:            8453,
		Vault:              "0xaa",
		CollateralPerShare: big.NewInt(1_050_000_000_000_000_000),
		Timestamp:          1700000000000,
		Source:             vault.SourceOffchain,
	}

	calls := waitForCalls(t, mock, 1)
	c := calls[0]
	if c.Key != "vault:8453:0xaa" {
		t.Fatalf("wrong key: %s", c.Key)
	}
	if c.Fields["price"] != "1.05" {
		t.Fatalf("price = %s, want 1.05", c.Fields["price"])
	}
	if c.Fields["wad"] != "1050000000000000000" {
		t.Fatalf("wad = %s", c.Fields["wad"])
	}
	if c.Fields["source"] != "offchain" {
		t.Fatalf("source = %s", c.Fields["source"])
	}
}

func TestWriter_DedupesUnchangedQuotes(t *testing.T) {
	mock := &mockRedis{}
	quotes := make(chan vault.Quote, 4)
	w := NewWriter(mock, &mockBids{}, quotes, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go w.Run(ctx)

	q := vault.Quote{ChainID: 1, Vault: "0xaa", CollateralPerShare: big.NewInt(5),
		Timestamp: 100, Source: vault.SourceOffchain}
	quotes <- q
	quotes <- q // identical — must not re-write

	waitForCalls(t, mock, 1)
	time.Sleep(100 * time.Millisecond)
	if got := len(mock.getCalls()); got != 1 {
		t.Fatalf("expected 1 write after duplicate, got %d", got)
	}
}

func TestWriter_SamplesBestBids(t *testing.T) {
	mock := &mockRedis{}
	bids := &mockBids{
		id: "abc",
		best: auction.Bid{
			AuctionID: "abc",
			Taker:     "0x1",
			Wager:     big.NewInt(100),
			Deadline:  4102444800,
		},
		has: true,
	}
	w := NewWriter(mock, bids, make(chan vault.Quote), 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go w.Run(ctx)

	calls := waitForCalls(t, mock, 1)
	c := calls[0]
	if c.Key != "auction:abc" {
		t.Fatalf("wrong key: %s", c.Key)
	}
	if c.Fields["taker"] != "0x1" || c.Fields["wager"] != "100" {
		t.Fatalf("bad fields: %v", c.Fields)
	}

	// Unchanged best bid must not be re-written on later samples.
	time.Sleep(100 * time.Millisecond)
	if got := len(mock.getCalls()); got != 1 {
		t.Fatalf("expected 1 write for stable best bid, got %d", got)
	}
}
