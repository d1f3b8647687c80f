package vault

import (
	"context"
	"encoding/json"
	"log"
	"math/big"
	"strings"
	"sync"

	"github.com/tessera-markets/tessera/internal/relay"
)

// recentCap bounds the most-recent-first display buffer of received
// updates.
const recentCap = 32

// Conn is the slice of the relayer client the subscriber needs.
type Conn interface {
	AddReplayEnvelope(relay.Envelope)
	SendEnvelope(relay.Envelope)
}

// Subscriber holds the current quote for one (chain id, vault) pair under
// the freshness rule, plus a bounded history of received updates. All
// mutation funnels through apply, so the fallback poller and the relayer
// stream share one ordering rule.
type Subscriber struct {
	chainID int64
	vault   string // lower-cased

	mu      sync.RWMutex
	current *Quote
	recent  []Quote // most-recent-first, capped at recentCap

	changes chan Quote
}

// NewSubscriber creates a Subscriber for the given vault.
func NewSubscriber(chainID int64, vaultAddress string) *Subscriber {
	return &Subscriber{
		chainID: chainID,
		vault:   strings.ToLower(strings.TrimSpace(vaultAddress)),
		changes: make(chan Quote, 64),
	}
}

// Subscribe emits the observe and subscribe frames, replay-registered so
// a reconnect restores the stream.
func (s *Subscriber) Subscribe(conn Conn) {
	observe, err := relay.NewEnvelope(relay.TypeVaultQuoteObserve, struct{}{})
	if err != nil {
		log.Printf("vault: build observe frame: %v", err)
		return
	}
	sub, err := relay.NewEnvelope(relay.TypeVaultQuoteSubscribe,
		relay.VaultQuoteSubscribePayload{ChainID: s.chainID, VaultAddress: s.vault})
	if err != nil {
		log.Printf("vault: build subscribe frame: %v", err)
		return
	}
	conn.AddReplayEnvelope(observe)
	conn.AddReplayEnvelope(sub)
}

// Unobserve tells the relayer this client no longer wants the stream.
// Called on teardown before the connection closes.
func (s *Subscriber) Unobserve(conn Conn) {
	env, err := relay.NewEnvelope(relay.TypeVaultQuoteUnobserve, struct{}{})
	if err != nil {
		log.Printf("vault: build unobserve frame: %v", err)
		return
	}
	conn.SendEnvelope(env)
}

// Run consumes vault_quote.update envelopes until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context, d *relay.Dispatcher) {
	updates := d.On(relay.TypeVaultQuoteUpdate)
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-updates:
			if !ok {
				return
			}
			s.handleUpdate(env.Payload)
		}
	}
}

func (s *Subscriber) handleUpdate(payload json.RawMessage) {
	var p relay.VaultQuoteUpdatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("vault: invalid update payload: %v", err)
		return
	}

	if p.ChainID != s.chainID || strings.ToLower(p.VaultAddress) != s.vault {
		return
	}

	cps, ok := new(big.Int).SetString(strings.TrimSpace(p.VaultCollateralPerShare), 10)
	if !ok || cps.Sign() < 0 {
		log.Printf("vault: unparsable collateral-per-share %q, dropping update", p.VaultCollateralPerShare)
		return
	}

	s.Apply(Quote{
		ChainID:            p.ChainID,
		Vault:              strings.ToLower(p.VaultAddress),
		CollateralPerShare: cps,
		Timestamp:          p.Timestamp,
		SignedBy:           strings.ToLower(p.SignedBy),
		Signature:          p.Signature,
		Source:             SourceOffchain,
	})
}

// Apply offers a quote to the subscriber. The history buffer records it
// unconditionally; the current quote only moves forward under the
// freshness rule.
func (s *Subscriber) Apply(q Quote) {
	s.mu.Lock()

	// Most-recent-first, bounded.
	s.recent = append([]Quote{q}, s.recent...)
	if len(s.recent) > recentCap {
		s.recent = s.recent[:recentCap]
	}

	applied := false
	if supersedes(s.current, q) {
		cp := q
		s.current = &cp
		applied = true
	}
	s.mu.Unlock()

	if applied {
		select {
		case s.changes <- q:
		default:
			// Change consumer lagging — it will catch up on the next one.
		}
	}
}

// Current returns the held quote, or false when none has been applied.
func (s *Subscriber) Current() (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Quote{}, false
	}
	return *s.current, true
}

// Recent returns a copy of the history buffer, most recent first.
func (s *Subscriber) Recent() []Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Quote, len(s.recent))
	copy(out, s.recent)
	return out
}

// Changes returns a channel emitting each newly applied current quote.
func (s *Subscriber) Changes() <-chan Quote {
	return s.changes
}
