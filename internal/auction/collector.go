package auction

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/tessera-markets/tessera/internal/relay"
)

// Conn is the slice of the relayer client the collector needs: sending
// subscription frames that survive reconnects.
type Conn interface {
	AddReplayEnvelope(relay.Envelope)
}

// Collector tracks every bid observed for the auctions it is subscribed
// to and answers best-bid queries. The observed set is append-only:
// expired bids are excluded from selection but retained for audit, and
// an empty or non-matching bid frame never clears state.
type Collector struct {
	conn Conn

	mu     sync.RWMutex
	subbed map[string]bool   // auction id → subscribed
	bids   map[string][]*Bid // auction id → observed bids, arrival order
	seen   map[string]bool   // content keys, dedup across re-pushed frames
	seq    uint64

	// autoSubscribe controls whether auction.started announcements
	// subscribe the collector to the new auction.
	autoSubscribe bool

	nowFunc func() time.Time // injectable clock for testing
}

// NewCollector creates a Collector sending subscriptions over conn.
func NewCollector(conn Conn) *Collector {
	return &Collector{
		conn:    conn,
		subbed:  make(map[string]bool),
		bids:    make(map[string][]*Bid),
		seen:    make(map[string]bool),
		nowFunc: time.Now,
	}
}

// SetAutoSubscribe enables subscription to every auction announced via
// auction.started.
func (c *Collector) SetAutoSubscribe(on bool) {
	c.mu.Lock()
	c.autoSubscribe = on
	c.mu.Unlock()
}

// Subscribe registers interest in an auction and emits the subscribe
// frame. The frame is replay-registered so a reconnect re-issues it.
// Subscribing twice to the same auction is a no-op.
func (c *Collector) Subscribe(auctionID string) {
	if auctionID == "" {
		return
	}

	c.mu.Lock()
	if c.subbed[auctionID] {
		c.mu.Unlock()
		return
	}
	c.subbed[auctionID] = true
	c.mu.Unlock()

	env, err := relay.NewEnvelope(relay.TypeAuctionSubscribe,
		relay.AuctionSubscribePayload{AuctionID: auctionID})
	if err != nil {
		log.Printf("auction: build subscribe frame: %v", err)
		return
	}
	c.conn.AddReplayEnvelope(env)
}

// Run consumes bid batches and auction announcements from the dispatcher
// until ctx is cancelled.
func (c *Collector) Run(ctx context.Context, d *relay.Dispatcher) {
	bids := d.On(relay.TypeAuctionBids)
	started := d.On(relay.TypeAuctionStarted)

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-bids:
			if !ok {
				return
			}
			c.handleBids(env.Payload)
		case env, ok := <-started:
			if !ok {
				return
			}
			c.handleStarted(env.Payload)
		}
	}
}

// handleBids merges a bid batch into the observed set. Bids for auctions
// the collector is not subscribed to are ignored; duplicates of already
// observed bids are ignored; an empty batch is a no-op.
func (c *Collector) handleBids(payload json.RawMessage) {
	var p relay.AuctionBidsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("auction: invalid bids payload: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, w := range p.Bids {
		bid, ok := normalizeBid(w)
		if !ok {
			continue
		}
		if !c.subbed[bid.AuctionID] {
			continue
		}
		key := bid.contentKey()
		if c.seen[key] {
			continue
		}
		c.seen[key] = true
		c.seq++
		bid.seq = c.seq
		c.bids[bid.AuctionID] = append(c.bids[bid.AuctionID], &bid)
	}
}

func (c *Collector) handleStarted(payload json.RawMessage) {
	var p relay.AuctionStartedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("auction: invalid started payload: %v", err)
		return
	}

	c.mu.RLock()
	auto := c.autoSubscribe
	c.mu.RUnlock()
	if auto {
		c.Subscribe(p.AuctionID)
	}
}

// BestBid returns the unexpired bid with the greatest wager for the given
// auction, comparing as arbitrary-precision integers. Ties go to the bid
// seen first. Returns false when no unexpired bids exist.
func (c *Collector) BestBid(auctionID string) (Bid, bool) {
	now := c.nowFunc().Unix()

	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *Bid
	for _, b := range c.bids[auctionID] {
		if b.Expired(now) {
			continue
		}
		// Strictly-greater keeps the earliest arrival on ties, since
		// iteration follows arrival order.
		if best == nil || b.Wager.Cmp(best.Wager) > 0 {
			best = b
		}
	}
	if best == nil {
		return Bid{}, false
	}
	return *best, true
}

// Observed returns a copy of every bid seen for the auction, expired or
// not, in arrival order.
func (c *Collector) Observed(auctionID string) []Bid {
	c.mu.RLock()
	defer c.mu.RUnlock()

	src := c.bids[auctionID]
	out := make([]Bid, len(src))
	for i, b := range src {
		out[i] = *b
	}
	return out
}

// Subscribed returns the auction ids the collector is tracking.
func (c *Collector) Subscribed() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.subbed))
	for id := range c.subbed {
		out = append(out, id)
	}
	return out
}
