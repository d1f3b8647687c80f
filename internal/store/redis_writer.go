package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/tessera-markets/tessera/internal/auction"
	"github.com/tessera-markets/tessera/internal/vault"
)

// RedisClient abstracts the Redis operations used by Writer.
// In production this is satisfied by *redis.Client; in tests by a mock.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...any) error
}

// BidSource is the slice of the bid collector the writer reads from.
type BidSource interface {
	Subscribed() []string
	BestBid(auctionID string) (auction.Bid, bool)
}

// Writer mirrors the live auction and vault state into Redis for other
// processes (API, dashboards) to read:
//
//	Key:    auction:{auction_id}      Fields: taker, wager, deadline, ts
//	Key:    vault:{chain_id}:{vault}  Fields: price, wad, ts, source
//
// Best bids are sampled on a fixed interval; vault quotes are written as
// they change. Unchanged values are not re-written.
type Writer struct {
	client RedisClient
	bids   BidSource
	quotes <-chan vault.Quote

	sampleInterval time.Duration

	mu   sync.Mutex
	last map[string]string // key → fingerprint of last write
}

// NewWriter creates a Writer sampling best bids every sampleInterval.
func NewWriter(client RedisClient, bids BidSource, quotes <-chan vault.Quote, sampleInterval time.Duration) *Writer {
	if sampleInterval <= 0 {
		sampleInterval = time.Second
	}
	return &Writer{
		client:         client,
		bids:           bids,
		quotes:         quotes,
		sampleInterval: sampleInterval,
		last:           make(map[string]string),
	}
}

// Run mirrors state until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-w.quotes:
			if !ok {
				return
			}
			w.writeQuote(ctx, q)
		case <-ticker.C:
			w.sampleBids(ctx)
		}
	}
}

func (w *Writer) sampleBids(ctx context.Context) {
	for _, id := range w.bids.Subscribed() {
		best, ok := w.bids.BestBid(id)
		if !ok {
			continue
		}
		w.writeBid(ctx, id, best)
	}
}

func (w *Writer) writeBid(ctx context.Context, auctionID string, b auction.Bid) {
	key := "auction:" + auctionID
	fp := b.Taker + "|" + b.Wager.String() + "|" + strconv.FormatInt(b.Deadline, 10)
	if !w.dirty(key, fp) {
		return
	}

	w.client.HSet(ctx, key,
		"taker", b.Taker,
		"wager", b.Wager.String(),
		"deadline", strconv.FormatInt(b.Deadline, 10),
		"ts", strconv.FormatInt(time.Now().UnixMilli(), 10),
	)
}

func (w *Writer) writeQuote(ctx context.Context, q vault.Quote) {
	key := fmt.Sprintf("vault:%d:%s", q.ChainID, q.Vault)
	fp := q.CollateralPerShare.String() + "|" + strconv.FormatInt(q.Timestamp, 10) + "|" + string(q.Source)
	if !w.dirty(key, fp) {
		return
	}

	w.client.HSet(ctx, key,
		"price", q.PriceDecimal(),
		"wad", q.CollateralPerShare.String(),
		"ts", strconv.FormatInt(q.Timestamp, 10),
		"source", string(q.Source),
	)
}

// dirty records the fingerprint for key and reports whether it changed.
func (w *Writer) dirty(key, fingerprint string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last[key] == fingerprint {
		return false
	}
	w.last[key] = fingerprint
	return true
}
