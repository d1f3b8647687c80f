package relay

import (
	"context"
	"testing"
	"time"
)

// chanSource adapts a plain channel to the FrameSource interface.
type chanSource struct {
	ch chan []byte
}

func (c *chanSource) Subscribe() <-chan []byte { return c.ch }

func TestDispatcher_RoutesByType(t *testing.T) {
	src := &chanSource{ch: make(chan []byte, 8)}
	d := NewDispatcher(src)

	bids := d.On(TypeAuctionBids)
	acks := d.On(TypeVaultQuoteAck)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go d.Run(ctx)

	src.ch <- []byte(`{"type":"auction.bids","payload":{"bids":[]}}`)
	src.ch <- []byte(`{"type":"vault_quote.ack","payload":{"ok":true}}`)

	select {
	case env := <-bids:
		if env.Type != TypeAuctionBids {
			t.Fatalf("wrong type on bids channel: %s", env.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bids envelope")
	}

	select {
	case env := <-acks:
		if env.Type != TypeVaultQuoteAck {
			t.Fatalf("wrong type on ack channel: %s", env.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ack envelope")
	}
}

func TestDispatcher_DropsMalformedAndUnknown(t *testing.T) {
	src := &chanSource{ch: make(chan []byte, 8)}
	d := NewDispatcher(src)

	bids := d.On(TypeAuctionBids)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go d.Run(ctx)

	// None of these may crash the loop or reach the bids channel.
	src.ch <- []byte(`{not json`)
	src.ch <- []byte(`{"payload":{}}`)
	src.ch <- []byte(`{"type":"relayer.motd","payload":{}}`)
	src.ch <- []byte(`{"type":"auction.bids","payload":{"bids":[]}}`)

	select {
	case env := <-bids:
		if env.Type != TypeAuctionBids {
			t.Fatalf("unexpected envelope: %s", env.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatch loop died on malformed input")
	}

	select {
	case env := <-bids:
		t.Fatalf("unexpected extra envelope: %s", env.Type)
	case <-time.After(100 * time.Millisecond):
	}
}
