package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// FrameSource is the interface the Dispatcher consumes raw frames from.
// Satisfied by *WSClient; in tests by a plain channel wrapper.
type FrameSource interface {
	Subscribe() <-chan []byte
}

// Dispatcher parses inbound frames into Envelopes and routes them to
// per-type subscriber channels. Malformed frames and unknown types are
// logged and dropped so one bad message cannot stall the loop.
type Dispatcher struct {
	src FrameSource

	mu   sync.RWMutex
	subs map[string][]chan Envelope
}

// NewDispatcher creates a Dispatcher reading from src. Call Run to start.
func NewDispatcher(src FrameSource) *Dispatcher {
	return &Dispatcher{
		src:  src,
		subs: make(map[string][]chan Envelope),
	}
}

// On returns a buffered channel receiving every envelope of the given
// type. The caller must drain it; slow consumers get envelopes dropped.
func (d *Dispatcher) On(msgType string) <-chan Envelope {
	ch := make(chan Envelope, 256)
	d.mu.Lock()
	d.subs[msgType] = append(d.subs[msgType], ch)
	d.mu.Unlock()
	return ch
}

// Run consumes frames until ctx is cancelled or the source closes.
func (d *Dispatcher) Run(ctx context.Context) {
	frames := d.src.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-frames:
			if !ok {
				return
			}
			d.dispatch(raw)
		}
	}
}

func (d *Dispatcher) dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("relay: invalid frame: %v", err)
		return
	}
	if env.Type == "" {
		log.Printf("relay: frame without type, dropping")
		return
	}

	d.mu.RLock()
	subs := d.subs[env.Type]
	d.mu.RUnlock()

	if len(subs) == 0 {
		// No consumer registered for this type — e.g. relayer chatter
		// the client does not care about.
		return
	}

	for _, ch := range subs {
		select {
		case ch <- env:
		default:
			log.Printf("relay: dropping %s envelope for slow subscriber", env.Type)
		}
	}
}
