package auction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/tessera-markets/tessera/internal/relay"
)

var (
	ErrNoOutcomes     = errors.New("request has no predicted outcomes")
	ErrNoWager        = errors.New("request has no maker wager")
	ErrRequestPending = errors.New("a request is already queued")
)

// Sender is the slice of the relayer client the requester needs.
type Sender interface {
	SendEnvelope(relay.Envelope)
}

// NonceSource resolves a maker's current auction nonce, normally by
// reading the prediction-market contract.
type NonceSource interface {
	Nonce(ctx context.Context, maker common.Address) (uint64, error)
}

// requestState is the single-slot pending queue state machine.
type requestState int

const (
	stateIdle requestState = iota
	stateQueued
	stateInFlight
)

// QuoteRequest is a maker's desire to find a taker for a set of
// predicted outcomes.
type QuoteRequest struct {
	Outcomes         []PredictedOutcome
	MakerWager       string // base units, decimal string
	ResolverOverride string // optional; invalid values fall back silently
}

// Requester builds and emits auction.start frames. A request made before
// the maker address is known is held in a single queued slot and
// submitted exactly once when the maker resolves; a newer request
// replaces the queued one.
type Requester struct {
	conn            Sender
	nonces          NonceSource
	defaultResolver common.Address

	mu       sync.Mutex
	state    requestState
	pending  *QuoteRequest
	maker    common.Address
	hasMaker bool
}

// NewRequester creates a Requester emitting on conn. defaultResolver is
// the on-chain resolver used when a request carries no valid override.
func NewRequester(conn Sender, nonces NonceSource, defaultResolver common.Address) *Requester {
	return &Requester{
		conn:            conn,
		nonces:          nonces,
		defaultResolver: defaultResolver,
	}
}

// SetMaker records the maker address once the wallet resolves it. If a
// request is queued it is submitted now, exactly once.
func (r *Requester) SetMaker(ctx context.Context, maker common.Address) {
	r.mu.Lock()
	r.maker = maker
	r.hasMaker = true
	req := r.pending
	queued := r.state == stateQueued
	if queued {
		r.pending = nil
		r.state = stateInFlight
	}
	r.mu.Unlock()

	if queued {
		if _, err := r.submit(ctx, *req); err != nil {
			log.Printf("auction: queued request failed: %v", err)
		}
	}
}

// Request emits one auction.start frame for req, returning the client
// request id. If the maker address is not yet known the request is
// queued; ErrRequestPending is returned if the slot is already occupied
// by an identical wait (callers replace by design, so this only signals
// an in-flight submission).
func (r *Requester) Request(ctx context.Context, req QuoteRequest) (string, error) {
	if len(req.Outcomes) == 0 {
		return "", ErrNoOutcomes
	}
	if strings.TrimSpace(req.MakerWager) == "" {
		return "", ErrNoWager
	}

	r.mu.Lock()
	if !r.hasMaker {
		if r.state == stateInFlight {
			r.mu.Unlock()
			return "", ErrRequestPending
		}
		// Queue (or replace the queued slot) until the maker resolves.
		r.pending = &req
		r.state = stateQueued
		r.mu.Unlock()
		return "", nil
	}
	r.state = stateInFlight
	r.mu.Unlock()

	return r.submit(ctx, req)
}

// submit builds and sends the auction.start frame. Exactly one frame is
// emitted per successful call.
func (r *Requester) submit(ctx context.Context, req QuoteRequest) (string, error) {
	defer func() {
		r.mu.Lock()
		r.state = stateIdle
		r.mu.Unlock()
	}()

	r.mu.Lock()
	maker := r.maker
	r.mu.Unlock()

	blob, err := EncodeOutcomes(req.Outcomes)
	if err != nil {
		return "", err
	}

	nonce, err := r.nonces.Nonce(ctx, maker)
	if err != nil {
		return "", fmt.Errorf("resolve maker nonce: %w", err)
	}

	requestID := uuid.NewString()
	payload := relay.AuctionStartPayload{
		RequestID:       requestID,
		Resolver:        strings.ToLower(r.resolveResolver(req.ResolverOverride).Hex()),
		EncodedOutcomes: hexutil.Encode(blob),
		Maker:           strings.ToLower(maker.Hex()),
		MakerWager:      strings.TrimSpace(req.MakerWager),
		MakerNonce:      nonce,
	}

	env, err := relay.NewEnvelope(relay.TypeAuctionStart, payload)
	if err != nil {
		return "", err
	}
	r.conn.SendEnvelope(env)
	return requestID, nil
}

// resolveResolver returns the override when it is a syntactically valid
// 20-byte hex address, otherwise the configured default. Invalid
// overrides never error.
func (r *Requester) resolveResolver(override string) common.Address {
	override = strings.TrimSpace(override)
	if override == "" || !common.IsHexAddress(override) {
		return r.defaultResolver
	}
	return common.HexToAddress(override)
}
