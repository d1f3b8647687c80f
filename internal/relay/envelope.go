package relay

import (
	"encoding/json"
	"fmt"
)

// Relayer message types. Every frame on the wire is an Envelope whose
// Type selects the payload shape.
const (
	TypeAuctionSubscribe = "auction.subscribe"
	TypeAuctionStart     = "auction.start"
	TypeAuctionStarted   = "auction.started"
	TypeAuctionBids      = "auction.bids"

	TypeVaultQuoteObserve   = "vault_quote.observe"
	TypeVaultQuoteUnobserve = "vault_quote.unobserve"
	TypeVaultQuoteSubscribe = "vault_quote.subscribe"
	TypeVaultQuoteUpdate    = "vault_quote.update"
	TypeVaultQuotePublish   = "vault_quote.publish"
	TypeVaultQuoteAck       = "vault_quote.ack"
)

// Envelope is the JSON frame exchanged with the relayer:
// {"type": "...", "payload": {...}}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope builds an Envelope around the JSON encoding of payload.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}

// AuctionSubscribePayload subscribes the client to bid pushes for one auction.
type AuctionSubscribePayload struct {
	AuctionID string `json:"auctionId"`
}

// AuctionStartPayload asks the relayer to open a new auction for a maker's
// wager over a set of encoded predicted outcomes.
type AuctionStartPayload struct {
	RequestID       string `json:"requestId"`
	Resolver        string `json:"resolver"`
	EncodedOutcomes string `json:"encodedPredictedOutcomes"` // 0x-hex ABI blob
	Maker           string `json:"maker"`
	MakerWager      string `json:"makerWager"` // base units, decimal string
	MakerNonce      uint64 `json:"makerNonce"`
}

// AuctionStartedPayload announces a newly opened auction. Receipt triggers
// auto-subscription to its bid stream.
type AuctionStartedPayload struct {
	AuctionID string `json:"auctionId"`
}

// WireBid is a taker bid as carried on the wire. Numeric fields arrive as
// strings or numbers depending on the relayer version, so they stay loose
// here and are normalized by the collector.
type WireBid struct {
	AuctionID      string          `json:"auctionId"`
	Taker          string          `json:"taker"`
	TakerWager     json.RawMessage `json:"takerWager"`
	TakerDeadline  json.RawMessage `json:"takerDeadline"`
	TakerSignature string          `json:"takerSignature"`
}

// AuctionBidsPayload carries a batch of observed bids. Batches may be
// partial or incremental; an empty batch means "nothing new", not "reset".
type AuctionBidsPayload struct {
	Bids []WireBid `json:"bids"`
}

// VaultQuoteSubscribePayload subscribes to share-price updates for one vault.
type VaultQuoteSubscribePayload struct {
	ChainID      int64  `json:"chainId"`
	VaultAddress string `json:"vaultAddress"`
}

// VaultQuoteUpdatePayload is an off-chain attested collateral-per-share
// value pushed by the relayer.
type VaultQuoteUpdatePayload struct {
	ChainID                 int64  `json:"chainId"`
	VaultAddress            string `json:"vaultAddress"`
	VaultCollateralPerShare string `json:"vaultCollateralPerShare"` // 1e18 fixed point
	Timestamp               int64  `json:"timestamp"`               // ms epoch
	SignedBy                string `json:"signedBy,omitempty"`
	Signature               string `json:"signature,omitempty"`
}

// VaultQuotePublishPayload is the outbound form of a signed quote.
type VaultQuotePublishPayload struct {
	ChainID                 int64  `json:"chainId"`
	VaultAddress            string `json:"vaultAddress"`
	VaultCollateralPerShare string `json:"vaultCollateralPerShare"`
	Timestamp               int64  `json:"timestamp"`
	SignedBy                string `json:"signedBy"`
	Signature               string `json:"signature"`
}

// VaultQuoteAckPayload acknowledges a publish.
type VaultQuoteAckPayload struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
