package vault

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tessera-markets/tessera/internal/relay"
	"github.com/tessera-markets/tessera/internal/signer"
)

// Publish failure reasons. All are recoverable: the caller may fix
// configuration or retry.
const (
	ReasonMissingConfiguration = "missing_configuration"
	ReasonWalletNotConnected   = "wallet_not_connected"
	ReasonWSError              = "ws_error"
	ReasonWSClosed             = "ws_closed"
	ReasonWSInitFailed         = "ws_init_failed"
)

// Result is the structured outcome of a publish. Publish never panics
// across this boundary; Error carries either a client-side reason
// constant or the relayer's rejection (e.g. "stale_timestamp").
type Result struct {
	OK    bool
	Error string
}

func failure(reason string) Result {
	return Result{OK: false, Error: reason}
}

// Publisher signs and publishes off-chain vault share-price quotes over a
// short-lived relayer connection: one dial, one publish frame, one ack,
// then close.
type Publisher struct {
	relayerURL string
	signer     *signer.Signer

	// ackTimeout bounds the wait for the relayer's ack frame.
	ackTimeout time.Duration

	nowFunc func() time.Time // injectable clock for testing
}

// NewPublisher creates a Publisher signing with the given signer.
func NewPublisher(relayerURL string, s *signer.Signer) *Publisher {
	return &Publisher{
		relayerURL: strings.TrimSpace(relayerURL),
		signer:     s,
		ackTimeout: 10 * time.Second,
		nowFunc:    time.Now,
	}
}

// Publish signs a collateral-per-share quote for (chainID, vaultAddress)
// with a fresh millisecond timestamp and sends it to the relayer,
// resolving once the first vault_quote.ack arrives. Correlation is by
// message type: the connection is private to this call, so the first ack
// is ours.
func (p *Publisher) Publish(ctx context.Context, chainID int64, vaultAddress string, collateralPerShare *big.Int) Result {
	vaultAddress = strings.ToLower(strings.TrimSpace(vaultAddress))
	if p.relayerURL == "" || vaultAddress == "" || chainID == 0 || collateralPerShare == nil {
		return failure(ReasonMissingConfiguration)
	}
	if p.signer == nil || !p.signer.Ready() {
		return failure(ReasonWalletNotConnected)
	}

	ts := p.nowFunc().UnixMilli()
	msg := CanonicalMessage(vaultAddress, chainID, collateralPerShare, ts)

	sig, err := p.signer.SignMessage(msg)
	if err != nil {
		log.Printf("vault: quote signing failed: %v", err)
		return failure(ReasonWalletNotConnected)
	}

	payload := relay.VaultQuotePublishPayload{
		ChainID:                 chainID,
		VaultAddress:            vaultAddress,
		VaultCollateralPerShare: collateralPerShare.String(),
		Timestamp:               ts,
		SignedBy:                p.signer.Address(),
		Signature:               "0x" + hex.EncodeToString(sig),
	}
	env, err := relay.NewEnvelope(relay.TypeVaultQuotePublish, payload)
	if err != nil {
		return failure(ReasonWSInitFailed)
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return failure(ReasonWSInitFailed)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.relayerURL, nil)
	if err != nil {
		return failure(ReasonWSInitFailed)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return failure(ReasonWSError)
	}

	deadline := p.nowFunc().Add(p.ackTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				return failure(ReasonWSClosed)
			}
			return failure(ReasonWSError)
		}

		var ack relay.Envelope
		if err := json.Unmarshal(raw, &ack); err != nil || ack.Type != relay.TypeVaultQuoteAck {
			// Not our ack — keep waiting until the deadline.
			continue
		}

		var ap relay.VaultQuoteAckPayload
		if err := json.Unmarshal(ack.Payload, &ap); err != nil {
			return failure(ReasonWSError)
		}
		if !ap.OK {
			return Result{OK: false, Error: ap.Error}
		}
		return Result{OK: true}
	}
}
