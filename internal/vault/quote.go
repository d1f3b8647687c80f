package vault

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Source distinguishes where a quote came from. Off-chain quotes are
// attested relayer pushes; fallback quotes are on-chain reads used when
// no off-chain data is available.
type Source string

const (
	SourceOffchain Source = "offchain"
	SourceFallback Source = "fallback"
)

// Quote is a collateral-per-share value for one vault, identified by
// (chain id, vault address).
type Quote struct {
	ChainID            int64
	Vault              string   // lower-cased hex address
	CollateralPerShare *big.Int // 1e18 fixed point
	Timestamp          int64    // ms epoch
	SignedBy           string
	Signature          string
	Source             Source
}

// PriceDecimal renders the 1e18 fixed-point share price as a decimal
// string for display and persistence.
func (q Quote) PriceDecimal() string {
	if q.CollateralPerShare == nil {
		return "0"
	}
	return decimal.NewFromBigInt(q.CollateralPerShare, -18).String()
}

// supersedes reports whether incoming should replace current under the
// freshness rule: a strictly newer timestamp always wins, and an
// off-chain quote replaces a held fallback quote regardless of timestamp
// ordering. An off-chain quote is never replaced by an older-stamped one.
func supersedes(current *Quote, incoming Quote) bool {
	if current == nil {
		return true
	}
	if current.Source == SourceFallback && incoming.Source == SourceOffchain {
		return true
	}
	return incoming.Timestamp > current.Timestamp
}

// CanonicalMessage is the exact byte string signed over a quote: the
// lower-cased vault address, chain id, collateral-per-share, and
// millisecond timestamp, newline-joined.
func CanonicalMessage(vault string, chainID int64, collateralPerShare *big.Int, timestampMs int64) []byte {
	return []byte(strings.Join([]string{
		strings.ToLower(strings.TrimSpace(vault)),
		strconv.FormatInt(chainID, 10),
		collateralPerShare.String(),
		strconv.FormatInt(timestampMs, 10),
	}, "\n"))
}
