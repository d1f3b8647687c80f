package auction

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/tessera-markets/tessera/internal/relay"
	"github.com/tessera-markets/tessera/internal/signer"
)

// zeroSignature is the placeholder recorded when a bid arrives with a
// missing or unparsable signature. Such bids stay in the observed set but
// can never verify.
var zeroSignature = make([]byte, 65)

// Bid is a taker's signed offer to fill an auction, normalized from the
// wire form. Bids are immutable once observed; a later bid from the same
// taker is a new entry, never an overwrite.
type Bid struct {
	AuctionID string
	Taker     string   // lower-cased hex address
	Wager     *big.Int // token base units
	Deadline  int64    // unix seconds; 0 means never expires
	Signature []byte   // 65 bytes; zero placeholder when unparsable
	Verified  bool     // signature recovered to Taker

	// seq is the arrival order, used as the stable tie-break for equal
	// wagers (first seen wins).
	seq uint64
}

// Expired reports whether the bid's deadline has passed at the given unix
// time. A zero deadline never expires.
func (b *Bid) Expired(nowUnix int64) bool {
	return b.Deadline > 0 && b.Deadline <= nowUnix
}

// normalizeBid converts a wire bid into the canonical form: address
// lower-cased, wager coerced to big.Int (nil wager rejects the bid),
// deadline coerced with unparsable values treated as zero, signature
// defaulted to the zero placeholder. Returns false if the bid has no
// usable identity (empty auction id or taker, or no wager).
func normalizeBid(w relay.WireBid) (Bid, bool) {
	taker := strings.ToLower(strings.TrimSpace(w.Taker))
	if w.AuctionID == "" || taker == "" {
		return Bid{}, false
	}

	wager := coerceBigInt(w.TakerWager)
	if wager == nil {
		return Bid{}, false
	}

	deadline := coerceInt64(w.TakerDeadline)

	sig := parseSignature(w.TakerSignature)

	b := Bid{
		AuctionID: w.AuctionID,
		Taker:     taker,
		Wager:     wager,
		Deadline:  deadline,
		Signature: sig,
	}
	b.Verified = verifyBid(&b)
	return b, true
}

// coerceBigInt accepts a JSON string or number and returns its integer
// value, or nil when unparsable or negative.
func coerceBigInt(raw json.RawMessage) *big.Int {
	s := rawScalar(raw)
	if s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil
	}
	return v
}

// coerceInt64 accepts a JSON string or number; anything unparsable
// becomes 0 (non-expiring, per the deadline edge case).
func coerceInt64(raw json.RawMessage) int64 {
	s := rawScalar(raw)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// rawScalar unwraps a JSON string or number token into its text form.
func rawScalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if s[0] == '"' {
		var out string
		if err := json.Unmarshal(raw, &out); err != nil {
			return ""
		}
		return strings.TrimSpace(out)
	}
	// Truncate a fractional part some relayer versions emit.
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return s
}

// parseSignature decodes a 0x-hex 65-byte signature, falling back to the
// zero placeholder on any failure.
func parseSignature(s string) []byte {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 65 {
		out := make([]byte, 65)
		copy(out, zeroSignature)
		return out
	}
	return raw
}

// bidMessage is the canonical byte string a taker signs over the bid
// terms: newline-joined auction id, taker address, wager, and deadline.
func bidMessage(b *Bid) []byte {
	return []byte(strings.Join([]string{
		b.AuctionID,
		b.Taker,
		b.Wager.String(),
		strconv.FormatInt(b.Deadline, 10),
	}, "\n"))
}

// verifyBid recovers the signer of the canonical bid message and checks
// it against the taker. Verification never excludes a bid from selection;
// it is a display/audit attribute.
func verifyBid(b *Bid) bool {
	if isZeroSig(b.Signature) {
		return false
	}
	addr, err := signer.RecoverSigner(bidMessage(b), b.Signature)
	if err != nil {
		return false
	}
	return addr == b.Taker
}

func isZeroSig(sig []byte) bool {
	for _, c := range sig {
		if c != 0 {
			return false
		}
	}
	return true
}

// contentKey is the dedup identity of a bid. Re-pushed frames containing
// the same bid do not grow the observed set.
func (b *Bid) contentKey() string {
	return b.AuctionID + "|" + b.Taker + "|" + b.Wager.String() + "|" +
		strconv.FormatInt(b.Deadline, 10) + "|" + hex.EncodeToString(b.Signature)
}
