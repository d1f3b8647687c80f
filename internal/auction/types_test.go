package auction

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/tessera-markets/tessera/internal/relay"
	"github.com/tessera-markets/tessera/internal/signer"
)

// Hardhat account #0.
const (
	takerKey  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	takerAddr = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
)

func TestNormalizeBidVerifiesSignature(t *testing.T) {
	s := signer.New()
	if err := s.LoadKey(takerKey); err != nil {
		t.Fatalf("LoadKey: %v", err)
	}

	b := Bid{
		AuctionID: "abc",
		Taker:     takerAddr,
		Wager:     big.NewInt(1000),
		Deadline:  farFuture,
	}
	sig, err := s.SignMessage(bidMessage(&b))
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}

	w := relay.WireBid{
		AuctionID:      "abc",
		Taker:          takerAddr,
		TakerWager:     json.RawMessage(`"1000"`),
		TakerDeadline:  json.RawMessage(`4102444800`),
		TakerSignature: "0x" + hex.EncodeToString(sig),
	}

	got, ok := normalizeBid(w)
	if !ok {
		t.Fatal("normalizeBid rejected a valid bid")
	}
	if !got.Verified {
		t.Fatal("expected the bid signature to verify")
	}
}

func TestNormalizeBidWrongSignerNotVerified(t *testing.T) {
	s := signer.New()
	if err := s.LoadKey(takerKey); err != nil {
		t.Fatalf("LoadKey: %v", err)
	}

	// Signature is valid but the bid claims a different taker.
	b := Bid{AuctionID: "abc", Taker: "0x0000000000000000000000000000000000000001", Wager: big.NewInt(1), Deadline: 0}
	sig, err := s.SignMessage(bidMessage(&b))
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}

	w := relay.WireBid{
		AuctionID:      "abc",
		Taker:          "0x0000000000000000000000000000000000000001",
		TakerWager:     json.RawMessage(`"1"`),
		TakerDeadline:  json.RawMessage(`0`),
		TakerSignature: "0x" + hex.EncodeToString(sig),
	}

	got, ok := normalizeBid(w)
	if !ok {
		t.Fatal("normalizeBid rejected the bid")
	}
	if got.Verified {
		t.Fatal("mismatched taker must not verify")
	}
}

func TestNormalizeBidRejectsMissingIdentity(t *testing.T) {
	cases := []relay.WireBid{
		{Taker: "0x1", TakerWager: json.RawMessage(`"1"`)},                   // no auction id
		{AuctionID: "a", TakerWager: json.RawMessage(`"1"`)},                 // no taker
		{AuctionID: "a", Taker: "0x1"},                                       // no wager
		{AuctionID: "a", Taker: "0x1", TakerWager: json.RawMessage(`"-5"`)},  // negative wager
		{AuctionID: "a", Taker: "0x1", TakerWager: json.RawMessage(`"abc"`)}, // garbage wager
	}
	for i, w := range cases {
		if _, ok := normalizeBid(w); ok {
			t.Fatalf("case %d: expected rejection", i)
		}
	}
}

func TestCoerceScalars(t *testing.T) {
	if v := coerceBigInt(json.RawMessage(`"12345678901234567890"`)); v == nil || v.String() != "12345678901234567890" {
		t.Fatalf("string wager: %v", v)
	}
	if v := coerceBigInt(json.RawMessage(`100`)); v == nil || v.String() != "100" {
		t.Fatalf("numeric wager: %v", v)
	}
	if v := coerceBigInt(json.RawMessage(`null`)); v != nil {
		t.Fatalf("null wager should be nil, got %v", v)
	}
	if v := coerceInt64(json.RawMessage(`"1700000000"`)); v != 1700000000 {
		t.Fatalf("string deadline: %d", v)
	}
	if v := coerceInt64(json.RawMessage(`-9`)); v != 0 {
		t.Fatalf("negative deadline must coerce to 0, got %d", v)
	}
	if v := coerceInt64(json.RawMessage(`"oops"`)); v != 0 {
		t.Fatalf("garbage deadline must coerce to 0, got %d", v)
	}
}
