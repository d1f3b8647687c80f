package vault

import (
	"math/big"
	"testing"
)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestSupersedesRules(t *testing.T) {
	off1 := Quote{Source: SourceOffchain, Timestamp: 1000}
	off2 := Quote{Source: SourceOffchain, Timestamp: 2000}
	fb := Quote{Source: SourceFallback, Timestamp: 5000}

	if !supersedes(nil, off1) {
		t.Fatal("anything supersedes no quote")
	}
	if !supersedes(&off1, off2) {
		t.Fatal("newer offchain supersedes older offchain")
	}
	if supersedes(&off2, off1) {
		t.Fatal("older offchain must never replace newer offchain")
	}
	if !supersedes(&fb, off1) {
		t.Fatal("offchain supersedes fallback regardless of timestamp")
	}
	if supersedes(&off2, Quote{Source: SourceFallback, Timestamp: 1500}) {
		t.Fatal("older fallback must not replace offchain")
	}
	if !supersedes(&off1, Quote{Source: SourceFallback, Timestamp: 3000}) {
		t.Fatal("strictly newer timestamp wins even for fallback")
	}
	if supersedes(&off1, Quote{Source: SourceOffchain, Timestamp: 1000}) {
		t.Fatal("equal timestamp must not replace")
	}
}

func TestCanonicalMessage(t *testing.T) {
	msg := CanonicalMessage("0xAbCd", 8453, wad(2), 1700000000000)
	want := "0xabcd\n8453\n2000000000000000000\n1700000000000"
	if string(msg) != want {
		t.Fatalf("canonical message mismatch:\ngot:  %q\nwant: %q", msg, want)
	}
}

func TestPriceDecimal(t *testing.T) {
	q := Quote{CollateralPerShare: big.NewInt(1_050_000_000_000_000_000)}
	if got := q.PriceDecimal(); got != "1.05" {
		t.Fatalf("PriceDecimal = %s, want 1.05", got)
	}

	if got := (Quote{}).PriceDecimal(); got != "0" {
		t.Fatalf("nil price should render 0, got %s", got)
	}
}
