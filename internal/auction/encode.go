package auction

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PredictedOutcome is one leg of a maker's wager: a market plus the
// boolean outcome being predicted.
type PredictedOutcome struct {
	MarketGroup common.Address
	MarketID    *big.Int
	Prediction  bool
}

// EncodedOutcome is an outcome as it appears inside the ABI blob: the
// 32-byte market key plus the prediction.
type EncodedOutcome struct {
	MarketID   [32]byte `abi:"marketId"`
	Prediction bool     `abi:"prediction"`
}

var (
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)

	marketKeyArgs = abi.Arguments{
		{Type: addressType},
		{Type: uint256Type},
	}

	outcomeTupleType, _ = abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "marketId", Type: "bytes32"},
		{Name: "prediction", Type: "bool"},
	})

	outcomesArgs = abi.Arguments{{Type: outcomeTupleType}}
)

// MarketKey derives the deterministic 32-byte market identifier:
// keccak256(abi.encode(marketGroup, marketId)).
func MarketKey(marketGroup common.Address, marketID *big.Int) ([32]byte, error) {
	packed, err := marketKeyArgs.Pack(marketGroup, marketID)
	if err != nil {
		return [32]byte{}, fmt.Errorf("pack market key: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// EncodeOutcomes ABI-encodes a list of predicted outcomes, deriving each
// market key, into the single byte blob the resolver contract expects.
func EncodeOutcomes(outcomes []PredictedOutcome) ([]byte, error) {
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("no outcomes to encode")
	}

	encoded := make([]EncodedOutcome, len(outcomes))
	for i, o := range outcomes {
		if o.MarketID == nil {
			return nil, fmt.Errorf("outcome %d: nil market id", i)
		}
		key, err := MarketKey(o.MarketGroup, o.MarketID)
		if err != nil {
			return nil, err
		}
		encoded[i] = EncodedOutcome{MarketID: key, Prediction: o.Prediction}
	}

	blob, err := outcomesArgs.Pack(encoded)
	if err != nil {
		return nil, fmt.Errorf("pack outcomes: %w", err)
	}
	return blob, nil
}

// DecodeOutcomes inverts EncodeOutcomes, recovering the (market key,
// prediction) pairs. The market group and id are not recoverable from the
// key; callers holding the original triples re-derive keys via MarketKey
// to match entries.
func DecodeOutcomes(blob []byte) ([]EncodedOutcome, error) {
	vals, err := outcomesArgs.Unpack(blob)
	if err != nil {
		return nil, fmt.Errorf("unpack outcomes: %w", err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("unexpected unpack arity: %d", len(vals))
	}

	out := *abi.ConvertType(vals[0], new([]EncodedOutcome)).(*[]EncodedOutcome)
	return out, nil
}
