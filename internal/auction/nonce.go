package auction

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// noncesABI is the single view the requester needs from the
// prediction-market contract.
const noncesABI = `[{"inputs":[{"internalType":"address","name":"maker","type":"address"}],"name":"nonces","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// ChainNonceSource reads maker nonces from the prediction-market
// contract over JSON-RPC.
type ChainNonceSource struct {
	client   *ethclient.Client
	contract common.Address
	parsed   abi.ABI
}

// NewChainNonceSource dials the RPC endpoint and prepares the contract
// binding.
func NewChainNonceSource(ctx context.Context, rpcURL string, contract common.Address) (*ChainNonceSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(noncesABI))
	if err != nil {
		return nil, fmt.Errorf("parse nonces abi: %w", err)
	}

	return &ChainNonceSource{
		client:   client,
		contract: contract,
		parsed:   parsed,
	}, nil
}

// Nonce performs the nonces(maker) view call.
func (s *ChainNonceSource) Nonce(ctx context.Context, maker common.Address) (uint64, error) {
	data, err := s.parsed.Pack("nonces", maker)
	if err != nil {
		return 0, fmt.Errorf("pack nonces call: %w", err)
	}

	res, err := s.client.CallContract(ctx, ethereum.CallMsg{
		To:   &s.contract,
		Data: data,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("call nonces: %w", err)
	}

	vals, err := s.parsed.Unpack("nonces", res)
	if err != nil {
		return 0, fmt.Errorf("unpack nonces result: %w", err)
	}
	nonce := *abi.ConvertType(vals[0], new(*big.Int)).(**big.Int)
	return nonce.Uint64(), nil
}

// Close releases the underlying RPC connection.
func (s *ChainNonceSource) Close() {
	s.client.Close()
}
