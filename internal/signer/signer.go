package signer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrNoKey        = errors.New("no signing key loaded")
	ErrInvalidKey   = errors.New("invalid private key")
	ErrBadSignature = errors.New("malformed signature")
)

// Signer holds a wallet private key in locked memory and signs canonical
// relayer messages with the EIP-191 personal-message scheme. The key bytes
// only exist in plaintext inside a memguard enclave; they are decrypted per
// signing call and destroyed immediately after.
type Signer struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
	address common.Address
}

// New creates an empty Signer. Load a key with LoadKey before signing.
func New() *Signer {
	return &Signer{}
}

// LoadKey seals the given hex-encoded secp256k1 private key into the
// enclave and caches the derived address. The hex string may carry a 0x
// prefix. The plaintext copy used for parsing is wiped before returning.
func (s *Signer) LoadKey(hexKey string) error {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return ErrInvalidKey
	}

	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		for i := range raw {
			raw[i] = 0
		}
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey)

	// memguard wipes the source buffer when sealing.
	enclave := memguard.NewEnclave(raw)

	s.mu.Lock()
	s.enclave = enclave
	s.address = addr
	s.mu.Unlock()
	return nil
}

// Ready reports whether a key has been loaded.
func (s *Signer) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enclave != nil
}

// Address returns the lower-cased hex address of the loaded key, or ""
// when no key is loaded.
func (s *Signer) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.enclave == nil {
		return ""
	}
	return strings.ToLower(s.address.Hex())
}

// SignMessage signs msg with the EIP-191 personal-message digest:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
// The returned 65-byte signature carries the Ethereum v convention (27/28).
func (s *Signer) SignMessage(msg []byte) ([]byte, error) {
	s.mu.RLock()
	enclave := s.enclave
	s.mu.RUnlock()
	if enclave == nil {
		return nil, ErrNoKey
	}

	digest := personalDigest(msg)

	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("open enclave: %w", err)
	}
	priv, err := crypto.ToECDSA(buf.Bytes())
	buf.Destroy()
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	sig, err := crypto.Sign(digest.Bytes(), priv)
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign: %w", err)
	}

	// Adjust v for Ethereum compatibility (0/1 → 27/28).
	sig[64] += 27
	return sig, nil
}

// Destroy drops the sealed key. The signer reports not-ready afterwards.
func (s *Signer) Destroy() {
	s.mu.Lock()
	s.enclave = nil
	s.address = common.Address{}
	s.mu.Unlock()
}

// RecoverSigner returns the lower-cased address that produced sig over the
// EIP-191 personal digest of msg. Accepts both 27/28 and 0/1 v values.
func RecoverSigner(msg, sig []byte) (string, error) {
	if len(sig) != 65 {
		return "", ErrBadSignature
	}
	cp := make([]byte, 65)
	copy(cp, sig)
	if cp[64] >= 27 {
		cp[64] -= 27
	}

	digest := personalDigest(msg)
	pub, err := crypto.SigToPub(digest.Bytes(), cp)
	if err != nil {
		return "", fmt.Errorf("recover: %w", err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// personalDigest computes the EIP-191 personal-message hash of msg.
func personalDigest(msg []byte) common.Hash {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256Hash([]byte(prefix), msg)
}
