package main

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// envWalletSigner implements yellow.Signer over a raw private key loaded from the
// YELLOW_WALLET_PRIVATE_KEY environment variable. A real deployment backs this interface
// with a hardware wallet or remote signer; this CLI only needs something that can sign
// the EIP-712 auth challenge.
type envWalletSigner struct {
	key *ecdsa.PrivateKey
}

func loadWalletKey() (*ecdsa.PrivateKey, error) {
	hexKey := os.Getenv("YELLOW_WALLET_PRIVATE_KEY")
	if hexKey == "" {
		return nil, fmt.Errorf("YELLOW_WALLET_PRIVATE_KEY is not set")
	}
	key, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse YELLOW_WALLET_PRIVATE_KEY: %w", err)
	}
	return key, nil
}

func newEnvWalletSigner(key *ecdsa.PrivateKey) *envWalletSigner {
	return &envWalletSigner{key: key}
}

func (s *envWalletSigner) Address() string {
	return ethcrypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

func (s *envWalletSigner) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := ethcrypto.Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	return sig, nil
}
