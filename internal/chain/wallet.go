package chain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// KeyGenerator generates ed25519 wallets.
type KeyGenerator struct{}

// NewWallet returns a fresh random keypair.
func (KeyGenerator) NewWallet() (Wallet, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return Wallet{}, fmt.Errorf("generate keypair: %w", err)
	}
	return Wallet{PublicKey: key.PublicKey().String(), SecretKey: key.String()}, nil
}

// parseSigner decodes w's secret key and checks it matches its public key.
func parseSigner(w Wallet) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromBase58(w.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	if w.PublicKey != "" && key.PublicKey().String() != w.PublicKey {
		return nil, fmt.Errorf("secret key does not match public key %s", w.PublicKey)
	}
	return key, nil
}
