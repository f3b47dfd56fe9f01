// Package chain is the agent's view of the Solana network: balance lookup,
// SOL transfers and wallet generation.
//
// Callers depend on the small interfaces below; Client implements the first
// two over JSON-RPC and KeyGenerator the third.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Token identifies what a transfer moves.
type Token string

const (
	TokenSOL  Token = "SOL"
	TokenUSDC Token = "USDC"
)

// ParseToken normalizes a token name. Unknown names are returned as-is so
// the caller can report them.
func ParseToken(s string) Token {
	return Token(strings.ToUpper(strings.TrimSpace(s)))
}

var (
	// ErrTokenNotImplemented is returned for tokens without transfer support.
	ErrTokenNotImplemented = errors.New("token transfers not implemented")

	// ErrInvalidAddress is returned for malformed base58 public keys.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidAmount is returned for non-positive or non-finite amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrTransactionFailed is returned when the cluster rejects a transfer.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrUnconfirmed is returned when a sent transfer was not confirmed in
	// time. Funds may still move.
	ErrUnconfirmed = errors.New("transaction not confirmed")
)

// Wallet is a keypair in base58 form.
type Wallet struct {
	PublicKey string
	SecretKey string
}

// String never includes the secret key.
func (w Wallet) String() string { return w.PublicKey }

// GoString never includes the secret key.
func (w Wallet) GoString() string { return fmt.Sprintf("chain.Wallet{PublicKey:%q}", w.PublicKey) }

// BalanceFetcher returns an address's SOL balance. On failure it returns a
// zero balance together with the error.
type BalanceFetcher interface {
	Balance(ctx context.Context, address string) (float64, error)
}

// Transferer moves funds from signer to recipient and returns the
// transaction signature.
type Transferer interface {
	Transfer(ctx context.Context, signer Wallet, recipient string, amount float64, token Token) (string, error)
}

// WalletGenerator creates fresh keypairs.
type WalletGenerator interface {
	NewWallet() (Wallet, error)
}

// ValidateAddress checks that s is a base58 public key.
func ValidateAddress(s string) error {
	if _, err := solana.PublicKeyFromBase58(s); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidAddress, s, err)
	}
	return nil
}

// LamportsFromSOL converts a SOL amount to lamports, rounding to the
// nearest lamport.
func LamportsFromSOL(sol float64) (uint64, error) {
	if math.IsNaN(sol) || math.IsInf(sol, 0) || sol <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, sol)
	}
	lamports := math.Round(sol * float64(solana.LAMPORTS_PER_SOL))
	if lamports < 1 || lamports > math.MaxUint64/2 {
		return 0, fmt.Errorf("%w: %v SOL is out of range", ErrInvalidAmount, sol)
	}
	return uint64(lamports), nil
}

// SOLFromLamports converts lamports to SOL.
func SOLFromLamports(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}
