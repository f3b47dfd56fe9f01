package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"webbot/internal/logging"
)

// rpcAPI is the subset of the JSON-RPC client Client uses.
type rpcAPI interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	Close() error
}

// Options tunes a Client.
type Options struct {
	// ConfirmTimeout bounds how long Transfer waits for confirmation.
	ConfirmTimeout time.Duration
	// PollInterval is the delay between signature status checks.
	PollInterval time.Duration
}

const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = 2 * time.Second
)

// Client implements BalanceFetcher and Transferer over Solana JSON-RPC.
type Client struct {
	rpc  rpcAPI
	opts Options
}

// NewClient connects to the RPC endpoint at url.
func NewClient(url string, opts Options) *Client {
	return newClient(rpc.New(url), opts)
}

func newClient(api rpcAPI, opts Options) *Client {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Client{rpc: api, opts: opts}
}

// Close releases the RPC connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Balance returns address's confirmed SOL balance.
func (c *Client) Balance(ctx context.Context, address string) (float64, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidAddress, address, err)
	}
	res, err := c.rpc.GetBalance(ctx, pk, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	if res == nil {
		return 0, errors.New("get balance: empty response")
	}
	return SOLFromLamports(res.Value), nil
}

// Transfer sends amount SOL from signer to recipient and waits for the
// transaction to reach confirmed commitment.
func (c *Client) Transfer(ctx context.Context, signer Wallet, recipient string, amount float64, token Token) (string, error) {
	if token != TokenSOL {
		return "", fmt.Errorf("%w: %s", ErrTokenNotImplemented, token)
	}
	to, err := solana.PublicKeyFromBase58(recipient)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidAddress, recipient, err)
	}
	lamports, err := LamportsFromSOL(amount)
	if err != nil {
		return "", err
	}
	key, err := parseSigner(signer)
	if err != nil {
		return "", err
	}
	from := key.PublicKey()

	timer := logging.StartTimer(logging.CategoryChain, "transfer")
	defer timer.Stop()

	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return "", fmt.Errorf("get latest blockhash: %w", err)
	}
	if recent == nil || recent.Value == nil {
		return "", errors.New("get latest blockhash: empty response")
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports, from, to).Build()},
		recent.Value.Blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(from) {
			return &key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	// The signature is fixed once signed, so it is known even if the send
	// result is lost.
	sig := tx.Signatures[0]
	if _, err := c.rpc.SendTransaction(ctx, tx); err != nil {
		var rejected *jsonrpc.RPCError
		if errors.As(err, &rejected) {
			return "", fmt.Errorf("%w: send: %s", ErrTransactionFailed, rejected.Message)
		}
		// Interrupted or unreachable: the transaction may still land.
		logging.Get(logging.CategoryChain).Warn("Send of %s interrupted: %v", sig, err)
		return sig.String(), fmt.Errorf("%w: %s: send: %v", ErrUnconfirmed, sig, err)
	}
	logging.Chain("Sent %d lamports %s -> %s (sig=%s)", lamports, from, to, sig)

	if err := c.confirm(ctx, sig); err != nil {
		return sig.String(), err
	}
	logging.Chain("Confirmed transfer %s", sig)
	return sig.String(), nil
}

// confirm polls until sig is confirmed, fails, or the timeout passes.
func (c *Client) confirm(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		switch {
		case err != nil && !errors.Is(err, rpc.ErrNotFound):
			logging.Get(logging.CategoryChain).Debug("signature status for %s: %v", sig, err)
		case res != nil && len(res.Value) > 0 && res.Value[0] != nil:
			st := res.Value[0]
			if st.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransactionFailed, st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s after %v", ErrUnconfirmed, sig, c.opts.ConfirmTimeout)
		case <-ticker.C:
		}
	}
}
