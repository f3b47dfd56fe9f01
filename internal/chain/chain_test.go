package chain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPC struct {
	mu       sync.Mutex
	balances map[solana.PublicKey]uint64
	balErr   error
	sendErr  error
	statuses []*rpc.SignatureStatusesResult // returned in order, last repeats
	polls    int
	sent     []*solana.Transaction
	closed   bool
}

func (f *fakeRPC) GetBalance(ctx context.Context, pk solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if f.balErr != nil {
		return nil, f.balErr
	}
	return &rpc.GetBalanceResult{Value: f.balances[pk]}, nil
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{1, 2, 3}}}, nil
}

func (f *fakeRPC) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(ctx context.Context, _ bool, _ ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return nil, rpc.ErrNotFound
	}
	i := f.polls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.polls++
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{f.statuses[i]}}, nil
}

func (f *fakeRPC) Close() error {
	f.closed = true
	return nil
}

func newWallet(t *testing.T) Wallet {
	t.Helper()
	w, err := KeyGenerator{}.NewWallet()
	require.NoError(t, err)
	return w
}

func fastClient(f *fakeRPC) *Client {
	return newClient(f, Options{ConfirmTimeout: 200 * time.Millisecond, PollInterval: 5 * time.Millisecond})
}

func TestKeyGenerator(t *testing.T) {
	a := newWallet(t)
	b := newWallet(t)
	assert.NotEqual(t, a.PublicKey, b.PublicKey)
	assert.NoError(t, ValidateAddress(a.PublicKey))

	key, err := parseSigner(a)
	require.NoError(t, err)
	assert.Equal(t, a.PublicKey, key.PublicKey().String())

	assert.NotContains(t, fmt.Sprintf("%v %#v", a, a), a.SecretKey)
}

func TestParseSigner_Mismatch(t *testing.T) {
	a := newWallet(t)
	b := newWallet(t)
	_, err := parseSigner(Wallet{PublicKey: b.PublicKey, SecretKey: a.SecretKey})
	assert.Error(t, err)
}

func TestLamportsFromSOL(t *testing.T) {
	n, err := LamportsFromSOL(0.5)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), n)

	n, err = LamportsFromSOL(0.000000001)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1), 1e-12} {
		_, err := LamportsFromSOL(bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %v", bad)
	}
	assert.InDelta(t, 1.5, SOLFromLamports(1_500_000_000), 1e-12)
}

func TestParseToken(t *testing.T) {
	assert.Equal(t, TokenSOL, ParseToken(" sol "))
	assert.Equal(t, TokenUSDC, ParseToken("usdc"))
}

func TestClient_Balance(t *testing.T) {
	w := newWallet(t)
	pk := solana.MustPublicKeyFromBase58(w.PublicKey)
	f := &fakeRPC{balances: map[solana.PublicKey]uint64{pk: 250_000_000}}
	c := fastClient(f)

	bal, err := c.Balance(context.Background(), w.PublicKey)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, bal, 1e-12)

	bal, err = c.Balance(context.Background(), "not-base58!")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Zero(t, bal)

	f.balErr = errors.New("rpc down")
	bal, err = c.Balance(context.Background(), w.PublicKey)
	assert.Error(t, err)
	assert.Zero(t, bal, "failed fetch reports zero with the error")

	require.NoError(t, c.Close())
	assert.True(t, f.closed)
}

func TestClient_TransferConfirmed(t *testing.T) {
	from := newWallet(t)
	to := newWallet(t)
	f := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{
		{ConfirmationStatus: rpc.ConfirmationStatusProcessed},
		{ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
	}}
	c := fastClient(f)

	sig, err := c.Transfer(context.Background(), from, to.PublicKey, 0.1, TokenSOL)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
	require.Len(t, f.sent, 1)
	assert.Equal(t, sig, f.sent[0].Signatures[0].String())
	assert.GreaterOrEqual(t, f.polls, 2)
}

func TestClient_TransferErrors(t *testing.T) {
	from := newWallet(t)
	to := newWallet(t)
	ctx := context.Background()

	_, err := fastClient(&fakeRPC{}).Transfer(ctx, from, to.PublicKey, 1, TokenUSDC)
	assert.ErrorIs(t, err, ErrTokenNotImplemented)

	_, err = fastClient(&fakeRPC{}).Transfer(ctx, from, "bogus", 1, TokenSOL)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = fastClient(&fakeRPC{}).Transfer(ctx, from, to.PublicKey, -2, TokenSOL)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	rejected := &fakeRPC{sendErr: &jsonrpc.RPCError{Code: -32002, Message: "insufficient funds"}}
	sig, err := fastClient(rejected).Transfer(ctx, from, to.PublicKey, 1, TokenSOL)
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.Empty(t, sig)

	failed := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{{Err: map[string]any{"InstructionError": 0}}}}
	sig, err = fastClient(failed).Transfer(ctx, from, to.PublicKey, 1, TokenSOL)
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.NotEmpty(t, sig, "signature is reported even when the transaction fails")

	_, err = fastClient(&fakeRPC{}).Transfer(ctx, from, to.PublicKey, 1, TokenSOL)
	assert.ErrorIs(t, err, ErrUnconfirmed)
}

func TestClient_TransferInterruptedSendIsUnconfirmed(t *testing.T) {
	from := newWallet(t)
	to := newWallet(t)

	for name, sendErr := range map[string]error{
		"cancelled":   fmt.Errorf("send: %w", context.Canceled),
		"unreachable": errors.New("dial tcp 127.0.0.1:8899: connection refused"),
	} {
		t.Run(name, func(t *testing.T) {
			sig, err := fastClient(&fakeRPC{sendErr: sendErr}).Transfer(context.Background(), from, to.PublicKey, 1, TokenSOL)
			assert.ErrorIs(t, err, ErrUnconfirmed)
			assert.NotErrorIs(t, err, ErrTransactionFailed)
			assert.NotEmpty(t, sig)
		})
	}
}

func TestAgentCard(t *testing.T) {
	w := newWallet(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	card, err := NewAgentCard("alpha", w.PublicKey, "creator", []string{"shell_exec"}, at)
	require.NoError(t, err)
	assert.Equal(t, CardVersion, card.Version)
	assert.Equal(t, at, card.RegisteredAt)

	again, bump, err := RegistryAddress(w.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, card.Address, again.String(), "derivation is deterministic")
	assert.Equal(t, card.Bump, bump)
	assert.False(t, again.IsOnCurve())

	_, err = NewAgentCard("alpha", "bad", "creator", nil, at)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
