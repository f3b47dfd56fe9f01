package replication

import (
	"context"
	"fmt"
	"sync"

	"webbot/internal/chain"
)

type seqWallets struct {
	mu sync.Mutex
	n  int
	// err, if set, is returned instead of a wallet.
	err error
}

func (w *seqWallets) NewWallet() (chain.Wallet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return chain.Wallet{}, w.err
	}
	w.n++
	return chain.Wallet{PublicKey: fmt.Sprintf("child-wallet-%d", w.n), SecretKey: fmt.Sprintf("child-secret-%d", w.n)}, nil
}

type transferCall struct {
	Signer    chain.Wallet
	Recipient string
	Amount    float64
	Token     chain.Token
}

type mockTransferer struct {
	mu    sync.Mutex
	calls []transferCall
	sig   string
	err   error
	// before runs inside Transfer, letting tests observe state mid-spawn.
	before func()
}

func (m *mockTransferer) Transfer(ctx context.Context, signer chain.Wallet, recipient string, amount float64, token chain.Token) (string, error) {
	if m.before != nil {
		m.before()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, transferCall{signer, recipient, amount, token})
	return m.sig, m.err
}

type mockBalances struct {
	values map[string]float64
	errs   map[string]error
}

func (m *mockBalances) Balance(ctx context.Context, address string) (float64, error) {
	if err := m.errs[address]; err != nil {
		return 0, err
	}
	return m.values[address], nil
}
