package chain

import (
	"context"
	"errors"

	"webbot/internal/chain"
	"webbot/internal/logging"
	"webbot/internal/tools"
)

// TransferTool returns the solana_transfer tool.
func TransferTool(t chain.Transferer) *tools.Tool {
	return &tools.Tool{
		Name:        "solana_transfer",
		Description: "Send SOL from your wallet to another address. Only SOL is supported; USDC transfers are not implemented yet.",
		Category:    tools.CategoryChain,
		Execute: func(ctx context.Context, env tools.Env, args map[string]any) (tools.Result, error) {
			return executeTransfer(ctx, t, env, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"recipient", "amount", "token"},
			Properties: map[string]tools.Property{
				"recipient": {
					Type:        "string",
					Description: "Base58 address of the recipient",
				},
				"amount": {
					Type:        "number",
					Description: "Amount to send, in whole tokens",
				},
				"token": {
					Type:        "string",
					Description: "Token to send",
					Enum:        []any{string(chain.TokenSOL), string(chain.TokenUSDC)},
				},
			},
		},
	}
}

func executeTransfer(ctx context.Context, t chain.Transferer, env tools.Env, args map[string]any) (tools.Result, error) {
	recipient, err := tools.NonEmptyString(args, "recipient")
	if err != nil {
		return nil, err
	}
	amount, err := tools.Number(args, "amount")
	if err != nil {
		return nil, err
	}
	tokenName, err := tools.String(args, "token")
	if err != nil {
		return nil, err
	}
	token := chain.ParseToken(tokenName)
	if token != chain.TokenSOL {
		return nil, tools.NotImplemented("%s transfers are not implemented", token)
	}
	if env.Identity == nil {
		return nil, tools.NewError(tools.CodeExecutionFailed, "no wallet available")
	}

	signer := chain.Wallet{PublicKey: env.Identity.WalletPublicKey, SecretKey: env.Identity.WalletSecretKey}
	sig, err := t.Transfer(ctx, signer, recipient, amount, token)
	switch {
	case errors.Is(err, chain.ErrTokenNotImplemented):
		return nil, tools.NotImplemented("%v", err)
	case errors.Is(err, chain.ErrInvalidAddress), errors.Is(err, chain.ErrInvalidAmount):
		return nil, tools.InvalidInput("%v", err)
	case errors.Is(err, chain.ErrUnconfirmed):
		// Sent but not confirmed; report the signature so the model can check later.
		return tools.Result{"confirmed": false, "signature": sig, "warning": err.Error()}, nil
	case err != nil:
		return nil, err
	}

	logging.Chain("%s sent %.9f %s to %s (%s)", env.Agent(), amount, token, recipient, sig)
	return tools.Result{"confirmed": true, "signature": sig, "amount": amount, "token": string(token), "recipient": recipient}, nil
}
