package chain

import (
	"context"
	"errors"

	"webbot/internal/config"
	"webbot/internal/replication"
	"webbot/internal/tools"
)

// Spawner creates funded children.
type Spawner interface {
	Spawn(ctx context.Context, parent *config.Identity, req replication.Request) (replication.Result, error)
}

// ReplicateTool returns the replicate tool. It is offered at every live
// tier; the funding transfer is the only limit.
func ReplicateTool(s Spawner) *tools.Tool {
	return &tools.Tool{
		Name:        "replicate",
		Description: "Spawn a child agent with its own wallet, funded from yours. The child runs independently with the genesis prompt you give it.",
		Category:    tools.CategorySelf,
		Execute: func(ctx context.Context, env tools.Env, args map[string]any) (tools.Result, error) {
			return executeReplicate(ctx, s, env, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"name", "genesis_prompt", "initial_sol"},
			Properties: map[string]tools.Property{
				"name": {
					Type:        "string",
					Description: "Child name: letters, digits, '-' or '_'",
				},
				"genesis_prompt": {
					Type:        "string",
					Description: "The child's founding purpose",
				},
				"initial_sol": {
					Type:        "number",
					Description: "SOL to fund the child with",
				},
			},
		},
	}
}

func executeReplicate(ctx context.Context, s Spawner, env tools.Env, args map[string]any) (tools.Result, error) {
	name, err := tools.NonEmptyString(args, "name")
	if err != nil {
		return nil, err
	}
	genesis, err := tools.NonEmptyString(args, "genesis_prompt")
	if err != nil {
		return nil, err
	}
	initial, err := tools.Number(args, "initial_sol")
	if err != nil {
		return nil, err
	}
	if env.Identity == nil {
		return nil, tools.NewError(tools.CodeExecutionFailed, "no parent identity")
	}

	res, err := s.Spawn(ctx, env.Identity, replication.Request{Name: name, GenesisPrompt: genesis, InitialSOL: initial})
	switch {
	case errors.Is(err, replication.ErrInvalidRequest), errors.Is(err, replication.ErrNameTaken):
		return nil, tools.InvalidInput("%v", err)
	case err != nil:
		return nil, err
	case res.Pending:
		return tools.Result{"success": false, "pending": true, "child_wallet": res.ChildWallet, "signature": res.Signature, "error": res.Error}, nil
	case !res.Success:
		return nil, tools.NewError(tools.CodeExecutionFailed, "replication failed: %s", res.Error)
	}
	return tools.Result{"success": true, "child_wallet": res.ChildWallet, "signature": res.Signature}, nil
}
