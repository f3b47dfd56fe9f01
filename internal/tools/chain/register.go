package chain

import (
	"webbot/internal/chain"
	"webbot/internal/tools"
)

// RegisterAll registers the value-moving tools with the given registry.
func RegisterAll(registry *tools.Registry, transfer chain.Transferer, spawner Spawner) error {
	for _, tool := range []*tools.Tool{TransferTool(transfer), ReplicateTool(spawner)} {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
