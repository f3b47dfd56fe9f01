package core

import (
	"webbot/internal/tools"
)

// RegisterAll registers the filesystem and self tools with the given registry.
func RegisterAll(registry *tools.Registry, opts Options) error {
	allTools := []*tools.Tool{
		ReadFileTool(opts),
		WriteFileTool(opts),
		SoulUpdateTool(opts),
		SelfModifyTool(opts),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	return nil
}
