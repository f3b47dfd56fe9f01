package shell

import (
	"webbot/internal/tools"
)

// RegisterAll registers the shell tools with the given registry.
func RegisterAll(registry *tools.Registry, opts Options) error {
	return registry.Register(ExecTool(opts))
}
