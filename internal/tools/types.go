// Package tools is the registered-handler table behind the agent's
// capability surface. Each tool declares its schema, the minimum survival
// tier it needs and its handler; the Dispatcher validates a model-requested
// call against that declaration and never lets a failure escape as a panic
// or Go error.
//
// Architecture:
//
//	model tool_use → Dispatcher.Execute → Registry.Get → validate → Tool.Execute → Output
package tools

import (
	"context"

	"webbot/internal/config"
	"webbot/internal/survival"
)

// ToolCategory groups tools for capability listings.
type ToolCategory string

const (
	// CategorySystem covers shell and filesystem access.
	CategorySystem ToolCategory = "/system"

	// CategoryNetwork covers outbound HTTP.
	CategoryNetwork ToolCategory = "/network"

	// CategoryChain covers on-chain value transfer.
	CategoryChain ToolCategory = "/chain"

	// CategorySelf covers identity documents, self-modification and replication.
	CategorySelf ToolCategory = "/self"

	// CategorySocial covers agent-to-agent messaging.
	CategorySocial ToolCategory = "/social"
)

// Categories lists every category in capability order.
var Categories = []ToolCategory{CategorySystem, CategoryNetwork, CategoryChain, CategorySelf, CategorySocial}

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// JSONSchema renders the schema as a JSON-schema object.
func (s ToolSchema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Items != nil {
			prop["items"] = map[string]any{"type": p.Items.Type}
		}
		props[name] = prop
	}
	required := s.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Env is what a handler knows about the caller. Tier is the value computed
// at the start of the turn and does not change while the turn dispatches.
type Env struct {
	Identity *config.Identity
	Tier     survival.Tier
	Turn     int
}

// Agent returns the calling identity's name.
func (e Env) Agent() string {
	if e.Identity == nil {
		return ""
	}
	return e.Identity.Name
}

// Result is the structured output of a successful tool call.
type Result map[string]any

// ExecuteFunc is the signature for tool execution. Returning an *Error keeps
// its code; any other error is reported as execution_failed.
type ExecuteFunc func(ctx context.Context, env Env, args map[string]any) (Result, error)

// Tool defines one capability.
type Tool struct {
	// Name is the unique identifier the model calls.
	Name string

	// Description explains what the tool does to the model.
	Description string

	// Category classifies the tool.
	Category ToolCategory

	// Execute runs the tool.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// MinTier is the least capable tier allowed to call the tool. Empty
	// means any tier.
	MinTier survival.Tier
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	if t.MinTier != "" && !t.MinTier.Valid() {
		return ErrToolTierInvalid
	}
	return nil
}

// Allows reports whether tier may call the tool.
func (t *Tool) Allows(tier survival.Tier) bool {
	return t.MinTier == "" || tier.AtLeast(t.MinTier)
}
