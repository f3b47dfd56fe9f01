package core

import (
	"context"
	"errors"

	"webbot/internal/logging"
	"webbot/internal/selfmod"
	"webbot/internal/tools"
)

// SoulUpdateTool returns the tool that overwrites SOUL.md.
func SoulUpdateTool(opts Options) *tools.Tool {
	return &tools.Tool{
		Name:        "soul_update",
		Description: "Replace your SOUL.md self-description. It is shown to you at the start of every turn.",
		Category:    tools.CategorySelf,
		Execute: func(ctx context.Context, env tools.Env, args map[string]any) (tools.Result, error) {
			content, err := tools.String(args, "content")
			if err != nil {
				return nil, err
			}
			if opts.SoulPath == "" {
				return nil, tools.NotImplemented("no SOUL.md location configured")
			}
			if err := writeFile(opts.SoulPath, content, 0o644); err != nil {
				return nil, err
			}
			logging.Tools("%s updated SOUL.md (%d bytes)", env.Agent(), len(content))
			return tools.Result{"updated": true, "bytes_written": len(content)}, nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"content"},
			Properties: map[string]tools.Property{
				"content": {
					Type:        "string",
					Description: "The full new SOUL.md content",
				},
			},
		},
	}
}

// SelfModifyTool returns the audited self-modification tool.
func SelfModifyTool(opts Options) *tools.Tool {
	return &tools.Tool{
		Name: "self_modify",
		Description: "Rewrite one of your own files. Every change is recorded in the audit log first. " +
			"The constitution and the prompt builder cannot be changed, and at most 10 changes are allowed per hour.",
		Category: tools.CategorySelf,
		Execute: func(ctx context.Context, env tools.Env, args map[string]any) (tools.Result, error) {
			path, err := tools.NonEmptyString(args, "file_path")
			if err != nil {
				return nil, err
			}
			content, err := tools.String(args, "new_content")
			if err != nil {
				return nil, err
			}
			reason, err := tools.NonEmptyString(args, "reason")
			if err != nil {
				return nil, err
			}
			if opts.Guard == nil {
				return nil, tools.NotImplemented("self-modification is not configured")
			}

			entry, err := opts.Guard.Apply(ctx, env.Agent(), path, content, reason)
			switch {
			case errors.Is(err, selfmod.ErrProtectedPath), errors.Is(err, selfmod.ErrRateLimited):
				return nil, tools.PolicyViolation("%v", err)
			case err != nil:
				return nil, err
			}
			return tools.Result{
				"modified": true,
				"path":     entry.TargetPath,
				"audit_id": entry.ID,
				"bytes":    len(content),
			}, nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"file_path", "new_content", "reason"},
			Properties: map[string]tools.Property{
				"file_path": {
					Type:        "string",
					Description: "The file to rewrite",
				},
				"new_content": {
					Type:        "string",
					Description: "The complete new file content",
				},
				"reason": {
					Type:        "string",
					Description: "Why the change is needed; stored in the audit log",
				},
			},
		},
	}
}
