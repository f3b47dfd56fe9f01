package social

import (
	"context"
	"errors"
	"time"

	"webbot/internal/social"
	"webbot/internal/tools"
)

// Mailbox is the messaging surface the tools need.
type Mailbox interface {
	Send(ctx context.Context, from, to, body string) error
	Receive(ctx context.Context, identity string) ([]social.Message, error)
}

// SendMessageTool returns the send_message tool.
func SendMessageTool(box Mailbox) *tools.Tool {
	return &tools.Tool{
		Name:        "send_message",
		Description: "Send a message to another agent by name.",
		Category:    tools.CategorySocial,
		Execute: func(ctx context.Context, env tools.Env, args map[string]any) (tools.Result, error) {
			to, err := tools.NonEmptyString(args, "to")
			if err != nil {
				return nil, err
			}
			content, err := tools.String(args, "content")
			if err != nil {
				return nil, err
			}
			if err := box.Send(ctx, env.Agent(), to, content); err != nil {
				if errors.Is(err, social.ErrInvalidMessage) {
					return nil, tools.InvalidInput("%v", err)
				}
				return nil, err
			}
			return tools.Result{"sent": true, "to": to}, nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"to", "content"},
			Properties: map[string]tools.Property{
				"to": {
					Type:        "string",
					Description: "Recipient agent name",
				},
				"content": {
					Type:        "string",
					Description: "Message body",
				},
			},
		},
	}
}

// ReadMessagesTool returns the read_messages tool.
func ReadMessagesTool(box Mailbox) *tools.Tool {
	return &tools.Tool{
		Name:        "read_messages",
		Description: "Read your unread messages. Messages are marked read and will not be returned again.",
		Category:    tools.CategorySocial,
		Execute: func(ctx context.Context, env tools.Env, args map[string]any) (tools.Result, error) {
			msgs, err := box.Receive(ctx, env.Agent())
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, len(msgs))
			for i, m := range msgs {
				out[i] = map[string]any{
					"from":    m.From,
					"content": m.Content,
					"sent_at": m.CreatedAt.UTC().Format(time.RFC3339),
				}
			}
			return tools.Result{"messages": out, "count": len(out)}, nil
		},
		Schema: tools.ToolSchema{Properties: map[string]tools.Property{}},
	}
}

// RegisterAll registers the messaging tools with the given registry.
func RegisterAll(registry *tools.Registry, box Mailbox) error {
	for _, tool := range []*tools.Tool{SendMessageTool(box), ReadMessagesTool(box)} {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
