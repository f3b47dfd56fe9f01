package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"webbot/internal/logging"
	"webbot/internal/tools"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxBody   = 2 << 20 // bytes read from the wire
	DefaultMaxOutput = 50000   // characters returned to the model
	userAgent        = "web-agent/0.1"
)

// Options configures the http_request tool.
type Options struct {
	Client    *http.Client
	Timeout   time.Duration
	MaxOutput int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
	if o.MaxOutput <= 0 {
		o.MaxOutput = DefaultMaxOutput
	}
	return o
}

// RequestTool returns the http_request tool.
func RequestTool(opts Options) *tools.Tool {
	opts = opts.withDefaults()
	return &tools.Tool{
		Name:        "http_request",
		Description: "Make an HTTP request. JSON responses are parsed; HTML is converted to text.",
		Category:    tools.CategoryNetwork,
		Execute: func(ctx context.Context, env tools.Env, args map[string]any) (tools.Result, error) {
			return executeRequest(ctx, opts, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"url", "method"},
			Properties: map[string]tools.Property{
				"url": {
					Type:        "string",
					Description: "Absolute http or https URL",
				},
				"method": {
					Type:        "string",
					Description: "HTTP method",
					Enum:        []any{"GET", "POST", "PUT", "DELETE"},
				},
				"headers": {
					Type:        "object",
					Description: "Request headers",
				},
				"body": {
					Type:        "string",
					Description: "Request body; sent as application/json unless a Content-Type header is given",
				},
			},
		},
	}
}

func executeRequest(ctx context.Context, opts Options, args map[string]any) (tools.Result, error) {
	rawURL, err := tools.NonEmptyString(args, "url")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, tools.InvalidInput("url must be an absolute http(s) URL: %q", rawURL)
	}
	method, err := tools.String(args, "method")
	if err != nil {
		return nil, err
	}
	headers, err := tools.StringMap(args, "headers")
	if err != nil {
		return nil, err
	}
	body, err := tools.OptionalString(args, "body", "")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	logging.ToolsDebug("http_request: %s %s", method, u.Redacted())
	start := time.Now()

	resp, err := opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	result := tools.Result{
		"status":       resp.StatusCode,
		"content_type": contentType,
	}

	switch {
	case isJSON(contentType, data):
		var parsed any
		if err := json.Unmarshal(data, &parsed); err == nil {
			result["format"] = "json"
			result["body"] = parsed
			break
		}
		fallthrough
	default:
		text := string(data)
		format := "text"
		if strings.Contains(contentType, "html") {
			if md, err := htmlToText(text); err == nil {
				text = md
				format = "html"
			}
		}
		text, truncated := tools.Truncate(text, opts.MaxOutput)
		result["format"] = format
		result["body"] = text
		result["truncated"] = truncated
	}

	logging.Tools("http_request %s %s -> %d in %v (%d bytes)", method, u.Host, resp.StatusCode, time.Since(start), len(data))
	return result, nil
}

// isJSON reports whether the body should be decoded as JSON. A body that
// looks like JSON is tried even without a JSON content type.
func isJSON(contentType string, data []byte) bool {
	if strings.Contains(contentType, "json") {
		return true
	}
	if strings.Contains(contentType, "html") {
		return false
	}
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed)
}

// RegisterAll registers the network tools with the given registry.
func RegisterAll(registry *tools.Registry, opts Options) error {
	return registry.Register(RequestTool(opts))
}
