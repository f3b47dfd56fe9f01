package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func TestGeminiInfer_MapsRequestAndResponse(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{
					{Text: "sending"},
					{FunctionCall: &genai.FunctionCall{Name: "send_message", Args: map[string]any{"to": "bob", "content": "hi"}}},
				},
			},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 9, CandidatesTokenCount: 4},
	}}
	c := &GeminiClient{models: gen}

	resp, err := c.Infer(context.Background(), Request{
		Model:  "gemini-flash",
		System: "sys",
		Messages: []Message{
			{Role: RoleUser, Text: "hello"},
			{Role: RoleAssistant, Text: "earlier"},
			{Role: RoleUser, Text: "now"},
		},
		Tools:     []ToolDefinition{{Name: "send_message", InputSchema: map[string]any{"type": "object"}}},
		MaxTokens: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini-flash", gen.model)
	require.Len(t, gen.contents, 3)
	assert.Equal(t, genai.RoleModel, gen.contents[1].Role)
	assert.Equal(t, int32(100), gen.config.MaxOutputTokens)
	require.NotNil(t, gen.config.SystemInstruction)
	require.Len(t, gen.config.Tools, 1)
	assert.Equal(t, "send_message", gen.config.Tools[0].FunctionDeclarations[0].Name)

	assert.Equal(t, "sending", resp.Text)
	assert.Equal(t, "STOP", resp.StopReason)
	assert.Equal(t, Usage{InputTokens: 9, OutputTokens: 4}, resp.Usage)
	require.Len(t, resp.ToolCalls, 1)
	assert.NotEmpty(t, resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"to":"bob","content":"hi"}`, string(resp.ToolCalls[0].Input))
}

func TestGeminiInfer_WrapsErrors(t *testing.T) {
	boom := errors.New("quota")
	c := &GeminiClient{models: &fakeGenerator{err: boom}}
	_, err := c.Infer(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Text: "x"}}})
	assert.ErrorIs(t, err, boom)

	_, err = c.Infer(context.Background(), Request{Model: "m"})
	assert.ErrorIs(t, err, ErrNoMessages)
}
