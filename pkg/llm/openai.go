package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIClient implements Client over the OpenAI Responses API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI-backed client.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(req.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(req.Prompt)},
	}
	if req.System != "" {
		params.Instructions = openai.String(req.System)
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, classify("openai", err)
	}
	if resp == nil {
		return Response{}, newTransportError("openai", KindEmptyResponse, "empty response", nil)
	}

	content := resp.OutputText()
	if content == "" {
		return Response{}, newTransportError("openai", KindEmptyResponse, "no text content in response", nil)
	}

	return Response{Content: content, Model: c.model}, nil
}

// ModelName implements Client.
func (c *OpenAIClient) ModelName() string {
	return c.model
}
