package models

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/givelift/recall/internal/errors"
)

// OpenAIGenerator runs completions through the OpenAI chat API, using
// response_format json_schema when a schema is requested.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

var _ Generator = (*OpenAIGenerator)(nil)

func NewOpenAIGenerator(platformKey, model string) *OpenAIGenerator {
	client := openai.NewClient(option.WithAPIKey(platformKey))
	return &OpenAIGenerator{
		client: &client,
		model:  model,
	}
}

func (g *OpenAIGenerator) Name() string {
	return "openai"
}

func (g *OpenAIGenerator) Generate(ctx context.Context, apiKey string, req GenerateRequest) (Result, error) {
	params := openai.ChatCompletionNewParams{
		Model: g.model,
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))
	params.Messages = messages

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.ResponseSchema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.ResponseSchema.Name,
					Schema: schemaToMap(req.ResponseSchema.Schema),
				},
			},
		}
	}

	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	resp, err := g.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.NewProviderContract(g.Name(), "completion has no choices")
	}

	return Result{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
