package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/jobmail/internal/core"
	"github.com/mikey/jobmail/internal/extract"
	"github.com/mikey/jobmail/internal/utils"
)

// OpenAIClient extracts application records using the OpenAI chat
// completion API
type OpenAIClient struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIClient {
	return &OpenAIClient{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// ExtractApplications sends the message to the model and parses the
// response into records
func (c *OpenAIClient) ExtractApplications(ctx context.Context, msg *core.Message) ([]core.ApplicationRecord, error) {
	body := c.textProcessor.ProcessText(msg.Body, c.maxBodySize)
	prompt := extract.BuildPrompt(msg, body)

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a job application email parser. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, &core.ExtractionError{Err: fmt.Errorf("failed to create chat completion with OpenAI: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &core.ExtractionError{Err: fmt.Errorf("empty response from OpenAI")}
	}

	records := extract.ParseRecords(resp.Choices[0].Message.Content)
	c.logger.Debug("OpenAI extraction complete",
		zap.String("message_id", msg.ID),
		zap.String("model", c.modelName),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)))

	return records, nil
}
