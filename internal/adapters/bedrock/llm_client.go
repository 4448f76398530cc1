package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/jobmail/internal/core"
	"github.com/mikey/jobmail/internal/extract"
	"github.com/mikey/jobmail/internal/utils"
)

// BedrockClient extracts application records using an Anthropic model
// on Amazon Bedrock
type BedrockClient struct {
	client        *bedrockruntime.Client
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewBedrockClient creates a new Bedrock client
func NewBedrockClient(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *BedrockClient {
	return &BedrockClient{
		client:        client,
		modelID:       modelID,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// anthropicRequest is the Bedrock messages-API payload for Anthropic
// models
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float32            `json:"temperature"`
	TopP             float32            `json:"top_p,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

// ExtractApplications sends the message to the model and parses the
// response into records. Transport and envelope failures are
// ExtractionErrors; unparseable model text is not an error and yields
// zero records.
func (c *BedrockClient) ExtractApplications(ctx context.Context, msg *core.Message) ([]core.ApplicationRecord, error) {
	body := c.textProcessor.ProcessText(msg.Body, c.maxBodySize)
	prompt := extract.BuildPrompt(msg, body)

	payload, err := json.Marshal(anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        c.maxTokens,
		Temperature:      c.temperature,
		TopP:             c.topP,
		Messages: []anthropicMessage{
			{
				Role:    "user",
				Content: []anthropicContent{{Type: "text", Text: prompt}},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	start := time.Now()
	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, &core.ExtractionError{Err: fmt.Errorf("failed to invoke Bedrock model: %w", err)}
	}

	var modelResp anthropicResponse
	if err := json.Unmarshal(resp.Body, &modelResp); err != nil {
		return nil, &core.ExtractionError{Err: fmt.Errorf("failed to unmarshal Bedrock response: %w", err)}
	}
	if len(modelResp.Content) == 0 {
		return nil, &core.ExtractionError{Err: fmt.Errorf("empty response from Bedrock model")}
	}

	records := extract.ParseRecords(modelResp.Content[0].Text)
	c.logger.Debug("Bedrock extraction complete",
		zap.String("message_id", msg.ID),
		zap.String("model_id", c.modelID),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)))

	return records, nil
}
