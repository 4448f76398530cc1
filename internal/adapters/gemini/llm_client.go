package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mikey/jobmail/internal/core"
	"github.com/mikey/jobmail/internal/extract"
	"github.com/mikey/jobmail/internal/utils"
)

// GeminiClient extracts application records using Google Gemini
type GeminiClient struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &GeminiClient{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// ExtractApplications sends the message to the model and parses the
// response into records
func (c *GeminiClient) ExtractApplications(ctx context.Context, msg *core.Message) ([]core.ApplicationRecord, error) {
	body := c.textProcessor.ProcessText(msg.Body, c.maxBodySize)
	prompt := extract.BuildPrompt(msg, body)

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, &core.ExtractionError{Err: fmt.Errorf("failed to generate content with Gemini: %w", err)}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &core.ExtractionError{Err: fmt.Errorf("empty response from Gemini")}
	}

	responseText := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])

	records := extract.ParseRecords(responseText)
	c.logger.Debug("Gemini extraction complete",
		zap.String("message_id", msg.ID),
		zap.String("model", c.modelName),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)))

	return records, nil
}
