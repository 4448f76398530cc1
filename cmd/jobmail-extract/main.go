package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/jobmail/internal/config"
	"github.com/mikey/jobmail/internal/core"
	"github.com/mikey/jobmail/internal/factory"
	"github.com/mikey/jobmail/internal/logging"
	"github.com/mikey/jobmail/internal/utils"
)

var (
	// LLM provider flags
	provider    = flag.String("provider", "bedrock", "LLM provider (bedrock, gemini, openai)")
	maxTokens   = flag.Int("max-tokens", 400, "Maximum tokens for LLM response")
	temperature = flag.Float64("temperature", 0.0, "Temperature for LLM generation")
	topP        = flag.Float64("top-p", 0.9, "Top-p for LLM generation")
	maxBodySize = flag.Int("max-body-size", 4096, "Maximum email body size to send to LLM")

	// Bedrock flags
	bedrockRegion  = flag.String("bedrock-region", "us-east-1", "AWS region for Bedrock")
	bedrockModelID = flag.String("bedrock-model", "anthropic.claude-3-haiku-20240307-v1:0", "Bedrock model ID")

	// Gemini flags
	geminiAPIKey    = flag.String("gemini-api-key", "", "API key for Google Gemini")
	geminiModelName = flag.String("gemini-model", "gemini-pro", "Gemini model name")

	// OpenAI flags
	openaiAPIKey    = flag.String("openai-api-key", "", "API key for OpenAI")
	openaiModelName = flag.String("openai-model", "gpt-4o-mini", "OpenAI model name")

	// Store flags
	save       = flag.Bool("save", false, "Persist the extracted applications to the configured store")
	storeType  = flag.String("store-type", "sqlite", "Store type for -save (sqlite, mysql, memory)")
	sqlitePath = flag.String("sqlite-path", "jobs.db", "SQLite database path for -save")

	// Input flags
	inputFile  = flag.String("file", "", "Input email file (use stdin if not specified)")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	var cfg *config.Config
	var err error

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration from file if specified
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		// Create config from command line flags
		cfg = createConfigFromFlags()
	}

	// Initialize extraction client
	textProcessor := utils.NewTextProcessor(logger)
	llmFactory := factory.NewLLMFactory(cfg, logger, textProcessor)
	extractor, err := llmFactory.CreateExtractor()
	if err != nil {
		logger.Fatal("Failed to create extraction client", zap.Error(err))
	}

	// Read email from file or stdin
	var emailReader io.Reader
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", *inputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", *inputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	// Parse email
	parsed, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	bodyBytes, err := io.ReadAll(parsed.Body)
	if err != nil {
		logger.Fatal("Failed to read email body", zap.Error(err))
	}

	msg := &core.Message{
		ID:      messageID(parsed),
		Sender:  parsed.Header.Get("From"),
		Subject: parsed.Header.Get("Subject"),
		RawDate: parsed.Header.Get("Date"),
		Body:    string(bodyBytes),
	}
	if t, err := mail.ParseDate(msg.RawDate); err == nil {
		msg.ReceivedAt = t
	} else {
		msg.ReceivedAt = time.Now()
	}

	// Print email summary
	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", msg.Sender)
	fmt.Printf("Subject: %s\n", msg.Subject)
	fmt.Printf("Date: %s\n", msg.RawDate)
	fmt.Printf("Body length: %d bytes\n", len(msg.Body))
	fmt.Printf("\n")

	// Extract applications
	fmt.Printf("=== Extraction ===\n")
	fmt.Printf("Provider: %s\n", cfg.GetString("llm.provider"))

	startTime := time.Now()
	records, err := extractor.ExtractApplications(context.Background(), msg)
	if err != nil {
		logger.Fatal("Failed to extract applications", zap.Error(err))
	}
	duration := time.Since(startTime)

	// Print results
	fmt.Printf("\n=== Results ===\n")
	if len(records) == 0 {
		fmt.Printf("Not a job application email\n")
	}
	for i, rec := range records {
		fmt.Printf("Application %d:\n", i+1)
		fmt.Printf("  Company: %s\n", rec.Company)
		fmt.Printf("  Title: %s\n", rec.Title)
		fmt.Printf("  Status: %s\n", rec.Status)
		if rec.AppliedAt != "" {
			fmt.Printf("  Applied: %s\n", rec.AppliedAt)
		}
		if rec.Reason != "" {
			fmt.Printf("  Reason: %s\n", rec.Reason)
		}
	}
	fmt.Printf("Processing time: %v\n", duration)

	// Persist if requested; re-running on the same message replaces its rows
	if *save && len(records) > 0 {
		storeFactory := factory.NewStoreFactory(cfg, logger)
		st, err := storeFactory.CreateStore()
		if err != nil {
			logger.Fatal("Failed to create store", zap.Error(err))
		}
		defer st.Close()

		if err := st.SaveMessage(context.Background(), msg, records); err != nil {
			logger.Fatal("Failed to save applications", zap.Error(err))
		}
		fmt.Printf("Saved %d application(s) for message %s\n", len(records), msg.ID)
	}

	// Close any resources that need closing
	if closer, ok := extractor.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close extraction client", zap.Error(err))
		}
	}
}

// messageID derives a stable identifier from the Message-Id header,
// falling back to a timestamp when the header is absent.
func messageID(parsed *mail.Message) string {
	id := strings.Trim(parsed.Header.Get("Message-Id"), "<> ")
	if id == "" {
		id = fmt.Sprintf("local-%d", time.Now().UnixNano())
	}
	return id
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	// Set LLM provider
	v.Set("llm.provider", *provider)

	// Set provider-specific configuration
	switch *provider {
	case "bedrock":
		v.Set("bedrock.region", *bedrockRegion)
		v.Set("bedrock.model_id", *bedrockModelID)
		v.Set("bedrock.max_tokens", *maxTokens)
		v.Set("bedrock.temperature", *temperature)
		v.Set("bedrock.top_p", *topP)
		v.Set("bedrock.max_body_size", *maxBodySize)
	case "gemini":
		v.Set("gemini.api_key", *geminiAPIKey)
		v.Set("gemini.model_name", *geminiModelName)
		v.Set("gemini.max_tokens", *maxTokens)
		v.Set("gemini.temperature", *temperature)
		v.Set("gemini.top_p", *topP)
		v.Set("gemini.max_body_size", *maxBodySize)
	case "openai":
		v.Set("openai.api_key", *openaiAPIKey)
		v.Set("openai.model_name", *openaiModelName)
		v.Set("openai.max_tokens", *maxTokens)
		v.Set("openai.temperature", *temperature)
		v.Set("openai.top_p", *topP)
		v.Set("openai.max_body_size", *maxBodySize)
	}

	// Set store configuration
	v.Set("store.type", *storeType)
	v.Set("store.sqlite_path", *sqlitePath)

	return config.NewFromViper(v)
}
