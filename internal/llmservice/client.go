package llmservice

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/prompts"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

// NewBedrockClient creates a Bedrock runtime client with static credentials from the configuration.
// timeout bounds every HTTP round trip, zero means no limit.
func NewBedrockClient(ctx context.Context, awsCfg config.AWSConfig, timeout time.Duration) (*bedrockruntime.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(awsCfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			awsCfg.AccessKeyID, awsCfg.SecretAccessKey, awsCfg.SessionToken,
		)),
		awsconfig.WithHTTPClient(&http.Client{Timeout: timeout}),
		awsconfig.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load aws config: %v", models.ErrConfig, err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

// NewLLM creates the text generation model for the configured provider
func NewLLM(ctx context.Context, llmConfig *config.LLMConfig, awsCfg config.AWSConfig) (llms.Model, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Msg("Creating LLM client")
	httpClient := &http.Client{Timeout: llmConfig.Timeout}

	switch llmConfig.Provider {
	case config.ProviderBedrock:
		client, err := NewBedrockClient(ctx, awsCfg, llmConfig.Timeout)
		if err != nil {
			return nil, err
		}
		return bedrock.New(
			bedrock.WithClient(client),
			bedrock.WithModel(llmConfig.Model),
		)
	case config.ProviderOpenAI:
		return openai.New(OpenAIOptions(llmConfig, httpClient)...)
	case config.ProviderOllama:
		return ollama.New(OllamaOptions(llmConfig, httpClient)...)
	default:
		return nil, fmt.Errorf("%w: unsupported llm provider %q", models.ErrConfig, llmConfig.Provider)
	}
}

// OpenAIOptions builds the client options shared by generation and embeddings
func OpenAIOptions(llmConfig *config.LLMConfig, httpClient *http.Client) []openai.Option {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithModel(llmConfig.Model),
		openai.WithEmbeddingModel(llmConfig.Model),
		openai.WithHTTPClient(httpClient),
	}
	if llmConfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
	}
	return opts
}

func OllamaOptions(llmConfig *config.LLMConfig, httpClient *http.Client) []ollama.Option {
	opts := []ollama.Option{
		ollama.WithModel(llmConfig.Model),
		ollama.WithHTTPClient(httpClient),
	}
	if llmConfig.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
	}
	return opts
}

// Generator sends a single prompt to the model and returns its completion
type Generator struct {
	llm         llms.Model
	maxTokens   int
	temperature float64
}

func NewGenerator(llm llms.Model, llmConfig *config.LLMConfig) *Generator {
	return &Generator{
		llm:         llm,
		maxTokens:   llmConfig.MaxTokens,
		temperature: llmConfig.Temperature,
	}
}

// Generate returns the completion text. An empty completion is not an error.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}

	start := time.Now()
	completion, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrGeneration, err)
	}
	log.Debug().Dur("took", time.Since(start)).Int("chars", len(completion)).Msg("Generated completion")
	return completion, nil
}

// f-string format: the template uses {context} and {question} slots
var ragPrompt = prompts.PromptTemplate{
	Template:       models.RAGPromptTemplate,
	InputVariables: []string{"context", "question"},
	TemplateFormat: prompts.TemplateFormatFString,
}

// FormatPrompt fills the retrieval prompt with the joined chunk texts and the user's question
func FormatPrompt(context, question string) (string, error) {
	return ragPrompt.Format(map[string]any{
		"context":  context,
		"question": question,
	})
}
