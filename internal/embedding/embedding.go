package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	bedrockembed "github.com/tmc/langchaingo/embeddings/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"pdf-rag/internal/config"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
)

const defaultBatchSize = 16

// NewEmbedder creates the langchaingo embedder for the configured provider
func NewEmbedder(ctx context.Context, cfg *config.Config) (embeddings.Embedder, error) {
	llmConfig := &cfg.EmbedLLM
	batchSize := llmConfig.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Int("batch_size", batchSize).Msg("Creating embedder")
	httpClient := &http.Client{Timeout: llmConfig.Timeout}

	switch llmConfig.Provider {
	case config.ProviderBedrock:
		client, err := llmservice.NewBedrockClient(ctx, cfg.AWS, llmConfig.Timeout)
		if err != nil {
			return nil, err
		}
		return bedrockembed.NewBedrock(
			bedrockembed.WithClient(client),
			bedrockembed.WithModel(llmConfig.Model),
			bedrockembed.WithBatchSize(batchSize),
		)
	case config.ProviderOpenAI:
		llm, err := openai.New(llmservice.OpenAIOptions(llmConfig, httpClient)...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to initialize openai client: %v", models.ErrEmbedding, err)
		}
		return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize))
	case config.ProviderOllama:
		llm, err := ollama.New(llmservice.OllamaOptions(llmConfig, httpClient)...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to initialize ollama client: %v", models.ErrEmbedding, err)
		}
		return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize))
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", models.ErrConfig, llmConfig.Provider)
	}
}

// Client validates what the remote embedder returns, so callers never see empty or zero vectors
type Client struct {
	embedder  embeddings.Embedder
	batchSize int
}

func NewClient(embedder embeddings.Embedder, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Client{embedder: embedder, batchSize: batchSize}
}

// EmbedDocuments embeds texts in batches and returns one vector per text, in order.
// All vectors share one dimension.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	start := time.Now()
	for lo := 0; lo < len(texts); lo += c.batchSize {
		hi := min(lo+c.batchSize, len(texts))
		batch, err := c.embedder.EmbedDocuments(ctx, texts[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %v", models.ErrEmbedding, lo, hi, err)
		}
		if len(batch) != hi-lo {
			return nil, fmt.Errorf("%w: requested %d embeddings, got %d", models.ErrEmbedding, hi-lo, len(batch))
		}
		vectors = append(vectors, batch...)
		log.Debug().Int("done", hi).Int("total", len(texts)).Msg("Embedded batch")
	}

	dim := 0
	for i, v := range vectors {
		if err := checkVector(v); err != nil {
			return nil, fmt.Errorf("%w: text %d: %v", models.ErrEmbedding, i, err)
		}
		if i == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return nil, fmt.Errorf("%w: text %d has dimension %d, expected %d", models.ErrEmbedding, i, len(v), dim)
		}
	}
	log.Info().Int("texts", len(texts)).Int("dimension", dim).Dur("took", time.Since(start)).Msg("Embedded documents")
	return vectors, nil
}

// EmbedQuery embeds a single question
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	if err := checkVector(v); err != nil {
		return nil, fmt.Errorf("%w: query: %v", models.ErrEmbedding, err)
	}
	return v, nil
}

func checkVector(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("empty vector")
	}
	for _, x := range v {
		if x != 0 {
			return nil
		}
	}
	return fmt.Errorf("all-zero vector")
}
