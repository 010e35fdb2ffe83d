package openai

import (
	"sync"

	"github.com/trellis-ai/trellis/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// IndexOpenAIClient is a client for interacting with AI models used by the
// code index. It manages separate OpenAI-compatible clients for embeddings
// and chat/completion tasks so both can point at different providers.
//
// An IndexOpenAIClient should be created using NewIndexOpenAIClient.
type IndexOpenAIClient struct {
	embeddingModel string
	skeletonModel  string
	composeModel   string

	embeddingURL string
	embeddingKey string
	chatURL      string
	chatKey      string

	embeddingLock *semaphore.Weighted
	timeoutMin    int64

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewIndexOpenAIClientParams defines the configuration parameters for
// creating a new IndexOpenAIClient.
//
// EmbeddingModel specifies the model used for embeddings.
// SkeletonModel specifies the model used for skeleton generation.
// ComposeModel specifies the model used for answer composition.
// EmbeddingURL and EmbeddingKey configure the embedding API endpoint.
// ChatURL and ChatKey configure the chat/completion API endpoint.
type NewIndexOpenAIClientParams struct {
	EmbeddingModel string
	SkeletonModel  string
	ComposeModel   string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	MaxConcurrentRequests int64
	TimeoutMinutes        int64
}

// NewIndexOpenAIClient creates and returns a new IndexOpenAIClient
// configured with the provided parameters. It initializes separate OpenAI
// clients for embeddings and chat/completion tasks.
//
// Example:
//
//	params := openai.NewIndexOpenAIClientParams{
//		EmbeddingModel: "text-embedding-3-small",
//		SkeletonModel:  "gpt-4o-mini",
//		ComposeModel:   "gpt-4o-mini",
//		EmbeddingURL:   "https://api.openai.com/v1",
//		EmbeddingKey:   os.Getenv("OPENAI_API_KEY"),
//		ChatURL:        "https://api.openai.com/v1",
//		ChatKey:        os.Getenv("OPENAI_API_KEY"),
//	}
//	client := openai.NewIndexOpenAIClient(params)
func NewIndexOpenAIClient(
	params NewIndexOpenAIClientParams,
) *IndexOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	timeoutMin := params.TimeoutMinutes
	if timeoutMin <= 0 {
		timeoutMin = 5
	}

	return &IndexOpenAIClient{
		embeddingModel: params.EmbeddingModel,
		skeletonModel:  params.SkeletonModel,
		composeModel:   params.ComposeModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		embeddingLock: semaphore.NewWeighted(maxConcurrent),
		timeoutMin:    timeoutMin,

		metricsLock: sync.Mutex{},
		metrics: ai.ModelMetrics{
			InputTokens:  0,
			OutputTokens: 0,
			TotalTokens:  0,
			DurationMs:   0,
		},

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
