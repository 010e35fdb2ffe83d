package index

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/trellis-ai/trellis/backend/pkg/ai"
)

// embeddingBatcher is the optional batch API some clients expose. The
// openai adapter embeds a whole file's skeletons in one request through it.
type embeddingBatcher interface {
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)
}

// GenerateEmbeddings embeds the inputs with the client's batch API when it
// has one, falling back to bounded per-input fan-out otherwise. The result
// is index-aligned with the inputs.
func GenerateEmbeddings(ctx context.Context, client ai.IndexAIClient, inputs [][]byte, parallel int) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if batcher, ok := client.(embeddingBatcher); ok {
		return batcher.GenerateEmbeddings(ctx, inputs)
	}
	if parallel <= 0 {
		parallel = 1
	}

	out := make([][]float32, len(inputs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(parallel)

	for i, input := range inputs {
		eg.Go(func() error {
			vector, err := client.GenerateEmbedding(ctx, input)
			if err != nil {
				return err
			}
			out[i] = vector
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
