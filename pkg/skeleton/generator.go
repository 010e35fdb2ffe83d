package skeleton

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/trellis-ai/trellis/backend/pkg/ai"
	"github.com/trellis-ai/trellis/backend/pkg/common"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
)

const (
	tokenEncoding          = "o200k_base"
	defaultMaxPromptTokens = 16000
)

// RelatedFragment carries the source text of one definition the fragment
// under summarization refers to, tagged with its workspace-relative file
// path for grouping in the prompt.
type RelatedFragment struct {
	FilePath string
	Text     string
}

// Generator produces skeleton summaries for extracted code fragments. It
// does not retry on failure; callers decide whether a failed node is
// abandoned or picked up again on the next change event.
type Generator struct {
	aiClient        ai.IndexAIClient
	tokenEncoder    *tiktoken.Tiktoken
	maxPromptTokens int
}

type NewGeneratorParams struct {
	AIClient ai.IndexAIClient
	// MaxPromptTokens caps the assembled prompt size. Related fragments
	// that would push past the cap are dropped; the code block itself is
	// never cut.
	MaxPromptTokens int
}

func NewGenerator(params NewGeneratorParams) (*Generator, error) {
	if params.AIClient == nil {
		return nil, errors.New("ai client is required")
	}

	enc, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding: %w", err)
	}

	maxTokens := params.MaxPromptTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxPromptTokens
	}

	return &Generator{
		aiClient:        params.AIClient,
		tokenEncoder:    enc,
		maxPromptTokens: maxTokens,
	}, nil
}

// Skeletonize generates the natural-language skeleton for one fragment.
// The code block is expected to already have summarized children merged in
// when the node is a container, so prompt size stays bounded by the
// fragment itself rather than the file.
func (g *Generator) Skeletonize(
	ctx context.Context,
	filePath string,
	node common.CodeGraphNode,
	codeBlock string,
	imports []string,
	related []RelatedFragment,
) (common.SkeletonNode, error) {
	if strings.TrimSpace(codeBlock) == "" {
		return common.SkeletonNode{}, fmt.Errorf("empty code block for node %s", node.ID)
	}

	prompt := g.buildPrompt(filePath, codeBlock, imports, related)

	text, err := g.aiClient.GenerateCompletion(ctx, prompt)
	if err != nil {
		return common.SkeletonNode{}, fmt.Errorf("failed to skeletonize node %s: %w", node.ID, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return common.SkeletonNode{}, fmt.Errorf("model returned empty skeleton for node %s", node.ID)
	}

	return common.SkeletonNode{CodeGraphNode: node, Skeleton: text}, nil
}

func (g *Generator) buildPrompt(filePath, codeBlock string, imports []string, related []RelatedFragment) string {
	importsBlock := strings.Join(imports, "\n")
	if importsBlock == "" {
		importsBlock = "(none)"
	}

	base := fmt.Sprintf(ai.SkeletonPrompt, filePath, importsBlock, "", codeBlock)
	budget := g.maxPromptTokens - g.countTokens(base)

	relatedBlock := g.relatedContext(related, budget)
	if relatedBlock == "" {
		relatedBlock = "(none)"
	}

	return fmt.Sprintf(ai.SkeletonPrompt, filePath, importsBlock, relatedBlock, codeBlock)
}

// relatedContext renders related fragments grouped by source file, in
// first-seen file order. Once the token budget is spent the remaining
// fragments are dropped whole; a partial fragment would read as code that
// does not exist.
func (g *Generator) relatedContext(related []RelatedFragment, budget int) string {
	if len(related) == 0 || budget <= 0 {
		return ""
	}

	grouped := make(map[string][]string)
	var order []string
	total := 0
	for _, frag := range related {
		text := strings.TrimSpace(frag.Text)
		if text == "" {
			continue
		}
		if _, ok := grouped[frag.FilePath]; !ok {
			order = append(order, frag.FilePath)
		}
		grouped[frag.FilePath] = append(grouped[frag.FilePath], text)
		total++
	}

	var sb strings.Builder
	used := 0
	written := 0
collect:
	for _, file := range order {
		headerWritten := false
		for _, text := range grouped[file] {
			entry := text + "\n\n"
			if !headerWritten {
				entry = "## " + file + "\n" + entry
			}
			cost := g.countTokens(entry)
			if used+cost > budget {
				break collect
			}
			sb.WriteString(entry)
			used += cost
			written++
			headerWritten = true
		}
	}

	if written < total {
		logger.Debug("[Skeleton] Dropped related fragments to fit prompt budget",
			"kept", written, "total", total, "budgetTokens", budget)
	}

	return strings.TrimSpace(sb.String())
}

func (g *Generator) countTokens(text string) int {
	return len(g.tokenEncoder.Encode(text, nil, nil))
}
