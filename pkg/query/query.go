// Package query is the read path over a built index: semantic search with
// one-hop expansion along the fragment relations, and grounded answer
// composition with node-id citations.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/trellis-ai/trellis/backend/internal/util"
	"github.com/trellis-ai/trellis/backend/pkg/ai"
	"github.com/trellis-ai/trellis/backend/pkg/common"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	"github.com/trellis-ai/trellis/backend/pkg/store"
)

const (
	defaultLimit = 10
	// Cap on neighborhood size per hit. A heavily imported fragment would
	// otherwise flood the answer context on its own.
	maxRelatedPerHit = 4
)

// SearchHit is one search result: the matched fragment plus its stored
// neighborhood, resolved one hop in both edge directions.
type SearchHit struct {
	Document common.VectorDocument   `json:"document"`
	Related  []common.VectorDocument `json:"related,omitempty"`
}

// AnswerResult is a composed answer with the fragments it cites, in
// citation order.
type AnswerResult struct {
	Answer    string                  `json:"answer"`
	Citations []common.VectorDocument `json:"citations,omitempty"`
}

type queryOptions struct {
	SystemPrompts []string
	Model         string
	Thinking      string
	Limit         int
	Tracer        Tracer
}

// Option is a functional option for configuring query behavior.
type Option func(*queryOptions)

// WithSystemPrompts returns an Option that appends additional system
// prompts after the context prompt.
func WithSystemPrompts(prompts ...string) Option {
	return func(o *queryOptions) {
		o.SystemPrompts = append(o.SystemPrompts, prompts...)
	}
}

// WithModel returns an Option that overrides the model used for answer
// generation.
func WithModel(model string) Option {
	return func(o *queryOptions) {
		o.Model = model
	}
}

// WithThinking returns an Option that enables extended thinking mode for
// answer generation.
func WithThinking(thinking string) Option {
	return func(o *queryOptions) {
		o.Thinking = thinking
	}
}

// WithLimit returns an Option that sets how many fragments a search
// retrieves before expansion.
func WithLimit(limit int) Option {
	return func(o *queryOptions) {
		o.Limit = limit
	}
}

// WithTracer returns an Option that records which fragments a query
// considered and used.
func WithTracer(tracer Tracer) Option {
	return func(o *queryOptions) {
		o.Tracer = tracer
	}
}

// Client answers questions over one workspace's index. It combines the AI
// client for embeddings and generation with the vector store the indexer
// writes into; the graph neighborhood is resolved from storage, so the
// read path works without the worker's in-memory state.
type Client struct {
	aiClient ai.IndexAIClient
	store    store.VectorIndex
	options  queryOptions
}

// NewClient creates a query client over an AI client and a workspace's
// vector index.
//
// Example:
//
//	client, err := query.NewClient(aiClient, index, query.WithLimit(5))
func NewClient(aiClient ai.IndexAIClient, index store.VectorIndex, opts ...Option) (*Client, error) {
	if aiClient == nil {
		return nil, errors.New("ai client is required")
	}
	if index == nil {
		return nil, errors.New("vector index is required")
	}

	c := &Client{aiClient: aiClient, store: index}
	for _, o := range opts {
		o(&c.options)
	}
	if c.options.Limit <= 0 {
		c.options.Limit = defaultLimit
	}
	return c, nil
}

// Search embeds the query, retrieves the k nearest fragments, and expands
// each hit with its stored neighborhood. k <= 0 falls back to the client's
// configured limit.
func (c *Client) Search(ctx context.Context, query string, k int) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	if k <= 0 {
		k = c.options.Limit
	}

	embedding, err := c.aiClient.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	docs, err := c.store.Search(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	hits := make([]SearchHit, 0, len(docs))
	for _, doc := range docs {
		related, err := c.relatedDocuments(ctx, doc)
		if err != nil {
			return nil, err
		}
		hits = append(hits, SearchHit{Document: doc, Related: related})
	}

	recordConsideredHits(c.options.Tracer, hits)
	return hits, nil
}

// Answer retrieves context for the conversation and composes a grounded
// answer with inline [[node id]] citations. When retrieval comes back
// empty, a fallback answer is generated instead of hallucinating over an
// empty context.
func (c *Client) Answer(ctx context.Context, msgs []ai.ChatMessage) (AnswerResult, error) {
	if len(msgs) == 0 {
		return AnswerResult{}, errors.New("no messages to answer")
	}

	hits, err := c.Search(ctx, c.retrievalQuery(ctx, msgs), c.options.Limit)
	if err != nil {
		return AnswerResult{}, err
	}

	if len(hits) == 0 {
		text, err := c.noDataAnswer(ctx, msgs[len(msgs)-1].Message)
		if err != nil {
			return AnswerResult{}, err
		}
		return AnswerResult{Answer: text}, nil
	}

	resp, err := c.aiClient.GenerateChat(ctx, msgs, c.generateOptions(buildQueryContext(hits))...)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	answer := util.NormalizeNodeRefs(resp)
	citations, err := c.resolveCitations(ctx, answer)
	if err != nil {
		return AnswerResult{}, err
	}

	return AnswerResult{Answer: answer, Citations: citations}, nil
}

// AnswerStream is Answer with the generation streamed. The caller receives
// a step event while context is being retrieved, then raw content chunks;
// citation tokens arrive as the model emits them and are normalized on the
// consumer side, where the full text accumulates.
func (c *Client) AnswerStream(ctx context.Context, msgs []ai.ChatMessage) (<-chan ai.StreamEvent, error) {
	if len(msgs) == 0 {
		return nil, errors.New("no messages to answer")
	}

	out := make(chan ai.StreamEvent, 10)

	go func() {
		defer close(out)

		out <- ai.StreamEvent{Type: "step", Step: "db_query"}

		hits, err := c.Search(ctx, c.retrievalQuery(ctx, msgs), c.options.Limit)
		if err != nil {
			logger.Error("[Query] Search failed during streamed answer", "error", err)
			return
		}

		if len(hits) == 0 {
			text, err := c.noDataAnswer(ctx, msgs[len(msgs)-1].Message)
			if err != nil {
				return
			}
			out <- ai.StreamEvent{Type: "content", Content: text}
			return
		}

		stream, err := c.aiClient.GenerateChatStream(ctx, msgs, c.generateOptions(buildQueryContext(hits))...)
		if err != nil {
			logger.Error("[Query] Failed to start answer stream", "error", err)
			return
		}
		for event := range stream {
			out <- event
		}
	}()

	return out, nil
}

// relatedDocuments resolves a hit's neighborhood: the fragments it
// references (its stored related-nodes snapshot) and the fragments that
// reference it (reverse lookup), deduplicated and capped.
func (c *Client) relatedDocuments(ctx context.Context, doc common.VectorDocument) ([]common.VectorDocument, error) {
	var related []common.VectorDocument
	seen := map[string]struct{}{doc.ID: {}}

	add := func(docs []common.VectorDocument) bool {
		for _, rel := range docs {
			if _, ok := seen[rel.ID]; ok {
				continue
			}
			seen[rel.ID] = struct{}{}
			related = append(related, rel)
			if len(related) >= maxRelatedPerHit {
				return true
			}
		}
		return false
	}

	if len(doc.Metadata.RelatedNodes) > 0 {
		imports, err := c.store.FindDocumentsByID(ctx, doc.Metadata.RelatedNodes)
		if err != nil {
			return nil, fmt.Errorf("failed to load related documents: %w", err)
		}
		if add(imports) {
			return related, nil
		}
	}

	exports, err := c.store.FindDocumentsByRelatedNode(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load referencing documents: %w", err)
	}
	add(exports)

	return related, nil
}

// resolveCitations loads the documents behind the answer's citation
// tokens, preserving citation order. Tokens pointing at ids the store no
// longer holds simply resolve to nothing.
func (c *Client) resolveCitations(ctx context.Context, answer string) ([]common.VectorDocument, error) {
	refs := util.ExtractNodeRefs(answer)
	if len(refs) == 0 {
		return nil, nil
	}
	RecordUsedNodeIDs(c.options.Tracer, refs...)

	docs, err := c.store.FindDocumentsByID(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve citations: %w", err)
	}

	byID := make(map[string]common.VectorDocument, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	ordered := make([]common.VectorDocument, 0, len(docs))
	for _, ref := range refs {
		if doc, ok := byID[ref]; ok {
			ordered = append(ordered, doc)
		}
	}
	return ordered, nil
}

func (c *Client) generateOptions(contextBlock string) []ai.GenerateOption {
	systemPrompts := []string{fmt.Sprintf(ai.AnswerPrompt, contextBlock)}
	systemPrompts = append(systemPrompts, c.options.SystemPrompts...)

	opts := []ai.GenerateOption{ai.WithSystemPrompts(systemPrompts...)}
	if c.options.Model != "" {
		opts = append(opts, ai.WithModel(c.options.Model))
	}
	if c.options.Thinking != "" {
		opts = append(opts, ai.WithThinking(c.options.Thinking))
	}
	return opts
}

// searchIntent is the structured condensation of a conversation turn into
// one retrieval phrase.
type searchIntent struct {
	SearchPhrase string `json:"search_phrase" jsonschema_description:"One self-contained phrase naming the code the user is asking about, phrased to match embedded fragment summaries"`
}

// retrievalQuery returns the text that gets embedded for a conversation. A
// lone message is searched verbatim. A follow-up often carries its subject
// only by reference, so it is first condensed into a self-contained phrase
// against the previous exchange; if condensation fails, the raw message is
// searched instead.
func (c *Client) retrievalQuery(ctx context.Context, msgs []ai.ChatMessage) string {
	last := msgs[len(msgs)-1].Message
	if len(msgs) < 2 {
		return last
	}

	prompt := fmt.Sprintf(ai.SearchIntentPrompt, msgs[len(msgs)-2].Message, last)
	var opts []ai.GenerateOption
	if c.options.Model != "" {
		opts = append(opts, ai.WithModel(c.options.Model))
	}

	var intent searchIntent
	err := c.aiClient.GenerateCompletionWithFormat(
		ctx,
		"search_intent",
		"Condense the conversation into a search phrase.",
		prompt,
		&intent,
		opts...,
	)
	if err != nil {
		logger.Warn("[Query] Failed to condense follow-up, searching with the raw message", "error", err)
		return last
	}
	if strings.TrimSpace(intent.SearchPhrase) == "" {
		return last
	}
	return intent.SearchPhrase
}

// noDataAnswer generates the fallback response for a query with no
// retrievable context.
func (c *Client) noDataAnswer(ctx context.Context, query string) (string, error) {
	prompt := fmt.Sprintf(ai.NoDataPrompt, query)
	res, err := c.aiClient.GenerateCompletion(ctx, prompt)
	if err != nil {
		logger.Error("[Query] Failed to generate no-data answer", "error", err)
		return "There was a server error, please try again later.", err
	}
	return res, nil
}

// buildQueryContext renders hits grouped by source file, every fragment
// prefixed with its node id so the model can cite it. Direct hits are
// added before neighborhood fragments; each fragment appears once.
func buildQueryContext(hits []SearchHit) string {
	seen := make(map[string]struct{})
	byFile := make(map[string][]common.VectorDocument)
	var fileOrder []string

	add := func(doc common.VectorDocument) {
		if _, ok := seen[doc.ID]; ok {
			return
		}
		seen[doc.ID] = struct{}{}
		path := doc.Metadata.FilePath
		if _, ok := byFile[path]; !ok {
			fileOrder = append(fileOrder, path)
		}
		byFile[path] = append(byFile[path], doc)
	}

	for _, hit := range hits {
		add(hit.Document)
	}
	for _, hit := range hits {
		for _, rel := range hit.Related {
			add(rel)
		}
	}

	var b strings.Builder
	for i, path := range fileOrder {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## ")
		b.WriteString(path)
		b.WriteString("\n")
		for _, doc := range byFile[path] {
			b.WriteString("\n")
			b.WriteString(doc.ID)
			b.WriteString("\n")
			b.WriteString(strings.TrimSpace(doc.Summary))
			b.WriteString("\n")
		}
	}
	return b.String()
}
