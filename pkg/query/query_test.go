package query

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/trellis-ai/trellis/backend/pkg/ai"
	"github.com/trellis-ai/trellis/backend/pkg/common"
	"github.com/trellis-ai/trellis/backend/pkg/store"
)

type fakeAIClient struct {
	embedErr    error
	embedInputs []string

	completions        []string
	completionResponse string

	formatPrompts []string
	searchPhrase  string
	formatErr     error

	chatMessages  []ai.ChatMessage
	chatResponse  string
	chatErr       error
	systemPrompts []string

	streamEvents []ai.StreamEvent
}

func (f *fakeAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	f.completions = append(f.completions, prompt)
	return f.completionResponse, nil
}

func (f *fakeAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	f.formatPrompts = append(f.formatPrompts, prompt)
	if f.formatErr != nil {
		return f.formatErr
	}
	if intent, ok := out.(*searchIntent); ok {
		intent.SearchPhrase = f.searchPhrase
	}
	return nil
}

func (f *fakeAIClient) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	f.chatMessages = messages
	f.captureOptions(opts)
	return f.chatResponse, f.chatErr
}

func (f *fakeAIClient) GenerateChatStream(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (<-chan ai.StreamEvent, error) {
	f.captureOptions(opts)
	ch := make(chan ai.StreamEvent, len(f.streamEvents))
	for _, event := range f.streamEvents {
		ch <- event
	}
	close(ch)
	return ch, nil
}

func (f *fakeAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	f.embedInputs = append(f.embedInputs, string(input))
	return []float32{0.5, 0.5}, nil
}

func (f *fakeAIClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error { return nil }
func (f *fakeAIClient) ResetMetrics()                                                 {}
func (f *fakeAIClient) GetMetrics() ai.ModelMetrics                                   { return ai.ModelMetrics{} }

func (f *fakeAIClient) captureOptions(opts []ai.GenerateOption) {
	var resolved ai.GenerateOptions
	for _, o := range opts {
		o(&resolved)
	}
	f.systemPrompts = resolved.SystemPrompts
}

type fakeQueryStore struct {
	store.VectorIndex
	searchResults []common.VectorDocument
	searchErr     error
	searchedK     int
	docsByID      map[string]common.VectorDocument
	referencing   map[string][]common.VectorDocument
}

func (s *fakeQueryStore) Search(ctx context.Context, embedding []float32, k int) ([]common.VectorDocument, error) {
	s.searchedK = k
	return s.searchResults, s.searchErr
}

func (s *fakeQueryStore) FindDocumentsByID(ctx context.Context, ids []string) ([]common.VectorDocument, error) {
	var out []common.VectorDocument
	for _, id := range ids {
		if doc, ok := s.docsByID[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *fakeQueryStore) FindDocumentsByRelatedNode(ctx context.Context, nodeID string) ([]common.VectorDocument, error) {
	return s.referencing[nodeID], nil
}

func testDoc(id, path, summary string, related ...string) common.VectorDocument {
	return common.VectorDocument{
		ID:      id,
		Summary: summary,
		Metadata: common.DocumentMetadata{
			FilePath:     path,
			RelatedNodes: related,
		},
	}
}

func TestSearchExpandsNeighborhood(t *testing.T) {
	caller := testDoc("a.ts:2:16", "a.ts", "Adds one to the helper result.", "b.ts:0:16")
	helper := testDoc("b.ts:0:16", "b.ts", "Returns one.")
	sibling := testDoc("c.ts:4:16", "c.ts", "Also calls the caller.")

	st := &fakeQueryStore{
		searchResults: []common.VectorDocument{caller},
		docsByID:      map[string]common.VectorDocument{helper.ID: helper},
		referencing:   map[string][]common.VectorDocument{caller.ID: {sibling}},
	}
	client, err := NewClient(&fakeAIClient{}, st)
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}

	hits, err := client.Search(context.Background(), "how is one added", 5)
	if err != nil {
		t.Fatalf("expected hits, got error: %v", err)
	}
	if st.searchedK != 5 {
		t.Fatalf("expected k=5 passed through, got %d", st.searchedK)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one hit, got %d", len(hits))
	}
	if hits[0].Document.ID != caller.ID {
		t.Fatalf("expected the matched document first, got %s", hits[0].Document.ID)
	}

	relatedIDs := make([]string, 0, len(hits[0].Related))
	for _, rel := range hits[0].Related {
		relatedIDs = append(relatedIDs, rel.ID)
	}
	if !reflect.DeepEqual(relatedIDs, []string{helper.ID, sibling.ID}) {
		t.Fatalf("expected both edge directions resolved, got %v", relatedIDs)
	}
}

func TestSearchCapsNeighborhood(t *testing.T) {
	hit := testDoc("a.ts:0:16", "a.ts", "Hub fragment.")
	var referencing []common.VectorDocument
	for _, id := range []string{"r1.ts:0:16", "r2.ts:0:16", "r3.ts:0:16", "r4.ts:0:16", "r5.ts:0:16", "r6.ts:0:16"} {
		referencing = append(referencing, testDoc(id, strings.TrimSuffix(id, ":0:16"), "Caller."))
	}

	st := &fakeQueryStore{
		searchResults: []common.VectorDocument{hit},
		referencing:   map[string][]common.VectorDocument{hit.ID: referencing},
	}
	client, err := NewClient(&fakeAIClient{}, st)
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}

	hits, err := client.Search(context.Background(), "hub", 1)
	if err != nil {
		t.Fatalf("expected hits, got error: %v", err)
	}
	if len(hits[0].Related) != maxRelatedPerHit {
		t.Fatalf("expected neighborhood capped at %d, got %d", maxRelatedPerHit, len(hits[0].Related))
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	client, err := NewClient(&fakeAIClient{}, &fakeQueryStore{})
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}
	if _, err := client.Search(context.Background(), "  ", 5); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestAnswerComposesWithCitations(t *testing.T) {
	caller := testDoc("a.ts:2:16", "a.ts", "Adds one to the helper result.", "b.ts:0:16")
	helper := testDoc("b.ts:0:16", "b.ts", "Returns one.")

	aiClient := &fakeAIClient{
		chatResponse: "The increment happens in caller [[a.ts:2:16]] using the helper **[[b.ts:0:16]]**.",
	}
	st := &fakeQueryStore{
		searchResults: []common.VectorDocument{caller},
		docsByID: map[string]common.VectorDocument{
			caller.ID: caller,
			helper.ID: helper,
		},
	}
	tracer := NewQueryTrace()
	client, err := NewClient(aiClient, st, WithTracer(tracer))
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}

	result, err := client.Answer(context.Background(), []ai.ChatMessage{{Role: "user", Message: "where is one added?"}})
	if err != nil {
		t.Fatalf("expected answer, got error: %v", err)
	}

	// bold citation wrapper is normalized away
	if strings.Contains(result.Answer, "**") {
		t.Fatalf("expected normalized citations, got %q", result.Answer)
	}

	if len(result.Citations) != 2 {
		t.Fatalf("expected two citations, got %d", len(result.Citations))
	}
	if result.Citations[0].ID != caller.ID || result.Citations[1].ID != helper.ID {
		t.Fatalf("expected citations in answer order, got %+v", result.Citations)
	}

	if len(aiClient.systemPrompts) == 0 {
		t.Fatal("expected a context system prompt")
	}
	contextPrompt := aiClient.systemPrompts[0]
	if !strings.Contains(contextPrompt, "## a.ts") || !strings.Contains(contextPrompt, "a.ts:2:16") {
		t.Fatal("expected context grouped by file with node ids")
	}
	if !strings.Contains(contextPrompt, "Adds one to the helper result.") {
		t.Fatal("expected fragment summaries in the context")
	}

	snapshot := tracer.Snapshot()
	if !reflect.DeepEqual(snapshot.UsedNodeIDs, []string{"a.ts:2:16", "b.ts:0:16"}) {
		t.Fatalf("expected cited ids traced, got %v", snapshot.UsedNodeIDs)
	}
	if !reflect.DeepEqual(snapshot.SearchedFiles, []string{"a.ts", "b.ts"}) {
		t.Fatalf("expected searched files traced, got %v", snapshot.SearchedFiles)
	}

	if len(aiClient.formatPrompts) != 0 {
		t.Fatal("expected no condensation for a lone message")
	}
}

func TestAnswerCondensesFollowUp(t *testing.T) {
	caller := testDoc("a.ts:2:16", "a.ts", "Retries the consume call.")
	aiClient := &fakeAIClient{
		chatResponse: "It stops after ten attempts [[a.ts:2:16]].",
		searchPhrase: "queue consumer retry behavior after retries are exhausted",
	}
	st := &fakeQueryStore{
		searchResults: []common.VectorDocument{caller},
		docsByID:      map[string]common.VectorDocument{caller.ID: caller},
	}
	client, err := NewClient(aiClient, st)
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}

	msgs := []ai.ChatMessage{
		{Role: "assistant", Message: "The retry logic lives in the queue consumer."},
		{Role: "user", Message: "What happens when it gives up?"},
	}
	if _, err := client.Answer(context.Background(), msgs); err != nil {
		t.Fatalf("expected answer, got error: %v", err)
	}

	if len(aiClient.formatPrompts) != 1 {
		t.Fatalf("expected one condensation call, got %d", len(aiClient.formatPrompts))
	}
	prompt := aiClient.formatPrompts[0]
	if !strings.Contains(prompt, "queue consumer") || !strings.Contains(prompt, "gives up") {
		t.Fatal("expected both conversation turns in the condensation prompt")
	}
	if !reflect.DeepEqual(aiClient.embedInputs, []string{"queue consumer retry behavior after retries are exhausted"}) {
		t.Fatalf("expected the condensed phrase embedded, got %v", aiClient.embedInputs)
	}
}

func TestAnswerSearchesRawMessageWhenCondensationFails(t *testing.T) {
	caller := testDoc("a.ts:2:16", "a.ts", "Retries the consume call.")
	aiClient := &fakeAIClient{
		chatResponse: "It stops after ten attempts.",
		formatErr:    errors.New("model offline"),
	}
	st := &fakeQueryStore{searchResults: []common.VectorDocument{caller}}
	client, err := NewClient(aiClient, st)
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}

	msgs := []ai.ChatMessage{
		{Role: "assistant", Message: "The retry logic lives in the queue consumer."},
		{Role: "user", Message: "What happens when it gives up?"},
	}
	if _, err := client.Answer(context.Background(), msgs); err != nil {
		t.Fatalf("expected answer despite failed condensation, got error: %v", err)
	}
	if !reflect.DeepEqual(aiClient.embedInputs, []string{"What happens when it gives up?"}) {
		t.Fatalf("expected the raw message embedded, got %v", aiClient.embedInputs)
	}
}

func TestAnswerWithoutContext(t *testing.T) {
	aiClient := &fakeAIClient{completionResponse: "The index holds nothing about that."}
	client, err := NewClient(aiClient, &fakeQueryStore{})
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}

	result, err := client.Answer(context.Background(), []ai.ChatMessage{{Role: "user", Message: "anything?"}})
	if err != nil {
		t.Fatalf("expected fallback answer, got error: %v", err)
	}
	if result.Answer != "The index holds nothing about that." {
		t.Fatalf("expected the no-data response, got %q", result.Answer)
	}
	if len(result.Citations) != 0 {
		t.Fatal("expected no citations for a no-data answer")
	}
	if len(aiClient.completions) != 1 || !strings.Contains(aiClient.completions[0], "anything?") {
		t.Fatal("expected the question in the no-data prompt")
	}
	if aiClient.chatMessages != nil {
		t.Fatal("expected no chat call without context")
	}
}

func TestAnswerStream(t *testing.T) {
	caller := testDoc("a.ts:2:16", "a.ts", "Adds one.")
	aiClient := &fakeAIClient{
		streamEvents: []ai.StreamEvent{
			{Type: "content", Content: "The increment "},
			{Type: "content", Content: "is in caller [[a.ts:2:16]]."},
		},
	}
	st := &fakeQueryStore{searchResults: []common.VectorDocument{caller}}
	client, err := NewClient(aiClient, st)
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}

	stream, err := client.AnswerStream(context.Background(), []ai.ChatMessage{{Role: "user", Message: "where?"}})
	if err != nil {
		t.Fatalf("expected stream, got error: %v", err)
	}

	var events []ai.StreamEvent
	for event := range stream {
		events = append(events, event)
	}

	if len(events) != 3 {
		t.Fatalf("expected step plus two content events, got %d", len(events))
	}
	if events[0].Type != "step" || events[0].Step != "db_query" {
		t.Fatalf("expected the retrieval step first, got %+v", events[0])
	}
	var text strings.Builder
	for _, event := range events[1:] {
		text.WriteString(event.Content)
	}
	if text.String() != "The increment is in caller [[a.ts:2:16]]." {
		t.Fatalf("expected raw content forwarded, got %q", text.String())
	}
}

func TestBuildQueryContextGroupsByFile(t *testing.T) {
	hits := []SearchHit{
		{
			Document: testDoc("a.ts:2:16", "a.ts", "Caller."),
			Related:  []common.VectorDocument{testDoc("b.ts:0:16", "b.ts", "Helper.")},
		},
		{
			Document: testDoc("a.ts:8:16", "a.ts", "Second caller."),
			Related:  []common.VectorDocument{testDoc("b.ts:0:16", "b.ts", "Helper.")},
		},
	}

	context := buildQueryContext(hits)

	if strings.Count(context, "## a.ts") != 1 || strings.Count(context, "## b.ts") != 1 {
		t.Fatalf("expected one header per file, got %q", context)
	}
	if strings.Count(context, "b.ts:0:16") != 1 {
		t.Fatalf("expected the shared neighbor rendered once, got %q", context)
	}
	if !strings.Contains(context, "a.ts:8:16\nSecond caller.") {
		t.Fatalf("expected fragments under their file header, got %q", context)
	}
	// direct hits come before neighborhood context
	if strings.Index(context, "## a.ts") > strings.Index(context, "## b.ts") {
		t.Fatalf("expected hit files first, got %q", context)
	}
}

func TestQueryTrace(t *testing.T) {
	trace := NewQueryTrace()
	RecordConsideredNodeIDs(trace, "b.ts:0:16", "a.ts:2:16", "a.ts:2:16", "")
	RecordUsedNodeIDs(trace, "a.ts:2:16")
	RecordSearchedFiles(trace, "b.ts", "a.ts")

	snapshot := trace.Snapshot()
	if !reflect.DeepEqual(snapshot.ConsideredNodeIDs, []string{"a.ts:2:16", "b.ts:0:16"}) {
		t.Fatalf("expected sorted deduped considered ids, got %v", snapshot.ConsideredNodeIDs)
	}
	if !reflect.DeepEqual(snapshot.UsedNodeIDs, []string{"a.ts:2:16"}) {
		t.Fatalf("expected used ids, got %v", snapshot.UsedNodeIDs)
	}
	if !reflect.DeepEqual(snapshot.SearchedFiles, []string{"a.ts", "b.ts"}) {
		t.Fatalf("expected sorted files, got %v", snapshot.SearchedFiles)
	}

	// nil tracers are safe everywhere
	RecordUsedNodeIDs(nil, "a.ts:2:16")
	var nilTrace *QueryTrace
	nilTrace.Record(TraceEvent{Kind: TraceEventUsedNodeIDs, NodeIDs: []string{"x"}})
	if got := nilTrace.Snapshot(); len(got.UsedNodeIDs) != 0 {
		t.Fatal("expected empty snapshot from nil trace")
	}

	multi := MultiTracer{nil, trace}
	multi.Record(TraceEvent{Kind: TraceEventUsedNodeIDs, NodeIDs: []string{"b.ts:0:16"}})
	if got := trace.Snapshot().UsedNodeIDs; !reflect.DeepEqual(got, []string{"a.ts:2:16", "b.ts:0:16"}) {
		t.Fatalf("expected multi tracer fan-out, got %v", got)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(nil, &fakeQueryStore{}); err == nil {
		t.Fatal("expected error for missing ai client")
	}
	if _, err := NewClient(&fakeAIClient{}, nil); err == nil {
		t.Fatal("expected error for missing store")
	}

	client, err := NewClient(&fakeAIClient{}, &fakeQueryStore{}, WithLimit(-3))
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}
	if client.options.Limit != defaultLimit {
		t.Fatalf("expected default limit, got %d", client.options.Limit)
	}
}

func TestAnswerPropagatesSearchFailure(t *testing.T) {
	st := &fakeQueryStore{searchErr: errors.New("index offline")}
	client, err := NewClient(&fakeAIClient{}, st)
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}
	if _, err := client.Answer(context.Background(), []ai.ChatMessage{{Role: "user", Message: "q"}}); err == nil {
		t.Fatal("expected search failure surfaced")
	}
}
