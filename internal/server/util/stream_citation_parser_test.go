package util

import (
	"reflect"
	"strings"
	"testing"
)

func TestStreamCitationParser_EmitsCitationAcrossChunks(t *testing.T) {
	content, citations := collectParsedStream(t, []string{"Hello [[src/a.ts", ":2:16]] world"})

	if content != "Hello  world" {
		t.Fatalf("unexpected content: %q", content)
	}

	expectedCitations := []string{"src/a.ts:2:16"}
	if !reflect.DeepEqual(citations, expectedCitations) {
		t.Fatalf("unexpected citations: got %v want %v", citations, expectedCitations)
	}
}

func TestStreamCitationParser_StripsLabelPrefix(t *testing.T) {
	content, citations := collectParsedStream(t, []string{"See [[file, src/a.ts:2:16]]."})

	if content != "See ." {
		t.Fatalf("unexpected content: %q", content)
	}

	expectedCitations := []string{"src/a.ts:2:16"}
	if !reflect.DeepEqual(citations, expectedCitations) {
		t.Fatalf("unexpected citations: got %v want %v", citations, expectedCitations)
	}
}

func TestStreamCitationParser_PassesThroughInvalidCitation(t *testing.T) {
	content, citations := collectParsedStream(t, []string{"Result [[not a ref]] token"})

	if content != "Result [[not a ref]] token" {
		t.Fatalf("unexpected content: %q", content)
	}

	if len(citations) != 0 {
		t.Fatalf("expected no citations, got %v", citations)
	}
}

func TestStreamCitationParser_FlushesIncompleteCitation(t *testing.T) {
	content, citations := collectParsedStream(t, []string{"prefix [[unfinished"})

	if content != "prefix [[unfinished" {
		t.Fatalf("unexpected content: %q", content)
	}

	if len(citations) != 0 {
		t.Fatalf("expected no citations, got %v", citations)
	}
}

func TestStreamCitationParser_HandlesSingleBracketCarry(t *testing.T) {
	content, citations := collectParsedStream(t, []string{"x [", "[b.ts:0:16]] y"})

	if content != "x  y" {
		t.Fatalf("unexpected content: %q", content)
	}

	expectedCitations := []string{"b.ts:0:16"}
	if !reflect.DeepEqual(citations, expectedCitations) {
		t.Fatalf("unexpected citations: got %v want %v", citations, expectedCitations)
	}
}

func collectParsedStream(t *testing.T, chunks []string) (string, []string) {
	t.Helper()

	parser := StreamCitationParser{}
	contentParts := make([]string, 0)
	citations := make([]string, 0)

	emitContent := func(content string) error {
		contentParts = append(contentParts, content)
		return nil
	}
	emitCitation := func(citationID string) error {
		citations = append(citations, citationID)
		return nil
	}

	for _, chunk := range chunks {
		if err := parser.Consume(chunk, emitContent, emitCitation); err != nil {
			t.Fatalf("consume failed: %v", err)
		}
	}

	if err := parser.Flush(emitContent); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	return strings.Join(contentParts, ""), citations
}
