package query

import (
	"sort"
	"sync"
)

type TraceEventKind string

const (
	TraceEventConsideredNodeIDs TraceEventKind = "considered_node_ids"
	TraceEventUsedNodeIDs       TraceEventKind = "used_node_ids"
	TraceEventSearchedFiles     TraceEventKind = "searched_files"
)

// TraceEvent is an extensible event envelope for query tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	NodeIDs []string
	Files   []string
}

// Tracer is a sink for query tracing events.
//
// Implementers can forward events to logs, telemetry, or custom
// post-processing pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

// RecordConsideredNodeIDs records fragments that retrieval surfaced as
// candidate context.
func RecordConsideredNodeIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventConsideredNodeIDs, NodeIDs: ids})
}

// RecordUsedNodeIDs records fragments the composed answer actually cited.
func RecordUsedNodeIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventUsedNodeIDs, NodeIDs: ids})
}

// RecordSearchedFiles records the source files retrieval touched.
func RecordSearchedFiles(t Tracer, files ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventSearchedFiles, Files: files})
}

func recordConsideredHits(t Tracer, hits []SearchHit) {
	if t == nil || len(hits) == 0 {
		return
	}

	var ids []string
	var files []string
	for _, hit := range hits {
		ids = append(ids, hit.Document.ID)
		files = append(files, hit.Document.Metadata.FilePath)
		for _, rel := range hit.Related {
			ids = append(ids, rel.ID)
			files = append(files, rel.Metadata.FilePath)
		}
	}
	RecordConsideredNodeIDs(t, ids...)
	RecordSearchedFiles(t, files...)
}

// QueryTrace collects which fragments and files a query run considered and
// which it ended up citing.
//
// This is primarily used to expose query metadata like "files considered"
// alongside an answer.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu sync.Mutex

	consideredNodeIDs map[string]struct{}
	usedNodeIDs       map[string]struct{}
	searchedFiles     map[string]struct{}
}

type QueryTraceSnapshot struct {
	ConsideredNodeIDs []string `json:"considered_node_ids,omitempty"`
	UsedNodeIDs       []string `json:"used_node_ids,omitempty"`
	SearchedFiles     []string `json:"searched_files,omitempty"`
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{
		consideredNodeIDs: make(map[string]struct{}),
		usedNodeIDs:       make(map[string]struct{}),
		searchedFiles:     make(map[string]struct{}),
	}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case TraceEventConsideredNodeIDs:
		for _, id := range event.NodeIDs {
			if id == "" {
				continue
			}
			t.consideredNodeIDs[id] = struct{}{}
		}
	case TraceEventUsedNodeIDs:
		for _, id := range event.NodeIDs {
			if id == "" {
				continue
			}
			t.usedNodeIDs[id] = struct{}{}
		}
	case TraceEventSearchedFiles:
		for _, file := range event.Files {
			if file == "" {
				continue
			}
			t.searchedFiles[file] = struct{}{}
		}
	default:
		return
	}
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := QueryTraceSnapshot{
		ConsideredNodeIDs: make([]string, 0, len(t.consideredNodeIDs)),
		UsedNodeIDs:       make([]string, 0, len(t.usedNodeIDs)),
		SearchedFiles:     make([]string, 0, len(t.searchedFiles)),
	}

	for id := range t.consideredNodeIDs {
		s.ConsideredNodeIDs = append(s.ConsideredNodeIDs, id)
	}
	for id := range t.usedNodeIDs {
		s.UsedNodeIDs = append(s.UsedNodeIDs, id)
	}
	for file := range t.searchedFiles {
		s.SearchedFiles = append(s.SearchedFiles, file)
	}

	sort.Strings(s.ConsideredNodeIDs)
	sort.Strings(s.UsedNodeIDs)
	sort.Strings(s.SearchedFiles)

	return s
}
