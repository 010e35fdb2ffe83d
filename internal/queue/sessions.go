package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trellis-ai/trellis/backend/internal/util"
	"github.com/trellis-ai/trellis/backend/pkg/ai"
	"github.com/trellis-ai/trellis/backend/pkg/codegraph"
	"github.com/trellis-ai/trellis/backend/pkg/extract"
	"github.com/trellis-ai/trellis/backend/pkg/index"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	"github.com/trellis-ai/trellis/backend/pkg/skeleton"
	"github.com/trellis-ai/trellis/backend/pkg/store"
	pgxstore "github.com/trellis-ai/trellis/backend/pkg/store/pgx"
	"github.com/trellis-ai/trellis/backend/pkg/symbols/treesitter"
)

// Session is the live indexing state of one workspace inside the worker: the
// code graph, the change queue with its drain loop, and the bridge that
// feeds file events into it.
type Session struct {
	WorkspaceID string
	Path        string
	Store       *pgxstore.VectorDBIndex
	Indexer     *index.Indexer
	Queue       *index.ChangeQueue
	Bridge      *index.FileEventBridge
}

type SessionsParams struct {
	AIClient ai.IndexAIClient
	Pool     *pgxpool.Pool
	// WorkspaceRoot is the directory holding one checkout per workspace id.
	WorkspaceRoot   string
	IncludePatterns []string
	DrainInterval   time.Duration
}

// Sessions owns the per-workspace sessions of a worker process. A session
// is created on first touch: the graph sidecar is loaded from the store,
// the drain loop started, and both stay alive until Dispose. The lifecycle
// context passed to NewSessions bounds every drain loop.
type Sessions struct {
	mu   sync.Mutex
	byID map[string]*Session

	runCtx   context.Context
	aiClient ai.IndexAIClient
	pool     *pgxpool.Pool
	root     string
	include  []string
	interval time.Duration
}

func NewSessions(ctx context.Context, params SessionsParams) (*Sessions, error) {
	if params.AIClient == nil {
		return nil, errors.New("ai client is required")
	}
	if params.Pool == nil {
		return nil, errors.New("database pool is required")
	}
	if params.WorkspaceRoot == "" {
		return nil, errors.New("workspace root is required")
	}

	return &Sessions{
		byID:     make(map[string]*Session),
		runCtx:   ctx,
		aiClient: params.AIClient,
		pool:     params.Pool,
		root:     params.WorkspaceRoot,
		include:  params.IncludePatterns,
		interval: params.DrainInterval,
	}, nil
}

// Get returns the session for the workspace, creating it on first touch.
func (s *Sessions) Get(ctx context.Context, workspaceID string) (*Session, error) {
	if workspaceID == "" {
		return nil, errors.New("workspace id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.byID[workspaceID]; ok {
		return sess, nil
	}

	sess, err := s.create(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	s.byID[workspaceID] = sess
	return sess, nil
}

// Dispose stops the workspace session and forgets it. The next Get rebuilds
// it from the persisted state.
func (s *Sessions) Dispose(workspaceID string) {
	s.mu.Lock()
	sess, ok := s.byID[workspaceID]
	if ok {
		delete(s.byID, workspaceID)
	}
	s.mu.Unlock()

	if ok {
		sess.Queue.Dispose()
		logger.Info("[Sessions] Session disposed", "workspace", workspaceID)
	}
}

// Close disposes every live session.
func (s *Sessions) Close() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.byID))
	for id, sess := range s.byID {
		sessions = append(sessions, sess)
		delete(s.byID, id)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Queue.Dispose()
	}
}

func (s *Sessions) create(ctx context.Context, workspaceID string) (*Session, error) {
	path := filepath.Join(s.root, workspaceID)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat workspace directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace path %s is not a directory", path)
	}

	vectorIndex, err := pgxstore.NewVectorDBIndex(s.pool, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	graph, rebuildFromDisk, err := loadGraph(ctx, vectorIndex, workspaceID)
	if err != nil {
		return nil, err
	}

	source, err := treesitter.NewSource(treesitter.SourceParams{Workspace: path})
	if err != nil {
		return nil, fmt.Errorf("failed to create symbol source: %w", err)
	}

	extractor, err := extract.NewExtractor(extract.ExtractorParams{
		Source:  source,
		Scanner: source,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	generator, err := skeleton.NewGenerator(skeleton.NewGeneratorParams{
		AIClient:        s.aiClient,
		MaxPromptTokens: int(util.GetEnvNumeric("INDEX_MAX_PROMPT_TOKENS", 0)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create skeleton generator: %w", err)
	}

	indexer, err := index.NewIndexer(index.NewIndexerParams{
		Workspace:          path,
		Graph:              graph,
		Source:             source,
		Extractor:          extractor,
		Generator:          generator,
		AIClient:           s.aiClient,
		Store:              vectorIndex,
		ParallelAIRequests: int(util.GetEnvNumeric("INDEX_PARALLEL_AI_REQUESTS", 0)),
		MaxRetries:         int(util.GetEnvNumeric("INDEX_MAX_RETRIES", 0)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}

	changeQueue, err := index.NewChangeQueue(index.NewChangeQueueParams{
		Indexer:    indexer,
		Interval:   s.interval,
		AfterDrain: s.logModelMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create change queue: %w", err)
	}

	bridge, err := index.NewFileEventBridge(index.NewFileEventBridgeParams{
		Workspace:       path,
		IncludePatterns: s.include,
		Queue:           changeQueue,
		Indexer:         indexer,
		Store:           vectorIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create file event bridge: %w", err)
	}

	sess := &Session{
		WorkspaceID: workspaceID,
		Path:        path,
		Store:       vectorIndex,
		Indexer:     indexer,
		Queue:       changeQueue,
		Bridge:      bridge,
	}

	if rebuildFromDisk {
		uris, err := workspaceSourceFiles(bridge, path)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace for rebuild: %w", err)
		}
		logger.Warn("[Sessions] Reindexing workspace from disk",
			"workspace", workspaceID, "files", len(uris))
		changeQueue.Enqueue(uris...)
	}

	changeQueue.Start(s.runCtx)
	logger.Info("[Sessions] Session created", "workspace", workspaceID, "path", path)

	return sess, nil
}

// loadGraph restores the code graph from the persisted sidecar. A workspace
// without state starts empty. A corrupt sidecar also starts empty, but the
// stored index is dropped and the caller reindexes the checkout from disk,
// since documents without a matching symbol table cannot be trusted.
func loadGraph(
	ctx context.Context,
	vectorIndex *pgxstore.VectorDBIndex,
	workspaceID string,
) (*codegraph.Graph, bool, error) {
	state, err := vectorIndex.GetGraphState(ctx)
	if errors.Is(err, store.ErrNoGraphState) {
		return codegraph.New(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load graph state: %w", err)
	}

	graph, err := codegraph.FromSerialized(state)
	if err == nil {
		return graph, false, nil
	}

	logger.Error("[Sessions] Graph state is corrupt, dropping index",
		"workspace", workspaceID, "err", err)
	if err := vectorIndex.DeleteIndex(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to drop corrupt index: %w", err)
	}
	if err := vectorIndex.CreateIndex(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to recreate index: %w", err)
	}
	return codegraph.New(), true, nil
}

func (s *Sessions) logModelMetrics() {
	metrics := s.aiClient.GetMetrics()
	if metrics.TotalTokens == 0 {
		return
	}

	duration := time.Duration(metrics.DurationMs) * time.Millisecond
	hours := int(duration.Hours())
	minutes := int(duration.Minutes()) % 60
	seconds := int(duration.Seconds()) % 60
	logger.Info(
		"[Worker] Model usage",
		"input_tokens", metrics.InputTokens,
		"output_tokens", metrics.OutputTokens,
		"total_tokens", metrics.TotalTokens,
		"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
	)
	s.aiClient.ResetMetrics()
}
