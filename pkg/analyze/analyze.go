package analyze

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/graftlab/graft/internal/util"
	"github.com/graftlab/graft/pkg/ai"
	"github.com/graftlab/graft/pkg/common"
	"github.com/graftlab/graft/pkg/loader"

	"golang.org/x/sync/errgroup"
)

// Analyzer turns documents into knowledge graph fragments. Chunking and
// per-chunk extraction fan out concurrently; the fragments themselves are
// handed to the consumer through a channel and merged there one at a time.
type Analyzer struct {
	client ai.GraphAIClient

	encoder       string
	maxTokens     int
	overlapTokens int
	parallelMax   int
	maxRetries    int
}

// NewAnalyzerParams defines the configuration for creating an Analyzer.
type NewAnalyzerParams struct {
	Client ai.GraphAIClient

	Encoder       string
	MaxTokens     int
	OverlapTokens int
	ParallelMax   int
	MaxRetries    int
}

// NewAnalyzer creates an Analyzer with the provided configuration.
// Unset numeric parameters fall back to defaults.
func NewAnalyzer(params NewAnalyzerParams) (*Analyzer, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("analyzer requires an ai client")
	}

	a := &Analyzer{
		client:        params.Client,
		encoder:       params.Encoder,
		maxTokens:     params.MaxTokens,
		overlapTokens: params.OverlapTokens,
		parallelMax:   params.ParallelMax,
		maxRetries:    params.MaxRetries,
	}
	if a.encoder == "" {
		a.encoder = DefaultEncoder
	}
	if a.maxTokens <= 0 {
		a.maxTokens = 1200
	}
	if a.overlapTokens < 0 {
		a.overlapTokens = 0
	}
	if a.parallelMax <= 0 {
		a.parallelMax = 4
	}
	if a.maxRetries <= 0 {
		a.maxRetries = 3
	}
	return a, nil
}

// AnalyzeDocument chunks one document, extracts a graph from every chunk
// concurrently and consolidates the chunk graphs into a single fragment.
func (a *Analyzer) AnalyzeDocument(
	ctx context.Context,
	file loader.GraphFile,
) (common.Fragment, error) {
	textBytes, err := file.GetText(ctx)
	if err != nil {
		return common.Fragment{}, fmt.Errorf("failed to load document %s: %w", file.FilePath, err)
	}
	text := strings.TrimSpace(string(textBytes))
	if text == "" {
		return common.Fragment{}, nil
	}

	maxTokens := a.maxTokens
	if file.MaxTokens > 0 {
		maxTokens = file.MaxTokens
	}

	chunks, err := transformIntoChunks(text, file.ID, a.encoder, maxTokens, a.overlapTokens)
	if err != nil {
		return common.Fragment{}, fmt.Errorf("failed to chunk document %s: %w", file.FilePath, err)
	}
	if len(chunks) == 0 {
		return common.Fragment{}, nil
	}

	documentName := filepath.Base(file.FilePath)

	graph := &common.KnowledgeGraph{}
	var mergeMu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelMax)
	for _, c := range chunks {
		g.Go(func() error {
			chunkGraph, err := util.RetryWithContext(gCtx, a.maxRetries, func(ctx context.Context) (*common.KnowledgeGraph, error) {
				return extractFromChunk(ctx, c, documentName, file.CustomEntities, a.client)
			})
			if err != nil {
				return fmt.Errorf("failed to extract from chunk %d of %s: %w", c.index, file.FilePath, err)
			}

			mergeMu.Lock()
			mergeChunkGraph(graph, chunkGraph)
			mergeMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return common.Fragment{}, err
	}

	summary, err := util.RetryWithContext(ctx, a.maxRetries, func(ctx context.Context) (string, error) {
		return a.client.GenerateCompletion(
			ctx,
			text,
			ai.WithSystemPrompts(fmt.Sprintf(ai.SummaryPrompt, documentName)),
		)
	})
	if err != nil {
		return common.Fragment{}, fmt.Errorf("failed to summarize document %s: %w", file.FilePath, err)
	}

	return common.Fragment{
		KnowledgeGraph: graph,
		Summary:        strings.TrimSpace(summary),
		Metadata: map[string]string{
			"document": file.ID,
			"path":     file.FilePath,
		},
	}, nil
}

// FragmentResult carries one document's analysis outcome.
type FragmentResult struct {
	DocumentID string
	Fragment   common.Fragment
	Err        error
}

// Produce analyzes all documents concurrently and streams the results.
// The returned channel is closed when every document has been handled;
// per-document failures are delivered as results, not as a stop.
func (a *Analyzer) Produce(
	ctx context.Context,
	files []loader.GraphFile,
) <-chan FragmentResult {
	out := make(chan FragmentResult)

	go func() {
		defer close(out)

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(a.parallelMax)
		for _, file := range files {
			g.Go(func() error {
				fragment, err := a.AnalyzeDocument(gCtx, file)
				select {
				case out <- FragmentResult{DocumentID: file.ID, Fragment: fragment, Err: err}:
				case <-gCtx.Done():
					return gCtx.Err()
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

// mergeChunkGraph folds one chunk's graph into the document graph.
// Records sharing an id are combined in place; cross-run conflicts are
// the fusion engine's job, not the analyzer's.
func mergeChunkGraph(dst *common.KnowledgeGraph, src *common.KnowledgeGraph) {
	if src == nil {
		return
	}

	entityAt := make(map[string]int, len(dst.Entities))
	for i, e := range dst.Entities {
		entityAt[e.ID] = i
	}
	for _, entity := range src.Entities {
		if i, ok := entityAt[entity.ID]; ok {
			existing := &dst.Entities[i]
			existing.Description = joinDescriptions(existing.Description, entity.Description)
			existing.Attributes = common.UnionMaps(existing.Attributes, entity.Attributes)
			existing.Metadata = common.UnionMaps(existing.Metadata, entity.Metadata)
			continue
		}
		entityAt[entity.ID] = len(dst.Entities)
		dst.Entities = append(dst.Entities, entity)
	}

	relAt := make(map[string]int, len(dst.Relationships))
	for i, r := range dst.Relationships {
		relAt[r.ID] = i
	}
	for _, rel := range src.Relationships {
		if i, ok := relAt[rel.ID]; ok {
			existing := &dst.Relationships[i]
			existing.Attributes = common.UnionMaps(existing.Attributes, rel.Attributes)
			existing.Metadata = common.UnionMaps(existing.Metadata, rel.Metadata)
			continue
		}
		relAt[rel.ID] = len(dst.Relationships)
		dst.Relationships = append(dst.Relationships, rel)
	}
}
