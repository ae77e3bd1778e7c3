package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mindwell-ai/memcore/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultSearchLimit bounds similarity searches when the caller passes a
// non-positive limit.
const DefaultSearchLimit = 10

// ScoredChunk pairs a chunk with its similarity to the query vector.
type ScoredChunk struct {
	Chunk      types.Chunk `json:"chunk"`
	Similarity float64     `json:"similarity"`
}

// SearchEngine answers similarity queries against one or more buckets.
// Every search goes through the store's access-tracking read path, so
// searching is not a read-only operation on underlying state.
type SearchEngine struct {
	store  Store
	logger *zap.Logger
}

// NewSearchEngine creates a search engine over the given store.
func NewSearchEngine(store Store, logger *zap.Logger) *SearchEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchEngine{
		store:  store,
		logger: logger.With(zap.String("component", "search_engine")),
	}
}

// SearchBySimilarity ranks chunks from the given buckets (all canonical
// buckets when empty) by cosine similarity to query. With a nil query
// the ranking falls back to score descending. Each bucket contributes a
// page of ceil(limit/bucketCount) candidates so results are drawn from
// many buckets rather than exhausted from one.
func (e *SearchEngine) SearchBySimilarity(ctx context.Context, query []float32, buckets []string, limit int) ([]ScoredChunk, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if len(buckets) == 0 {
		buckets = CanonicalBucketNames()
	}

	perBucket := (limit + len(buckets) - 1) / len(buckets)

	var (
		mu         sync.Mutex
		candidates []types.Chunk
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, bucket := range buckets {
		g.Go(func() error {
			chunks, err := e.store.GetChunksFromBucket(gctx, bucket, perBucket, 0)
			if err != nil {
				return err
			}
			mu.Lock()
			candidates = append(candidates, chunks...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]ScoredChunk, 0, len(candidates))
	for _, chunk := range candidates {
		results = append(results, ScoredChunk{
			Chunk:      chunk,
			Similarity: CosineSimilarity(query, chunk.Embedding),
		})
	}

	if len(query) > 0 {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Similarity > results[j].Similarity
		})
	} else {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Chunk.Score > results[j].Chunk.Score
		})
	}

	if len(results) > limit {
		results = results[:limit]
	}

	e.logger.Debug("similarity search completed",
		zap.Int("buckets", len(buckets)),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)))

	return results, nil
}
