package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mindwell-ai/memcore/types"
	"go.uber.org/zap"
)

// InMemoryStoreConfig configures the in-memory store.
type InMemoryStoreConfig struct {
	// Now is used for testing. Defaults to time.Now.
	Now func() time.Time
}

// InMemoryStore is a mutex-guarded Store, LinkGraph, and ReflectionLog
// implementation. Suitable for local development, tests, and small
// single-process deployments.
type InMemoryStore struct {
	mu          sync.RWMutex
	buckets     map[string]types.Bucket
	chunks      map[string]*types.Chunk
	links       map[string]*types.Link
	outLinks    map[string][]string
	inLinks     map[string][]string
	reflections []types.Reflection

	now    func() time.Time
	logger *zap.Logger
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(config InMemoryStoreConfig, logger *zap.Logger) *InMemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &InMemoryStore{
		buckets:  make(map[string]types.Bucket),
		chunks:   make(map[string]*types.Chunk),
		links:    make(map[string]*types.Link),
		outLinks: make(map[string][]string),
		inLinks:  make(map[string][]string),
		now:      now,
		logger:   logger.With(zap.String("component", "memory_store_inmemory")),
	}
}

// InitializeBuckets registers every canonical bucket that does not yet
// exist. Safe to re-run.
func (s *InMemoryStore) InitializeBuckets(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	for _, cb := range canonicalBuckets {
		if _, ok := s.buckets[cb.Name]; ok {
			continue
		}
		s.buckets[cb.Name] = types.Bucket{
			Name:      cb.Name,
			Type:      cb.Type,
			CreatedAt: s.now(),
		}
		created++
	}

	if created > 0 {
		s.logger.Info("buckets initialized", zap.Int("created", created))
	}
	return nil
}

// Buckets returns registered buckets in canonical order.
func (s *InMemoryStore) Buckets(ctx context.Context) ([]types.Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Bucket, 0, len(s.buckets))
	for _, cb := range canonicalBuckets {
		if b, ok := s.buckets[cb.Name]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// AddChunk creates a chunk in the named bucket.
func (s *InMemoryStore) AddChunk(ctx context.Context, in AddChunkInput) (*types.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[in.Bucket]
	if !ok {
		return nil, types.NewNotFound("bucket", in.Bucket)
	}

	now := s.now()
	chunk := &types.Chunk{
		ID:           uuid.NewString(),
		Bucket:       in.Bucket,
		Text:         in.Text,
		Embedding:    append([]float32(nil), in.Embedding...),
		MetaVector:   append([]float32(nil), in.MetaVector...),
		Score:        1.0,
		Source:       in.Source,
		AgentID:      in.AgentID,
		Metadata:     in.Metadata,
		AccessCount:  0,
		DecayRate:    DecayRateFor(bucket.Type),
		CreatedAt:    now,
		LastAccessed: now,
	}
	s.chunks[chunk.ID] = chunk

	s.logger.Debug("chunk added",
		zap.String("id", chunk.ID),
		zap.String("bucket", chunk.Bucket),
		zap.String("source", chunk.Source))

	copied := *chunk
	return &copied, nil
}

// GetChunk returns a chunk by id without touching access state.
func (s *InMemoryStore) GetChunk(ctx context.Context, id string) (*types.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	chunk, ok := s.chunks[id]
	if !ok {
		return nil, types.NewNotFound("chunk", id)
	}
	copied := *chunk
	return &copied, nil
}

// Boost applies positive reinforcement to a chunk.
func (s *InMemoryStore) Boost(ctx context.Context, id string, amount float64) (*types.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if amount == 0 {
		amount = DefaultBoostAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chunk, ok := s.chunks[id]
	if !ok {
		return nil, types.NewNotFound("chunk", id)
	}

	chunk.Score += amount
	chunk.LastAccessed = s.now()
	chunk.AccessCount++

	s.logger.Debug("chunk boosted",
		zap.String("id", id),
		zap.Float64("amount", amount),
		zap.Float64("score", chunk.Score))

	copied := *chunk
	return &copied, nil
}

// GetChunksFromBucket returns chunks ordered by score then lastAccessed,
// both descending, and touches every returned chunk.
func (s *InMemoryStore) GetChunksFromBucket(ctx context.Context, bucket string, limit int, minScore float64) ([]types.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buckets[bucket]; !ok {
		return nil, types.NewNotFound("bucket", bucket)
	}

	matched := make([]*types.Chunk, 0)
	for _, chunk := range s.chunks {
		if chunk.Bucket != bucket || chunk.Score < minScore {
			continue
		}
		matched = append(matched, chunk)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Score != matched[j].Score {
			return matched[i].Score > matched[j].Score
		}
		return matched[i].LastAccessed.After(matched[j].LastAccessed)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	// Touch after ordering so the ranking reflects pre-read state.
	now := s.now()
	out := make([]types.Chunk, 0, len(matched))
	for _, chunk := range matched {
		copied := *chunk
		out = append(out, copied)
		chunk.LastAccessed = now
		chunk.AccessCount++
	}
	return out, nil
}

// ChunksForMaintenance returns every chunk in the bucket without side
// effects.
func (s *InMemoryStore) ChunksForMaintenance(ctx context.Context, bucket string) ([]types.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.buckets[bucket]; !ok {
		return nil, types.NewNotFound("bucket", bucket)
	}

	out := make([]types.Chunk, 0)
	for _, chunk := range s.chunks {
		if chunk.Bucket != bucket {
			continue
		}
		out = append(out, *chunk)
	}
	return out, nil
}

// UpdateScore persists a decayed score. lastAccessed is left untouched:
// decay does not count as access.
func (s *InMemoryStore) UpdateScore(ctx context.Context, id string, score float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chunk, ok := s.chunks[id]
	if !ok {
		return types.NewNotFound("chunk", id)
	}
	chunk.Score = score
	return nil
}

// DeleteChunk evicts a chunk. Absent ids are a no-op.
func (s *InMemoryStore) DeleteChunk(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.chunks, id)
	return nil
}

// CreateLink inserts an edge unconditionally.
func (s *InMemoryStore) CreateLink(ctx context.Context, in CreateLinkInput) (*types.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Strength == 0 {
		in.Strength = 1.0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	link := &types.Link{
		ID:        uuid.NewString(),
		SourceID:  in.SourceID,
		TargetID:  in.TargetID,
		Type:      in.Type,
		Strength:  in.Strength,
		Metadata:  in.Metadata,
		CreatedAt: s.now(),
	}
	s.links[link.ID] = link
	s.outLinks[link.SourceID] = append(s.outLinks[link.SourceID], link.ID)
	s.inLinks[link.TargetID] = append(s.inLinks[link.TargetID], link.ID)

	s.logger.Debug("link created",
		zap.String("id", link.ID),
		zap.String("source", link.SourceID),
		zap.String("target", link.TargetID),
		zap.String("type", string(link.Type)))

	copied := *link
	return &copied, nil
}

// GetLinks returns the edges touching a chunk.
func (s *InMemoryStore) GetLinks(ctx context.Context, chunkID string) (*types.LinkSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	set := &types.LinkSet{
		Outgoing: make([]types.Link, 0),
		Incoming: make([]types.Link, 0),
	}
	for _, id := range s.outLinks[chunkID] {
		if link, ok := s.links[id]; ok {
			set.Outgoing = append(set.Outgoing, *link)
		}
	}
	for _, id := range s.inLinks[chunkID] {
		if link, ok := s.links[id]; ok {
			set.Incoming = append(set.Incoming, *link)
		}
	}
	return set, nil
}

// HasLink reports whether an edge exists between a and b in either
// direction.
func (s *InMemoryStore) HasLink(ctx context.Context, a, b string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.outLinks[a] {
		if link, ok := s.links[id]; ok && link.TargetID == b {
			return true, nil
		}
	}
	for _, id := range s.outLinks[b] {
		if link, ok := s.links[id]; ok && link.TargetID == a {
			return true, nil
		}
	}
	return false, nil
}

// SaveReflection appends a reflection record.
func (s *InMemoryStore) SaveReflection(ctx context.Context, r *types.Reflection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r == nil {
		return types.NewValidation("reflection is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *r
	if copied.ID == "" {
		copied.ID = uuid.NewString()
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = s.now()
	}
	s.reflections = append(s.reflections, copied)
	return nil
}

// Stats returns read-only counters for feedback collectors.
func (s *InMemoryStore) Stats(ctx context.Context) (*types.MemoryStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &types.MemoryStats{
		TotalChunks:      len(s.chunks),
		TotalLinks:       len(s.links),
		TotalReflections: len(s.reflections),
		ByBucket:         make(map[string]int, len(s.buckets)),
	}
	for name := range s.buckets {
		stats.ByBucket[name] = 0
	}
	for _, chunk := range s.chunks {
		stats.ByBucket[chunk.Bucket]++
	}
	return stats, nil
}
