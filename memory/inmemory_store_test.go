package memory

import (
	"context"
	"testing"
	"time"

	"github.com/mindwell-ai/memcore/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func newTestStore(t *testing.T, now *time.Time) *InMemoryStore {
	t.Helper()
	store := NewInMemoryStore(InMemoryStoreConfig{
		Now: func() time.Time { return *now },
	}, zap.NewNop())
	require.NoError(t, store.InitializeBuckets(context.Background()))
	return store
}

func TestInMemoryStore_InitializeBucketsIdempotent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	require.NoError(t, store.InitializeBuckets(ctx))
	require.NoError(t, store.InitializeBuckets(ctx))

	buckets, err := store.Buckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 10)
	assert.Equal(t, "semantic_stm", buckets[0].Name)
	assert.Equal(t, types.BucketShortTerm, buckets[0].Type)
	assert.Equal(t, "odds_ends", buckets[9].Name)
	assert.Equal(t, types.BucketMisc, buckets[9].Type)
}

func TestInMemoryStore_AddChunk(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	chunk, err := store.AddChunk(ctx, AddChunkInput{
		Bucket:    "episodic_stm",
		Text:      "user asked about the weather",
		Embedding: []float32{0.1, 0.2},
		Source:    "chat",
		AgentID:   "conductor-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, chunk.ID)
	assert.Equal(t, 1.0, chunk.Score)
	assert.Equal(t, 0, chunk.AccessCount)
	assert.Equal(t, 0.990, chunk.DecayRate)
	assert.Equal(t, now, chunk.LastAccessed)
	assert.Equal(t, now, chunk.CreatedAt)
}

func TestInMemoryStore_AddChunk_DecayRateByBucketType(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	tests := []struct {
		bucket string
		rate   float64
	}{
		{"semantic_stm", 0.990},
		{"semantic_ltm", 0.999},
		{"diary_rl", 0.995},
		{"api_docs", 0.999},
		{"odds_ends", 0.995},
	}

	for _, tt := range tests {
		chunk, err := store.AddChunk(ctx, AddChunkInput{
			Bucket: tt.bucket,
			Text:   "text",
			Source: "test",
		})
		require.NoError(t, err)
		assert.Equal(t, tt.rate, chunk.DecayRate, "bucket %s", tt.bucket)
	}
}

func TestInMemoryStore_AddChunk_Errors(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	_, err := store.AddChunk(ctx, AddChunkInput{Bucket: "no_such_bucket", Text: "x", Source: "s"})
	assert.True(t, types.IsNotFound(err))

	_, err = store.AddChunk(ctx, AddChunkInput{Bucket: "episodic_stm", Source: "s"})
	assert.True(t, types.IsValidation(err))

	_, err = store.AddChunk(ctx, AddChunkInput{Bucket: "episodic_stm", Text: "x"})
	assert.True(t, types.IsValidation(err))
}

func TestInMemoryStore_BoostAdditivity(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	chunk, err := store.AddChunk(ctx, AddChunkInput{Bucket: "diary_rl", Text: "won the game", Source: "feedback"})
	require.NoError(t, err)

	_, err = store.Boost(ctx, chunk.ID, 0.3)
	require.NoError(t, err)
	boosted, err := store.Boost(ctx, chunk.ID, 0.2)
	require.NoError(t, err)

	assert.InDelta(t, 1.5, boosted.Score, 1e-9)
	assert.Equal(t, 2, boosted.AccessCount)
}

func TestInMemoryStore_BoostDefaultsAndNotFound(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	chunk, err := store.AddChunk(ctx, AddChunkInput{Bucket: "diary_rl", Text: "t", Source: "s"})
	require.NoError(t, err)

	boosted, err := store.Boost(ctx, chunk.ID, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, boosted.Score, 1e-9)

	_, err = store.Boost(ctx, "missing", 0.1)
	assert.True(t, types.IsNotFound(err))
}

func TestInMemoryStore_BoostProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		store := NewInMemoryStore(InMemoryStoreConfig{
			Now: func() time.Time { return now },
		}, zap.NewNop())
		ctx := context.Background()
		if err := store.InitializeBuckets(ctx); err != nil {
			rt.Fatal(err)
		}

		chunk, err := store.AddChunk(ctx, AddChunkInput{Bucket: "odds_ends", Text: "t", Source: "s"})
		if err != nil {
			rt.Fatal(err)
		}

		amounts := rapid.SliceOfN(rapid.Float64Range(0.01, 5), 1, 8).Draw(rt, "amounts")
		want := 1.0
		for _, a := range amounts {
			if _, err := store.Boost(ctx, chunk.ID, a); err != nil {
				rt.Fatal(err)
			}
			want += a
		}

		got, err := store.GetChunk(ctx, chunk.ID)
		if err != nil {
			rt.Fatal(err)
		}
		if diff := got.Score - want; diff > 1e-9 || diff < -1e-9 {
			rt.Fatalf("score %v, want %v", got.Score, want)
		}
		if got.AccessCount != len(amounts) {
			rt.Fatalf("access count %d, want %d", got.AccessCount, len(amounts))
		}
	})
}

func TestInMemoryStore_GetChunksFromBucket_Ordering(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	a, err := store.AddChunk(ctx, AddChunkInput{Bucket: "semantic_stm", Text: "a", Source: "s"})
	require.NoError(t, err)
	now = now.Add(time.Minute)
	b, err := store.AddChunk(ctx, AddChunkInput{Bucket: "semantic_stm", Text: "b", Source: "s"})
	require.NoError(t, err)
	now = now.Add(time.Minute)
	c, err := store.AddChunk(ctx, AddChunkInput{Bucket: "semantic_stm", Text: "c", Source: "s"})
	require.NoError(t, err)

	// Raise a's score above the rest; b and c tie on score, c is fresher.
	_, err = store.Boost(ctx, a.ID, 1.0)
	require.NoError(t, err)

	chunks, err := store.GetChunksFromBucket(ctx, "semantic_stm", 10, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, a.ID, chunks[0].ID)
	assert.Equal(t, c.ID, chunks[1].ID)
	assert.Equal(t, b.ID, chunks[2].ID)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.GreaterOrEqual(t, prev.Score, cur.Score)
		if prev.Score == cur.Score {
			assert.False(t, prev.LastAccessed.Before(cur.LastAccessed))
		}
	}
}

func TestInMemoryStore_GetChunksFromBucket_TouchesReturned(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	chunk, err := store.AddChunk(ctx, AddChunkInput{Bucket: "semantic_stm", Text: "a", Source: "s"})
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = store.GetChunksFromBucket(ctx, "semantic_stm", 10, 0)
	require.NoError(t, err)

	got, err := store.GetChunk(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)
	assert.Equal(t, now, got.LastAccessed)
}

func TestInMemoryStore_GetChunksFromBucket_MinScoreAndLimit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	low, err := store.AddChunk(ctx, AddChunkInput{Bucket: "semantic_stm", Text: "low", Source: "s"})
	require.NoError(t, err)
	require.NoError(t, store.UpdateScore(ctx, low.ID, 0.2))

	high, err := store.AddChunk(ctx, AddChunkInput{Bucket: "semantic_stm", Text: "high", Source: "s"})
	require.NoError(t, err)

	chunks, err := store.GetChunksFromBucket(ctx, "semantic_stm", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, high.ID, chunks[0].ID)

	chunks, err = store.GetChunksFromBucket(ctx, "semantic_stm", 1, 0)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestInMemoryStore_GetChunksFromBucket_UnknownBucket(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	before, err := store.Stats(ctx)
	require.NoError(t, err)

	_, err = store.GetChunksFromBucket(ctx, "not_a_bucket", 10, 0)
	assert.True(t, types.IsNotFound(err))

	after, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestInMemoryStore_Links(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	a, err := store.AddChunk(ctx, AddChunkInput{Bucket: "episodic_stm", Text: "a", Source: "s"})
	require.NoError(t, err)
	b, err := store.AddChunk(ctx, AddChunkInput{Bucket: "episodic_stm", Text: "b", Source: "s"})
	require.NoError(t, err)

	link, err := store.CreateLink(ctx, CreateLinkInput{
		SourceID: a.ID,
		TargetID: b.ID,
		Type:     types.LinkCausal,
		Strength: 0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, types.LinkCausal, link.Type)
	assert.Equal(t, 0.8, link.Strength)

	set, err := store.GetLinks(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, set.Outgoing, 1)
	assert.Empty(t, set.Incoming)

	set, err = store.GetLinks(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, set.Outgoing)
	require.Len(t, set.Incoming, 1)

	// Zero edges is empty lists, not an error.
	set, err = store.GetLinks(ctx, "unlinked")
	require.NoError(t, err)
	assert.Empty(t, set.Outgoing)
	assert.Empty(t, set.Incoming)

	exists, err := store.HasLink(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, exists, "HasLink checks both directions")

	exists, err = store.HasLink(ctx, a.ID, "other")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInMemoryStore_CreateLink_Validation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	_, err := store.CreateLink(ctx, CreateLinkInput{SourceID: "a", Type: types.LinkSemantic})
	assert.True(t, types.IsValidation(err))

	_, err = store.CreateLink(ctx, CreateLinkInput{SourceID: "a", TargetID: "b", Type: "friendship"})
	assert.True(t, types.IsValidation(err))

	link, err := store.CreateLink(ctx, CreateLinkInput{SourceID: "a", TargetID: "b", Type: types.LinkSemantic})
	require.NoError(t, err)
	assert.Equal(t, 1.0, link.Strength, "strength defaults to 1.0")
}

func TestInMemoryStore_Stats(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	a, err := store.AddChunk(ctx, AddChunkInput{Bucket: "semantic_stm", Text: "a", Source: "s"})
	require.NoError(t, err)
	_, err = store.AddChunk(ctx, AddChunkInput{Bucket: "semantic_stm", Text: "b", Source: "s"})
	require.NoError(t, err)
	_, err = store.CreateLink(ctx, CreateLinkInput{SourceID: a.ID, TargetID: "x", Type: types.LinkTemporal})
	require.NoError(t, err)
	require.NoError(t, store.SaveReflection(ctx, &types.Reflection{ChunkID: a.ID, Conductor: "c"}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, 1, stats.TotalLinks)
	assert.Equal(t, 1, stats.TotalReflections)
	assert.Equal(t, 2, stats.ByBucket["semantic_stm"])
	assert.Equal(t, 0, stats.ByBucket["episodic_ltm"])
}
