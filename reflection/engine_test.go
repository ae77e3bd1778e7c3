package reflection

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mindwell-ai/memcore/memory"
	"github.com/mindwell-ai/memcore/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEngineFixture(t *testing.T, now *time.Time) (*memory.InMemoryStore, *Engine) {
	t.Helper()
	clock := func() time.Time { return *now }
	store := memory.NewInMemoryStore(memory.InMemoryStoreConfig{Now: clock}, zap.NewNop())
	require.NoError(t, store.InitializeBuckets(context.Background()))
	engine := NewEngine(store, store, store, EngineConfig{Now: clock}, zap.NewNop())
	return store, engine
}

// brokenStore fails every bucket read to simulate an unreachable
// backend.
type brokenStore struct {
	memory.Store
}

func (b *brokenStore) GetChunksFromBucket(ctx context.Context, bucket string, limit int, minScore float64) ([]types.Chunk, error) {
	return nil, errors.New("store unavailable")
}

func TestJaccardSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"identical", "the cat sat", "the cat sat", 1},
		{"one word apart", "the cat sat on the mat", "the cat sat on a mat", 5.0 / 6.0},
		{"disjoint", "red green blue", "alpha beta gamma", 0},
		{"case insensitive", "The Cat", "the cat", 1},
		{"empty side", "", "words here", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.expected, jaccardSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestGenerate_DiscoversSemanticConnections(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store, engine := newEngineFixture(t, &now)
	ctx := context.Background()

	a, err := store.AddChunk(ctx, memory.AddChunkInput{
		Bucket: "episodic_stm", Text: "the cat sat on the mat", Source: "chat",
	})
	require.NoError(t, err)
	b, err := store.AddChunk(ctx, memory.AddChunkInput{
		Bucket: "episodic_stm", Text: "the cat sat on a mat", Source: "chat",
	})
	require.NoError(t, err)
	_, err = store.AddChunk(ctx, memory.AddChunkInput{
		Bucket: "episodic_stm", Text: "quarterly revenue projections spreadsheet", Source: "chat",
	})
	require.NoError(t, err)

	report := engine.Generate(ctx, Request{Depth: DepthShallow, Conductor: "conductor-1"})

	require.Len(t, report.NewConnections, 1)
	conn := report.NewConnections[0]
	assert.Equal(t, types.LinkSemantic, conn.Type)
	assert.InDelta(t, 5.0/6.0, conn.Strength, 1e-9)

	exists, err := store.HasLink(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, exists, "the discovered connection is persisted as a link")
	assert.Equal(t, 3, report.ChunksAnalyzed)
}

func TestGenerate_DoesNotDuplicateLinks(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store, engine := newEngineFixture(t, &now)
	ctx := context.Background()

	_, err := store.AddChunk(ctx, memory.AddChunkInput{
		Bucket: "semantic_stm", Text: "gophers tunnel under gardens", Source: "chat",
	})
	require.NoError(t, err)
	_, err = store.AddChunk(ctx, memory.AddChunkInput{
		Bucket: "semantic_stm", Text: "gophers tunnel under lawns", Source: "chat",
	})
	require.NoError(t, err)

	first := engine.Generate(ctx, Request{Depth: DepthShallow, Conductor: "c"})
	require.Len(t, first.NewConnections, 1)

	second := engine.Generate(ctx, Request{Depth: DepthShallow, Conductor: "c"})
	assert.Empty(t, second.NewConnections, "an existing link suppresses rediscovery")

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalLinks)
}

func TestGenerate_DegradesOnStoreFailure(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store, _ := newEngineFixture(t, &now)
	broken := &brokenStore{Store: store}
	engine := NewEngine(broken, store, store, EngineConfig{
		Now: func() time.Time { return now },
	}, zap.NewNop())

	report := engine.Generate(context.Background(), Request{Depth: DepthDeep, Conductor: "c"})

	require.NotNil(t, report)
	assert.Zero(t, report.ConfidenceScore)
	assert.Empty(t, report.NewConnections)
	assert.NotEmpty(t, report.Insights)
	assert.NotEmpty(t, report.Recommendations)
	assert.Zero(t, report.ChunksAnalyzed)
}

func TestGenerate_EmptyScope(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, engine := newEngineFixture(t, &now)

	report := engine.Generate(context.Background(), Request{Conductor: "c"})

	assert.Equal(t, []string{"no memories in scope for this pass"}, report.Insights)
	assert.Empty(t, report.NewConnections)
	assert.Zero(t, report.ChunksAnalyzed)
}

func TestGenerate_DepthGating(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store, engine := newEngineFixture(t, &now)
	ctx := context.Background()

	for _, text := range []string{
		"learned about goroutine scheduling today",
		"notes from the standup meeting",
		"planning the database migration",
	} {
		_, err := store.AddChunk(ctx, memory.AddChunkInput{
			Bucket: "semantic_ltm", Text: text, Source: "chat",
		})
		require.NoError(t, err)
	}

	shallow := engine.Generate(ctx, Request{Depth: DepthShallow, Conductor: "c"})
	assert.LessOrEqual(t, len(shallow.Insights), 5)
	for _, insight := range shallow.Insights {
		assert.NotContains(t, insight, "learning activity", "metacognitive stage is deep-only")
	}

	deep := engine.Generate(ctx, Request{Depth: DepthDeep, Conductor: "c"})
	assert.LessOrEqual(t, len(deep.Insights), 15)

	found := false
	for _, insight := range deep.Insights {
		if strings.Contains(insight, "learning activity") {
			found = true
		}
	}
	assert.True(t, found, "deep pass includes metacognitive insights")
}

func TestGenerate_PersistsReflections(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store, engine := newEngineFixture(t, &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.AddChunk(ctx, memory.AddChunkInput{
			Bucket: "diary_rl", Text: "daily journal entry", Source: "journal",
		})
		require.NoError(t, err)
	}

	engine.Generate(ctx, Request{Depth: DepthShallow, Conductor: "conductor-1"})

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalReflections, "one reflection record per analyzed chunk")
}

func TestGenerate_Recommendations(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store, engine := newEngineFixture(t, &now)
	ctx := context.Background()

	// 12 fading chunks from a single source triggers both the fading and
	// the source-diversity recommendations.
	for i := 0; i < 12; i++ {
		chunk, err := store.AddChunk(ctx, memory.AddChunkInput{
			Bucket: "odds_ends", Text: "scrap note", Source: "clipboard",
		})
		require.NoError(t, err)
		require.NoError(t, store.UpdateScore(ctx, chunk.ID, 0.1))
	}

	report := engine.Generate(ctx, Request{Depth: DepthShallow, Conductor: "c"})

	require.NotEmpty(t, report.Recommendations)
	assert.LessOrEqual(t, len(report.Recommendations), 5)

	joined := ""
	for _, r := range report.Recommendations {
		joined += r + "\n"
	}
	assert.Contains(t, joined, "fading")
	assert.Contains(t, joined, "few sources")
}

func TestConfidence(t *testing.T) {
	t.Parallel()

	assert.Zero(t, confidence(nil, 0))

	// Full marks on every component.
	full := make([]types.Chunk, 50)
	for i := range full {
		full[i].Score = 2.0
	}
	assert.InDelta(t, 1.0, confidence(full, 10), 1e-9)

	// Partial sample: 25 chunks at mean score 1.0, 5 insights.
	half := make([]types.Chunk, 25)
	for i := range half {
		half[i].Score = 1.0
	}
	expected := 0.3*0.5 + 0.3*0.5 + 0.4*0.5
	assert.InDelta(t, expected, confidence(half, 5), 1e-9)
}
