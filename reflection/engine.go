// Package reflection implements the batch sense-making pass over a
// scoped memory sample: pattern, temporal, and topic mining, connection
// discovery, recommendations, and confidence scoring. Reflection is
// best-effort analytics: internal failures degrade to a zero-confidence
// result and never propagate to the caller.
package reflection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mindwell-ai/memcore/memory"
	"github.com/mindwell-ai/memcore/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Depth controls how many analysis stages run and how many insights are
// kept.
type Depth string

const (
	DepthShallow Depth = "shallow"
	DepthMedium  Depth = "medium"
	DepthDeep    Depth = "deep"
)

// insightCap returns the maximum insight count for the depth.
func (d Depth) insightCap() int {
	switch d {
	case DepthDeep:
		return 15
	case DepthMedium:
		return 10
	default:
		return 5
	}
}

// Pipeline bounds.
const (
	gatherPerBucket    = 50
	gatherCap          = 100
	discoveryWindow    = 9
	discoveryThreshold = 0.7
	maxNewConnections  = 10
	maxRecommendations = 5
	persistCap         = 20
)

// Request scopes one reflection pass.
type Request struct {
	// Buckets limits the pass to specific buckets; empty means all
	// canonical buckets.
	Buckets []string `json:"buckets,omitempty"`

	Depth Depth `json:"depth"`

	// FocusAreas are caller-supplied substrings given extra weight in
	// topic analysis.
	FocusAreas []string `json:"focus_areas,omitempty"`

	// Conductor is the orchestrating agent identity attributed to the
	// produced reflections.
	Conductor string `json:"conductor"`
}

// Connection is a candidate semantic link discovered between two chunks.
type Connection struct {
	SourceID string         `json:"source_id"`
	TargetID string         `json:"target_id"`
	Type     types.LinkType `json:"type"`
	Strength float64        `json:"strength"`
}

// Report is the outcome of one reflection pass.
type Report struct {
	Insights        []string     `json:"insights"`
	NewConnections  []Connection `json:"new_connections"`
	Recommendations []string     `json:"recommendations"`
	ConfidenceScore float64      `json:"confidence_score"`
	ChunksAnalyzed  int          `json:"chunks_analyzed"`
	GeneratedAt     time.Time    `json:"generated_at"`
}

// EngineConfig configures the reflection engine.
type EngineConfig struct {
	// Timeout bounds one full pass. Defaults to one minute.
	Timeout time.Duration

	// Now is used for testing. Defaults to time.Now.
	Now func() time.Time
}

// Engine runs the gather, analyze, discover, recommend, persist
// pipeline.
type Engine struct {
	store  memory.Store
	links  memory.LinkGraph
	log    memory.ReflectionLog
	config EngineConfig
	logger *zap.Logger
}

// NewEngine creates a reflection engine over the given store and link
// graph.
func NewEngine(store memory.Store, links memory.LinkGraph, log memory.ReflectionLog, config EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Engine{
		store:  store,
		links:  links,
		log:    log,
		config: config,
		logger: logger.With(zap.String("component", "reflection_engine")),
	}
}

// Generate runs one reflection pass. It never returns an error: any
// internal failure is logged and converted to a degraded report with
// zero confidence, so upstream chat flows are never blocked by
// best-effort analytics.
func (e *Engine) Generate(ctx context.Context, req Request) *Report {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	report, err := e.run(ctx, req)
	if err != nil {
		e.logger.Warn("reflection pass degraded", zap.Error(err))
		return &Report{
			Insights:        []string{"reflection analysis was unavailable for this pass"},
			NewConnections:  []Connection{},
			Recommendations: []string{"retry reflection once the memory store is reachable"},
			ConfidenceScore: 0,
			GeneratedAt:     e.config.Now(),
		}
	}
	return report
}

func (e *Engine) run(ctx context.Context, req Request) (*Report, error) {
	if req.Depth == "" {
		req.Depth = DepthShallow
	}

	chunks, err := e.gather(ctx, req.Buckets)
	if err != nil {
		return nil, err
	}

	insights := e.analyze(chunks, req.Depth, req.FocusAreas)
	if limit := req.Depth.insightCap(); len(insights) > limit {
		insights = insights[:limit]
	}

	connections, err := e.discoverConnections(ctx, chunks)
	if err != nil {
		return nil, err
	}

	recommendations := e.recommend(chunks)

	if err := e.persist(ctx, req.Conductor, chunks, insights); err != nil {
		return nil, err
	}

	report := &Report{
		Insights:        insights,
		NewConnections:  connections,
		Recommendations: recommendations,
		ConfidenceScore: confidence(chunks, len(insights)),
		ChunksAnalyzed:  len(chunks),
		GeneratedAt:     e.config.Now(),
	}

	e.logger.Info("reflection pass completed",
		zap.String("conductor", req.Conductor),
		zap.String("depth", string(req.Depth)),
		zap.Int("chunks", report.ChunksAnalyzed),
		zap.Int("insights", len(report.Insights)),
		zap.Int("connections", len(report.NewConnections)),
		zap.Float64("confidence", report.ConfidenceScore))

	return report, nil
}

// gather pulls a bounded page from every bucket in scope, blends score
// with recency, and keeps the top of the merged sample. Gathering
// completes before any analysis begins.
func (e *Engine) gather(ctx context.Context, buckets []string) ([]types.Chunk, error) {
	if len(buckets) == 0 {
		buckets = memory.CanonicalBucketNames()
	}

	var (
		mu     sync.Mutex
		merged []types.Chunk
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, bucket := range buckets {
		g.Go(func() error {
			chunks, err := e.store.GetChunksFromBucket(gctx, bucket, gatherPerBucket, 0)
			if err != nil {
				return fmt.Errorf("gather from %q: %w", bucket, err)
			}
			mu.Lock()
			merged = append(merged, chunks...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := e.config.Now()
	blend := func(c types.Chunk) float64 {
		hours := now.Sub(c.LastAccessed).Hours()
		if hours < 0 {
			hours = 0
		}
		recency := 1 / (1 + hours)
		return 0.7*c.Score + 0.3*recency
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return blend(merged[i]) > blend(merged[j])
	})

	if len(merged) > gatherCap {
		merged = merged[:gatherCap]
	}
	return merged, nil
}

// discoverConnections compares chunk texts pairwise with token-set
// Jaccard similarity. Each chunk is compared against at most the next
// discoveryWindow chunks in iteration order, a linear bound rather than
// the full O(n^2). Pairs over the threshold that have no existing edge
// in either direction become semantic links with strength equal to the
// similarity.
func (e *Engine) discoverConnections(ctx context.Context, chunks []types.Chunk) ([]Connection, error) {
	connections := make([]Connection, 0)

	for i := range chunks {
		if len(connections) >= maxNewConnections {
			break
		}
		for j := i + 1; j < len(chunks) && j <= i+discoveryWindow; j++ {
			if len(connections) >= maxNewConnections {
				break
			}

			sim := jaccardSimilarity(chunks[i].Text, chunks[j].Text)
			if sim <= discoveryThreshold {
				continue
			}

			exists, err := e.links.HasLink(ctx, chunks[i].ID, chunks[j].ID)
			if err != nil {
				return nil, fmt.Errorf("check existing link: %w", err)
			}
			if exists {
				continue
			}

			_, err = e.links.CreateLink(ctx, memory.CreateLinkInput{
				SourceID: chunks[i].ID,
				TargetID: chunks[j].ID,
				Type:     types.LinkSemantic,
				Strength: sim,
				Metadata: map[string]any{"discovered_by": "reflection"},
			})
			if err != nil {
				return nil, fmt.Errorf("create discovered link: %w", err)
			}

			connections = append(connections, Connection{
				SourceID: chunks[i].ID,
				TargetID: chunks[j].ID,
				Type:     types.LinkSemantic,
				Strength: sim,
			})
		}
	}
	return connections, nil
}

// persist writes one reflection record per analyzed chunk, capped at the
// top of the gathered sample.
func (e *Engine) persist(ctx context.Context, conductor string, chunks []types.Chunk, insights []string) error {
	content := strings.Join(insights, "\n")
	n := len(chunks)
	if n > persistCap {
		n = persistCap
	}
	for _, chunk := range chunks[:n] {
		r := &types.Reflection{
			ChunkID:   chunk.ID,
			Conductor: conductor,
			Content:   content,
			Insights:  insights,
			CreatedAt: e.config.Now(),
		}
		if err := e.log.SaveReflection(ctx, r); err != nil {
			return fmt.Errorf("persist reflection for %q: %w", chunk.ID, err)
		}
	}
	return nil
}

// confidence blends sample size, insight yield, and mean chunk score
// into a [0,1] score.
func confidence(chunks []types.Chunk, insightCount int) float64 {
	var meanScore float64
	if len(chunks) > 0 {
		for _, c := range chunks {
			meanScore += c.Score
		}
		meanScore /= float64(len(chunks))
	}

	score := 0.3*math.Min(float64(len(chunks))/50, 1) +
		0.3*math.Min(float64(insightCount)/10, 1) +
		0.4*math.Min(meanScore/2, 1)

	return math.Max(0, math.Min(1, score))
}

// jaccardSimilarity computes |intersection| / |union| over the
// lower-cased whitespace-split token sets of the two texts.
func jaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = struct{}{}
	}
	return set
}
