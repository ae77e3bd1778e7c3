package memory

import (
	"context"

	"github.com/mindwell-ai/memcore/types"
)

// MinRetentionScore is the eviction floor: chunks whose decayed score
// falls below it are deleted by the decay scan.
const MinRetentionScore = 0.05

// DefaultBoostAmount is the score increment applied by Boost when the
// caller does not specify one.
const DefaultBoostAmount = 0.1

// Per-hour multiplicative retention factors by bucket type.
const (
	decayFast   = 0.990
	decayMedium = 0.995
	decaySlow   = 0.999
)

// DecayRateFor returns the per-hour retention factor for a bucket type.
func DecayRateFor(t types.BucketType) float64 {
	switch t {
	case types.BucketShortTerm:
		return decayFast
	case types.BucketLongTerm, types.BucketDocs:
		return decaySlow
	case types.BucketReinforcement, types.BucketMisc:
		return decayMedium
	default:
		return decayMedium
	}
}

// canonicalBucket pairs a bucket name with its type.
type canonicalBucket struct {
	Name string
	Type types.BucketType
}

// canonicalBuckets is the fixed, closed vocabulary of bucket names the
// core recognizes. Order is stable and used for cross-bucket scans.
var canonicalBuckets = []canonicalBucket{
	{"semantic_stm", types.BucketShortTerm},
	{"semantic_ltm", types.BucketLongTerm},
	{"procedural_stm", types.BucketShortTerm},
	{"procedural_ltm", types.BucketLongTerm},
	{"episodic_stm", types.BucketShortTerm},
	{"episodic_ltm", types.BucketLongTerm},
	{"diary_rl", types.BucketReinforcement},
	{"calendar_rl", types.BucketReinforcement},
	{"api_docs", types.BucketDocs},
	{"odds_ends", types.BucketMisc},
}

// CanonicalBucketNames returns the fixed bucket vocabulary in stable order.
func CanonicalBucketNames() []string {
	names := make([]string, len(canonicalBuckets))
	for i, b := range canonicalBuckets {
		names[i] = b.Name
	}
	return names
}

// AddChunkInput carries the fields required to create a chunk.
// Text and Source are required; AgentID and Metadata are optional.
type AddChunkInput struct {
	Bucket     string
	Text       string
	Embedding  []float32
	MetaVector []float32
	Source     string
	AgentID    string
	Metadata   map[string]any
}

// Validate checks required fields before the store is touched.
func (in AddChunkInput) Validate() error {
	if in.Bucket == "" {
		return types.NewValidation("bucket is required")
	}
	if in.Text == "" {
		return types.NewValidation("text is required")
	}
	if in.Source == "" {
		return types.NewValidation("source is required")
	}
	return nil
}

// CreateLinkInput carries the fields required to create a link.
type CreateLinkInput struct {
	SourceID string
	TargetID string
	Type     types.LinkType
	Strength float64
	Metadata map[string]any
}

// Validate checks required fields.
func (in CreateLinkInput) Validate() error {
	if in.SourceID == "" || in.TargetID == "" {
		return types.NewValidation("source and target ids are required")
	}
	switch in.Type {
	case types.LinkSemantic, types.LinkCausal, types.LinkTemporal, types.LinkAssociative:
		return nil
	default:
		return types.NewValidation("unknown link type " + string(in.Type))
	}
}

// Store is the durable home for buckets and chunks. It is the only
// component permitted to create or delete chunks.
type Store interface {
	// InitializeBuckets creates any canonical bucket that does not yet
	// exist. Re-running is a no-op for existing buckets, including under
	// concurrent invocation: a duplicate-creation race is swallowed.
	InitializeBuckets(ctx context.Context) error

	// Buckets returns all registered buckets in canonical order.
	Buckets(ctx context.Context) ([]types.Bucket, error)

	// AddChunk creates a chunk in the named bucket with score 1.0 and a
	// decay rate fixed from the bucket's type. Returns NOT_FOUND for an
	// unregistered bucket and VALIDATION for missing text/source.
	AddChunk(ctx context.Context, in AddChunkInput) (*types.Chunk, error)

	// GetChunk returns a chunk by id without touching access state.
	GetChunk(ctx context.Context, id string) (*types.Chunk, error)

	// Boost increments a chunk's score by amount, sets lastAccessed to
	// now and increments accessCount. The only positive-reinforcement
	// path in the system.
	Boost(ctx context.Context, id string, amount float64) (*types.Chunk, error)

	// GetChunksFromBucket returns chunks ordered by score descending then
	// lastAccessed descending, excluding chunks under minScore. Every
	// returned chunk is touched (lastAccessed, accessCount): retrieval
	// implies an access, a side effect the decay math depends on.
	GetChunksFromBucket(ctx context.Context, bucket string, limit int, minScore float64) ([]types.Chunk, error)

	// ChunksForMaintenance returns every chunk in the bucket without the
	// access-tracking side effect. Reserved for the decay scan.
	ChunksForMaintenance(ctx context.Context, bucket string) ([]types.Chunk, error)

	// UpdateScore persists a decayed score without touching lastAccessed.
	UpdateScore(ctx context.Context, id string, score float64) error

	// DeleteChunk evicts a chunk. Deleting an absent chunk is a no-op.
	DeleteChunk(ctx context.Context, id string) error

	// Stats returns read-only counters for feedback collectors.
	Stats(ctx context.Context) (*types.MemoryStats, error)
}

// LinkGraph maintains typed directed edges between chunks and answers
// adjacency queries. Links hold chunk ids only, never ownership: a
// missing referent (chunk evicted by decay) is a tolerable miss.
type LinkGraph interface {
	// CreateLink inserts an edge unconditionally. Callers wanting
	// deduplication must check HasLink first.
	CreateLink(ctx context.Context, in CreateLinkInput) (*types.Link, error)

	// GetLinks returns all edges touching the chunk. Zero edges yields
	// empty lists, not an error.
	GetLinks(ctx context.Context, chunkID string) (*types.LinkSet, error)

	// HasLink reports whether an edge exists between the pair in either
	// direction.
	HasLink(ctx context.Context, a, b string) (bool, error)
}

// ReflectionLog is the append-only sink for reflection records.
type ReflectionLog interface {
	SaveReflection(ctx context.Context, r *types.Reflection) error
}
