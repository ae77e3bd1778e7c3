package types

import "time"

// BucketType defines the decay-rate class of a memory bucket.
type BucketType string

const (
	// BucketShortTerm holds transient memories with fast decay.
	BucketShortTerm BucketType = "short_term"

	// BucketLongTerm holds consolidated memories with slow decay.
	BucketLongTerm BucketType = "long_term"

	// BucketReinforcement holds reward/feedback memories with medium decay.
	BucketReinforcement BucketType = "reinforcement"

	// BucketDocs holds reference documentation with slow decay.
	BucketDocs BucketType = "docs"

	// BucketMisc holds uncategorized memories with medium decay.
	BucketMisc BucketType = "misc"
)

// Bucket is a named, typed partition of the memory store.
type Bucket struct {
	Name      string     `json:"name"`
	Type      BucketType `json:"type"`
	CreatedAt time.Time  `json:"created_at"`
}

// Chunk is one atomic unit of remembered text plus its vector
// representations and reinforcement state.
type Chunk struct {
	ID           string         `json:"id"`
	Bucket       string         `json:"bucket"`
	Text         string         `json:"text"`
	Embedding    []float32      `json:"embedding,omitempty"`
	MetaVector   []float32      `json:"meta_vector,omitempty"`
	Score        float64        `json:"score"`
	Source       string         `json:"source"`
	AgentID      string         `json:"agent_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	AccessCount  int            `json:"access_count"`
	DecayRate    float64        `json:"decay_rate"`
	CreatedAt    time.Time      `json:"created_at"`
	LastAccessed time.Time      `json:"last_accessed"`
}

// LinkType classifies a directed edge between two chunks.
type LinkType string

const (
	LinkSemantic    LinkType = "semantic"
	LinkCausal      LinkType = "causal"
	LinkTemporal    LinkType = "temporal"
	LinkAssociative LinkType = "associative"
)

// Link is a directed, typed, weighted edge between two chunks.
type Link struct {
	ID        string         `json:"id"`
	SourceID  string         `json:"source_id"`
	TargetID  string         `json:"target_id"`
	Type      LinkType       `json:"type"`
	Strength  float64        `json:"strength"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// LinkSet groups the edges touching a single chunk.
type LinkSet struct {
	Outgoing []Link `json:"outgoing"`
	Incoming []Link `json:"incoming"`
}

// Reflection is a derived synthesis produced by analyzing a chunk.
// Reflections are append-only and never decay.
type Reflection struct {
	ID        string    `json:"id"`
	ChunkID   string    `json:"chunk_id"`
	Conductor string    `json:"conductor"`
	Content   string    `json:"content"`
	Insights  []string  `json:"insights"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryStats provides read-only statistics for feedback collectors.
type MemoryStats struct {
	TotalChunks      int            `json:"total_chunks"`
	TotalLinks       int            `json:"total_links"`
	TotalReflections int            `json:"total_reflections"`
	ByBucket         map[string]int `json:"by_bucket"`
}
