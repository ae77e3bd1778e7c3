package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mindwell-ai/memcore/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// bucketRow is the persisted form of a bucket.
type bucketRow struct {
	Name      string `gorm:"primaryKey;size:64"`
	Type      string `gorm:"size:32;not null"`
	CreatedAt time.Time
}

func (bucketRow) TableName() string { return "memory_buckets" }

// chunkRow is the persisted form of a chunk. Vectors and metadata are
// stored as JSON blobs so the schema works across SQLite, PostgreSQL,
// and MySQL.
type chunkRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	Bucket       string `gorm:"size:64;index;not null"`
	Text         string `gorm:"type:text;not null"`
	Embedding    []byte `gorm:"type:blob"`
	MetaVector   []byte `gorm:"type:blob"`
	Score        float64
	Source       string `gorm:"size:128"`
	AgentID      string `gorm:"size:64"`
	Metadata     []byte `gorm:"type:blob"`
	AccessCount  int
	DecayRate    float64
	CreatedAt    time.Time
	LastAccessed time.Time `gorm:"index"`
}

func (chunkRow) TableName() string { return "memory_chunks" }

// linkRow is the persisted form of a link.
type linkRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	SourceID  string `gorm:"size:36;index"`
	TargetID  string `gorm:"size:36;index"`
	Type      string `gorm:"size:16"`
	Strength  float64
	Metadata  []byte `gorm:"type:blob"`
	CreatedAt time.Time
}

func (linkRow) TableName() string { return "memory_links" }

// reflectionRow is the persisted form of a reflection record.
type reflectionRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	ChunkID   string `gorm:"size:36;index"`
	Conductor string `gorm:"size:64"`
	Content   string `gorm:"type:text"`
	Insights  []byte `gorm:"type:blob"`
	CreatedAt time.Time
}

func (reflectionRow) TableName() string { return "memory_reflections" }

// GormStore is a GORM-backed Store, LinkGraph, and ReflectionLog. Boost
// relies on the database's atomic UPDATE expressions, so concurrent
// boosts never lose increments.
type GormStore struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// GormStoreConfig configures the persistent store.
type GormStoreConfig struct {
	// Now is used for testing. Defaults to time.Now.
	Now func() time.Time
}

// NewGormStore wraps an open gorm DB handle.
func NewGormStore(db *gorm.DB, config GormStoreConfig, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &GormStore{
		db:     db,
		now:    now,
		logger: logger.With(zap.String("component", "memory_store_gorm")),
	}
}

// Migrate creates or updates the schema for all memory tables.
func (s *GormStore) Migrate() error {
	err := s.db.AutoMigrate(
		&bucketRow{},
		&chunkRow{},
		&linkRow{},
		&reflectionRow{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate memory schema: %w", err)
	}
	return nil
}

// InitializeBuckets inserts missing canonical buckets. A duplicate-key
// race with a concurrent initializer is swallowed via ON CONFLICT DO
// NOTHING.
func (s *GormStore) InitializeBuckets(ctx context.Context) error {
	rows := make([]bucketRow, 0, len(canonicalBuckets))
	now := s.now()
	for _, cb := range canonicalBuckets {
		rows = append(rows, bucketRow{Name: cb.Name, Type: string(cb.Type), CreatedAt: now})
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("initialize buckets: %w", err)
	}
	return nil
}

// Buckets returns registered buckets in canonical order.
func (s *GormStore) Buckets(ctx context.Context) ([]types.Bucket, error) {
	var rows []bucketRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	byName := make(map[string]bucketRow, len(rows))
	for _, r := range rows {
		byName[r.Name] = r
	}
	out := make([]types.Bucket, 0, len(rows))
	for _, cb := range canonicalBuckets {
		if r, ok := byName[cb.Name]; ok {
			out = append(out, types.Bucket{Name: r.Name, Type: types.BucketType(r.Type), CreatedAt: r.CreatedAt})
		}
	}
	return out, nil
}

func (s *GormStore) bucketByName(ctx context.Context, name string) (*bucketRow, error) {
	var row bucketRow
	err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFound("bucket", name)
	}
	if err != nil {
		return nil, fmt.Errorf("load bucket %q: %w", name, err)
	}
	return &row, nil
}

// AddChunk creates a chunk in the named bucket.
func (s *GormStore) AddChunk(ctx context.Context, in AddChunkInput) (*types.Chunk, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	bucket, err := s.bucketByName(ctx, in.Bucket)
	if err != nil {
		return nil, err
	}

	now := s.now()
	row := chunkRow{
		ID:           uuid.NewString(),
		Bucket:       in.Bucket,
		Text:         in.Text,
		Embedding:    marshalVector(in.Embedding),
		MetaVector:   marshalVector(in.MetaVector),
		Score:        1.0,
		Source:       in.Source,
		AgentID:      in.AgentID,
		Metadata:     marshalMetadata(in.Metadata),
		AccessCount:  0,
		DecayRate:    DecayRateFor(types.BucketType(bucket.Type)),
		CreatedAt:    now,
		LastAccessed: now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("create chunk: %w", err)
	}

	s.logger.Debug("chunk added",
		zap.String("id", row.ID),
		zap.String("bucket", row.Bucket),
		zap.String("source", row.Source))

	return rowToChunk(row), nil
}

// GetChunk returns a chunk by id without touching access state.
func (s *GormStore) GetChunk(ctx context.Context, id string) (*types.Chunk, error) {
	var row chunkRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFound("chunk", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load chunk %q: %w", id, err)
	}
	return rowToChunk(row), nil
}

// Boost increments score, touches lastAccessed and accessCount in a
// single atomic UPDATE.
func (s *GormStore) Boost(ctx context.Context, id string, amount float64) (*types.Chunk, error) {
	if amount == 0 {
		amount = DefaultBoostAmount
	}

	res := s.db.WithContext(ctx).Model(&chunkRow{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"score":         gorm.Expr("score + ?", amount),
			"access_count":  gorm.Expr("access_count + 1"),
			"last_accessed": s.now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("boost chunk %q: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, types.NewNotFound("chunk", id)
	}

	return s.GetChunk(ctx, id)
}

// GetChunksFromBucket returns chunks ordered by score then lastAccessed,
// both descending, and touches every returned chunk.
func (s *GormStore) GetChunksFromBucket(ctx context.Context, bucket string, limit int, minScore float64) ([]types.Chunk, error) {
	if _, err := s.bucketByName(ctx, bucket); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).
		Where("bucket = ? AND score >= ?", bucket, minScore).
		Order("score DESC, last_accessed DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []chunkRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list chunks in %q: %w", bucket, err)
	}
	if len(rows) == 0 {
		return []types.Chunk{}, nil
	}

	ids := make([]string, 0, len(rows))
	out := make([]types.Chunk, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		out = append(out, *rowToChunk(row))
	}

	// Retrieval implies an access.
	err := s.db.WithContext(ctx).Model(&chunkRow{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"access_count":  gorm.Expr("access_count + 1"),
			"last_accessed": s.now(),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("touch chunks in %q: %w", bucket, err)
	}

	return out, nil
}

// ChunksForMaintenance returns every chunk in the bucket without side
// effects.
func (s *GormStore) ChunksForMaintenance(ctx context.Context, bucket string) ([]types.Chunk, error) {
	if _, err := s.bucketByName(ctx, bucket); err != nil {
		return nil, err
	}

	var rows []chunkRow
	if err := s.db.WithContext(ctx).Where("bucket = ?", bucket).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan chunks in %q: %w", bucket, err)
	}

	out := make([]types.Chunk, 0, len(rows))
	for _, row := range rows {
		out = append(out, *rowToChunk(row))
	}
	return out, nil
}

// UpdateScore persists a decayed score without touching lastAccessed.
func (s *GormStore) UpdateScore(ctx context.Context, id string, score float64) error {
	res := s.db.WithContext(ctx).Model(&chunkRow{}).
		Where("id = ?", id).
		Update("score", score)
	if res.Error != nil {
		return fmt.Errorf("update score of %q: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewNotFound("chunk", id)
	}
	return nil
}

// DeleteChunk evicts a chunk. Absent ids are a no-op.
func (s *GormStore) DeleteChunk(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&chunkRow{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete chunk %q: %w", id, err)
	}
	return nil
}

// CreateLink inserts an edge unconditionally.
func (s *GormStore) CreateLink(ctx context.Context, in CreateLinkInput) (*types.Link, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Strength == 0 {
		in.Strength = 1.0
	}

	row := linkRow{
		ID:        uuid.NewString(),
		SourceID:  in.SourceID,
		TargetID:  in.TargetID,
		Type:      string(in.Type),
		Strength:  in.Strength,
		Metadata:  marshalMetadata(in.Metadata),
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	return rowToLink(row), nil
}

// GetLinks returns the edges touching a chunk.
func (s *GormStore) GetLinks(ctx context.Context, chunkID string) (*types.LinkSet, error) {
	var outRows, inRows []linkRow
	if err := s.db.WithContext(ctx).Where("source_id = ?", chunkID).Find(&outRows).Error; err != nil {
		return nil, fmt.Errorf("list outgoing links of %q: %w", chunkID, err)
	}
	if err := s.db.WithContext(ctx).Where("target_id = ?", chunkID).Find(&inRows).Error; err != nil {
		return nil, fmt.Errorf("list incoming links of %q: %w", chunkID, err)
	}

	set := &types.LinkSet{
		Outgoing: make([]types.Link, 0, len(outRows)),
		Incoming: make([]types.Link, 0, len(inRows)),
	}
	for _, row := range outRows {
		set.Outgoing = append(set.Outgoing, *rowToLink(row))
	}
	for _, row := range inRows {
		set.Incoming = append(set.Incoming, *rowToLink(row))
	}
	return set, nil
}

// HasLink reports whether an edge exists between a and b in either
// direction.
func (s *GormStore) HasLink(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&linkRow{}).
		Where("(source_id = ? AND target_id = ?) OR (source_id = ? AND target_id = ?)", a, b, b, a).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check link %q<->%q: %w", a, b, err)
	}
	return count > 0, nil
}

// SaveReflection appends a reflection record.
func (s *GormStore) SaveReflection(ctx context.Context, r *types.Reflection) error {
	if r == nil {
		return types.NewValidation("reflection is nil")
	}

	row := reflectionRow{
		ID:        r.ID,
		ChunkID:   r.ChunkID,
		Conductor: r.Conductor,
		Content:   r.Content,
		Insights:  marshalStrings(r.Insights),
		CreatedAt: r.CreatedAt,
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("save reflection: %w", err)
	}
	return nil
}

// Stats returns read-only counters for feedback collectors.
func (s *GormStore) Stats(ctx context.Context) (*types.MemoryStats, error) {
	stats := &types.MemoryStats{ByBucket: make(map[string]int)}

	var total int64
	if err := s.db.WithContext(ctx).Model(&chunkRow{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	stats.TotalChunks = int(total)

	if err := s.db.WithContext(ctx).Model(&linkRow{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count links: %w", err)
	}
	stats.TotalLinks = int(total)

	if err := s.db.WithContext(ctx).Model(&reflectionRow{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count reflections: %w", err)
	}
	stats.TotalReflections = int(total)

	type bucketCount struct {
		Bucket string
		N      int
	}
	var counts []bucketCount
	err := s.db.WithContext(ctx).Model(&chunkRow{}).
		Select("bucket, COUNT(*) AS n").
		Group("bucket").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("count chunks by bucket: %w", err)
	}
	for _, c := range counts {
		stats.ByBucket[c.Bucket] = c.N
	}
	return stats, nil
}

func marshalVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	b, _ := json.Marshal(v)
	return b
}

func unmarshalVector(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	var v []float32
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	return v
}

func marshalMetadata(m map[string]any) []byte {
	if len(m) == 0 {
		return nil
	}
	b, _ := json.Marshal(m)
	return b
}

func unmarshalMetadata(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func marshalStrings(ss []string) []byte {
	if len(ss) == 0 {
		return nil
	}
	b, _ := json.Marshal(ss)
	return b
}

func rowToChunk(row chunkRow) *types.Chunk {
	return &types.Chunk{
		ID:           row.ID,
		Bucket:       row.Bucket,
		Text:         row.Text,
		Embedding:    unmarshalVector(row.Embedding),
		MetaVector:   unmarshalVector(row.MetaVector),
		Score:        row.Score,
		Source:       row.Source,
		AgentID:      row.AgentID,
		Metadata:     unmarshalMetadata(row.Metadata),
		AccessCount:  row.AccessCount,
		DecayRate:    row.DecayRate,
		CreatedAt:    row.CreatedAt,
		LastAccessed: row.LastAccessed,
	}
}

func rowToLink(row linkRow) *types.Link {
	return &types.Link{
		ID:        row.ID,
		SourceID:  row.SourceID,
		TargetID:  row.TargetID,
		Type:      types.LinkType(row.Type),
		Strength:  row.Strength,
		Metadata:  unmarshalMetadata(row.Metadata),
		CreatedAt: row.CreatedAt,
	}
}
