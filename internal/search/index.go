// Package search maintains an embedded vector index of pattern embeddings
// for top-k similarity lookups. One chromem collection per domain, mirroring
// the primary store. Embeddings are precomputed by callers; the index never
// embeds text itself.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

var tracer = otel.Tracer("patternd.search")

// ErrInvalidConfig indicates an invalid index configuration.
var ErrInvalidConfig = errors.New("invalid index config")

// Config holds configuration for the chromem-backed index.
type Config struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/patternd/index"
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// InMemory keeps the index in RAM. Used by tests.
	InMemory bool `koanf:"in_memory"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/patternd/index"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	return nil
}

// Result is one similarity hit.
type Result struct {
	PatternID  string  `json:"pattern_id"`
	Similarity float32 `json:"similarity"`
}

// Index stores pattern embeddings in chromem collections keyed by domain.
type Index struct {
	db     *chromem.DB
	logger *zap.Logger
}

// NewIndex creates a pattern index at cfg.Path, or in memory when
// cfg.InMemory is set.
func NewIndex(cfg Config, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.InMemory {
		return &Index{db: chromem.NewDB(), logger: logger}, nil
	}

	expandedPath, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("pattern index initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", cfg.Compress),
	)
	return &Index{db: db, logger: logger}, nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// collectionName maps a domain to a chromem collection name.
func collectionName(domain string) string {
	var b strings.Builder
	b.WriteString("patterns_")
	for _, r := range strings.ToLower(domain) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// precomputedOnly is the embedding func handed to chromem. All documents
// carry precomputed embeddings, so chromem must never call it.
func precomputedOnly() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("index stores precomputed embeddings only")
	}
}

// IndexPatterns upserts pattern embeddings into the domain's collection.
func (idx *Index) IndexPatterns(ctx context.Context, domain string, patterns []*pattern.Pattern) error {
	ctx, span := tracer.Start(ctx, "Index.IndexPatterns")
	defer span.End()
	span.SetAttributes(
		attribute.String("domain", domain),
		attribute.Int("patterns", len(patterns)),
	)

	if len(patterns) == 0 {
		return nil
	}

	collection, err := idx.db.GetOrCreateCollection(collectionName(domain), nil, precomputedOnly())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("getting/creating collection for %s: %w", domain, err)
	}

	docs := make([]chromem.Document, 0, len(patterns))
	for _, p := range patterns {
		if len(p.Embedding) == 0 {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Content:   p.ID,
			Metadata:  map[string]string{"domain": domain},
			Embedding: p.Embedding,
		})
	}
	if len(docs) == 0 {
		return nil
	}

	// Concurrency of 1 since embeddings are precomputed
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

// IndexPattern upserts one pattern.
func (idx *Index) IndexPattern(ctx context.Context, p *pattern.Pattern) error {
	return idx.IndexPatterns(ctx, p.Domain, []*pattern.Pattern{p})
}

// Remove deletes pattern embeddings from the domain's collection. Unknown
// domains and IDs are ignored.
func (idx *Index) Remove(ctx context.Context, domain string, ids ...string) error {
	ctx, span := tracer.Start(ctx, "Index.Remove")
	defer span.End()
	span.SetAttributes(
		attribute.String("domain", domain),
		attribute.Int("ids", len(ids)),
	)

	collection := idx.db.GetCollection(collectionName(domain), precomputedOnly())
	if collection == nil {
		return nil
	}

	for _, id := range ids {
		if err := collection.Delete(ctx, nil, nil, id); err != nil {
			span.RecordError(err)
			idx.logger.Warn("failed to delete pattern from index",
				zap.String("domain", domain),
				zap.String("pattern_id", id),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Query returns the k most similar indexed patterns in a domain, most
// similar first. An unknown domain yields an empty result, not an error.
func (idx *Index) Query(ctx context.Context, domain string, embedding []float32, k int) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "Index.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("domain", domain),
		attribute.Int("k", k),
	)

	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding is empty", ErrInvalidConfig)
	}
	if k <= 0 {
		k = 10
	}

	collection := idx.db.GetCollection(collectionName(domain), precomputedOnly())
	if collection == nil {
		return []Result{}, nil
	}

	// chromem requires nResults <= doc count
	docCount := collection.Count()
	if docCount == 0 {
		return []Result{}, nil
	}
	if k > docCount {
		k = docCount
	}

	hits, err := collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	results := make([]Result, len(hits))
	for i, hit := range hits {
		results[i] = Result{PatternID: hit.ID, Similarity: hit.Similarity}
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// RebuildDomain replaces the domain's collection with the given patterns.
func (idx *Index) RebuildDomain(ctx context.Context, domain string, patterns []*pattern.Pattern) error {
	ctx, span := tracer.Start(ctx, "Index.RebuildDomain")
	defer span.End()
	span.SetAttributes(
		attribute.String("domain", domain),
		attribute.Int("patterns", len(patterns)),
	)

	name := collectionName(domain)
	if existing := idx.db.GetCollection(name, precomputedOnly()); existing != nil {
		if err := idx.db.DeleteCollection(name); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("deleting collection %s: %w", name, err)
		}
	}
	return idx.IndexPatterns(ctx, domain, patterns)
}
