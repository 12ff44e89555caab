package cache

import (
	"context"
	"encoding/gob"
	"os"
	"time"

	"pdf-structural-translator/internal/embedding"
	"pdf-structural-translator/internal/logger"
	"pdf-structural-translator/internal/transport"
	"pdf-structural-translator/internal/types"
)

// Embedder is the minimal contract the persistent tier's semantic lookup
// needs; internal/embedding.Provider satisfies this. Kept narrow so tests can
// inject a fake without standing up a real model client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Cache is the two-tier Semantic Cache facade components call through: cache
// lookups wrap every translation call, per the concurrency note.
type Cache struct {
	memory     *MemoryTier
	persistent *PersistentTier // nil when cache.enable_persistent is false
	embedder   Embedder        // nil when cache.enable_persistent is false or no embedder configured
	threshold  float64
}

// Config mirrors the cache config section, already resolved into concrete
// tier instances by the caller (internal/config only carries values, not
// live handles — constructing the handles is this package's job, keeping
// cache lifetime explicit).
type Config struct {
	EnableMemory        bool
	MemoryCapacity      int
	EnablePersistent    bool
	PersistentPath      string
	PersistentCapacity  int
	SimilarityThreshold float64
}

// New builds a Cache from Config. A nil embedder disables semantic lookup
// even when the persistent tier is enabled; exact-match still works.
func New(cfg Config, embedder Embedder) (*Cache, error) {
	c := &Cache{threshold: cfg.SimilarityThreshold, embedder: embedder}

	if cfg.EnableMemory {
		c.memory = NewMemoryTier(cfg.MemoryCapacity)
	}
	if cfg.EnablePersistent {
		p, err := NewPersistentTier(cfg.PersistentPath, cfg.PersistentCapacity)
		if err != nil {
			return nil, err
		}
		c.persistent = p
	}
	return c, nil
}

// Result is what a lookup returns on a hit.
type Result struct {
	TranslatedText string
	Exact          bool
	Similarity     float64 // 1.0 for exact hits
}

// Lookup implements the read path: exact match in memory, then exact
// match in persistent, then (on persistent miss) semantic search in
// persistent. A miss anywhere degrades gracefully rather than failing the
// translation.
func (c *Cache) Lookup(ctx context.Context, originalText, targetLanguage, modelIdentifier string) (Result, bool) {
	key := Key{
		NormalizedText:  transport.NormalizeForCache(originalText),
		TargetLanguage:  targetLanguage,
		ModelIdentifier: modelIdentifier,
	}

	if c.memory != nil {
		if e, ok := c.memory.Get(key); ok {
			return Result{TranslatedText: e.TranslatedText, Exact: true, Similarity: 1.0}, true
		}
	}

	if c.persistent == nil {
		return Result{}, false
	}

	if e, ok, err := c.persistent.GetExact(key); err == nil && ok {
		if c.memory != nil {
			c.memory.Put(e)
		}
		return Result{TranslatedText: e.TranslatedText, Exact: true, Similarity: 1.0}, true
	} else if err != nil {
		logger.Warn("persistent cache exact lookup degraded", logger.Err(err))
	}

	if c.embedder == nil {
		return Result{}, false
	}

	queryEmbedding, err := c.embedder.Embed(ctx, key.NormalizedText)
	if err != nil {
		logger.Warn("cache embedding failed, skipping semantic lookup", logger.Err(err))
		return Result{}, false
	}

	e, ok, err := c.persistent.GetSemantic(key, queryEmbedding, c.threshold)
	if err != nil {
		logger.Warn("persistent cache semantic lookup degraded", logger.Err(err))
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	sim := embedding.CosineSimilarity(queryEmbedding, e.Embedding)
	return Result{TranslatedText: e.TranslatedText, Exact: false, Similarity: sim}, true
}

// Write stores a successful translation into both tiers.
// qualityScore is 1.0 for exact passes, lower for
// fallback-split recoveries (the Self-Correcting Translator computes the
// actual value and passes it through).
func (c *Cache) Write(ctx context.Context, originalText, targetLanguage, modelIdentifier, translatedText string, qualityScore float64) {
	key := Key{
		NormalizedText:  transport.NormalizeForCache(originalText),
		TargetLanguage:  targetLanguage,
		ModelIdentifier: modelIdentifier,
	}

	var emb []float32
	if c.embedder != nil && c.persistent != nil {
		var err error
		emb, err = c.embedder.Embed(ctx, key.NormalizedText)
		if err != nil {
			logger.Warn("cache write: embedding failed, storing without vector", logger.Err(err))
		}
	}

	e := Entry{
		Key:            key,
		Embedding:      emb,
		TranslatedText: translatedText,
		Timestamp:      time.Now(),
		QualityScore:   qualityScore,
	}

	if c.memory != nil {
		c.memory.Put(e)
	}
	if c.persistent != nil {
		if err := c.persistent.Put(e); err != nil {
			logger.Warn("persistent cache write degraded", logger.Err(err))
		}
	}
}

// DumpMemory serializes the in-memory tier to path via encoding/gob,
// the warm-start dump (cache/memory_dump.bin) restored at startup.
func (c *Cache) DumpMemory(path string) error {
	if c.memory == nil {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return types.NewAppError(types.ErrCacheIOError, "create memory dump", err)
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(c.memory.Entries())
}

// LoadMemoryDump restores the in-memory tier from a prior DumpMemory, used at
// startup for a warm cache. Missing file is not an error.
func (c *Cache) LoadMemoryDump(path string) error {
	if c.memory == nil {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.NewAppError(types.ErrCacheIOError, "open memory dump", err)
	}
	defer f.Close()

	var entries []Entry
	if err := gob.NewDecoder(f).Decode(&entries); err != nil {
		return types.NewAppError(types.ErrCacheIOError, "decode memory dump", err)
	}
	c.memory.LoadEntries(entries)
	return nil
}
