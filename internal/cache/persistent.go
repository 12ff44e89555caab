package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pdf-structural-translator/internal/embedding"
	"pdf-structural-translator/internal/logger"
	"pdf-structural-translator/internal/types"
)

// PersistentTier is the on-disk exact+semantic LRU tier,
// default capacity 10,000 entries, sharded one file per (target_language,
// model_identifier) pair under dir so a semantic scan never has to load
// entries for languages/models it cannot match anyway.
type PersistentTier struct {
	dir      string
	capacity int

	mu      sync.Mutex
	shards  map[string][]Entry // shardKey -> entries, loaded lazily
}

// NewPersistentTier opens (creating if absent) the persistent tier rooted at
// dir.
func NewPersistentTier(dir string, capacity int) (*PersistentTier, error) {
	if capacity <= 0 {
		capacity = 10000
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cache: create persistent directory: %w", err)
	}
	return &PersistentTier{dir: dir, capacity: capacity, shards: make(map[string][]Entry)}, nil
}

func shardKey(targetLanguage, modelIdentifier string) string {
	return targetLanguage + "__" + modelIdentifier
}

func (p *PersistentTier) shardPath(shard string) string {
	return filepath.Join(p.dir, shard+".gob")
}

// loadShard reads a shard file into memory if not already cached. Caller
// must hold p.mu.
func (p *PersistentTier) loadShard(shard string) ([]Entry, error) {
	if entries, ok := p.shards[shard]; ok {
		return entries, nil
	}

	data, err := os.ReadFile(p.shardPath(shard))
	if err != nil {
		if os.IsNotExist(err) {
			p.shards[shard] = nil
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCacheIOError, "read persistent cache shard", err)
	}

	var entries []Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return nil, types.NewAppError(types.ErrCacheIOError, "decode persistent cache shard", err)
	}
	p.shards[shard] = entries
	return entries, nil
}

// saveShard writes a shard via append + atomic rename:
// concurrent readers see either the old or new file, never a torn write.
func (p *PersistentTier) saveShard(shard string, entries []Entry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return types.NewAppError(types.ErrCacheIOError, "encode persistent cache shard", err)
	}

	path := p.shardPath(shard)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return types.NewAppError(types.ErrCacheIOError, "write persistent cache shard", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return types.NewAppError(types.ErrCacheIOError, "rename persistent cache shard", err)
	}
	p.shards[shard] = entries
	return nil
}

// GetExact looks up an exact key in the persistent tier.
func (p *PersistentTier) GetExact(key Key) (Entry, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := p.loadShard(shardKey(key.TargetLanguage, key.ModelIdentifier))
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Key == key {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// GetSemantic searches the persistent tier's entries for the same
// (target_language, model_identifier) for the top-1 entry by cosine
// similarity, returning ok=false if nothing clears threshold.
func (p *PersistentTier) GetSemantic(key Key, queryEmbedding []float32, threshold float64) (Entry, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := p.loadShard(shardKey(key.TargetLanguage, key.ModelIdentifier))
	if err != nil {
		return Entry{}, false, err
	}

	var best Entry
	bestSim := -1.0
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			continue
		}
		sim := embedding.CosineSimilarity(queryEmbedding, e.Embedding)
		if sim > bestSim {
			bestSim, best = sim, e
		}
	}
	if bestSim >= threshold {
		return best, true, nil
	}
	return Entry{}, false, nil
}

// Put inserts or replaces an entry in its shard, evicting by quality_score
// when the shard grows past capacity (the capacity is enforced
// per shard since each shard can only ever satisfy lookups for its own
// language/model pair).
func (p *PersistentTier) Put(e Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	shard := shardKey(e.Key.TargetLanguage, e.Key.ModelIdentifier)
	entries, err := p.loadShard(shard)
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range entries {
		if existing.Key == e.Key {
			entries[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, e)
	}

	perShardCap := p.capacity
	for len(entries) > perShardCap {
		worst := 0
		for i := 1; i < len(entries); i++ {
			if lessEvictable(entries[i], entries[worst]) {
				worst = i
			}
		}
		entries = append(entries[:worst], entries[worst+1:]...)
	}

	if err := p.saveShard(shard, entries); err != nil {
		logger.Warn("persistent cache write failed, degrading gracefully", logger.Err(err))
		return err
	}
	return nil
}
