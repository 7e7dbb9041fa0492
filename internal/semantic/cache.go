package semantic

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// cachedEmbedding is a stored embedding with invalidation metadata.
type cachedEmbedding struct {
	Embedding []float32
	Hash      string    // Content hash for invalidation
	Timestamp time.Time // When the embedding was created
}

// EmbeddingCache provides persistent caching for embeddings so an unchanged
// knowledge corpus is not re-embedded on every start.
type EmbeddingCache struct {
	mu       sync.RWMutex
	entries  map[string]cachedEmbedding
	filePath string
	ttl      time.Duration
	dirty    bool
	corpusID string
}

// NewEmbeddingCache creates an embedding cache for a specific corpus
// directory. Entries are stored under configDir/embeddings.
func NewEmbeddingCache(configDir, corpusDir string, ttl time.Duration) *EmbeddingCache {
	corpusID := corpusIdentifier(corpusDir)

	cacheDir := filepath.Join(configDir, "embeddings")
	cache := &EmbeddingCache{
		entries:  make(map[string]cachedEmbedding),
		filePath: filepath.Join(cacheDir, corpusID+".gob"),
		ttl:      ttl,
		corpusID: corpusID,
	}
	_ = cache.Load() // Start fresh if the file doesn't exist
	return cache
}

// corpusIdentifier derives a stable short identifier from a directory path.
func corpusIdentifier(dir string) string {
	dir = filepath.Clean(dir)
	hash := sha256.Sum256([]byte(dir))
	return hex.EncodeToString(hash[:8])
}

// Get retrieves an embedding from cache.
// Returns the embedding and true if found, fresh and content-matching.
func (c *EmbeddingCache) Get(key string, contentHash string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if c.ttl > 0 && time.Since(entry.Timestamp) > c.ttl {
		return nil, false
	}

	if entry.Hash != contentHash {
		return nil, false
	}

	return entry.Embedding, true
}

// Set stores an embedding in cache.
func (c *EmbeddingCache) Set(key string, embedding []float32, contentHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cachedEmbedding{
		Embedding: embedding,
		Hash:      contentHash,
		Timestamp: time.Now(),
	}
	c.dirty = true
}

// Save persists the cache to disk.
func (c *EmbeddingCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Write to temp file first
	tmpPath := c.filePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	encoder := gob.NewEncoder(f)
	if err := encoder.Encode(c.entries); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Atomic rename
	if err := os.Rename(tmpPath, c.filePath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	c.dirty = false
	return nil
}

// Load loads the cache from disk.
func (c *EmbeddingCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Fresh start
		}
		return err
	}
	defer f.Close()

	decoder := gob.NewDecoder(f)
	if err := decoder.Decode(&c.entries); err != nil {
		c.entries = make(map[string]cachedEmbedding) // Reset on decode error
		return err
	}

	return nil
}

// Cleanup removes expired entries from cache. Returns the removal count.
func (c *EmbeddingCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}

	count := 0
	now := time.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.Timestamp) > c.ttl {
			delete(c.entries, key)
			count++
			c.dirty = true
		}
	}
	return count
}

// Size returns the number of entries in cache.
func (c *EmbeddingCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ContentHash generates a hash of content for cache invalidation.
func ContentHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:8])
}
