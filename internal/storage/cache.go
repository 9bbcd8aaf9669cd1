// cache.go - In-memory cache for per-shop learning examples

package storage

import (
	"sync"
	"time"

	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
)

// learningExampleCache holds one shop's examples with a load timestamp
type learningExampleCache struct {
	Examples []common.LearningExample
	LoadedAt time.Time
}

// Global cache map: shopID -> cache
var exampleCacheMap = make(map[string]*learningExampleCache)
var cacheMutex sync.RWMutex

const CACHE_TTL = 5 * time.Minute // Cache expires after 5 minutes

// GetOrLoadLearningExamples retrieves a shop's learning examples from cache
// or loads them from MongoDB
func GetOrLoadLearningExamples(shopID string) ([]common.LearningExample, error) {
	cacheMutex.RLock()
	cache, exists := exampleCacheMap[shopID]
	cacheMutex.RUnlock()

	if exists && time.Since(cache.LoadedAt) < CACHE_TTL {
		return cache.Examples, nil
	}

	cacheMutex.Lock()
	defer cacheMutex.Unlock()

	// Double-check after acquiring write lock
	cache, exists = exampleCacheMap[shopID]
	if exists && time.Since(cache.LoadedAt) < CACHE_TTL {
		return cache.Examples, nil
	}

	examples, err := GetLearningExamples(shopID)
	if err != nil {
		return nil, err
	}

	exampleCacheMap[shopID] = &learningExampleCache{
		Examples: examples,
		LoadedAt: time.Now(),
	}
	return examples, nil
}

// InvalidateExampleCache removes cached examples for a specific shop
// (call after saving a new learning example)
func InvalidateExampleCache(shopID string) {
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	delete(exampleCacheMap, shopID)
}

// ClearAllExampleCache removes all cached examples
func ClearAllExampleCache() {
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	exampleCacheMap = make(map[string]*learningExampleCache)
}
