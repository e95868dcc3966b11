package builtin

import (
	"context"
	"log"
	"time"

	"github.com/loomkit/loom"
	"github.com/loomkit/loom/cache"
	"github.com/loomkit/loom/yaml"
)

// CacheNodeBuilder builds cache nodes: a memoized computation keyed off
// whatever value is under shared state's "input" key when the node is
// visited. The computation itself is a passthrough (the same convention
// readInput/writeResultDefault use elsewhere); what's interesting is the
// memoization wrapped around it, grounded on cache.CachedNode.
type CacheNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *CacheNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "cache",
		Category:    "flow",
		Description: "Memoizes the wrapped computation's result, keyed by input",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"ttl": map[string]interface{}{
					"type":        "string",
					"description": "How long a cached entry stays valid (e.g., '5m', '30s')",
					"default":     "5m",
				},
				"max_size": map[string]interface{}{
					"type":        "integer",
					"description": "LRU capacity; 0 (the default) uses an unbounded TTL-only cache",
					"default":     0,
				},
			},
		},
		Examples: []Example{
			{
				Name:        "Bounded LRU cache",
				Description: "Cache up to 100 results for 5 minutes",
				Config: map[string]interface{}{
					"ttl":      "5m",
					"max_size": 100,
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a cache node from a definition.
func (b *CacheNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	ttl := 5 * time.Minute
	if s, ok := def.Config["ttl"].(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			ttl = d
		}
	}

	maxSize := 0
	switch n := def.Config["max_size"].(type) {
	case int:
		maxSize = n
	case int64:
		maxSize = int(n)
	case uint64:
		maxSize = int(n)
	case float64:
		maxSize = int(n)
	}

	var c cache.Cache
	if maxSize > 0 {
		c = cache.NewLRUCache(maxSize)
	} else {
		c = cache.NewTTLCache()
	}

	inner := loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithExec(func(ctx context.Context, input any) (any, error) {
			if b.Verbose {
				log.Printf("[%s] computing (cache miss)", def.Name)
			}
			return input, nil
		}),
		loom.WithPost(writeResultDefault),
	)

	return cache.NewCachedNode(inner, c, cache.HashKeyFunc(def.Name), ttl), nil
}
