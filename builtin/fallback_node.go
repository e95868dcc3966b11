package builtin

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/loomkit/loom"
	"github.com/loomkit/loom/fallback"
	"github.com/loomkit/loom/yaml"
)

// CircuitBreakerNodeBuilder builds circuit_breaker nodes around
// fallback.ToCircuitBreakerNode: a primary handler that fails a configurable
// number of times before succeeding (so the breaker has something to trip
// on), and a fallback handler returning a static value while the breaker is
// open or the primary errors.
type CircuitBreakerNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *CircuitBreakerNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "circuit_breaker",
		Category:    "flow",
		Description: "Runs input through a primary handler guarded by a circuit breaker, falling back to a static value on failure or while the breaker is open",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"max_failures": map[string]interface{}{
					"type":        "integer",
					"description": "Consecutive failures before the breaker opens",
					"default":     3,
				},
				"fail_count": map[string]interface{}{
					"type":        "integer",
					"description": "Number of calls the primary handler fails before it starts succeeding (test/demo hook)",
					"default":     0,
				},
				"fallback_value": map[string]interface{}{
					"description": "Value returned by the fallback handler",
					"default":     "fallback",
				},
				"reset_timeout": map[string]interface{}{
					"type":        "string",
					"description": "How long the breaker stays open before allowing a half-open probe (e.g. '30s')",
					"default":     "30s",
				},
			},
		},
		Examples: []Example{
			{
				Name:        "Trip after two failures",
				Description: "Primary fails twice, then the breaker serves the fallback value",
				Config: map[string]interface{}{
					"max_failures": 2,
					"fail_count":   5,
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a circuit breaker node from a definition.
func (b *CircuitBreakerNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	maxFailures := 3
	switch n := def.Config["max_failures"].(type) {
	case int:
		maxFailures = n
	case uint64:
		maxFailures = int(n)
	case float64:
		maxFailures = int(n)
	}

	failCount := 0
	switch n := def.Config["fail_count"].(type) {
	case int:
		failCount = n
	case uint64:
		failCount = int(n)
	case float64:
		failCount = int(n)
	}

	var fallbackValue any = "fallback"
	if v, ok := def.Config["fallback_value"]; ok {
		fallbackValue = v
	}

	resetTimeout := 30 * time.Second
	if s, ok := def.Config["reset_timeout"].(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			resetTimeout = d
		}
	}

	calls := 0
	primary := func(_ context.Context, prepResult any) (any, error) {
		calls++
		if calls <= failCount {
			if b.Verbose {
				log.Printf("[%s] circuit breaker: call %d simulating failure", def.Name, calls)
			}
			return nil, fmt.Errorf("%s: simulated failure (call %d/%d)", def.Name, calls, failCount)
		}
		return prepResult, nil
	}

	fallbackHandler := func(_ context.Context, _ *loom.SharedState, _ any, _ error) (any, error) {
		return fallbackValue, nil
	}

	return fallback.ToCircuitBreakerNode(def.Name, primary, fallbackHandler,
		fallback.WithMaxFailures(maxFailures),
		fallback.WithResetTimeout(resetTimeout),
	), nil
}

// FallbackChainNodeBuilder builds fallback_chain nodes around fallback.Chain
// and its default SequentialStrategy: an ordered list of links, each either
// erroring (to exercise the chain's failover) or returning a static value.
type FallbackChainNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *FallbackChainNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "fallback_chain",
		Category:    "flow",
		Description: "Tries a sequence of named links in order, returning the first one that succeeds",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"links": map[string]interface{}{
					"type":        "array",
					"description": "Ordered list of {name, fail, value} links",
				},
			},
			"required": []string{"links"},
		},
		Examples: []Example{
			{
				Name:        "Primary down, secondary serves",
				Description: "First link fails, second returns a value",
				Config: map[string]interface{}{
					"links": []interface{}{
						map[string]interface{}{"name": "primary", "fail": true},
						map[string]interface{}{"name": "secondary", "value": "ok"},
					},
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a fallback chain node from a definition.
func (b *FallbackChainNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	rawLinks, ok := def.Config["links"].([]interface{})
	if !ok || len(rawLinks) == 0 {
		return nil, fmt.Errorf("fallback_chain node '%s': 'links' must be a non-empty list", def.Name)
	}

	chain := fallback.NewChain(def.Name)
	for i, raw := range rawLinks {
		linkCfg, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("fallback_chain node '%s': link %d is not an object", def.Name, i)
		}

		name, _ := linkCfg["name"].(string)
		if name == "" {
			name = fmt.Sprintf("link-%d", i)
		}
		fail, _ := linkCfg["fail"].(bool)
		value := linkCfg["value"]

		chain.AddLink(fallback.Link{
			Name: name,
			Handler: func(_ context.Context, prepResult any) (any, error) {
				if fail {
					return nil, fmt.Errorf("link %q failed", name)
				}
				if value != nil {
					return value, nil
				}
				return prepResult, nil
			},
		})
	}

	var shared *loom.SharedState
	return loom.NewNode(def.Name,
		loom.WithPrep(func(_ context.Context, s *loom.SharedState) (any, error) {
			shared = s
			return readInput(context.Background(), s)
		}),
		loom.WithExec(func(ctx context.Context, prepResult any) (any, error) {
			return chain.Execute(ctx, shared, prepResult)
		}),
		loom.WithPost(writeResultDefault),
	), nil
}
