package fallback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loomkit/loom"
)

// Handler runs when a circuit breaker's primary exec has failed (open
// circuit or a failed attempt), producing a fallback result.
//
// The teacher's CircuitBreakerPolicy.fallback field is typed Handler, but
// the teacher's top-level fallback package never actually declares that
// type — it only exists under a separate, removed internal package. We
// declare it here, against *loom.SharedState instead of pocket.Store.
type Handler func(ctx context.Context, shared *loom.SharedState, input any, err error) (any, error)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed allows requests to pass through.
	StateClosed CircuitState = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows limited requests to test recovery.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	name string

	maxFailures      int
	resetTimeout     time.Duration
	halfOpenRequests int

	mu                sync.RWMutex
	state             CircuitState
	failures          int
	lastFailureTime   time.Time
	halfOpenSuccesses int
	halfOpenFailures  int

	totalRequests  int64
	totalSuccesses int64
	totalFailures  int64
	circuitOpens   int64
	lastOpenTime   time.Time

	onStateChange func(from, to CircuitState)
}

// CircuitOption configures a circuit breaker.
type CircuitOption func(*CircuitBreaker)

// WithMaxFailures sets the failure threshold.
func WithMaxFailures(n int) CircuitOption {
	return func(cb *CircuitBreaker) { cb.maxFailures = n }
}

// WithResetTimeout sets the timeout before attempting recovery.
func WithResetTimeout(d time.Duration) CircuitOption {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// WithHalfOpenRequests sets the number of test requests in half-open state.
func WithHalfOpenRequests(n int) CircuitOption {
	return func(cb *CircuitBreaker) { cb.halfOpenRequests = n }
}

// WithStateChangeCallback sets a callback for state transitions.
func WithStateChangeCallback(fn func(from, to CircuitState)) CircuitOption {
	return func(cb *CircuitBreaker) { cb.onStateChange = fn }
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, opts ...CircuitOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             name,
		maxFailures:      5,
		resetTimeout:     30 * time.Second,
		halfOpenRequests: 3,
		state:            StateClosed,
	}

	for _, opt := range opts {
		opt(cb)
	}

	return cb
}

// Execute runs fn through the circuit breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn loom.ExecFunc, input any) (any, error) {
	if err := cb.canExecute(); err != nil {
		return nil, err
	}

	result, err := fn(ctx, input)

	cb.recordResult(err == nil)

	return result, err
}

// canExecute checks if the circuit allows execution.
func (cb *CircuitBreaker) canExecute() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(cb.lastFailureTime) > cb.resetTimeout {
			cb.transitionTo(StateHalfOpen)
			return nil
		}
		return fmt.Errorf("circuit breaker %s is open", cb.name)

	case StateHalfOpen:
		totalHalfOpen := cb.halfOpenSuccesses + cb.halfOpenFailures
		if totalHalfOpen >= cb.halfOpenRequests {
			if cb.halfOpenFailures > 0 {
				cb.transitionTo(StateOpen)
				return fmt.Errorf("circuit breaker %s is open", cb.name)
			}
			cb.transitionTo(StateClosed)
			return nil
		}
		return nil

	default:
		return fmt.Errorf("circuit breaker %s in unknown state", cb.name)
	}
}

// recordResult updates the circuit breaker state based on execution result.
func (cb *CircuitBreaker) recordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.totalSuccesses++
		cb.onSuccess()
	} else {
		cb.totalFailures++
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0

	case StateHalfOpen:
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenRequests {
			cb.transitionTo(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		cb.halfOpenFailures++
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState

	switch newState {
	case StateClosed:
		cb.failures = 0
		cb.halfOpenSuccesses = 0
		cb.halfOpenFailures = 0

	case StateOpen:
		cb.circuitOpens++
		cb.lastOpenTime = time.Now()
		cb.lastFailureTime = time.Now()

	case StateHalfOpen:
		cb.halfOpenSuccesses = 0
		cb.halfOpenFailures = 0
	}

	if cb.onStateChange != nil {
		go cb.onStateChange(oldState, newState)
	}
}

// GetState returns the current circuit state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetMetrics returns circuit breaker metrics.
func (cb *CircuitBreaker) GetMetrics() CircuitMetrics {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitMetrics{
		Name:            cb.name,
		State:           cb.state.String(),
		TotalRequests:   cb.totalRequests,
		TotalSuccesses:  cb.totalSuccesses,
		TotalFailures:   cb.totalFailures,
		CircuitOpens:    cb.circuitOpens,
		LastOpenTime:    cb.lastOpenTime,
		CurrentFailures: cb.failures,
	}
}

// CircuitMetrics contains circuit breaker statistics.
type CircuitMetrics struct {
	Name            string
	State           string
	TotalRequests   int64
	TotalSuccesses  int64
	TotalFailures   int64
	CircuitOpens    int64
	LastOpenTime    time.Time
	CurrentFailures int
}

// CircuitBreakerPolicy wraps an exec function with circuit breaker
// protection and an optional Handler fallback.
type CircuitBreakerPolicy struct {
	name     string
	breaker  *CircuitBreaker
	primary  loom.ExecFunc
	fallback Handler
}

// NewCircuitBreakerPolicy creates a policy with circuit breaker protection.
func NewCircuitBreakerPolicy(name string, primary loom.ExecFunc, fallback Handler, opts ...CircuitOption) *CircuitBreakerPolicy {
	return &CircuitBreakerPolicy{
		name:     name,
		breaker:  NewCircuitBreaker(name, opts...),
		primary:  primary,
		fallback: fallback,
	}
}

// Name returns the policy name.
func (p *CircuitBreakerPolicy) Name() string { return p.name }

// Execute runs the policy's primary exec through the circuit breaker,
// falling back to its Handler on failure.
func (p *CircuitBreakerPolicy) Execute(ctx context.Context, shared *loom.SharedState, input any) (any, error) {
	result, err := p.breaker.Execute(ctx, p.primary, input)
	if err == nil {
		return result, nil
	}

	shared.Set(fmt.Sprintf("circuit:%s:error", p.name), err)
	shared.Set(fmt.Sprintf("circuit:%s:state", p.name), p.breaker.GetState().String())

	if p.fallback != nil {
		return p.fallback(ctx, shared, input, err)
	}

	return nil, err
}

// ToCircuitBreakerNode builds a loom.Node whose Exec phase runs primary
// through circuit breaker protection, falling back to fallback on
// failure. It follows the builtin-node convention of reading its working
// value from shared state's "input" key and writing the result back to
// the same key, so it composes as a link in a chain built from
// builtin-package nodes.
func ToCircuitBreakerNode(name string, primary loom.ExecFunc, fallback Handler, opts ...CircuitOption) loom.Node {
	policy := NewCircuitBreakerPolicy(name, primary, fallback, opts...)

	var shared *loom.SharedState

	return loom.NewNode(name,
		loom.WithPrep(func(_ context.Context, s *loom.SharedState) (any, error) {
			shared = s
			v, _ := s.Get("input")
			return v, nil
		}),
		loom.WithExec(func(ctx context.Context, prepResult any) (any, error) {
			return policy.Execute(ctx, shared, prepResult)
		}),
		loom.WithPost(func(_ context.Context, s *loom.SharedState, _, execResult any) (string, error) {
			s.Set("input", execResult)
			return "default", nil
		}),
	)
}

// CircuitBreakerGroup manages multiple named circuit breakers.
type CircuitBreakerGroup struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewCircuitBreakerGroup creates a new circuit breaker group.
func NewCircuitBreakerGroup() *CircuitBreakerGroup {
	return &CircuitBreakerGroup{breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the circuit breaker named name, creating it with opts if it
// doesn't already exist.
func (g *CircuitBreakerGroup) Get(name string, opts ...CircuitOption) *CircuitBreaker {
	g.mu.RLock()
	cb, exists := g.breakers[name]
	g.mu.RUnlock()

	if exists {
		return cb
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, exists := g.breakers[name]; exists {
		return cb
	}

	cb = NewCircuitBreaker(name, opts...)
	g.breakers[name] = cb

	return cb
}

// GetAllMetrics returns metrics for every circuit breaker in the group.
func (g *CircuitBreakerGroup) GetAllMetrics() []CircuitMetrics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	metrics := make([]CircuitMetrics, 0, len(g.breakers))
	for _, cb := range g.breakers {
		metrics = append(metrics, cb.GetMetrics())
	}

	return metrics
}

// Reset closes every circuit breaker in the group and clears its failure
// count.
func (g *CircuitBreakerGroup) Reset() {
	g.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(g.breakers))
	for _, cb := range g.breakers {
		breakers = append(breakers, cb)
	}
	g.mu.RUnlock()

	for _, cb := range breakers {
		cb.mu.Lock()
		cb.state = StateClosed
		cb.failures = 0
		cb.mu.Unlock()
	}
}
