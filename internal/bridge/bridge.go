package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Hephaestus/internal/models"
	"Hephaestus/pkg/circuitbreaker"
	"Hephaestus/pkg/logger"

	"github.com/google/uuid"
)

// HandlerFunc executes one request type against an external tool (diffusion
// pipeline, scene assembler, LLM backend, ...). Handlers run synchronously on
// the bridge worker; a slow handler delays everything queued behind it on the
// same bridge instance. That is the intended tradeoff: scale by running more
// bridge instances, never by adding workers to one.
type HandlerFunc func(ctx context.Context, payload map[string]interface{}) (interface{}, error)

// RequestEnvelope carries one submitted request through the queue. It is
// owned exclusively by the bridge from submission until its future resolves.
type RequestEnvelope struct {
	RequestID   string
	RequestType string
	Payload     map[string]interface{}
	SubmittedAt time.Time
	AgentID     string

	fingerprint string
	future      *ResultFuture
}

// Option configures a ToolchainBridge.
type Option func(*ToolchainBridge)

// WithCache sets the result cache consulted for cacheable request types.
func WithCache(c Cache) Option {
	return func(b *ToolchainBridge) { b.cache = c }
}

// WithCircuitBreaker wraps handler execution in a circuit breaker, so a
// persistently failing external tool fails fast instead of burning the worker.
func WithCircuitBreaker(cb circuitbreaker.CircuitBreaker) Option {
	return func(b *ToolchainBridge) { b.breaker = cb }
}

// WithLogger sets the bridge logger.
func WithLogger(log *logger.Logger) Option {
	return func(b *ToolchainBridge) { b.log = log }
}

// ToolchainBridge decouples slow external tool invocation from the caller's
// goroutine. Requests are queued and executed strictly in submission order by
// a single dedicated worker; callers get a ResultFuture back immediately.
// Results of cacheable request types are stored by content fingerprint and
// served without re-execution while fresh.
type ToolchainBridge struct {
	name    string
	queue   *RequestQueue
	cache   Cache
	breaker circuitbreaker.CircuitBreaker
	log     *logger.Logger

	mu        sync.RWMutex
	handlers  map[string]HandlerFunc
	cacheable map[string]bool
	inflight  map[string]*ResultFuture

	done         chan struct{}
	shutdownOnce sync.Once
}

// NewToolchainBridge creates a bridge and starts its worker goroutine.
func NewToolchainBridge(name string, opts ...Option) *ToolchainBridge {
	b := &ToolchainBridge{
		name:      name,
		queue:     NewRequestQueue(),
		handlers:  make(map[string]HandlerFunc),
		cacheable: make(map[string]bool),
		inflight:  make(map[string]*ResultFuture),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.cache == nil {
		b.cache = NewMemoryCache(10 * time.Minute)
	}
	if b.log == nil {
		b.log = logger.New("ToolchainBridge", "", name)
	}

	go b.worker()
	return b
}

// Name returns the bridge instance name.
func (b *ToolchainBridge) Name() string {
	return b.name
}

// RegisterHandler associates a request type with its handler. Registration
// must happen before the first request of that type is submitted.
// Re-registering overwrites the previous handler (last write wins).
func (b *ToolchainBridge) RegisterHandler(requestType string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registerLocked(requestType, handler)
}

// RegisterCacheableHandler registers a handler for an idempotent request type
// whose results may be served from the cache. The bridge owner is responsible
// for only marking request types whose results do not depend on when they run.
// The handler and the cacheable flag are set atomically, so a concurrent
// submit sees either neither or both.
func (b *ToolchainBridge) RegisterCacheableHandler(requestType string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registerLocked(requestType, handler)
	b.cacheable[requestType] = true
}

// registerLocked stores a handler. Caller must hold the lock.
func (b *ToolchainBridge) registerLocked(requestType string, handler HandlerFunc) {
	if _, exists := b.handlers[requestType]; exists {
		b.log.WithPayload(map[string]interface{}{"request_type": requestType}).
			Warn("Overwriting previously registered handler")
	}
	b.handlers[requestType] = handler
}

// SubmitRequest queues a request and returns its future immediately. For
// cacheable request types a fresh cached result resolves the future on the
// spot, with no queueing and no worker involvement; an identical request
// already in flight shares its future instead of queueing a duplicate.
// agentID is optional and only used for tracing.
func (b *ToolchainBridge) SubmitRequest(ctx context.Context, requestType string, payload map[string]interface{}, agentID string) (*ResultFuture, error) {
	b.mu.RLock()
	isCacheable := b.cacheable[requestType]
	b.mu.RUnlock()

	env := &RequestEnvelope{
		RequestID:   uuid.New().String(),
		RequestType: requestType,
		Payload:     payload,
		SubmittedAt: time.Now(),
		AgentID:     agentID,
		future:      NewResultFuture(),
	}

	if isCacheable {
		fp, err := Fingerprint(requestType, payload)
		if err != nil {
			return nil, err
		}
		env.fingerprint = fp

		if value, hit, err := b.cache.Get(ctx, fp); err != nil {
			b.log.WithRequest(env.RequestID).WithError(models.ErrorInfo{Kind: "cache_error", Message: err.Error()}).
				Warn("Cache lookup failed, executing request")
		} else if hit {
			return resolvedFuture(value), nil
		}

		b.mu.Lock()
		if pending, ok := b.inflight[fp]; ok {
			b.mu.Unlock()
			return pending, nil
		}
		b.inflight[fp] = env.future
		b.mu.Unlock()
	}

	if err := b.queue.Push(env); err != nil {
		if isCacheable {
			b.clearInflight(env.fingerprint)
		}
		return nil, err
	}
	return env.future, nil
}

// Shutdown stops the worker after it drains the already-queued requests,
// waiting up to timeout for it to finish. On timeout a warning is logged and
// the worker is left to finish on its own; it can never block process exit.
func (b *ToolchainBridge) Shutdown(timeout time.Duration) {
	b.shutdownOnce.Do(func() {
		b.queue.Close()
		select {
		case <-b.done:
		case <-time.After(timeout):
			b.log.WithPayload(map[string]interface{}{"pending": b.queue.Len()}).
				Warn("Bridge worker did not drain within shutdown timeout")
		}
	})
}

// worker is the single consumer of the queue. It must never crash: any
// handler error or panic is converted into a failed future so the requests
// queued behind it are not starved.
func (b *ToolchainBridge) worker() {
	defer close(b.done)
	for {
		env, ok := b.queue.Pop()
		if !ok {
			return
		}
		b.process(env)
	}
}

// process executes one envelope and resolves its future.
func (b *ToolchainBridge) process(env *RequestEnvelope) {
	if env.fingerprint != "" {
		defer b.clearInflight(env.fingerprint)
	}

	b.mu.RLock()
	handler, ok := b.handlers[env.RequestType]
	isCacheable := b.cacheable[env.RequestType]
	b.mu.RUnlock()

	log := b.log.WithRequest(env.RequestID)

	if !ok {
		log.WithError(models.ErrorInfo{Kind: "unknown_request_type", Message: env.RequestType}).
			Error("No handler registered for request")
		env.future.fail(fmt.Errorf("%w: %q", ErrUnknownRequestType, env.RequestType))
		return
	}

	ctx := context.Background()
	result, err := b.invoke(ctx, handler, env)
	if err != nil {
		execErr := &HandlerExecutionError{
			RequestType: env.RequestType,
			RequestID:   env.RequestID,
			Err:         err,
		}
		log.WithError(models.ErrorInfo{Kind: "handler_execution_error", Message: err.Error()}).
			WithPayload(map[string]interface{}{"request_type": env.RequestType, "agent_id": env.AgentID}).
			Error("Handler execution failed")
		env.future.fail(execErr)
		return
	}

	if isCacheable {
		if cacheErr := b.cache.Set(ctx, env.fingerprint, result); cacheErr != nil {
			log.WithError(models.ErrorInfo{Kind: "cache_error", Message: cacheErr.Error()}).
				Warn("Failed to cache result")
		}
	}
	env.future.resolve(result)
}

// invoke runs the handler, converting panics into errors and applying the
// circuit breaker when one is configured.
func (b *ToolchainBridge) invoke(ctx context.Context, handler HandlerFunc, env *RequestEnvelope) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	if b.breaker != nil {
		return b.breaker.Execute(func() (interface{}, error) {
			return handler(ctx, env.Payload)
		})
	}
	return handler(ctx, env.Payload)
}

func (b *ToolchainBridge) clearInflight(fingerprint string) {
	b.mu.Lock()
	delete(b.inflight, fingerprint)
	b.mu.Unlock()
}
