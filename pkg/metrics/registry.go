// Package metrics exposes Prometheus instrumentation for the worker,
// organized by the subsystem that owns each metric.
package metrics

import "sync"

// Category names the subsystem a metric belongs to.
type Category string

const (
	CategoryDispatcher Category = "dispatcher"
	CategoryExecutor   Category = "executor"
	CategoryBreaker    Category = "breaker"
	CategoryCredential Category = "credential"
	CategoryRepository Category = "repository"
	CategoryRunner     Category = "runner"
)

// Registry lazily constructs and holds one metrics struct per category,
// all registered under a single Prometheus namespace.
type Registry struct {
	namespace string

	dispatcher *DispatcherMetrics
	executor   *ExecutorMetrics
	breaker    *BreakerMetrics
	credential *CredentialMetrics
	repository *RepositoryMetrics
	runner     *RunnerMetrics

	dispatcherOnce sync.Once
	executorOnce   sync.Once
	breakerOnce    sync.Once
	credentialOnce sync.Once
	repositoryOnce sync.Once
	runnerOnce     sync.Once
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry under the "netraven"
// namespace, constructing it on first use.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry("netraven")
	})
	return defaultRegistry
}

// NewRegistry creates a registry under the given namespace. Tests that need
// isolated Prometheus collectors should construct their own registry with a
// unique namespace rather than sharing DefaultRegistry.
func NewRegistry(namespace string) *Registry {
	return &Registry{namespace: namespace}
}

// Namespace returns the Prometheus namespace this registry publishes under.
func (r *Registry) Namespace() string {
	return r.namespace
}

// Dispatcher returns the queue-depth / worker-utilization metrics.
func (r *Registry) Dispatcher() *DispatcherMetrics {
	r.dispatcherOnce.Do(func() {
		r.dispatcher = newDispatcherMetrics(r.namespace)
	})
	return r.dispatcher
}

// Executor returns the per-attempt state-machine metrics.
func (r *Registry) Executor() *ExecutorMetrics {
	r.executorOnce.Do(func() {
		r.executor = newExecutorMetrics(r.namespace)
	})
	return r.executor
}

// Breaker returns the per-device circuit breaker metrics.
func (r *Registry) Breaker() *BreakerMetrics {
	r.breakerOnce.Do(func() {
		r.breaker = newBreakerMetrics(r.namespace)
	})
	return r.breaker
}

// Credential returns credential resolution and verification metrics.
func (r *Registry) Credential() *CredentialMetrics {
	r.credentialOnce.Do(func() {
		r.credential = newCredentialMetrics(r.namespace)
	})
	return r.credential
}

// Repository returns configuration-repository commit metrics.
func (r *Registry) Repository() *RepositoryMetrics {
	r.repositoryOnce.Do(func() {
		r.repository = newRepositoryMetrics(r.namespace)
	})
	return r.repository
}

// Runner returns job-run outcome metrics.
func (r *Registry) Runner() *RunnerMetrics {
	r.runnerOnce.Do(func() {
		r.runner = newRunnerMetrics(r.namespace)
	})
	return r.runner
}
