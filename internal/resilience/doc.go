// Package resilience holds the runtime safety controls shared by the gate's
// transports and storage backends: token-bucket rate limiting for callers,
// bounded exponential retry for optimistic-concurrency conflicts and a
// circuit breaker for flaky collaborators such as the balance oracle.
package resilience
