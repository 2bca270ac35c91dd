// Package resilience wraps provider calls with retry, circuit breaking and
// response caching. Each layer implements the same Invoker interface so the
// client factory can stack them: adapter -> retry -> breaker -> cache.
package resilience
