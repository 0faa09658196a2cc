// Package redis holds the go-redis adapters: the deduplication cache, the
// downstream event bus publisher, the shared app-token cache, and the client
// hooks for metrics and circuit breaking.
package redis
