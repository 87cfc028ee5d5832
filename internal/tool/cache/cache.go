// Package cache stores serialised tool results so that repeated idempotent
// tool calls with identical arguments skip the upstream API.
//
// Two implementations are provided: [Memory] for a single process and
// [Redis] for deployments that share a cache between replicas. Cache errors
// never fail a tool call; a broken cache behaves like an empty one.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Cache is a byte-oriented TTL cache.
type Cache interface {
	// Get returns the value stored under key and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores val under key for ttl. A non-positive ttl is a no-op.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

// Key returns the cache key for a call to tool with args. Arguments are
// canonicalised first so that key order and whitespace do not matter;
// arguments that are not valid JSON are hashed verbatim.
func Key(tool string, args json.RawMessage) string {
	canonical := []byte(args)
	var v any
	if err := json.Unmarshal(args, &v); err == nil {
		if b, err := json.Marshal(v); err == nil {
			canonical = b
		}
	}
	sum := sha256.Sum256(canonical)
	return "tool:" + tool + ":" + hex.EncodeToString(sum[:])
}
