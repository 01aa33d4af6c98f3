// Package redis offers live-audience primitives for the arena runtime:
// cross-node spectator counting and a short-TTL cache of sanitized
// spectator views. Both degrade gracefully when the server is away.
package redis
