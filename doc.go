// Package stash provides a durable store for in-flight messages.
//
// Stash is a library, not a service. It persists individual messages so they
// survive process restarts, and aggregates related messages into groups keyed
// by a correlation ID, for claim-check and aggregator style pipelines.
//
// Key features:
//   - Identity-preserving persistence: a message keeps its producer-assigned ID
//   - Idempotent re-adds: re-adding unchanged content is a no-op
//   - Region isolation: one backend, many fully isolated partitions
//   - Message groups with insertion order and per-member marking
//   - Time-based group expiry, with an optional cron-driven reaper
//   - Composable backends (Postgres, SQLite, MongoDB, Redis, NATS KV, Memory)
//
// Quick start:
//
//	s, err := stash.New(
//	    stash.WithBackend(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	saved, err := s.AddMessage(ctx, message.New([]byte("claim")))
//	...
//	s.AddMessageToGroup(ctx, "order-42", message.New([]byte("line 1")))
//	g, err := s.GetMessageGroup(ctx, "order-42")
//
// A Store handle is bound to one region for its whole life. Use InRegion to
// obtain a handle for another region; handles may be shared across
// goroutines.
package stash
