// Package confstream is a versioned configuration management engine,
// delivered as an in-process library.
//
// # Architecture
//
// The engine is built from small composable packages orchestrated by one
// manager:
//
//	┌─────────────────────────────────────┐
//	│      config.Manager                 │  get / update / rollback /
//	│  (orchestration, per-name locks)    │  track changes
//	└─────────────────────────────────────┘
//	      │           │            │
//	      ↓           ↓            ↓
//	┌──────────┐ ┌──────────┐ ┌──────────┐
//	│ validate │ │ pkg/cache│ │ eventbus │   rule sets on a bounded
//	│  + pool  │ │  (LRU)   │ │ (pub/sub)│   pool, LRU reads, change
//	└──────────┘ └──────────┘ └──────────┘   fan-out
//	      │
//	      ↓
//	┌─────────────────────────────────────┐
//	│      storage.Store                  │  append-only version history
//	│  (memstore | natsstore on JetStream)│  per configuration name
//	└─────────────────────────────────────┘
//
// Every accepted update mints a new immutable version; rollback reinstates a
// historical payload under a fresh version, so history is never rewritten.
// Updates are validated by composable validators that aggregate every error
// instead of stopping at the first, and each accepted change is published on
// the event bus under "config.<name>".
//
// # Packages
//
// Core:
//   - config: the configuration manager
//   - types: ConfigSpec, ConfigChange, checksums, serialization
//   - validate: validation framework and declarative YAML rules
//   - storage, storage/memstore, storage/natsstore: version persistence
//
// Infrastructure:
//   - pool: bounded-concurrency operation pool
//   - eventbus: pattern-matched change event fan-out
//   - natsclient: NATS connection management and JetStream KV access
//   - metric: Prometheus metrics registry
//   - errors: structured error handling
//   - pkg/cache: LRU caching
//   - pkg/retry: retry policies
//
// # Usage
//
//	store := memstore.New()
//	mgr, _ := config.NewManager(store,
//	    config.WithRules(rules),
//	    config.WithCacheSize(256),
//	)
//	defer mgr.Close()
//
//	spec, err := mgr.UpdateConfig(ctx, &types.ConfigSpec{
//	    Name: "server",
//	    Data: map[string]any{"port": 8080},
//	})
//
//	sub, _ := mgr.TrackChanges()
//	for change := range sub.C {
//	    log.Printf("%s: v%d -> v%d", change.Name, change.OldVersion, change.NewVersion)
//	}
//
// For durable storage, back the manager with natsstore over a NATS JetStream
// KV bucket; integration tests run against a containerized server via
// natsclient.TestClient.
package confstream
