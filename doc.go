// Package pluralkit maintains a node's slice of a clustered gateway shard
// fleet.
//
// A cluster of identical node processes splits the platform's shard ID space
// deterministically: every node derives its contiguous shard range from the
// shared (totalNodes, totalShards, nodeIndex) topology with no runtime
// coordination. Each owned shard runs a persistent websocket connection
// through the identify/resume handshake, heartbeats, and jittered reconnect
// backoff. Identify attempts across the whole cluster are serialized per
// concurrency bucket by a session-start rate limiter, and entities decoded
// from dispatch events land in a pluggable last-writer-wins cache. Both the
// limiter and the cache ship local in-process backends for single-node use
// and NATS JetStream KV backends for clusters.
//
// Basic usage:
//
//	cfg := pluralkit.DefaultConfig()
//	cfg.Token = token
//	cfg.TotalNodes, cfg.TotalShards, cfg.NodeIndex = 4, 64, nodeIndex
//
//	backends, err := pluralkit.NewSharedBackends(ctx, natsConn, &cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	mgr, err := pluralkit.NewManager(&cfg, handler,
//	    pluralkit.WithCache(backends.Cache),
//	    pluralkit.WithRateLimiter(backends.Limiter),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := mgr.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package pluralkit
