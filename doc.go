// Package siridb provides the cluster-health core of a distributed
// time-series database node: a periodic heartbeat task that keeps peer
// connectivity self-healing.
//
// On a fixed interval, a single scheduled task traverses the node's view of
// known databases and, for each, the known peer servers belonging to that
// database, and re-establishes network connections to peers that are not
// currently connected.
//
// # Quick Start
//
//	cfg := siridb.DefaultConfig()
//	registry := cluster.NewRegistry()
//
//	db, _ := registry.AddDatabase("dbtest")
//	self, _ := db.AddServer("sirius-0", "10.0.0.1:9010")
//	db.SetSelf(self)
//	db.AddServer("sirius-1", "10.0.0.2:9010")
//
//	hb, err := siridb.New(&cfg, registry, connector.NewGRPC())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := hb.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer hb.Cancel()
//
// # Architecture
//
// The scheduler moves through a small status machine:
//
//	Pending → Running → Pending        (normal cycle)
//	Pending → Cancelled                (shutdown)
//	Running → Cancelled                (shutdown during a run)
//
// A tick that fires while a run is in flight is skipped rather than queued;
// the Pending/Running gate, not a lock around the traversal, guarantees at
// most one run at a time. The traversal works against ref-held snapshots of
// the membership collections so membership mutations are never blocked
// behind a slow connect and never tear objects down under the traversal.
//
// Sibling packages supply the collaborators: cluster holds the membership
// store, connector dials peers over gRPC, beacon publishes node liveness to
// NATS JetStream KV, and replicate drains per-database replication queues.
package siridb
