/*
Package readthrough serves full-table reads from an in-memory snapshot, refreshing it from the
backing Source when it has gone stale.

The Handler is transport agnostic: adapters (HTTP, Lambda) translate their native request into a
Request and write back the returned Response.

By default concurrent misses are not coordinated. Each one scans the source and stores its own
snapshot, and the last store wins. Setting Config.CoalesceRefresh changes this so that concurrent
misses share a single scan.
*/
package readthrough
