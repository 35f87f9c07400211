// Package domain contains the core data model for topology correlation:
// normalized MAC addresses, per-source device observations, merged
// canonical devices, topology snapshots, and the error taxonomy shared
// by the discovery and caching layers.
//
// Types here are plain values. Observations are immutable once created;
// a Topology is replaced wholesale on refresh and never mutated in place.
package domain
