// Package cache provides an in-process key/value cache with per-entry time-to-live.
//
// Expired entries are never returned. They are removed lazily on access and in bulk by
// EvictExpired, which the sync scheduler and the optional eviction timer call.
package cache
