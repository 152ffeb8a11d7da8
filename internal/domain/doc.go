// Package domain defines the core notification types and the interfaces shared between
// the delivery core and its adapters.
//
// No implementation code lives here. Interfaces sit on this side so that adapters
// (postgres, memory, redis, http) and the core packages (notify, cache, syncer, app)
// never import each other in a cycle.
package domain
