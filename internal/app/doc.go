// Package app provides the application service layer.
//
// Orchestrates use cases: creating and broadcasting notifications, listing and marking
// them read, and the background refresh of cached notification lists.
// Sits between HTTP handlers and domain repositories. Depends on domain interfaces, not concrete implementations.
package app
