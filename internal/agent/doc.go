// Package agent owns the lifecycle of the single remote agent session.
//
// Ownership boundary:
// - the local view of "is a session established" (State)
// - start/stop decisions and conflict resolution
// - retry scheduling after a conflict
//
// Remote state is authoritative. Local state is discarded whenever a remote
// call cannot confirm it, so a failed call never blocks the next Start.
//
// Lifecycle:
// - Idle -> Starting -> Joined
// - Starting -> ConflictResolving -> RetryScheduled -> Starting
// - Starting | ConflictResolving -> Failed
// - Joined -> Stopping -> Idle
package agent
