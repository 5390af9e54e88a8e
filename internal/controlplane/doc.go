// Package controlplane talks to the remote conversational-agent control plane.
//
// Ownership boundary:
// - credential encoding (Basic auth token)
// - the three remote operations: join, leave, list-active
// - response classification for each operation
// - create-session request document construction
//
// controlplane never retries and never holds session state. Retry policy and
// the "is a session established" decision belong to package agent.
package controlplane
