// Package occ implements the on-demand client channel: a façade that lazily
// builds an underlying authenticated session channel, serves send/receive/
// process operations through it, detects failures, and rebuilds the channel
// while preserving concurrent-caller correctness.
//
// The package owns no transport. Builder and Channel are collaborator
// interfaces satisfied by the session package (or a test double); occ only
// coordinates their lifecycle.
package occ

import "github.com/hazyhaar/occ/envelope"

// ChannelInformation is an immutable snapshot of a channel's identity,
// taken at the moment it is created or discarded.
type ChannelInformation struct {
	ID    string
	State envelope.State
}

// FailedChannelInformation is passed to creation/operation failure handlers.
// IsConnected is true only if a channel existed, its transport reported
// connected, and its state was Established at the moment of failure.
type FailedChannelInformation struct {
	ID            string // empty if the build failed before an id was assigned
	HasID         bool
	State         envelope.State
	HasState      bool
	IsConnected   bool
	Err           error
	OperationName string
}
