// Package dispatch starts queries against an agent host and demultiplexes
// the host's shared output feeds into per-query event streams.
//
// The host publishes stdout lines, stderr lines and completion codes on
// broadcast channels shared by every in-flight query. Lines for a query can
// arrive before its StartQuery call returns the query id, so the dispatcher
// subscribes first, buffers everything, and only starts filtering once the
// id is known.
package dispatch

import (
	"context"

	"github.com/FujiwaraChoki/mensa-sub000/agentwire"
)

// Line is one output line from the host, tagged with the query it
// belongs to.
type Line struct {
	QueryID string
	Text    string
}

// Completion is the terminal exit report for a query.
type Completion struct {
	QueryID string
	Code    int
}

// StartRequest describes one query to launch.
type StartRequest struct {
	// Workspace is the working directory the agent operates in.
	Workspace string

	// Prompt is the user's message for this turn.
	Prompt string

	// ConfigJSON optionally carries serialized query configuration for
	// the host process.
	ConfigJSON string

	// ResumeID optionally continues an existing host conversation.
	ResumeID string

	// HasAttachments signals that the prompt references attached files.
	HasAttachments bool

	// Correlation optionally supplies the session-owned correlation
	// table the classifier resolves tool results against. The dispatcher
	// creates a private table when none is given. Transports ignore it.
	Correlation *agentwire.CorrelationTable
}

// Transport is the boundary to the agent host. Implementations deliver
// output on shared broadcast channels; every subscriber sees every tuple
// and filters by QueryID.
//
// Subscribe calls return the feed channel and an unsubscribe function.
// Unsubscribing closes the channel.
type Transport interface {
	// StartQuery launches a query and returns its id. Output for the
	// query may be published before StartQuery returns.
	StartQuery(ctx context.Context, req StartRequest) (string, error)

	// CancelQuery asks the host to terminate a running query.
	CancelQuery(ctx context.Context, queryID string) error

	SubscribeStdout() (<-chan Line, func())
	SubscribeStderr() (<-chan Line, func())
	SubscribeCompletion() (<-chan Completion, func())
}
