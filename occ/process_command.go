package occ

import (
	"context"
	"errors"

	"github.com/hazyhaar/occ/envelope"
)

// ErrInvalidRequest is returned by ProcessCommand when request.ID is empty.
var ErrInvalidRequest = errors.New("occ: process_command request must have a non-empty id")

// UnrelatedCommandHandler receives a command response whose id does not
// match the request id currently being awaited by ProcessCommand.
type UnrelatedCommandHandler func(cmd *envelope.Command)

// ProcessCommand layers a synchronous request/response exchange on top of
// raw send/receive: it sends request, then repeatedly receives commands
// until one with a matching id arrives. Non-matching commands are handed to
// unrelated (if non-nil); otherwise a protocol violation is raised and
// surfaced through the normal operation-failure path, so on_operation_failed
// can still decide whether to rebuild and retry the whole exchange.
//
// Policy for in-flight duplication: once the send has succeeded, the core
// never sends the request again. If a failed send causes a rebuild, the
// send is retried on the new channel; if the matching receive causes a
// rebuild, the retry resumes at the receive step on the new channel without
// re-sending. Re-sending after such a rebuild is left to the caller.
func (o *OCC) ProcessCommand(ctx context.Context, request *envelope.Command, unrelated UnrelatedCommandHandler) (*envelope.Command, error) {
	if request == nil || request.ID == "" {
		return nil, ErrInvalidRequest
	}

	sent := false
	return executeOp(ctx, o, "process_command", true, func(ctx context.Context, ch Channel) (*envelope.Command, error) {
		if !sent {
			if err := ch.SendCommand(ctx, request); err != nil {
				return nil, err
			}
			sent = true
		}

		for {
			resp, err := ch.ReceiveCommand(ctx)
			if err != nil {
				return nil, err
			}
			if resp.ID == request.ID {
				return resp, nil
			}
			if unrelated != nil {
				unrelated(resp)
				continue
			}
			return nil, &ErrProtocolViolation{
				Detail: "received command id " + resp.ID + ", expected " + request.ID,
			}
		}
	})
}
