package occ

import (
	"context"
	"sync"
)

// holder guards the single optional underlying channel and coordinates its
// single-flight construction. At most one build_and_establish call is ever
// in flight; concurrent callers either observe the existing usable channel
// or serialize behind buildMu.
type holder struct {
	builder  Builder
	handlers *Handlers

	mu      sync.RWMutex // guards current
	current Channel

	buildMu sync.Mutex // serializes builder calls
}

func newHolder(b Builder, h *Handlers) *holder {
	return &holder{builder: b, handlers: h}
}

// usable reports whether ch is present, Established, and transport-connected.
func usable(ch Channel) bool {
	return ch != nil && isConnectedAndEstablished(ch)
}

// getChannel returns the current channel if usable, or builds a fresh one.
// It never returns a channel that is not Established and connected.
func (h *holder) getChannel(ctx context.Context) (Channel, error) {
	if ch := h.snapshotCurrent(); usable(ch) {
		return ch, nil
	} else if ch != nil {
		// A held channel that is no longer usable is discarded (released,
		// on_discarded fired) before a new one is built, unless another
		// goroutine has already replaced it.
		h.mu.Lock()
		stale := h.current == ch
		if stale {
			h.current = nil
		}
		h.mu.Unlock()
		if stale {
			info := channelInfo(ch)
			_ = ch.Release()
			if err := h.handlers.fireDiscarded(info); err != nil {
				return nil, &ErrHandlerFailed{Cause: err}
			}
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, &ErrCancelled{Cause: err}
		}

		h.buildMu.Lock()
		// Double-checked: another goroutine may have built one while we
		// waited for the lock.
		if ch := h.snapshotCurrent(); usable(ch) {
			h.buildMu.Unlock()
			return ch, nil
		}

		ch, err := h.builder.BuildAndEstablish(ctx)
		if err != nil {
			h.buildMu.Unlock()

			if ctx.Err() != nil {
				return nil, &ErrCancelled{Cause: ctx.Err()}
			}

			fci := FailedChannelInformation{
				IsConnected:   false,
				Err:           err,
				OperationName: "build_and_establish",
			}
			verdict, handlerErr := h.handlers.fireCreationFailed(fci)
			if handlerErr != nil {
				return nil, &ErrHandlerFailed{Cause: handlerErr}
			}
			if !verdict {
				return nil, &ErrBuildFailed{Cause: err}
			}
			continue // retry the build
		}

		h.setCurrent(ch)
		h.buildMu.Unlock()

		info := channelInfo(ch)
		if err := h.handlers.fireCreated(info); err != nil {
			return nil, &ErrHandlerFailed{Cause: err}
		}
		return ch, nil
	}
}

// discard removes the current channel (if any), releases it best-effort,
// and fires on_discarded with its pre-removal snapshot.
func (h *holder) discard(ctx context.Context) error {
	ch := h.clearCurrent()
	if ch == nil {
		return nil
	}

	info := channelInfo(ch)
	_ = ch.Release() // best-effort: release errors never block discard

	if err := h.handlers.fireDiscarded(info); err != nil {
		return &ErrHandlerFailed{Cause: err}
	}
	return nil
}

func (h *holder) snapshotCurrent() Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *holder) setCurrent(ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = ch
}

func (h *holder) clearCurrent() Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := h.current
	h.current = nil
	return ch
}
