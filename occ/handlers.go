package occ

import "sync"

// CreatedHandler observes a successful channel build. Errors from all
// registered handlers are aggregated and surfaced to the operation that
// triggered the build.
type CreatedHandler func(info ChannelInformation) error

// DiscardedHandler observes a channel being removed from the holder, either
// after a failed operation or because it was found unusable before a
// rebuild. Finish does not fire it. Same aggregation rule as CreatedHandler.
type DiscardedHandler func(info ChannelInformation) error

// CreationFailedHandler observes a failed build attempt and votes on whether
// the holder should retry. All registered handlers run; the combined verdict
// is true iff every handler returns true and none error.
type CreationFailedHandler func(info FailedChannelInformation) (bool, error)

// OperationFailedHandler observes a failed channel operation and votes on
// whether the executor should rebuild and retry. Same combination rule as
// CreationFailedHandler.
type OperationFailedHandler func(info FailedChannelInformation) (bool, error)

// Handlers is the append-mostly registry of the four observer lists.
// Registration is safe to call concurrently with invocation: each
// invocation snapshots the relevant list before running it, so handlers
// added mid-call never run for that call, and removed handlers (via
// replacing the slice) never get a half-finished iteration.
type Handlers struct {
	mu               sync.RWMutex
	onCreated        []CreatedHandler
	onDiscarded      []DiscardedHandler
	onCreationFailed []CreationFailedHandler
	onOperationFailed []OperationFailedHandler
}

func (h *Handlers) OnCreated(fn CreatedHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCreated = append(h.onCreated, fn)
}

func (h *Handlers) OnDiscarded(fn DiscardedHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDiscarded = append(h.onDiscarded, fn)
}

func (h *Handlers) OnCreationFailed(fn CreationFailedHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCreationFailed = append(h.onCreationFailed, fn)
}

func (h *Handlers) OnOperationFailed(fn OperationFailedHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onOperationFailed = append(h.onOperationFailed, fn)
}

// fireCreated runs every on_created handler (registration order) and
// aggregates their errors. Later handlers run even if an earlier one fails.
func (h *Handlers) fireCreated(info ChannelInformation) error {
	h.mu.RLock()
	snapshot := append([]CreatedHandler(nil), h.onCreated...)
	h.mu.RUnlock()

	var errs []error
	for _, fn := range snapshot {
		if err := fn(info); err != nil {
			errs = append(errs, err)
		}
	}
	return aggregate(errs)
}

// fireDiscarded mirrors fireCreated for the on_discarded list.
func (h *Handlers) fireDiscarded(info ChannelInformation) error {
	h.mu.RLock()
	snapshot := append([]DiscardedHandler(nil), h.onDiscarded...)
	h.mu.RUnlock()

	var errs []error
	for _, fn := range snapshot {
		if err := fn(info); err != nil {
			errs = append(errs, err)
		}
	}
	return aggregate(errs)
}

// fireCreationFailed invokes every on_creation_failed handler with no
// short-circuit and combines the verdicts: true iff all handlers returned
// true and none errored. A handler error always forces the combined verdict
// false and is surfaced (aggregated) to the caller.
func (h *Handlers) fireCreationFailed(info FailedChannelInformation) (bool, error) {
	h.mu.RLock()
	snapshot := append([]CreationFailedHandler(nil), h.onCreationFailed...)
	h.mu.RUnlock()

	verdict := true
	var errs []error
	for _, fn := range snapshot {
		ok, err := fn(info)
		if err != nil {
			errs = append(errs, err)
			verdict = false
			continue
		}
		if !ok {
			verdict = false
		}
	}
	return verdict, aggregate(errs)
}

// fireOperationFailed mirrors fireCreationFailed for the on_operation_failed
// list.
func (h *Handlers) fireOperationFailed(info FailedChannelInformation) (bool, error) {
	h.mu.RLock()
	snapshot := append([]OperationFailedHandler(nil), h.onOperationFailed...)
	h.mu.RUnlock()

	verdict := true
	var errs []error
	for _, fn := range snapshot {
		ok, err := fn(info)
		if err != nil {
			errs = append(errs, err)
			verdict = false
			continue
		}
		if !ok {
			verdict = false
		}
	}
	return verdict, aggregate(errs)
}
