package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/occ/envelope"
	"github.com/hazyhaar/occ/occ"
)

type failingBuilder struct {
	calls     atomic.Int32
	failUntil int32
}

func (f *failingBuilder) BuildAndEstablish(ctx context.Context) (occ.Channel, error) {
	n := f.calls.Add(1)
	if n <= f.failUntil {
		return nil, errors.New("dial failed")
	}
	return &stubChannel{id: "resilient_ok"}, nil
}

// stubChannel is a minimal occ.Channel that only needs to carry an identity
// through a successful build; no test here exercises send/receive traffic.
type stubChannel struct{ id string }

func (s *stubChannel) SendMessage(context.Context, *envelope.Message) error           { return nil }
func (s *stubChannel) SendNotification(context.Context, *envelope.Notification) error { return nil }
func (s *stubChannel) SendCommand(context.Context, *envelope.Command) error           { return nil }
func (s *stubChannel) ReceiveMessage(context.Context) (*envelope.Message, error)      { return nil, nil }
func (s *stubChannel) ReceiveNotification(context.Context) (*envelope.Notification, error) {
	return nil, nil
}
func (s *stubChannel) ReceiveCommand(context.Context) (*envelope.Command, error) { return nil, nil }
func (s *stubChannel) SendFinishingSession(context.Context) error                { return nil }
func (s *stubChannel) ReceiveFinishedSession(context.Context) (*envelope.Session, error) {
	return nil, nil
}
func (s *stubChannel) SessionID() string        { return s.id }
func (s *stubChannel) State() envelope.State    { return envelope.StateEstablished }
func (s *stubChannel) IsConnected() bool        { return true }
func (s *stubChannel) Release() error           { return nil }

func TestResilientBuilder_RetriesThenSucceeds(t *testing.T) {
	inner := &failingBuilder{failUntil: 1}
	b := NewResilientBuilder(inner, WithResilientRetry(2, time.Millisecond))

	ch, err := b.BuildAndEstablish(context.Background())
	if err != nil {
		t.Fatalf("BuildAndEstablish: %v", err)
	}
	if ch.SessionID() != "resilient_ok" {
		t.Fatalf("unexpected channel: %+v", ch)
	}
	if inner.calls.Load() != 2 {
		t.Fatalf("expected 2 calls (1 failure + 1 success), got %d", inner.calls.Load())
	}
}

func TestResilientBuilder_ExhaustsRetries(t *testing.T) {
	inner := &failingBuilder{failUntil: 10}
	b := NewResilientBuilder(inner, WithResilientRetry(1, time.Millisecond))

	_, err := b.BuildAndEstablish(context.Background())
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if inner.calls.Load() != 2 {
		t.Fatalf("expected 2 calls (initial + 1 retry), got %d", inner.calls.Load())
	}
}
