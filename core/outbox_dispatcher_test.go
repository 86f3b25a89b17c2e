package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu        sync.Mutex
	published []OutboxEvent
	publishFn func(ctx context.Context, event OutboxEvent) error
}

func (s *captureSink) Publish(ctx context.Context, event OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishFn != nil {
		if err := s.publishFn(ctx, event); err != nil {
			return err
		}
	}
	s.published = append(s.published, event)
	return nil
}

func TestNewOutboxDispatcher_RequiresStore(t *testing.T) {
	if _, err := NewOutboxDispatcher(nil, nil, OutboxDispatcherConfig{}); err == nil {
		t.Fatal("expected error without store")
	}
}

func TestOutboxDispatcher_DeliversPendingEvents(t *testing.T) {
	store := &memoryOutboxStore{}
	sink := &captureSink{}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		store.Enqueue(ctx, NewAccountStatusChangedEvent("acct-1", AccountStatusUploaded, AccountStatusImporting, "step", time.Now().UTC()))
	}

	dispatcher, err := NewOutboxDispatcher(store, []EventSink{sink}, OutboxDispatcherConfig{})
	if err != nil {
		t.Fatalf("NewOutboxDispatcher() error = %v", err)
	}

	stats, err := dispatcher.DispatchPending(ctx, 10)
	if err != nil {
		t.Fatalf("DispatchPending() error = %v", err)
	}
	if stats.Claimed != 3 || stats.Delivered != 3 || stats.Retried != 0 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(sink.published) != 3 {
		t.Fatalf("published = %d, want 3", len(sink.published))
	}

	// Everything acked; a second pass claims nothing.
	stats, err = dispatcher.DispatchPending(ctx, 10)
	if err != nil {
		t.Fatalf("DispatchPending() error = %v", err)
	}
	if stats.Claimed != 0 {
		t.Fatalf("stats = %+v, want empty second pass", stats)
	}
}

func TestOutboxDispatcher_FailedDeliveryReschedulesWithBackoff(t *testing.T) {
	store := &memoryOutboxStore{}
	sink := &captureSink{
		publishFn: func(context.Context, OutboxEvent) error {
			return errors.New("sink offline")
		},
	}
	ctx := context.Background()
	store.Enqueue(ctx, NewKeyRotatedEvent(1, 2, time.Now().UTC()))

	dispatcher, err := NewOutboxDispatcher(store, []EventSink{sink}, OutboxDispatcherConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Minute,
		MaxBackoff:     time.Hour,
	})
	if err != nil {
		t.Fatalf("NewOutboxDispatcher() error = %v", err)
	}

	stats, err := dispatcher.DispatchPending(ctx, 10)
	if err == nil {
		t.Fatal("DispatchPending() expected delivery error")
	}
	if stats.Claimed != 1 || stats.Retried != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	store.mu.Lock()
	event := store.events[0]
	store.mu.Unlock()
	if event.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", event.Attempts)
	}
	if event.LastError == "" {
		t.Fatal("LastError not recorded")
	}
	if event.NextAttemptAt == nil || !event.NextAttemptAt.After(time.Now().UTC().Add(30*time.Second)) {
		t.Fatalf("NextAttemptAt = %v, want a backoff in the future", event.NextAttemptAt)
	}

	// Not yet due; a second pass skips it.
	stats, _ = dispatcher.DispatchPending(ctx, 10)
	if stats.Claimed != 0 {
		t.Fatalf("stats = %+v, event should be parked until backoff elapses", stats)
	}
}

func TestOutboxDispatcher_ExhaustedAttemptsParkTerminally(t *testing.T) {
	store := &memoryOutboxStore{}
	sink := &captureSink{
		publishFn: func(context.Context, OutboxEvent) error {
			return errors.New("sink offline")
		},
	}
	ctx := context.Background()
	event := NewCredentialDestroyedEvent("acct-1", 3, DestroyOutcomeTransient, time.Now().UTC())
	event.Attempts = 4
	store.Enqueue(ctx, event)

	dispatcher, err := NewOutboxDispatcher(store, []EventSink{sink}, OutboxDispatcherConfig{MaxAttempts: 5})
	if err != nil {
		t.Fatalf("NewOutboxDispatcher() error = %v", err)
	}

	stats, err := dispatcher.DispatchPending(ctx, 10)
	if err == nil {
		t.Fatal("DispatchPending() expected delivery error")
	}
	if stats.Failed != 1 || stats.Retried != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestOutboxDispatcher_PartialSinkFailureStopsAck(t *testing.T) {
	store := &memoryOutboxStore{}
	good := &captureSink{}
	bad := &captureSink{
		publishFn: func(context.Context, OutboxEvent) error {
			return errors.New("bot webhook 502")
		},
	}
	ctx := context.Background()
	store.Enqueue(ctx, NewAccountStatusChangedEvent("acct-1", AccountStatusListed, AccountStatusReserved, "", time.Now().UTC()))

	dispatcher, err := NewOutboxDispatcher(store, []EventSink{good, bad}, OutboxDispatcherConfig{})
	if err != nil {
		t.Fatalf("NewOutboxDispatcher() error = %v", err)
	}

	stats, dispatchErr := dispatcher.DispatchPending(ctx, 10)
	if dispatchErr == nil {
		t.Fatal("DispatchPending() expected error from failing sink")
	}
	if stats.Delivered != 0 {
		t.Fatalf("stats = %+v, event must not ack on partial failure", stats)
	}

	store.mu.Lock()
	dispatched := store.events[0].DispatchedAt
	store.mu.Unlock()
	if dispatched != nil {
		t.Fatal("event acked despite failing sink")
	}
}

func TestOutboxDispatcher_BackoffDelayCapsAtMax(t *testing.T) {
	store := &memoryOutboxStore{}
	dispatcher, err := NewOutboxDispatcher(store, nil, OutboxDispatcherConfig{
		InitialBackoff: time.Minute,
		MaxBackoff:     10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewOutboxDispatcher() error = %v", err)
	}
	if got := dispatcher.nextBackoffDelay(1); got != time.Minute {
		t.Fatalf("nextBackoffDelay(1) = %v", got)
	}
	if got := dispatcher.nextBackoffDelay(3); got != 4*time.Minute {
		t.Fatalf("nextBackoffDelay(3) = %v", got)
	}
	if got := dispatcher.nextBackoffDelay(20); got != 10*time.Minute {
		t.Fatalf("nextBackoffDelay(20) = %v", got)
	}
}
