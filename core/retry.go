package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultLeaseTTL       = 30 * time.Second
)

// BackoffScheduler yields the delay before a given retry attempt.
type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// RetryPolicy is the bounded-retry policy shared by the import, verification
// and destroyer paths so retry semantics stay uniform and testable.
type RetryPolicy struct {
	MaxAttempts int
	Scheduler   BackoffScheduler
}

func NewRetryPolicy(cfg RetryConfig) RetryPolicy {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Scheduler: ExponentialBackoffScheduler{
			Initial: cfg.InitialBackoff,
			Max:     cfg.MaxBackoff,
		},
	}
}

// Run invokes op until it succeeds, exhausts the attempt budget, or the
// classifier reports the error as not retryable. It returns the attempt count
// alongside the final error.
func (p RetryPolicy) Run(ctx context.Context, op func(ctx context.Context) error, retryable func(error) bool) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	scheduler := p.Scheduler
	if scheduler == nil {
		scheduler = ExponentialBackoffScheduler{}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if retryable != nil && !retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(scheduler.NextDelay(attempt)):
		}
	}
	return maxAttempts, lastErr
}

// MemoryAccountLocker is the in-process AccountLocker. Leases carry a TTL: an
// expired lease can be re-acquired even if never released, so a crashed
// worker cannot permanently wedge an account.
type MemoryAccountLocker struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

func NewMemoryAccountLocker() *MemoryAccountLocker {
	return &MemoryAccountLocker{
		leases: map[string]time.Time{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryAccountLocker) Acquire(ctx context.Context, accountID string, ttl time.Duration) (LeaseHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: account locker is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(accountID)
	if trimmed == "" {
		return nil, fmt.Errorf("core: account id is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if expiry, held := l.leases[trimmed]; held && now.Before(expiry) {
		return nil, fmt.Errorf("core: lease already held for account %q", trimmed)
	}
	expiry := now.Add(ttl)
	l.leases[trimmed] = expiry
	return &memoryLease{locker: l, accountID: trimmed, expiry: expiry}, nil
}

type memoryLease struct {
	locker    *MemoryAccountLocker
	accountID string
	expiry    time.Time
	released  bool
	mu        sync.Mutex
}

func (h *memoryLease) Release(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true

	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()
	// Only clear our own lease; a post-expiry re-acquire owns the slot now.
	if expiry, held := h.locker.leases[h.accountID]; held && expiry.Equal(h.expiry) {
		delete(h.locker.leases, h.accountID)
	}
	return nil
}
