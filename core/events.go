package core

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventAccountStatusChanged = "sessionvault.account.status_changed"
	EventCredentialDestroyed  = "sessionvault.credential.destroyed"
	EventKeyRotated           = "sessionvault.key.rotated"
)

// OutboxEvent is one emitted lifecycle event, persisted before dispatch.
type OutboxEvent struct {
	ID            string
	Name          string
	AccountID     string
	Payload       map[string]any
	Attempts      int
	NextAttemptAt *time.Time
	LastError     string
	DispatchedAt  *time.Time
	CreatedAt     time.Time
}

func NewAccountStatusChangedEvent(accountID string, from, to AccountStatus, reason string, now time.Time) OutboxEvent {
	payload := map[string]any{
		"from_status": string(from),
		"to_status":   string(to),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	return OutboxEvent{
		ID:        uuid.NewString(),
		Name:      EventAccountStatusChanged,
		AccountID: accountID,
		Payload:   payload,
		CreatedAt: now.UTC(),
	}
}

func NewCredentialDestroyedEvent(accountID string, attempt int, outcome DestroyOutcome, now time.Time) OutboxEvent {
	return OutboxEvent{
		ID:        uuid.NewString(),
		Name:      EventCredentialDestroyed,
		AccountID: accountID,
		Payload: map[string]any{
			"attempt": attempt,
			"outcome": string(outcome),
		},
		CreatedAt: now.UTC(),
	}
}

func NewKeyRotatedEvent(oldVersion, newVersion int, retiredAt time.Time) OutboxEvent {
	return OutboxEvent{
		ID:   uuid.NewString(),
		Name: EventKeyRotated,
		Payload: map[string]any{
			"old_version": oldVersion,
			"new_version": newVersion,
			"retired_at":  retiredAt.UTC().Format(time.RFC3339),
		},
		CreatedAt: retiredAt.UTC(),
	}
}
