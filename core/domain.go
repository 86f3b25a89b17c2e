package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidAccountStatusTransition = errors.New("core: invalid account status transition")
	ErrInvalidProxyAssignment         = errors.New("core: invalid proxy assignment")
	ErrAccountNotFound                = errors.New("core: account not found")
)

type AccountStatus string

const (
	AccountStatusUploaded      AccountStatus = "uploaded"
	AccountStatusImporting     AccountStatus = "importing"
	AccountStatusVerifying     AccountStatus = "verifying"
	AccountStatusPendingReview AccountStatus = "pending_review"
	AccountStatusApproved      AccountStatus = "approved"
	AccountStatusRejected      AccountStatus = "rejected"
	AccountStatusListed        AccountStatus = "listed"
	AccountStatusReserved      AccountStatus = "reserved"
	AccountStatusSold          AccountStatus = "sold"
	AccountStatusTransferred   AccountStatus = "transferred"
	AccountStatusExpired       AccountStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
// Terminal records are retained for audit, never deleted.
func (s AccountStatus) Terminal() bool {
	switch s {
	case AccountStatusRejected, AccountStatusTransferred, AccountStatusExpired:
		return true
	}
	return false
}

// AccountRecord is the aggregate root for one uploaded account. It is created
// on accepted upload and mutated only through guarded status transitions.
type AccountRecord struct {
	ID       string
	SellerID string
	BuyerID  string
	Status   AccountStatus

	// Encrypted canonical session. Payload is the sealed envelope, KeyVersion
	// identifies the keyring generation that sealed it.
	EncryptedPayload []byte
	KeyVersion       int
	SourceFormat     string

	PhoneNumber      string
	MessagingUserID  int64
	DCID             int
	Price            float64
	ProxyID          string
	ImportAttempts   int
	DestroyAttempts  int
	NeedsManualFix   bool
	StatusReason     string
	Checks           map[string]CheckResult
	Warnings         []string
	AdminReviewerID  string
	AdminNotes       string
	UploadedAt       time.Time
	ImportedAt       *time.Time
	VerifiedAt       *time.Time
	ReviewedAt       *time.Time
	ListedAt         *time.Time
	ReservedAt       *time.Time
	ReserveExpiresAt *time.Time
	SoldAt           *time.Time
	TransferredAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (a *AccountRecord) TransitionTo(status AccountStatus, reason string, now time.Time) error {
	if a == nil {
		return nil
	}
	if a.Status == status {
		a.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			a.StatusReason = strings.TrimSpace(reason)
		}
		return nil
	}
	if !accountTransitionAllowed(a.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidAccountStatusTransition, a.Status, status)
	}
	a.Status = status
	a.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		a.StatusReason = strings.TrimSpace(reason)
	}
	a.stampTransition(status, now)
	return nil
}

func (a *AccountRecord) stampTransition(status AccountStatus, now time.Time) {
	ts := now.UTC()
	switch status {
	case AccountStatusVerifying:
		a.ImportedAt = &ts
	case AccountStatusPendingReview:
		a.VerifiedAt = &ts
	case AccountStatusApproved, AccountStatusRejected:
		a.ReviewedAt = &ts
	case AccountStatusListed:
		if a.ListedAt == nil {
			a.ListedAt = &ts
		}
		// A released reservation returns the account with no buyer attached.
		a.BuyerID = ""
		a.ReservedAt = nil
		a.ReserveExpiresAt = nil
	case AccountStatusReserved:
		a.ReservedAt = &ts
	case AccountStatusSold:
		a.SoldAt = &ts
	case AccountStatusTransferred:
		a.TransferredAt = &ts
	}
}

func accountTransitionAllowed(current, next AccountStatus) bool {
	allowed := map[AccountStatus]map[AccountStatus]struct{}{
		AccountStatusUploaded: {
			AccountStatusImporting: {},
		},
		AccountStatusImporting: {
			AccountStatusVerifying: {},
			AccountStatusRejected:  {},
		},
		AccountStatusVerifying: {
			AccountStatusPendingReview: {},
			AccountStatusRejected:      {},
		},
		AccountStatusPendingReview: {
			AccountStatusApproved: {},
			AccountStatusRejected: {},
		},
		AccountStatusApproved: {
			AccountStatusListed: {},
		},
		AccountStatusListed: {
			AccountStatusReserved: {},
			AccountStatusExpired:  {},
		},
		AccountStatusReserved: {
			AccountStatusListed: {},
			AccountStatusSold:   {},
		},
		AccountStatusSold: {
			AccountStatusTransferred: {},
		},
		AccountStatusRejected:    {},
		AccountStatusTransferred: {},
		AccountStatusExpired:     {},
	}
	_, ok := allowed[current][next]
	return ok
}

// CheckResult captures one verification check outcome on the record.
type CheckResult struct {
	Name     string
	Passed   bool
	Fatal    bool
	Value    string
	Detail   string
	Attempts int
	RanAt    time.Time
}

type DestroyOutcome string

const (
	DestroyOutcomeSucceeded DestroyOutcome = "succeeded"
	DestroyOutcomeTransient DestroyOutcome = "transient_failure"
	DestroyOutcomePermanent DestroyOutcome = "permanent_failure"
	DestroyOutcomeNoop      DestroyOutcome = "already_destroyed"
)

// Succeeded reports whether the outcome ends the seller's access.
func (o DestroyOutcome) Succeeded() bool {
	return o == DestroyOutcomeSucceeded || o == DestroyOutcomeNoop
}

// DestroyAuditEntry is an immutable record of one destroyer attempt.
type DestroyAuditEntry struct {
	ID        string
	AccountID string
	Attempt   int
	Outcome   DestroyOutcome
	Detail    string
	CreatedAt time.Time
}

// Proxy is a shared egress configuration with a bounded account capacity.
type Proxy struct {
	ID        string
	Address   string
	Capacity  int
	Assigned  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Proxy) HasCapacity() bool {
	return p.Capacity <= 0 || p.Assigned < p.Capacity
}
