package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DestroyCredentials invalidates every credential path the seller retains on
// an account: pending sign-in codes and all sessions other than the vaulted
// one. Attempts are audited individually; a prior successful attempt makes
// the call an idempotent no-op.
func (s *Service) DestroyCredentials(ctx context.Context, accountID string) (outcome DestroyOutcome, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"account_id": accountID,
	}
	defer func() {
		err = s.mapError(err)
		fields["outcome"] = string(outcome)
		s.observeOperation(ctx, startedAt, "destroy_credentials", err, fields)
	}()

	if s.accountStore == nil {
		return DestroyOutcomePermanent, ErrStoreNotConfigured
	}
	if s.networkClient == nil {
		return DestroyOutcomePermanent, ErrNetworkClientNotConfigured
	}

	accountID = strings.TrimSpace(accountID)
	record, err := s.accountStore.Get(ctx, accountID)
	if err != nil {
		return DestroyOutcomePermanent, err
	}
	fields["seller_id"] = record.SellerID

	if done, checkErr := s.alreadyDestroyed(ctx, accountID); checkErr != nil {
		return DestroyOutcomePermanent, checkErr
	} else if done {
		return DestroyOutcomeNoop, nil
	}

	session, err := s.OpenSession(ctx, accountID)
	if err != nil {
		return DestroyOutcomePermanent, err
	}

	// One audit entry per network attempt. The audit trail, not the record,
	// is the authoritative destroy history.
	attemptNum := record.DestroyAttempts
	policy := NewRetryPolicy(s.config.DestroyRetry)
	_, destroyErr := policy.Run(ctx, func(ctx context.Context) error {
		attemptNum++
		opErr := s.destroyOnce(ctx, session)
		attemptOutcome := DestroyOutcomeSucceeded
		detail := "sign-in codes invalidated, other sessions terminated"
		if opErr != nil {
			attemptOutcome = DestroyOutcomeTransient
			if !IsRetryableDestroyerFailure(opErr) {
				attemptOutcome = DestroyOutcomePermanent
			}
			detail = opErr.Error()
		}
		if auditErr := s.appendDestroyAudit(ctx, accountID, attemptNum, attemptOutcome, detail); auditErr != nil {
			s.logError(ctx, "destroy audit append failed", map[string]any{
				"account_id": accountID,
				"error":      auditErr.Error(),
			})
		}
		return opErr
	}, IsRetryableDestroyerFailure)

	totalAttempts := attemptNum
	if totalAttempts > record.DestroyAttempts {
		if recordErr := s.accountStore.RecordDestroyAttempts(ctx, accountID, totalAttempts); recordErr != nil {
			s.logError(ctx, "destroy attempt count persist failed", map[string]any{
				"account_id": accountID,
				"error":      recordErr.Error(),
			})
		}
	}
	outcome = DestroyOutcomeSucceeded
	detail := "sign-in codes invalidated, other sessions terminated"
	if destroyErr != nil {
		outcome = DestroyOutcomeTransient
		if !IsRetryableDestroyerFailure(destroyErr) {
			outcome = DestroyOutcomePermanent
		}
		detail = destroyErr.Error()
	}
	s.emitEvent(ctx, NewCredentialDestroyedEvent(accountID, totalAttempts, outcome, time.Now().UTC()))

	if destroyErr != nil {
		if setErr := s.accountStore.SetNeedsManualFix(ctx, accountID, detail); setErr != nil {
			s.logError(ctx, "manual fix flag failed", map[string]any{
				"account_id": accountID,
				"error":      setErr.Error(),
			})
		}
		if s.alerter != nil && (outcome == DestroyOutcomePermanent || totalAttempts >= s.config.DestroyAlertThreshold) {
			if alertErr := s.alerter.Alert(ctx, accountID, fmt.Sprintf("credential destroy failed after %d attempt(s): %s", totalAttempts, detail)); alertErr != nil {
				s.logError(ctx, "admin alert failed", map[string]any{
					"account_id": accountID,
					"error":      alertErr.Error(),
				})
			}
		}
		return outcome, destroyErr
	}
	return outcome, nil
}

// Transfer hands a sold account to its buyer. The seller's credentials must
// be destroyed first: the transition to transferred never happens on a
// failed destroy, so a buyer is never handed an account the seller can still
// reach.
func (s *Service) Transfer(ctx context.Context, accountID string) (pkg TransferPackage, record AccountRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"account_id": accountID,
	}
	defer func() {
		err = s.mapError(err)
		s.observeOperation(ctx, startedAt, "transfer", err, fields)
	}()

	if s.accountStore == nil {
		return TransferPackage{}, AccountRecord{}, ErrStoreNotConfigured
	}

	accountID = strings.TrimSpace(accountID)
	record, err = s.accountStore.Get(ctx, accountID)
	if err != nil {
		return TransferPackage{}, AccountRecord{}, err
	}
	fields["seller_id"] = record.SellerID
	if record.Status != AccountStatusSold {
		return TransferPackage{}, record, NewStaleTransitionError(
			fmt.Sprintf("account %s is %s, expected %s", record.ID, record.Status, AccountStatusSold),
		)
	}

	lease, err := s.locker.Acquire(ctx, accountID, s.config.LeaseTTL)
	if err != nil {
		return TransferPackage{}, record, err
	}
	defer func() {
		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			s.logError(ctx, "lease release failed", map[string]any{
				"account_id": accountID,
				"error":      releaseErr.Error(),
			})
		}
	}()

	outcome, err := s.DestroyCredentials(ctx, accountID)
	if err != nil {
		return TransferPackage{}, record, err
	}
	if !outcome.Succeeded() {
		return TransferPackage{}, record, NewDestroyerFailedError(
			fmt.Sprintf("destroy outcome %s blocks transfer", outcome), false,
		)
	}

	session, err := s.OpenSession(ctx, accountID)
	if err != nil {
		return TransferPackage{}, record, err
	}
	exported, err := session.ExportString()
	if err != nil {
		return TransferPackage{}, record, err
	}

	record, err = s.applyTransition(ctx, StatusUpdate{
		AccountID: accountID,
		Expected:  AccountStatusSold,
		Next:      AccountStatusTransferred,
		Reason:    "transferred to buyer",
	})
	if err != nil {
		return TransferPackage{}, record, err
	}
	s.releaseProxy(ctx, record)
	fields["account_status"] = string(record.Status)

	return TransferPackage{
		AccountID:     record.ID,
		SessionString: exported,
		PhoneNumber:   record.PhoneNumber,
		Checks:        record.Checks,
		Warnings:      append([]string(nil), record.Warnings...),
	}, record, nil
}

// ListDestroyAudit returns the attempt history for one account, oldest first.
func (s *Service) ListDestroyAudit(ctx context.Context, accountID string) ([]DestroyAuditEntry, error) {
	if s == nil || s.destroyAuditStore == nil {
		return nil, ErrStoreNotConfigured
	}
	entries, err := s.destroyAuditStore.ListByAccount(ctx, strings.TrimSpace(accountID))
	if err != nil {
		return nil, s.mapError(err)
	}
	return entries, nil
}

func (s *Service) alreadyDestroyed(ctx context.Context, accountID string) (bool, error) {
	if s.destroyAuditStore == nil {
		return false, nil
	}
	entries, err := s.destroyAuditStore.ListByAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.Outcome == DestroyOutcomeSucceeded {
			return true, nil
		}
	}
	return false, nil
}

// destroyOnce runs both destroy calls under the per-attempt timeout. Context
// deadline errors count as transient.
func (s *Service) destroyOnce(ctx context.Context, session CanonicalSession) error {
	attemptCtx := ctx
	if s.config.DestroyTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, s.config.DestroyTimeout)
		defer cancel()
	}
	if err := s.networkClient.InvalidateSignInCodes(attemptCtx, session); err != nil {
		return classifyDestroyError("invalidate sign-in codes", err)
	}
	if err := s.networkClient.TerminateOtherSessions(attemptCtx, session); err != nil {
		return classifyDestroyError("terminate other sessions", err)
	}
	return nil
}

func classifyDestroyError(stage string, err error) error {
	if IsDestroyerFailed(err) {
		return err
	}
	retryable := true
	if IsCorruptSession(err) || IsUnknownKeyVersion(err) {
		retryable = false
	}
	return NewDestroyerFailedError(fmt.Sprintf("%s: %v", stage, err), retryable)
}

func (s *Service) appendDestroyAudit(ctx context.Context, accountID string, attempt int, outcome DestroyOutcome, detail string) error {
	if s.destroyAuditStore == nil {
		return nil
	}
	return s.destroyAuditStore.Append(ctx, DestroyAuditEntry{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Attempt:   attempt,
		Outcome:   outcome,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
}
