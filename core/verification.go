package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Verification check names. The fatal set is configuration; by default only
// the authorization check rejects outright.
const (
	CheckAuthorization   = "authorization"
	CheckFormatIntegrity = "format_integrity"
	CheckTwoFactor       = "two_factor"
	CheckActiveSessions  = "active_sessions"
	CheckFloodWait       = "flood_wait"
)

var ErrNetworkClientNotConfigured = errors.New("core: network client not configured")

// VerifyAccount runs the live-account checks against a record in verifying.
// A fatal check failure rejects the account; non-fatal failures route it to
// pending_review with warnings attached. Each check retries transient network
// errors under the verify budget.
func (s *Service) VerifyAccount(ctx context.Context, accountID string) (record AccountRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"account_id": accountID,
	}
	defer func() {
		err = s.mapError(err)
		s.observeOperation(ctx, startedAt, "verify_account", err, fields)
	}()

	if s.accountStore == nil {
		return AccountRecord{}, ErrStoreNotConfigured
	}
	if s.networkClient == nil {
		return AccountRecord{}, ErrNetworkClientNotConfigured
	}

	record, err = s.accountStore.Get(ctx, strings.TrimSpace(accountID))
	if err != nil {
		return AccountRecord{}, err
	}
	fields["seller_id"] = record.SellerID
	if record.Status != AccountStatusVerifying {
		return record, NewStaleTransitionError(
			fmt.Sprintf("account %s is %s, expected %s", record.ID, record.Status, AccountStatusVerifying),
		)
	}

	lease, err := s.locker.Acquire(ctx, record.ID, s.config.LeaseTTL)
	if err != nil {
		return record, err
	}
	defer func() {
		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			s.logError(ctx, "lease release failed", map[string]any{
				"account_id": record.ID,
				"error":      releaseErr.Error(),
			})
		}
	}()

	session, err := s.OpenSession(ctx, record.ID)
	if err != nil {
		return record, err
	}

	checks, warnings := s.runChecks(ctx, session)
	record, err = s.settleVerification(ctx, record, checks, warnings)
	if err != nil {
		return record, err
	}
	fields["account_status"] = string(record.Status)
	return record, nil
}

func (s *Service) runChecks(ctx context.Context, session CanonicalSession) (map[string]CheckResult, []string) {
	policy := NewRetryPolicy(s.config.VerifyRetry)
	verification := s.config.Verification
	checks := map[string]CheckResult{}

	run := func(name string, op func(ctx context.Context) (passed bool, value string, detail string, err error)) {
		var passed bool
		var value, detail string
		attempts, err := policy.Run(ctx, func(ctx context.Context) error {
			var opErr error
			passed, value, detail, opErr = op(ctx)
			return opErr
		}, func(error) bool { return true })

		result := CheckResult{
			Name:     name,
			Passed:   passed && err == nil,
			Fatal:    verification.IsFatal(name),
			Value:    value,
			Detail:   detail,
			Attempts: attempts,
			RanAt:    time.Now().UTC(),
		}
		if err != nil {
			result.Detail = err.Error()
		}
		checks[name] = result
	}

	run(CheckFormatIntegrity, func(context.Context) (bool, string, string, error) {
		if err := session.Validate(); err != nil {
			return false, "", err.Error(), nil
		}
		return true, "", "", nil
	})
	run(CheckAuthorization, func(ctx context.Context) (bool, string, string, error) {
		if err := s.networkClient.CheckAuthorization(ctx, session); err != nil {
			if IsVerificationFailed(err) {
				return false, "", err.Error(), nil
			}
			return false, "", "", err
		}
		return true, "", "", nil
	})
	run(CheckTwoFactor, func(ctx context.Context) (bool, string, string, error) {
		enabled, err := s.networkClient.TwoFactorEnabled(ctx, session)
		if err != nil {
			return false, "", "", err
		}
		if verification.RequireTwoFactor && !enabled {
			return false, "false", "two-factor not enabled", nil
		}
		return true, fmt.Sprintf("%t", enabled), "", nil
	})
	run(CheckActiveSessions, func(ctx context.Context) (bool, string, string, error) {
		count, err := s.networkClient.ActiveSessionCount(ctx, session)
		if err != nil {
			return false, "", "", err
		}
		if verification.MaxActiveSessions > 0 && count > verification.MaxActiveSessions {
			return false, fmt.Sprintf("%d", count), "other active sessions present", nil
		}
		return true, fmt.Sprintf("%d", count), "", nil
	})
	run(CheckFloodWait, func(ctx context.Context) (bool, string, string, error) {
		wait, err := s.networkClient.FloodWait(ctx, session)
		if err != nil {
			return false, "", "", err
		}
		if verification.MaxFloodWait > 0 && wait > verification.MaxFloodWait {
			return false, wait.String(), "flood wait exceeds limit", nil
		}
		return true, wait.String(), "", nil
	})

	var warnings []string
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		result := checks[name]
		if result.Passed || result.Fatal {
			continue
		}
		warning := name + " check failed"
		if strings.TrimSpace(result.Detail) != "" {
			warning += ": " + result.Detail
		}
		warnings = append(warnings, warning)
	}
	return checks, warnings
}

func (s *Service) settleVerification(ctx context.Context, record AccountRecord, checks map[string]CheckResult, warnings []string) (AccountRecord, error) {
	for _, result := range checks {
		if result.Fatal && !result.Passed {
			updated, err := s.applyTransition(ctx, StatusUpdate{
				AccountID: record.ID,
				Expected:  AccountStatusVerifying,
				Next:      AccountStatusRejected,
				Reason:    fmt.Sprintf("%s check failed", result.Name),
				Checks:    checks,
				Warnings:  warnings,
			})
			if err != nil {
				return record, err
			}
			return updated, NewVerificationFailedError(fmt.Sprintf("%s check failed", result.Name), true)
		}
	}

	reason := "verification passed"
	if len(warnings) > 0 {
		reason = fmt.Sprintf("verification passed with %d warning(s)", len(warnings))
	}
	return s.applyTransition(ctx, StatusUpdate{
		AccountID: record.ID,
		Expected:  AccountStatusVerifying,
		Next:      AccountStatusPendingReview,
		Reason:    reason,
		Checks:    checks,
		Warnings:  warnings,
	})
}
