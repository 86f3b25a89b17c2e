package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ApplyReview records the admin decision on a pending_review account.
func (s *Service) ApplyReview(ctx context.Context, signal ReviewSignal) (record AccountRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"account_id":  signal.AccountID,
		"reviewer_id": signal.ReviewerID,
		"approve":     signal.Approve,
	}
	defer func() {
		err = s.mapError(err)
		s.observeOperation(ctx, startedAt, "apply_review", err, fields)
	}()

	if s.accountStore == nil {
		return AccountRecord{}, ErrStoreNotConfigured
	}
	if strings.TrimSpace(signal.AccountID) == "" {
		return AccountRecord{}, newVaultError("account id is required", goerrors.CategoryBadInput, VaultErrorBadInput)
	}
	if strings.TrimSpace(signal.ReviewerID) == "" {
		return AccountRecord{}, newVaultError("reviewer id is required", goerrors.CategoryBadInput, VaultErrorBadInput)
	}

	next := AccountStatusApproved
	reason := strings.TrimSpace(signal.Reason)
	if !signal.Approve {
		next = AccountStatusRejected
		if reason == "" {
			return AccountRecord{}, newVaultError("rejection reason is required", goerrors.CategoryBadInput, VaultErrorBadInput)
		}
	}
	if reason == "" {
		reason = "approved by " + strings.TrimSpace(signal.ReviewerID)
	}

	record, err = s.applyTransition(ctx, StatusUpdate{
		AccountID: signal.AccountID,
		Expected:  AccountStatusPendingReview,
		Next:      next,
		Reason:    reason,
	})
	if err != nil {
		return record, err
	}
	fields["account_status"] = string(record.Status)
	return record, nil
}

// AttachPrice lists an approved account. A proxy slot is acquired so the
// listed session has an egress route distinct from its neighbors.
func (s *Service) AttachPrice(ctx context.Context, input AttachPriceInput) (record AccountRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"account_id": input.AccountID,
		"price":      input.Price,
	}
	defer func() {
		err = s.mapError(err)
		s.observeOperation(ctx, startedAt, "attach_price", err, fields)
	}()

	if s.accountStore == nil {
		return AccountRecord{}, ErrStoreNotConfigured
	}
	if input.Price <= 0 {
		return AccountRecord{}, newVaultError("price must be positive", goerrors.CategoryBadInput, VaultErrorBadInput)
	}

	var proxyID string
	if s.proxyStore != nil {
		proxy, acquireErr := s.proxyStore.AcquireSlot(ctx, input.AccountID)
		if acquireErr != nil {
			return AccountRecord{}, acquireErr
		}
		proxyID = proxy.ID
	}

	record, err = s.applyTransition(ctx, StatusUpdate{
		AccountID: input.AccountID,
		Expected:  AccountStatusApproved,
		Next:      AccountStatusListed,
		Reason:    "listed for sale",
		Price:     input.Price,
		ProxyID:   proxyID,
	})
	if err != nil {
		if proxyID != "" {
			if releaseErr := s.proxyStore.ReleaseSlot(context.WithoutCancel(ctx), proxyID); releaseErr != nil {
				s.logError(ctx, "proxy release failed", map[string]any{
					"proxy_id": proxyID,
					"error":    releaseErr.Error(),
				})
			}
		}
		return record, err
	}
	fields["account_status"] = string(record.Status)
	return record, nil
}

// Reserve holds a listed account for one buyer. The hold expires after the
// configured reservation TTL unless payment confirms first.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (record AccountRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"account_id": input.AccountID,
		"buyer_id":   input.BuyerID,
	}
	defer func() {
		err = s.mapError(err)
		s.observeOperation(ctx, startedAt, "reserve", err, fields)
	}()

	if s.accountStore == nil {
		return AccountRecord{}, ErrStoreNotConfigured
	}
	if strings.TrimSpace(input.BuyerID) == "" {
		return AccountRecord{}, newVaultError("buyer id is required", goerrors.CategoryBadInput, VaultErrorBadInput)
	}

	expiresAt := time.Now().UTC().Add(s.config.ReservationTTL)
	record, err = s.applyTransition(ctx, StatusUpdate{
		AccountID:        input.AccountID,
		Expected:         AccountStatusListed,
		Next:             AccountStatusReserved,
		Reason:           "reserved by buyer",
		BuyerID:          strings.TrimSpace(input.BuyerID),
		ReserveExpiresAt: &expiresAt,
	})
	if err != nil {
		return record, err
	}
	fields["account_status"] = string(record.Status)
	return record, nil
}

// ConfirmPayment moves a reserved account to sold once payment clears.
func (s *Service) ConfirmPayment(ctx context.Context, input PaymentConfirmedInput) (record AccountRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"account_id": input.AccountID,
		"buyer_id":   input.BuyerID,
	}
	defer func() {
		err = s.mapError(err)
		s.observeOperation(ctx, startedAt, "confirm_payment", err, fields)
	}()

	if s.accountStore == nil {
		return AccountRecord{}, ErrStoreNotConfigured
	}

	current, err := s.accountStore.Get(ctx, strings.TrimSpace(input.AccountID))
	if err != nil {
		return AccountRecord{}, err
	}
	if buyer := strings.TrimSpace(input.BuyerID); buyer != "" && current.BuyerID != buyer {
		return current, NewStaleTransitionError(
			fmt.Sprintf("account %s is reserved for a different buyer", current.ID),
		)
	}

	record, err = s.applyTransition(ctx, StatusUpdate{
		AccountID: input.AccountID,
		Expected:  AccountStatusReserved,
		Next:      AccountStatusSold,
		Reason:    "payment confirmed",
	})
	if err != nil {
		return record, err
	}
	fields["account_status"] = string(record.Status)
	return record, nil
}

// ReleaseExpiredReservations returns timed-out reservations to the listing
// pool. A reservation whose payment confirmed concurrently loses the race at
// the guarded update and is skipped.
func (s *Service) ReleaseExpiredReservations(ctx context.Context, limit int) (released int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		err = s.mapError(err)
		fields["released"] = released
		s.observeOperation(ctx, startedAt, "release_expired_reservations", err, fields)
	}()

	if s.accountStore == nil {
		return 0, ErrStoreNotConfigured
	}

	now := time.Now().UTC()
	expired, err := s.accountStore.ListReservationExpired(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	for _, record := range expired {
		_, casErr := s.applyTransition(ctx, StatusUpdate{
			AccountID: record.ID,
			Expected:  AccountStatusReserved,
			Next:      AccountStatusListed,
			Reason:    "reservation expired",
		})
		if casErr != nil {
			if IsStaleTransition(casErr) {
				continue
			}
			return released, casErr
		}
		released++
	}
	return released, nil
}

// ExpireStaleListings retires listings past the retention window and frees
// their proxy slots.
func (s *Service) ExpireStaleListings(ctx context.Context, limit int) (expired int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		err = s.mapError(err)
		fields["expired"] = expired
		s.observeOperation(ctx, startedAt, "expire_stale_listings", err, fields)
	}()

	if s.accountStore == nil {
		return 0, ErrStoreNotConfigured
	}

	cutoff := time.Now().UTC().Add(-s.config.ListingRetention)
	stale, err := s.accountStore.ListListingExpired(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	for _, record := range stale {
		updated, casErr := s.applyTransition(ctx, StatusUpdate{
			AccountID: record.ID,
			Expected:  AccountStatusListed,
			Next:      AccountStatusExpired,
			Reason:    "listing retention exceeded",
		})
		if casErr != nil {
			if IsStaleTransition(casErr) {
				continue
			}
			return expired, casErr
		}
		expired++
		s.releaseProxy(ctx, updated)
	}
	return expired, nil
}

func (s *Service) releaseProxy(ctx context.Context, record AccountRecord) {
	if s.proxyStore == nil || strings.TrimSpace(record.ProxyID) == "" {
		return
	}
	if err := s.proxyStore.ReleaseSlot(ctx, record.ProxyID); err != nil {
		s.logError(ctx, "proxy release failed", map[string]any{
			"account_id": record.ID,
			"proxy_id":   record.ProxyID,
			"error":      err.Error(),
		})
	}
}
