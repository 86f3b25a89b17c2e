package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-sessionvault/core"
)

func newAccountRecord(account core.AccountRecord) *accountRecord {
	return &accountRecord{
		ID:               strings.TrimSpace(account.ID),
		SellerID:         strings.TrimSpace(account.SellerID),
		BuyerID:          strings.TrimSpace(account.BuyerID),
		Status:           string(account.Status),
		EncryptedPayload: copyBytes(account.EncryptedPayload),
		KeyVersion:       account.KeyVersion,
		SourceFormat:     account.SourceFormat,
		PhoneNumber:      account.PhoneNumber,
		MessagingUserID:  account.MessagingUserID,
		DCID:             account.DCID,
		Price:            account.Price,
		ProxyID:          account.ProxyID,
		ImportAttempts:   account.ImportAttempts,
		DestroyAttempts:  account.DestroyAttempts,
		NeedsManualFix:   account.NeedsManualFix,
		StatusReason:     account.StatusReason,
		Checks:           copyCheckMap(account.Checks),
		Warnings:         copyStrings(account.Warnings),
		AdminReviewerID:  account.AdminReviewerID,
		AdminNotes:       account.AdminNotes,
		UploadedAt:       account.UploadedAt,
		ImportedAt:       cloneTime(account.ImportedAt),
		VerifiedAt:       cloneTime(account.VerifiedAt),
		ReviewedAt:       cloneTime(account.ReviewedAt),
		ListedAt:         cloneTime(account.ListedAt),
		ReservedAt:       cloneTime(account.ReservedAt),
		ReserveExpiresAt: cloneTime(account.ReserveExpiresAt),
		SoldAt:           cloneTime(account.SoldAt),
		TransferredAt:    cloneTime(account.TransferredAt),
		CreatedAt:        account.CreatedAt,
		UpdatedAt:        account.UpdatedAt,
	}
}

func (r *accountRecord) toDomain() core.AccountRecord {
	if r == nil {
		return core.AccountRecord{}
	}
	return core.AccountRecord{
		ID:               r.ID,
		SellerID:         r.SellerID,
		BuyerID:          r.BuyerID,
		Status:           core.AccountStatus(r.Status),
		EncryptedPayload: copyBytes(r.EncryptedPayload),
		KeyVersion:       r.KeyVersion,
		SourceFormat:     r.SourceFormat,
		PhoneNumber:      r.PhoneNumber,
		MessagingUserID:  r.MessagingUserID,
		DCID:             r.DCID,
		Price:            r.Price,
		ProxyID:          r.ProxyID,
		ImportAttempts:   r.ImportAttempts,
		DestroyAttempts:  r.DestroyAttempts,
		NeedsManualFix:   r.NeedsManualFix,
		StatusReason:     r.StatusReason,
		Checks:           copyCheckMap(r.Checks),
		Warnings:         copyStrings(r.Warnings),
		AdminReviewerID:  r.AdminReviewerID,
		AdminNotes:       r.AdminNotes,
		UploadedAt:       r.UploadedAt,
		ImportedAt:       cloneTime(r.ImportedAt),
		VerifiedAt:       cloneTime(r.VerifiedAt),
		ReviewedAt:       cloneTime(r.ReviewedAt),
		ListedAt:         cloneTime(r.ListedAt),
		ReservedAt:       cloneTime(r.ReservedAt),
		ReserveExpiresAt: cloneTime(r.ReserveExpiresAt),
		SoldAt:           cloneTime(r.SoldAt),
		TransferredAt:    cloneTime(r.TransferredAt),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func newEncryptionKeyRecord(id string, key core.EncryptionKeyRecord) *encryptionKeyRecord {
	return &encryptionKeyRecord{
		ID:        id,
		Version:   key.Version,
		Material:  copyBytes(key.Material),
		CreatedAt: key.CreatedAt,
		RetiredAt: cloneTime(key.RetiredAt),
		PurgedAt:  cloneTime(key.PurgedAt),
	}
}

func (r *encryptionKeyRecord) toDomain() core.EncryptionKeyRecord {
	if r == nil {
		return core.EncryptionKeyRecord{}
	}
	return core.EncryptionKeyRecord{
		Version:   r.Version,
		Material:  copyBytes(r.Material),
		CreatedAt: r.CreatedAt,
		RetiredAt: cloneTime(r.RetiredAt),
		PurgedAt:  cloneTime(r.PurgedAt),
	}
}

func newDestroyAuditRecord(entry core.DestroyAuditEntry) *destroyAuditRecord {
	return &destroyAuditRecord{
		ID:        strings.TrimSpace(entry.ID),
		AccountID: strings.TrimSpace(entry.AccountID),
		Attempt:   entry.Attempt,
		Outcome:   string(entry.Outcome),
		Detail:    entry.Detail,
		CreatedAt: entry.CreatedAt,
	}
}

func (r *destroyAuditRecord) toDomain() core.DestroyAuditEntry {
	if r == nil {
		return core.DestroyAuditEntry{}
	}
	return core.DestroyAuditEntry{
		ID:        r.ID,
		AccountID: r.AccountID,
		Attempt:   r.Attempt,
		Outcome:   core.DestroyOutcome(r.Outcome),
		Detail:    r.Detail,
		CreatedAt: r.CreatedAt,
	}
}

func (r *outboxEventRecord) toDomain() core.OutboxEvent {
	if r == nil {
		return core.OutboxEvent{}
	}
	return core.OutboxEvent{
		ID:            r.ID,
		Name:          r.EventName,
		AccountID:     r.AccountID,
		Payload:       copyAnyMap(r.Payload),
		Attempts:      r.Attempts,
		NextAttemptAt: cloneTime(r.NextAttemptAt),
		LastError:     r.LastError,
		DispatchedAt:  cloneTime(r.DispatchedAt),
		CreatedAt:     r.CreatedAt,
	}
}

func (r *proxyRecord) toDomain() core.Proxy {
	if r == nil {
		return core.Proxy{}
	}
	return core.Proxy{
		ID:        r.ID,
		Address:   r.Address,
		Capacity:  r.Capacity,
		Assigned:  r.Assigned,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func copyBytes(value []byte) []byte {
	if len(value) == 0 {
		return nil
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied
}

func copyStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return append([]string(nil), values...)
}

func copyCheckMap(checks map[string]core.CheckResult) map[string]core.CheckResult {
	if len(checks) == 0 {
		return nil
	}
	copied := make(map[string]core.CheckResult, len(checks))
	for name, result := range checks {
		copied[name] = result
	}
	return copied
}

func copyAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(values))
	for key, value := range values {
		copied[key] = value
	}
	return copied
}

func cloneTime(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
