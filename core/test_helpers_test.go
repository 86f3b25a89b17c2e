package core

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testSession() CanonicalSession {
	authKey := make([]byte, AuthKeySize)
	for i := range authKey {
		authKey[i] = byte(i % 251)
	}
	return CanonicalSession{
		AuthKey:       authKey,
		DCID:          2,
		ServerAddress: "149.154.167.51",
		Port:          443,
		PhoneNumber:   "+15550001111",
		AccountID:     777001,
		Version:       1,
		SourceFormat:  "telethon_string",
	}
}

func fastTestConfig() Config {
	fast := RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
	cfg := DefaultConfig()
	cfg.ImportRetry = fast
	cfg.VerifyRetry = fast
	cfg.DestroyRetry = fast
	cfg.DestroyAlertThreshold = 2
	return cfg
}

func newTestService(t *testing.T, options ...Option) *Service {
	t.Helper()
	svc, err := NewService(fastTestConfig(), options...)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

type memoryAccountStore struct {
	mu      sync.Mutex
	records map[string]AccountRecord
}

func newMemoryAccountStore() *memoryAccountStore {
	return &memoryAccountStore{records: map[string]AccountRecord{}}
}

func (s *memoryAccountStore) Create(_ context.Context, record AccountRecord) (AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = fmt.Sprintf("acct-%d", len(s.records)+1)
	}
	if record.Status == "" {
		record.Status = AccountStatusUploaded
	}
	s.records[record.ID] = record
	return record, nil
}

func (s *memoryAccountStore) Get(_ context.Context, id string) (AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return AccountRecord{}, fmt.Errorf("account %q not found", id)
	}
	return record, nil
}

func (s *memoryAccountStore) ListByStatus(_ context.Context, status AccountStatus, limit int) ([]AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AccountRecord
	for _, record := range s.records {
		if record.Status == status {
			out = append(out, record)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memoryAccountStore) ListBySeller(_ context.Context, sellerID string, limit int) ([]AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AccountRecord
	for _, record := range s.records {
		if record.SellerID == sellerID {
			out = append(out, record)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memoryAccountStore) UpdateStatusCAS(_ context.Context, update StatusUpdate) (AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[update.AccountID]
	if !ok {
		return AccountRecord{}, fmt.Errorf("account %q not found", update.AccountID)
	}
	if record.Status != update.Expected {
		return record, NewStaleTransitionError(
			fmt.Sprintf("account %s is %s, expected %s", record.ID, record.Status, update.Expected),
		)
	}
	if err := record.TransitionTo(update.Next, update.Reason, time.Now().UTC()); err != nil {
		return record, NewStaleTransitionError(err.Error())
	}
	if update.BuyerID != "" {
		record.BuyerID = update.BuyerID
	}
	if update.Price > 0 {
		record.Price = update.Price
	}
	if update.ImportAttempts > 0 {
		record.ImportAttempts = update.ImportAttempts
	}
	if update.DestroyAttempts > 0 {
		record.DestroyAttempts = update.DestroyAttempts
	}
	if update.Checks != nil {
		record.Checks = update.Checks
	}
	if update.Warnings != nil {
		record.Warnings = update.Warnings
	}
	if update.ProxyID != "" {
		record.ProxyID = update.ProxyID
	}
	if update.ReserveExpiresAt != nil {
		record.ReserveExpiresAt = update.ReserveExpiresAt
	}
	if update.Blob != nil {
		record.EncryptedPayload = update.Blob.Payload
		record.KeyVersion = update.Blob.KeyVersion
	}
	if update.SourceFormat != "" {
		record.SourceFormat = update.SourceFormat
	}
	if update.PhoneNumber != "" {
		record.PhoneNumber = update.PhoneNumber
	}
	if update.MessagingUserID != 0 {
		record.MessagingUserID = update.MessagingUserID
	}
	if update.DCID != 0 {
		record.DCID = update.DCID
	}
	s.records[record.ID] = record
	return record, nil
}

func (s *memoryAccountStore) ReplaceBlob(_ context.Context, accountID string, blob EncryptedBlob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[accountID]
	if !ok {
		return fmt.Errorf("account %q not found", accountID)
	}
	record.EncryptedPayload = blob.Payload
	record.KeyVersion = blob.KeyVersion
	s.records[accountID] = record
	return nil
}

func (s *memoryAccountStore) SetNeedsManualFix(_ context.Context, accountID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[accountID]
	if !ok {
		return fmt.Errorf("account %q not found", accountID)
	}
	record.NeedsManualFix = true
	record.StatusReason = reason
	s.records[accountID] = record
	return nil
}

func (s *memoryAccountStore) RecordDestroyAttempts(_ context.Context, accountID string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[accountID]
	if !ok {
		return fmt.Errorf("account %q not found", accountID)
	}
	record.DestroyAttempts = attempts
	s.records[accountID] = record
	return nil
}

func (s *memoryAccountStore) ListReservationExpired(_ context.Context, asOf time.Time, limit int) ([]AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AccountRecord
	for _, record := range s.records {
		if record.Status != AccountStatusReserved || record.ReserveExpiresAt == nil {
			continue
		}
		if record.ReserveExpiresAt.After(asOf) {
			continue
		}
		out = append(out, record)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memoryAccountStore) ListListingExpired(_ context.Context, before time.Time, limit int) ([]AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AccountRecord
	for _, record := range s.records {
		if record.Status != AccountStatusListed || record.ListedAt == nil {
			continue
		}
		if record.ListedAt.After(before) {
			continue
		}
		out = append(out, record)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// seedAccount drops a record straight into the store without walking the
// transition table, so tests can start from any lifecycle point.
func (s *memoryAccountStore) seedAccount(record AccountRecord) AccountRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = fmt.Sprintf("acct-%d", len(s.records)+1)
	}
	s.records[record.ID] = record
	return record
}

// plainSealer prefixes instead of encrypting so tests can inspect payloads.
type plainSealer struct {
	version     int
	stale       bool
	encryptErr  error
	decryptErr  error
	encryptions int
}

func (s *plainSealer) Encrypt(_ context.Context, plaintext []byte) (EncryptedBlob, error) {
	if s.encryptErr != nil {
		return EncryptedBlob{}, s.encryptErr
	}
	s.encryptions++
	version := s.version
	if version == 0 {
		version = 1
	}
	return EncryptedBlob{
		Payload:    append([]byte("enc:"), plaintext...),
		KeyVersion: version,
	}, nil
}

func (s *plainSealer) Decrypt(_ context.Context, blob EncryptedBlob) ([]byte, bool, error) {
	if s.decryptErr != nil {
		return nil, false, s.decryptErr
	}
	if !bytes.HasPrefix(blob.Payload, []byte("enc:")) {
		return nil, false, NewCorruptSessionError("payload missing test envelope")
	}
	return bytes.TrimPrefix(blob.Payload, []byte("enc:")), s.stale, nil
}

func (s *plainSealer) ActiveVersion() int {
	if s.version == 0 {
		return 1
	}
	return s.version
}

func sealTestSession(t *testing.T, sealer *plainSealer, session CanonicalSession) EncryptedBlob {
	t.Helper()
	plaintext, err := JSONSessionCodec{}.Encode(session)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	blob, err := sealer.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	return blob
}

type fakeImporter struct {
	importFn func(upload RawUpload) (CanonicalSession, error)
	calls    int
}

func (f *fakeImporter) Import(upload RawUpload) (CanonicalSession, error) {
	f.calls++
	if f.importFn == nil {
		return testSession(), nil
	}
	return f.importFn(upload)
}

type fakeNetworkClient struct {
	checkAuthorizationFn     func(ctx context.Context, session CanonicalSession) error
	twoFactorEnabledFn       func(ctx context.Context, session CanonicalSession) (bool, error)
	activeSessionCountFn     func(ctx context.Context, session CanonicalSession) (int, error)
	floodWaitFn              func(ctx context.Context, session CanonicalSession) (time.Duration, error)
	invalidateSignInCodesFn  func(ctx context.Context, session CanonicalSession) error
	terminateOtherSessionsFn func(ctx context.Context, session CanonicalSession) error

	invalidateCalls int
	terminateCalls  int
}

func (f *fakeNetworkClient) CheckAuthorization(ctx context.Context, session CanonicalSession) error {
	if f.checkAuthorizationFn == nil {
		return nil
	}
	return f.checkAuthorizationFn(ctx, session)
}

func (f *fakeNetworkClient) TwoFactorEnabled(ctx context.Context, session CanonicalSession) (bool, error) {
	if f.twoFactorEnabledFn == nil {
		return true, nil
	}
	return f.twoFactorEnabledFn(ctx, session)
}

func (f *fakeNetworkClient) ActiveSessionCount(ctx context.Context, session CanonicalSession) (int, error) {
	if f.activeSessionCountFn == nil {
		return 1, nil
	}
	return f.activeSessionCountFn(ctx, session)
}

func (f *fakeNetworkClient) FloodWait(ctx context.Context, session CanonicalSession) (time.Duration, error) {
	if f.floodWaitFn == nil {
		return 0, nil
	}
	return f.floodWaitFn(ctx, session)
}

func (f *fakeNetworkClient) InvalidateSignInCodes(ctx context.Context, session CanonicalSession) error {
	f.invalidateCalls++
	if f.invalidateSignInCodesFn == nil {
		return nil
	}
	return f.invalidateSignInCodesFn(ctx, session)
}

func (f *fakeNetworkClient) TerminateOtherSessions(ctx context.Context, session CanonicalSession) error {
	f.terminateCalls++
	if f.terminateOtherSessionsFn == nil {
		return nil
	}
	return f.terminateOtherSessionsFn(ctx, session)
}

type memoryOutboxStore struct {
	mu     sync.Mutex
	events []OutboxEvent
}

func (s *memoryOutboxStore) Enqueue(_ context.Context, event OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memoryOutboxStore) ClaimBatch(_ context.Context, limit int) ([]OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var claimed []OutboxEvent
	for _, event := range s.events {
		if event.DispatchedAt != nil {
			continue
		}
		if event.NextAttemptAt != nil && event.NextAttemptAt.After(now) {
			continue
		}
		claimed = append(claimed, event)
		if limit > 0 && len(claimed) >= limit {
			break
		}
	}
	return claimed, nil
}

func (s *memoryOutboxStore) MarkDispatched(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == eventID {
			now := time.Now().UTC()
			s.events[i].DispatchedAt = &now
			return nil
		}
	}
	return fmt.Errorf("event %q not found", eventID)
}

func (s *memoryOutboxStore) MarkFailed(_ context.Context, eventID string, reason string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == eventID {
			s.events[i].Attempts++
			s.events[i].LastError = reason
			if nextAttemptAt.IsZero() {
				// Parked terminally: never eligible for another claim.
				far := time.Now().UTC().Add(1000 * time.Hour)
				s.events[i].NextAttemptAt = &far
				return nil
			}
			at := nextAttemptAt
			s.events[i].NextAttemptAt = &at
			return nil
		}
	}
	return fmt.Errorf("event %q not found", eventID)
}

func (s *memoryOutboxStore) eventNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.events))
	for _, event := range s.events {
		names = append(names, event.Name)
	}
	return names
}

type memoryDestroyAuditStore struct {
	mu      sync.Mutex
	entries []DestroyAuditEntry
}

func (s *memoryDestroyAuditStore) Append(_ context.Context, entry DestroyAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memoryDestroyAuditStore) ListByAccount(_ context.Context, accountID string) ([]DestroyAuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DestroyAuditEntry
	for _, entry := range s.entries {
		if entry.AccountID == accountID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type memoryProxyStore struct {
	mu         sync.Mutex
	capacity   int
	assigned   int
	acquireErr error
	releases   []string
}

func (s *memoryProxyStore) AcquireSlot(_ context.Context, _ string) (Proxy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return Proxy{}, s.acquireErr
	}
	if s.capacity > 0 && s.assigned >= s.capacity {
		return Proxy{}, fmt.Errorf("no proxy capacity available")
	}
	s.assigned++
	return Proxy{ID: "proxy-1", Address: "10.0.0.1:1080", Capacity: s.capacity, Assigned: s.assigned}, nil
}

func (s *memoryProxyStore) ReleaseSlot(_ context.Context, proxyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assigned > 0 {
		s.assigned--
	}
	s.releases = append(s.releases, proxyID)
	return nil
}

type captureAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (a *captureAlerter) Alert(_ context.Context, accountID string, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, accountID+": "+message)
	return nil
}

func (a *captureAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}

type fakeKeyRotator struct {
	rotateFn      func(ctx context.Context) (int, int, time.Time, error)
	purgeFn       func(ctx context.Context) ([]int, error)
	activeVersion int
	activeCreated time.Time
}

func (f *fakeKeyRotator) Rotate(ctx context.Context) (int, int, time.Time, error) {
	if f.rotateFn == nil {
		return 1, 2, time.Now().UTC(), nil
	}
	return f.rotateFn(ctx)
}

func (f *fakeKeyRotator) PurgeExpired(ctx context.Context) ([]int, error) {
	if f.purgeFn == nil {
		return nil, nil
	}
	return f.purgeFn(ctx)
}

func (f *fakeKeyRotator) ActiveVersion() int {
	if f.activeVersion == 0 {
		return 1
	}
	return f.activeVersion
}

func (f *fakeKeyRotator) ActiveKeyCreatedAt() time.Time {
	return f.activeCreated
}

var (
	_ AccountStore      = (*memoryAccountStore)(nil)
	_ SessionSealer     = (*plainSealer)(nil)
	_ SessionImporter   = (*fakeImporter)(nil)
	_ NetworkClient     = (*fakeNetworkClient)(nil)
	_ OutboxStore       = (*memoryOutboxStore)(nil)
	_ DestroyAuditStore = (*memoryDestroyAuditStore)(nil)
	_ ProxyStore        = (*memoryProxyStore)(nil)
	_ AdminAlerter      = (*captureAlerter)(nil)
	_ KeyRotator        = (*fakeKeyRotator)(nil)
)
