package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-sessionvault/core"
	vaultmigrations "github.com/goliatone/go-sessionvault/migrations"
	sqlstore "github.com/goliatone/go-sessionvault/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-sessionvault-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"vault_accounts",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "vault_accounts" {
		t.Fatalf("expected vault_accounts table, got %q", tableName)
	}
}

func TestAccountStore_CreateGetAndCASTransitions(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	accounts := factory.AccountStore()

	created, err := accounts.Create(ctx, core.AccountRecord{
		SellerID:     "seller_1",
		SourceFormat: "telethon_sqlite",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated account id")
	}
	if created.Status != core.AccountStatusUploaded {
		t.Fatalf("expected uploaded status, got %q", created.Status)
	}

	fetched, err := accounts.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if fetched.SellerID != "seller_1" {
		t.Fatalf("expected seller_1, got %q", fetched.SellerID)
	}

	updated, err := accounts.UpdateStatusCAS(ctx, core.StatusUpdate{
		AccountID: created.ID,
		Expected:  core.AccountStatusUploaded,
		Next:      core.AccountStatusImporting,
		Reason:    "import started",
	})
	if err != nil {
		t.Fatalf("transition to importing: %v", err)
	}
	if updated.Status != core.AccountStatusImporting {
		t.Fatalf("expected importing, got %q", updated.Status)
	}

	// Re-applying the same transition must observe the stale expected status.
	if _, err := accounts.UpdateStatusCAS(ctx, core.StatusUpdate{
		AccountID: created.ID,
		Expected:  core.AccountStatusUploaded,
		Next:      core.AccountStatusImporting,
		Reason:    "import started",
	}); !core.IsStaleTransition(err) {
		t.Fatalf("expected stale transition error, got %v", err)
	}

	// Transitions outside the table are stale too, even with a fresh read.
	if _, err := accounts.UpdateStatusCAS(ctx, core.StatusUpdate{
		AccountID: created.ID,
		Expected:  core.AccountStatusImporting,
		Next:      core.AccountStatusSold,
		Reason:    "skip ahead",
	}); !core.IsStaleTransition(err) {
		t.Fatalf("expected stale transition for illegal jump, got %v", err)
	}

	blob := core.EncryptedBlob{Payload: []byte("sealed"), KeyVersion: 1}
	verified, err := accounts.UpdateStatusCAS(ctx, core.StatusUpdate{
		AccountID:       created.ID,
		Expected:        core.AccountStatusImporting,
		Next:            core.AccountStatusVerifying,
		Reason:          "import complete",
		Blob:            &blob,
		SourceFormat:    "telethon_sqlite",
		PhoneNumber:     "+15550001111",
		MessagingUserID: 42,
		DCID:            2,
		ImportAttempts:  1,
	})
	if err != nil {
		t.Fatalf("transition to verifying: %v", err)
	}
	if string(verified.EncryptedPayload) != "sealed" || verified.KeyVersion != 1 {
		t.Fatalf("expected blob persisted with transition, got %q v%d", verified.EncryptedPayload, verified.KeyVersion)
	}
	if verified.ImportedAt == nil {
		t.Fatalf("expected imported_at stamp")
	}
	if verified.PhoneNumber != "+15550001111" || verified.DCID != 2 {
		t.Fatalf("unexpected identity fields: %q dc=%d", verified.PhoneNumber, verified.DCID)
	}

	byStatus, err := accounts.ListByStatus(ctx, core.AccountStatusVerifying, 10)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].ID != created.ID {
		t.Fatalf("expected one verifying account, got %d", len(byStatus))
	}

	bySeller, err := accounts.ListBySeller(ctx, "seller_1", 10)
	if err != nil {
		t.Fatalf("list by seller: %v", err)
	}
	if len(bySeller) != 1 {
		t.Fatalf("expected one seller account, got %d", len(bySeller))
	}
}

func TestAccountStore_GetMissingMapsToNotFound(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}

	_, err = factory.AccountStore().Get(ctx, "11111111-1111-1111-1111-111111111111")
	if err == nil {
		t.Fatalf("expected not found error")
	}
}

func TestAccountStore_ReplaceBlobAndManualFix(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	accounts := factory.AccountStore()

	created, err := accounts.Create(ctx, core.AccountRecord{SellerID: "seller_blob"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	if err := accounts.ReplaceBlob(ctx, created.ID, core.EncryptedBlob{
		Payload:    []byte("resealed"),
		KeyVersion: 3,
	}); err != nil {
		t.Fatalf("replace blob: %v", err)
	}

	fetched, err := accounts.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if string(fetched.EncryptedPayload) != "resealed" || fetched.KeyVersion != 3 {
		t.Fatalf("expected resealed blob v3, got %q v%d", fetched.EncryptedPayload, fetched.KeyVersion)
	}

	if err := accounts.ReplaceBlob(ctx, "22222222-2222-2222-2222-222222222222", core.EncryptedBlob{
		Payload:    []byte("x"),
		KeyVersion: 1,
	}); err == nil {
		t.Fatalf("expected replace blob on missing account to fail")
	}

	if err := accounts.SetNeedsManualFix(ctx, created.ID, "destroyer exhausted"); err != nil {
		t.Fatalf("set needs manual fix: %v", err)
	}
	flagged, err := accounts.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get flagged account: %v", err)
	}
	if !flagged.NeedsManualFix || flagged.StatusReason != "destroyer exhausted" {
		t.Fatalf("expected manual fix flag with reason, got %v %q", flagged.NeedsManualFix, flagged.StatusReason)
	}
}

func TestAccountStore_ExpiryListings(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	accounts := factory.AccountStore()

	now := time.Now().UTC()
	reserved := seedAccountAtStatus(t, ctx, accounts, "seller_exp", core.AccountStatusReserved, func(update *core.StatusUpdate) {
		if update.Next == core.AccountStatusReserved {
			update.BuyerID = "buyer_exp"
			expires := now.Add(-time.Minute)
			update.ReserveExpiresAt = &expires
		}
	})

	expired, err := accounts.ListReservationExpired(ctx, now, 10)
	if err != nil {
		t.Fatalf("list reservation expired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != reserved.ID {
		t.Fatalf("expected one expired reservation, got %d", len(expired))
	}

	none, err := accounts.ListReservationExpired(ctx, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list reservation expired early cutoff: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no expired reservations before cutoff, got %d", len(none))
	}

	stale, err := accounts.ListListingExpired(ctx, now.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list listing expired: %v", err)
	}
	// The seeded account moved past listed into reserved, so nothing matches.
	if len(stale) != 0 {
		t.Fatalf("expected no stale listings, got %d", len(stale))
	}
}

func TestKeyStore_SaveRetireAndPurge(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	keys := factory.KeyStore()

	now := time.Now().UTC()
	for version := 1; version <= 2; version++ {
		if err := keys.Save(ctx, core.EncryptionKeyRecord{
			Version:   version,
			Material:  []byte(fmt.Sprintf("material-%d", version)),
			CreatedAt: now.Add(time.Duration(version) * time.Minute),
		}); err != nil {
			t.Fatalf("save key v%d: %v", version, err)
		}
	}

	if err := keys.Retire(ctx, 1, now); err != nil {
		t.Fatalf("retire v1: %v", err)
	}
	if err := keys.Retire(ctx, 1, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected second retire of v1 to fail")
	}

	if err := keys.MarkPurged(ctx, 1, now.Add(time.Hour)); err != nil {
		t.Fatalf("purge v1: %v", err)
	}

	listed, err := keys.List(ctx)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 key records, got %d", len(listed))
	}
	if listed[0].Version != 1 || listed[1].Version != 2 {
		t.Fatalf("expected version-ordered listing, got %d then %d", listed[0].Version, listed[1].Version)
	}
	if len(listed[0].Material) != 0 {
		t.Fatalf("expected purged key material zeroed, got %d bytes", len(listed[0].Material))
	}
	if listed[0].PurgedAt == nil || listed[0].RetiredAt == nil {
		t.Fatalf("expected retired and purged stamps on v1")
	}
	if listed[1].RetiredAt != nil {
		t.Fatalf("expected v2 still active")
	}
}

func TestDestroyAuditStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	audit := factory.DestroyAuditStore()

	accountID := "33333333-3333-3333-3333-333333333333"
	entries := []core.DestroyAuditEntry{
		{AccountID: accountID, Attempt: 1, Outcome: core.DestroyOutcomeTransient, Detail: "flood wait"},
		{AccountID: accountID, Attempt: 2, Outcome: core.DestroyOutcomeSucceeded},
	}
	for _, entry := range entries {
		if err := audit.Append(ctx, entry); err != nil {
			t.Fatalf("append attempt %d: %v", entry.Attempt, err)
		}
	}

	listed, err := audit.ListByAccount(ctx, accountID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(listed))
	}
	if listed[0].Attempt != 1 || listed[1].Attempt != 2 {
		t.Fatalf("expected attempt-ordered entries, got %d then %d", listed[0].Attempt, listed[1].Attempt)
	}
	if listed[0].ID == "" || listed[0].CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamp on audit entry")
	}
	if listed[1].Outcome != core.DestroyOutcomeSucceeded {
		t.Fatalf("expected final attempt succeeded, got %q", listed[1].Outcome)
	}
}

func TestOutboxStore_ClaimDispatchAndRetry(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	outbox := factory.OutboxStore()

	now := time.Now().UTC()
	first := core.NewAccountStatusChangedEvent("acct_1", core.AccountStatusUploaded, core.AccountStatusImporting, "import started", now)
	second := core.NewAccountStatusChangedEvent("acct_2", core.AccountStatusListed, core.AccountStatusReserved, "reserved", now.Add(time.Second))
	if err := outbox.Enqueue(ctx, first); err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	if err := outbox.Enqueue(ctx, second); err != nil {
		t.Fatalf("enqueue second: %v", err)
	}

	claimed, err := outbox.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected to claim 2 events, got %d", len(claimed))
	}
	if claimed[0].ID != first.ID {
		t.Fatalf("expected oldest event first, got %q", claimed[0].ID)
	}
	if claimed[0].Payload["to_status"] != string(core.AccountStatusImporting) {
		t.Fatalf("expected payload round-trip, got %v", claimed[0].Payload)
	}

	// Claimed events are invisible to a second claimer.
	reclaimed, err := outbox.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("reclaim batch: %v", err)
	}
	if len(reclaimed) != 0 {
		t.Fatalf("expected no reclaimable events, got %d", len(reclaimed))
	}

	if err := outbox.MarkDispatched(ctx, first.ID); err != nil {
		t.Fatalf("mark dispatched: %v", err)
	}

	retryAt := now.Add(-time.Second)
	if err := outbox.MarkFailed(ctx, second.ID, "sink unavailable", retryAt); err != nil {
		t.Fatalf("mark failed for retry: %v", err)
	}

	retried, err := outbox.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim retried batch: %v", err)
	}
	if len(retried) != 1 || retried[0].ID != second.ID {
		t.Fatalf("expected one retried event, got %d", len(retried))
	}
	if retried[0].Attempts != 1 {
		t.Fatalf("expected attempts incremented, got %d", retried[0].Attempts)
	}
	if retried[0].LastError != "sink unavailable" {
		t.Fatalf("expected last error retained, got %q", retried[0].LastError)
	}

	// Zero next attempt parks the event permanently.
	if err := outbox.MarkFailed(ctx, second.ID, "sink rejected payload", time.Time{}); err != nil {
		t.Fatalf("mark terminally failed: %v", err)
	}
	terminal, err := outbox.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim after terminal failure: %v", err)
	}
	if len(terminal) != 0 {
		t.Fatalf("expected terminally failed event to stay parked, got %d", len(terminal))
	}
}

func TestProxyStore_AcquireRespectsCapacity(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	proxies, ok := factory.ProxyStore().(*sqlstore.ProxyStore)
	if !ok {
		t.Fatalf("expected concrete proxy store from factory")
	}

	registered, err := proxies.Register(ctx, "socks5://10.0.0.1:1080", 2)
	if err != nil {
		t.Fatalf("register proxy: %v", err)
	}

	firstAssign, err := proxies.AcquireSlot(ctx, "acct_a")
	if err != nil {
		t.Fatalf("acquire first slot: %v", err)
	}
	if firstAssign.ID != registered.ID || firstAssign.Assigned != 1 {
		t.Fatalf("expected first slot on %q assigned=1, got %q assigned=%d", registered.ID, firstAssign.ID, firstAssign.Assigned)
	}

	if _, err := proxies.AcquireSlot(ctx, "acct_b"); err != nil {
		t.Fatalf("acquire second slot: %v", err)
	}
	if _, err := proxies.AcquireSlot(ctx, "acct_c"); err == nil {
		t.Fatalf("expected acquisition past capacity to fail")
	}

	if err := proxies.ReleaseSlot(ctx, registered.ID); err != nil {
		t.Fatalf("release slot: %v", err)
	}
	reacquired, err := proxies.AcquireSlot(ctx, "acct_c")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if reacquired.Assigned != 2 {
		t.Fatalf("expected assigned=2 after release cycle, got %d", reacquired.Assigned)
	}
}

// seedAccountAtStatus walks a fresh account through the transition table until
// it reaches the target status. mutate runs on every step so callers can
// attach step-specific fields.
func seedAccountAtStatus(
	t *testing.T,
	ctx context.Context,
	accounts core.AccountStore,
	sellerID string,
	target core.AccountStatus,
	mutate func(*core.StatusUpdate),
) core.AccountRecord {
	t.Helper()

	created, err := accounts.Create(ctx, core.AccountRecord{SellerID: sellerID})
	if err != nil {
		t.Fatalf("seed create account: %v", err)
	}

	path := []core.AccountStatus{
		core.AccountStatusImporting,
		core.AccountStatusVerifying,
		core.AccountStatusPendingReview,
		core.AccountStatusApproved,
		core.AccountStatusListed,
		core.AccountStatusReserved,
		core.AccountStatusSold,
		core.AccountStatusTransferred,
	}

	current := created
	expected := core.AccountStatusUploaded
	for _, next := range path {
		update := core.StatusUpdate{
			AccountID: created.ID,
			Expected:  expected,
			Next:      next,
			Reason:    "seed",
		}
		if mutate != nil {
			mutate(&update)
		}
		current, err = accounts.UpdateStatusCAS(ctx, update)
		if err != nil {
			t.Fatalf("seed transition %s -> %s: %v", expected, next, err)
		}
		expected = next
		if next == target {
			return current
		}
	}

	t.Fatalf("seed target %q not reachable", target)
	return current
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:sessionvault-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = vaultmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != vaultmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, vaultmigrations.WithValidationTargets(vaultmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
