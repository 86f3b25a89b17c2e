package sessionvault

import (
	"context"
	"testing"

	vaultcommand "github.com/goliatone/go-sessionvault/command"
	"github.com/goliatone/go-sessionvault/core"
	vaultquery "github.com/goliatone/go-sessionvault/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.SubmitUpload == nil || commands.Transfer == nil || commands.RotateKeys == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetAccount == nil || queries.OpenSession == nil || queries.ListDestroyAudit == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().ApplyReview.Execute(context.Background(), vaultcommand.ApplyReviewMessage{
		Signal: core.ReviewSignal{
			AccountID:  "acct_1",
			ReviewerID: "admin_1",
			Approve:    true,
		},
	}); err != nil {
		t.Fatalf("execute review command: %v", err)
	}
	if svc.lastReviewAccountID != "acct_1" || svc.lastReviewerID != "admin_1" {
		t.Fatalf("unexpected review delegation payload")
	}

	account, err := facade.Queries().GetAccount.Query(context.Background(), vaultquery.GetAccountMessage{
		AccountID: "acct_1",
	})
	if err != nil {
		t.Fatalf("query account: %v", err)
	}
	if account.ID != "acct_1" || account.Status != core.AccountStatusListed {
		t.Fatalf("unexpected account query result: %#v", account)
	}

	session, err := facade.Queries().OpenSession.Query(context.Background(), vaultquery.OpenSessionMessage{
		AccountID: "acct_1",
	})
	if err != nil {
		t.Fatalf("query open session: %v", err)
	}
	if session.DCID != 2 {
		t.Fatalf("unexpected session query result: %#v", session)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

type stubFacadeService struct {
	lastReviewAccountID string
	lastReviewerID      string
}

func (s *stubFacadeService) SubmitUpload(context.Context, core.SubmitUploadInput) (core.SubmitUploadResult, error) {
	return core.SubmitUploadResult{}, nil
}

func (s *stubFacadeService) VerifyAccount(_ context.Context, accountID string) (core.AccountRecord, error) {
	return core.AccountRecord{ID: accountID, Status: core.AccountStatusPendingReview}, nil
}

func (s *stubFacadeService) ApplyReview(_ context.Context, signal core.ReviewSignal) (core.AccountRecord, error) {
	s.lastReviewAccountID = signal.AccountID
	s.lastReviewerID = signal.ReviewerID
	return core.AccountRecord{ID: signal.AccountID, Status: core.AccountStatusApproved}, nil
}

func (s *stubFacadeService) AttachPrice(_ context.Context, input core.AttachPriceInput) (core.AccountRecord, error) {
	return core.AccountRecord{ID: input.AccountID, Status: core.AccountStatusListed}, nil
}

func (s *stubFacadeService) Reserve(_ context.Context, input core.ReserveInput) (core.AccountRecord, error) {
	return core.AccountRecord{ID: input.AccountID, Status: core.AccountStatusReserved}, nil
}

func (s *stubFacadeService) ConfirmPayment(_ context.Context, input core.PaymentConfirmedInput) (core.AccountRecord, error) {
	return core.AccountRecord{ID: input.AccountID, Status: core.AccountStatusSold}, nil
}

func (s *stubFacadeService) DestroyCredentials(context.Context, string) (core.DestroyOutcome, error) {
	return core.DestroyOutcomeSucceeded, nil
}

func (s *stubFacadeService) Transfer(_ context.Context, accountID string) (core.TransferPackage, core.AccountRecord, error) {
	return core.TransferPackage{AccountID: accountID},
		core.AccountRecord{ID: accountID, Status: core.AccountStatusTransferred},
		nil
}

func (s *stubFacadeService) ReleaseExpiredReservations(context.Context, int) (int, error) {
	return 0, nil
}

func (s *stubFacadeService) ExpireStaleListings(context.Context, int) (int, error) {
	return 0, nil
}

func (s *stubFacadeService) RotateKeys(context.Context) (core.KeyRotationResult, error) {
	return core.KeyRotationResult{OldVersion: 1, NewVersion: 2}, nil
}

func (s *stubFacadeService) PurgeExpiredKeys(context.Context) ([]int, error) {
	return nil, nil
}

func (s *stubFacadeService) GetAccount(_ context.Context, accountID string) (core.AccountRecord, error) {
	return core.AccountRecord{ID: accountID, Status: core.AccountStatusListed}, nil
}

func (s *stubFacadeService) ListAccountsByStatus(context.Context, core.AccountStatus, int) ([]core.AccountRecord, error) {
	return nil, nil
}

func (s *stubFacadeService) ListAccountsBySeller(context.Context, string, int) ([]core.AccountRecord, error) {
	return nil, nil
}

func (s *stubFacadeService) ListDestroyAudit(context.Context, string) ([]core.DestroyAuditEntry, error) {
	return nil, nil
}

func (s *stubFacadeService) OpenSession(context.Context, string) (core.CanonicalSession, error) {
	return core.CanonicalSession{DCID: 2}, nil
}

var _ CommandQueryService = (*stubFacadeService)(nil)
