package sessionvault

import (
	"fmt"

	vaultcommand "github.com/goliatone/go-sessionvault/command"
	vaultquery "github.com/goliatone/go-sessionvault/query"
)

type CommandQueryService interface {
	vaultcommand.MutatingService
	vaultcommand.KeyMutatingService
	vaultquery.AccountReader
	vaultquery.DestroyAuditReader
	vaultquery.SessionReader
}

type Commands struct {
	SubmitUpload               *vaultcommand.SubmitUploadCommand
	VerifyAccount              *vaultcommand.VerifyAccountCommand
	ApplyReview                *vaultcommand.ApplyReviewCommand
	AttachPrice                *vaultcommand.AttachPriceCommand
	Reserve                    *vaultcommand.ReserveCommand
	ConfirmPayment             *vaultcommand.ConfirmPaymentCommand
	DestroyCredentials         *vaultcommand.DestroyCredentialsCommand
	Transfer                   *vaultcommand.TransferCommand
	RotateKeys                 *vaultcommand.RotateKeysCommand
	PurgeExpiredKeys           *vaultcommand.PurgeExpiredKeysCommand
	ReleaseExpiredReservations *vaultcommand.ReleaseExpiredReservationsCommand
	ExpireStaleListings        *vaultcommand.ExpireStaleListingsCommand
}

type Queries struct {
	GetAccount           *vaultquery.GetAccountQuery
	ListAccountsByStatus *vaultquery.ListAccountsByStatusQuery
	ListAccountsBySeller *vaultquery.ListAccountsBySellerQuery
	ListDestroyAudit     *vaultquery.ListDestroyAuditQuery
	OpenSession          *vaultquery.OpenSessionQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("sessionvault: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		SubmitUpload:               vaultcommand.NewSubmitUploadCommand(service),
		VerifyAccount:              vaultcommand.NewVerifyAccountCommand(service),
		ApplyReview:                vaultcommand.NewApplyReviewCommand(service),
		AttachPrice:                vaultcommand.NewAttachPriceCommand(service),
		Reserve:                    vaultcommand.NewReserveCommand(service),
		ConfirmPayment:             vaultcommand.NewConfirmPaymentCommand(service),
		DestroyCredentials:         vaultcommand.NewDestroyCredentialsCommand(service),
		Transfer:                   vaultcommand.NewTransferCommand(service),
		RotateKeys:                 vaultcommand.NewRotateKeysCommand(service),
		PurgeExpiredKeys:           vaultcommand.NewPurgeExpiredKeysCommand(service),
		ReleaseExpiredReservations: vaultcommand.NewReleaseExpiredReservationsCommand(service),
		ExpireStaleListings:        vaultcommand.NewExpireStaleListingsCommand(service),
	}
	facade.queries = Queries{
		GetAccount:           vaultquery.NewGetAccountQuery(service),
		ListAccountsByStatus: vaultquery.NewListAccountsByStatusQuery(service),
		ListAccountsBySeller: vaultquery.NewListAccountsBySellerQuery(service),
		ListDestroyAudit:     vaultquery.NewListDestroyAuditQuery(service),
		OpenSession:          vaultquery.NewOpenSessionQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Service)(nil)
