package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-sessionvault/core"
)

type MutatingService interface {
	SubmitUpload(ctx context.Context, input core.SubmitUploadInput) (core.SubmitUploadResult, error)
	VerifyAccount(ctx context.Context, accountID string) (core.AccountRecord, error)
	ApplyReview(ctx context.Context, signal core.ReviewSignal) (core.AccountRecord, error)
	AttachPrice(ctx context.Context, input core.AttachPriceInput) (core.AccountRecord, error)
	Reserve(ctx context.Context, input core.ReserveInput) (core.AccountRecord, error)
	ConfirmPayment(ctx context.Context, input core.PaymentConfirmedInput) (core.AccountRecord, error)
	DestroyCredentials(ctx context.Context, accountID string) (core.DestroyOutcome, error)
	Transfer(ctx context.Context, accountID string) (core.TransferPackage, core.AccountRecord, error)
	ReleaseExpiredReservations(ctx context.Context, limit int) (int, error)
	ExpireStaleListings(ctx context.Context, limit int) (int, error)
}

type KeyMutatingService interface {
	RotateKeys(ctx context.Context) (core.KeyRotationResult, error)
	PurgeExpiredKeys(ctx context.Context) ([]int, error)
}

type SubmitUploadCommand struct {
	service MutatingService
}

func NewSubmitUploadCommand(service MutatingService) *SubmitUploadCommand {
	return &SubmitUploadCommand{service: service}
}

func (c *SubmitUploadCommand) Execute(ctx context.Context, msg SubmitUploadMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: upload service is required")
	}
	out, err := c.service.SubmitUpload(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type VerifyAccountCommand struct {
	service MutatingService
}

func NewVerifyAccountCommand(service MutatingService) *VerifyAccountCommand {
	return &VerifyAccountCommand{service: service}
}

func (c *VerifyAccountCommand) Execute(ctx context.Context, msg VerifyAccountMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: verification service is required")
	}
	out, err := c.service.VerifyAccount(ctx, msg.AccountID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ApplyReviewCommand struct {
	service MutatingService
}

func NewApplyReviewCommand(service MutatingService) *ApplyReviewCommand {
	return &ApplyReviewCommand{service: service}
}

func (c *ApplyReviewCommand) Execute(ctx context.Context, msg ApplyReviewMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: review service is required")
	}
	out, err := c.service.ApplyReview(ctx, msg.Signal)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AttachPriceCommand struct {
	service MutatingService
}

func NewAttachPriceCommand(service MutatingService) *AttachPriceCommand {
	return &AttachPriceCommand{service: service}
}

func (c *AttachPriceCommand) Execute(ctx context.Context, msg AttachPriceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: listing service is required")
	}
	out, err := c.service.AttachPrice(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReserveCommand struct {
	service MutatingService
}

func NewReserveCommand(service MutatingService) *ReserveCommand {
	return &ReserveCommand{service: service}
}

func (c *ReserveCommand) Execute(ctx context.Context, msg ReserveMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: reservation service is required")
	}
	out, err := c.service.Reserve(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ConfirmPaymentCommand struct {
	service MutatingService
}

func NewConfirmPaymentCommand(service MutatingService) *ConfirmPaymentCommand {
	return &ConfirmPaymentCommand{service: service}
}

func (c *ConfirmPaymentCommand) Execute(ctx context.Context, msg ConfirmPaymentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: payment service is required")
	}
	out, err := c.service.ConfirmPayment(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DestroyCredentialsCommand struct {
	service MutatingService
}

func NewDestroyCredentialsCommand(service MutatingService) *DestroyCredentialsCommand {
	return &DestroyCredentialsCommand{service: service}
}

func (c *DestroyCredentialsCommand) Execute(ctx context.Context, msg DestroyCredentialsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: destroyer service is required")
	}
	out, err := c.service.DestroyCredentials(ctx, msg.AccountID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type TransferCommand struct {
	service MutatingService
}

func NewTransferCommand(service MutatingService) *TransferCommand {
	return &TransferCommand{service: service}
}

func (c *TransferCommand) Execute(ctx context.Context, msg TransferMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: transfer service is required")
	}
	pkg, _, err := c.service.Transfer(ctx, msg.AccountID)
	if err != nil {
		return err
	}
	storeResult(ctx, pkg)
	return nil
}

type RotateKeysCommand struct {
	service KeyMutatingService
}

func NewRotateKeysCommand(service KeyMutatingService) *RotateKeysCommand {
	return &RotateKeysCommand{service: service}
}

func (c *RotateKeysCommand) Execute(ctx context.Context, msg RotateKeysMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: key rotation service is required")
	}
	out, err := c.service.RotateKeys(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PurgeExpiredKeysCommand struct {
	service KeyMutatingService
}

func NewPurgeExpiredKeysCommand(service KeyMutatingService) *PurgeExpiredKeysCommand {
	return &PurgeExpiredKeysCommand{service: service}
}

func (c *PurgeExpiredKeysCommand) Execute(ctx context.Context, msg PurgeExpiredKeysMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: key purge service is required")
	}
	out, err := c.service.PurgeExpiredKeys(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReleaseExpiredReservationsCommand struct {
	service MutatingService
}

func NewReleaseExpiredReservationsCommand(service MutatingService) *ReleaseExpiredReservationsCommand {
	return &ReleaseExpiredReservationsCommand{service: service}
}

func (c *ReleaseExpiredReservationsCommand) Execute(ctx context.Context, msg ReleaseExpiredReservationsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: reservation sweep service is required")
	}
	out, err := c.service.ReleaseExpiredReservations(ctx, msg.Limit)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ExpireStaleListingsCommand struct {
	service MutatingService
}

func NewExpireStaleListingsCommand(service MutatingService) *ExpireStaleListingsCommand {
	return &ExpireStaleListingsCommand{service: service}
}

func (c *ExpireStaleListingsCommand) Execute(ctx context.Context, msg ExpireStaleListingsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: listing sweep service is required")
	}
	out, err := c.service.ExpireStaleListings(ctx, msg.Limit)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
