package command

import (
	"strings"

	"github.com/goliatone/go-sessionvault/core"
)

const (
	TypeSubmitUpload               = "sessionvault.command.upload.submit"
	TypeVerifyAccount              = "sessionvault.command.account.verify"
	TypeApplyReview                = "sessionvault.command.review.apply"
	TypeAttachPrice                = "sessionvault.command.listing.attach_price"
	TypeReserve                    = "sessionvault.command.listing.reserve"
	TypeConfirmPayment             = "sessionvault.command.payment.confirm"
	TypeDestroyCredentials         = "sessionvault.command.credential.destroy"
	TypeTransfer                   = "sessionvault.command.account.transfer"
	TypeRotateKeys                 = "sessionvault.command.keys.rotate"
	TypePurgeExpiredKeys           = "sessionvault.command.keys.purge"
	TypeReleaseExpiredReservations = "sessionvault.command.reservation.release_expired"
	TypeExpireStaleListings        = "sessionvault.command.listing.expire_stale"
)

type SubmitUploadMessage struct {
	Input core.SubmitUploadInput
}

func (SubmitUploadMessage) Type() string { return TypeSubmitUpload }

func (m SubmitUploadMessage) Validate() error {
	if strings.TrimSpace(m.Input.SellerID) == "" {
		return commandValidationError("seller_id", "seller id is required")
	}
	if len(m.Input.Upload.Data) == 0 && len(m.Input.Upload.Bundle) == 0 {
		return commandValidationError("upload", "upload payload is required")
	}
	return nil
}

type VerifyAccountMessage struct {
	AccountID string
}

func (VerifyAccountMessage) Type() string { return TypeVerifyAccount }

func (m VerifyAccountMessage) Validate() error {
	return validateAccountID(m.AccountID)
}

type ApplyReviewMessage struct {
	Signal core.ReviewSignal
}

func (ApplyReviewMessage) Type() string { return TypeApplyReview }

func (m ApplyReviewMessage) Validate() error {
	if err := validateAccountID(m.Signal.AccountID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Signal.ReviewerID) == "" {
		return commandValidationError("reviewer_id", "reviewer id is required")
	}
	if !m.Signal.Approve && strings.TrimSpace(m.Signal.Reason) == "" {
		return commandValidationError("reason", "rejection requires a reason")
	}
	return nil
}

type AttachPriceMessage struct {
	Input core.AttachPriceInput
}

func (AttachPriceMessage) Type() string { return TypeAttachPrice }

func (m AttachPriceMessage) Validate() error {
	if err := validateAccountID(m.Input.AccountID); err != nil {
		return err
	}
	if m.Input.Price <= 0 {
		return commandValidationError("price", "price must be greater than zero")
	}
	return nil
}

type ReserveMessage struct {
	Input core.ReserveInput
}

func (ReserveMessage) Type() string { return TypeReserve }

func (m ReserveMessage) Validate() error {
	if err := validateAccountID(m.Input.AccountID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Input.BuyerID) == "" {
		return commandValidationError("buyer_id", "buyer id is required")
	}
	return nil
}

type ConfirmPaymentMessage struct {
	Input core.PaymentConfirmedInput
}

func (ConfirmPaymentMessage) Type() string { return TypeConfirmPayment }

func (m ConfirmPaymentMessage) Validate() error {
	if err := validateAccountID(m.Input.AccountID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Input.BuyerID) == "" {
		return commandValidationError("buyer_id", "buyer id is required")
	}
	return nil
}

type DestroyCredentialsMessage struct {
	AccountID string
}

func (DestroyCredentialsMessage) Type() string { return TypeDestroyCredentials }

func (m DestroyCredentialsMessage) Validate() error {
	return validateAccountID(m.AccountID)
}

type TransferMessage struct {
	AccountID string
}

func (TransferMessage) Type() string { return TypeTransfer }

func (m TransferMessage) Validate() error {
	return validateAccountID(m.AccountID)
}

type RotateKeysMessage struct{}

func (RotateKeysMessage) Type() string { return TypeRotateKeys }

func (RotateKeysMessage) Validate() error { return nil }

type PurgeExpiredKeysMessage struct{}

func (PurgeExpiredKeysMessage) Type() string { return TypePurgeExpiredKeys }

func (PurgeExpiredKeysMessage) Validate() error { return nil }

type ReleaseExpiredReservationsMessage struct {
	Limit int
}

func (ReleaseExpiredReservationsMessage) Type() string { return TypeReleaseExpiredReservations }

func (m ReleaseExpiredReservationsMessage) Validate() error {
	if m.Limit < 0 {
		return commandValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type ExpireStaleListingsMessage struct {
	Limit int
}

func (ExpireStaleListingsMessage) Type() string { return TypeExpireStaleListings }

func (m ExpireStaleListingsMessage) Validate() error {
	if m.Limit < 0 {
		return commandValidationError("limit", "limit must be >= 0")
	}
	return nil
}

func validateAccountID(id string) error {
	if strings.TrimSpace(id) == "" {
		return commandValidationError("account_id", "account id is required")
	}
	return nil
}
