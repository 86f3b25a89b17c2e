package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SubmitUploadMessage]               = (*SubmitUploadCommand)(nil)
	_ gocmd.Commander[VerifyAccountMessage]              = (*VerifyAccountCommand)(nil)
	_ gocmd.Commander[ApplyReviewMessage]                = (*ApplyReviewCommand)(nil)
	_ gocmd.Commander[AttachPriceMessage]                = (*AttachPriceCommand)(nil)
	_ gocmd.Commander[ReserveMessage]                    = (*ReserveCommand)(nil)
	_ gocmd.Commander[ConfirmPaymentMessage]             = (*ConfirmPaymentCommand)(nil)
	_ gocmd.Commander[DestroyCredentialsMessage]         = (*DestroyCredentialsCommand)(nil)
	_ gocmd.Commander[TransferMessage]                   = (*TransferCommand)(nil)
	_ gocmd.Commander[RotateKeysMessage]                 = (*RotateKeysCommand)(nil)
	_ gocmd.Commander[PurgeExpiredKeysMessage]           = (*PurgeExpiredKeysCommand)(nil)
	_ gocmd.Commander[ReleaseExpiredReservationsMessage] = (*ReleaseExpiredReservationsCommand)(nil)
	_ gocmd.Commander[ExpireStaleListingsMessage]        = (*ExpireStaleListingsCommand)(nil)
)
