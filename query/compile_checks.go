package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-sessionvault/core"
)

var (
	_ gocmd.Querier[GetAccountMessage, core.AccountRecord]             = (*GetAccountQuery)(nil)
	_ gocmd.Querier[ListAccountsByStatusMessage, []core.AccountRecord] = (*ListAccountsByStatusQuery)(nil)
	_ gocmd.Querier[ListAccountsBySellerMessage, []core.AccountRecord] = (*ListAccountsBySellerQuery)(nil)
	_ gocmd.Querier[ListDestroyAuditMessage, []core.DestroyAuditEntry] = (*ListDestroyAuditQuery)(nil)
	_ gocmd.Querier[OpenSessionMessage, core.CanonicalSession]         = (*OpenSessionQuery)(nil)
)
