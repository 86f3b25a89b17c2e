package query

import (
	"context"

	"github.com/goliatone/go-sessionvault/core"
)

type AccountReader interface {
	GetAccount(ctx context.Context, accountID string) (core.AccountRecord, error)
	ListAccountsByStatus(ctx context.Context, status core.AccountStatus, limit int) ([]core.AccountRecord, error)
	ListAccountsBySeller(ctx context.Context, sellerID string, limit int) ([]core.AccountRecord, error)
}

type DestroyAuditReader interface {
	ListDestroyAudit(ctx context.Context, accountID string) ([]core.DestroyAuditEntry, error)
}

type SessionReader interface {
	OpenSession(ctx context.Context, accountID string) (core.CanonicalSession, error)
}

type GetAccountQuery struct {
	reader AccountReader
}

func NewGetAccountQuery(reader AccountReader) *GetAccountQuery {
	return &GetAccountQuery{reader: reader}
}

func (q *GetAccountQuery) Query(ctx context.Context, msg GetAccountMessage) (core.AccountRecord, error) {
	if q == nil || q.reader == nil {
		return core.AccountRecord{}, queryDependencyError("query: account reader is required")
	}
	return q.reader.GetAccount(ctx, msg.AccountID)
}

type ListAccountsByStatusQuery struct {
	reader AccountReader
}

func NewListAccountsByStatusQuery(reader AccountReader) *ListAccountsByStatusQuery {
	return &ListAccountsByStatusQuery{reader: reader}
}

func (q *ListAccountsByStatusQuery) Query(
	ctx context.Context,
	msg ListAccountsByStatusMessage,
) ([]core.AccountRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: account reader is required")
	}
	return q.reader.ListAccountsByStatus(ctx, msg.Status, msg.Limit)
}

type ListAccountsBySellerQuery struct {
	reader AccountReader
}

func NewListAccountsBySellerQuery(reader AccountReader) *ListAccountsBySellerQuery {
	return &ListAccountsBySellerQuery{reader: reader}
}

func (q *ListAccountsBySellerQuery) Query(
	ctx context.Context,
	msg ListAccountsBySellerMessage,
) ([]core.AccountRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: account reader is required")
	}
	return q.reader.ListAccountsBySeller(ctx, msg.SellerID, msg.Limit)
}

type ListDestroyAuditQuery struct {
	reader DestroyAuditReader
}

func NewListDestroyAuditQuery(reader DestroyAuditReader) *ListDestroyAuditQuery {
	return &ListDestroyAuditQuery{reader: reader}
}

func (q *ListDestroyAuditQuery) Query(
	ctx context.Context,
	msg ListDestroyAuditMessage,
) ([]core.DestroyAuditEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: destroy audit reader is required")
	}
	return q.reader.ListDestroyAudit(ctx, msg.AccountID)
}

type OpenSessionQuery struct {
	reader SessionReader
}

func NewOpenSessionQuery(reader SessionReader) *OpenSessionQuery {
	return &OpenSessionQuery{reader: reader}
}

func (q *OpenSessionQuery) Query(ctx context.Context, msg OpenSessionMessage) (core.CanonicalSession, error) {
	if q == nil || q.reader == nil {
		return core.CanonicalSession{}, queryDependencyError("query: session reader is required")
	}
	return q.reader.OpenSession(ctx, msg.AccountID)
}
