package query

import (
	"strings"

	"github.com/goliatone/go-sessionvault/core"
)

const (
	TypeGetAccount           = "sessionvault.query.account.get"
	TypeListAccountsByStatus = "sessionvault.query.account.list_by_status"
	TypeListAccountsBySeller = "sessionvault.query.account.list_by_seller"
	TypeListDestroyAudit     = "sessionvault.query.destroy_audit.list"
	TypeOpenSession          = "sessionvault.query.session.open"
)

type GetAccountMessage struct {
	AccountID string
}

func (GetAccountMessage) Type() string { return TypeGetAccount }

func (m GetAccountMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return queryValidationError("account_id", "account id is required")
	}
	return nil
}

type ListAccountsByStatusMessage struct {
	Status core.AccountStatus
	Limit  int
}

func (ListAccountsByStatusMessage) Type() string { return TypeListAccountsByStatus }

func (m ListAccountsByStatusMessage) Validate() error {
	if strings.TrimSpace(string(m.Status)) == "" {
		return queryValidationError("status", "account status is required")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type ListAccountsBySellerMessage struct {
	SellerID string
	Limit    int
}

func (ListAccountsBySellerMessage) Type() string { return TypeListAccountsBySeller }

func (m ListAccountsBySellerMessage) Validate() error {
	if strings.TrimSpace(m.SellerID) == "" {
		return queryValidationError("seller_id", "seller id is required")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type ListDestroyAuditMessage struct {
	AccountID string
}

func (ListDestroyAuditMessage) Type() string { return TypeListDestroyAudit }

func (m ListDestroyAuditMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return queryValidationError("account_id", "account id is required")
	}
	return nil
}

type OpenSessionMessage struct {
	AccountID string
}

func (OpenSessionMessage) Type() string { return TypeOpenSession }

func (m OpenSessionMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return queryValidationError("account_id", "account id is required")
	}
	return nil
}
