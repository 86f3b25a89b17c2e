package sqlstore

import "github.com/goliatone/go-sessionvault/core"

var (
	_ core.AccountStore           = (*AccountStore)(nil)
	_ core.AccountStore           = (*CachedAccountStore)(nil)
	_ core.KeyStore               = (*KeyStore)(nil)
	_ core.DestroyAuditStore      = (*DestroyAuditStore)(nil)
	_ core.OutboxStore            = (*OutboxStore)(nil)
	_ core.ProxyStore             = (*ProxyStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
