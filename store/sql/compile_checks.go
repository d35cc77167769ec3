package sqlstore

import "github.com/goliatone/go-payments/core"

var (
	_ core.LedgerStore        = (*LedgerStore)(nil)
	_ core.UserProfileReader  = (*LedgerStore)(nil)
	_ core.UserProfileReader  = (*CachedUserProfileReader)(nil)
	_ core.LedgerStoreFactory = (*RepositoryFactory)(nil)
	_ ProfileStore            = (*LedgerStore)(nil)
)
