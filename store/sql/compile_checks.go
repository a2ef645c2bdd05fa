package sqlstore

import "github.com/goliatone/go-payments/core"

var (
	_ core.PaymentStore           = (*PaymentStore)(nil)
	_ core.ReservationStore       = (*ReservationStore)(nil)
	_ core.RefundPolicyProvider   = (*RefundPolicyStore)(nil)
	_ RefundPolicyWriter          = (*RefundPolicyStore)(nil)
	_ RefundPolicyWriter          = (*CachedRefundPolicyStore)(nil)
	_ core.CatalogProvider        = (*CatalogStore)(nil)
	_ core.TransactionManager     = (*BunTransactionManager)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
