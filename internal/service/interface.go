package service

import (
	"context"

	"ledger-core/pkg/ledger"
)

// MultisigWorkflow 多签转账。状态全部以链上为准，查询每次都重新读取。
type MultisigWorkflow interface {
	Submit(ctx context.Context, to, amount string, account int) (*ledger.Receipt, error)
	Approve(ctx context.Context, txID uint64, account int) (*ledger.Receipt, error)
	Execute(ctx context.Context, txID uint64, account int) (*ledger.Receipt, error)
	ReleasePayments(ctx context.Context, account int) (*ledger.Receipt, error)
	Deposit(ctx context.Context, amount string, account int) (*ledger.Receipt, error)
	Balance(ctx context.Context) (*BalanceView, error)
	ListTransfers(ctx context.Context) ([]TransferView, error)
	ListApprovals(ctx context.Context, txID uint64) ([]ApprovalView, error)
}

// ProductCatalog 商品目录。商品 id 即 getAllProducts() 返回数组的下标。
type ProductCatalog interface {
	Add(ctx context.Context, name, price string, account int) (*ledger.Receipt, error)
	Update(ctx context.Context, productID uint64, name string, price *string, active bool, account int) (*ledger.Receipt, error)
	Disable(ctx context.Context, productID uint64, account int) (*ledger.Receipt, error)
	Buy(ctx context.Context, productID uint64, account int) (*PurchaseResult, error)
	List(ctx context.Context) ([]ProductView, error)
	Get(ctx context.Context, productID uint64) (*ProductDetailView, error)
}

// AccountService 签名账户和保留 nonce 的运维操作
type AccountService interface {
	List(ctx context.Context) ([]AccountView, error)
	Reconcile(ctx context.Context, account int) (*ledger.ReconcileResult, error)
	Abandon(ctx context.Context, account int) (*ledger.Reservation, error)
}
