package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"ledger-core/internal/ledgertest"
	"ledger-core/pkg/errno"
	"ledger-core/pkg/ledger"
	"ledger-core/pkg/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

type testEnv struct {
	fake     *ledgertest.FakeLedger
	pipeline *ledger.Pipeline
	multisig *MultisigService
	products *ProductService
	accounts AccountService
}

func newTestEnv(t *testing.T, opts ...ledger.Option) *testEnv {
	t.Helper()
	fake := ledgertest.New(ledgertest.WithClock(func() time.Time { return fixedNow }))
	store := ledgertest.Store()
	opts = append([]ledger.Option{ledger.WithPollInterval(time.Millisecond)}, opts...)
	p := ledger.NewPipeline(ledger.NewGateway(fake), opts...)
	return &testEnv{
		fake:     fake,
		pipeline: p,
		multisig: NewMultisigService(store, p, fake.Contract()),
		products: NewProductService(store, p, fake.Contract()),
		accounts: NewAccountService(store, p),
	}
}

func TestMultisigEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	to := "0xB0B0000000000000000000000000000000000001"

	_, err := env.multisig.Deposit(ctx, "5", 0)
	require.NoError(t, err)

	_, err = env.multisig.Submit(ctx, to, "1.5", 0)
	require.NoError(t, err)

	transfers, err := env.multisig.ListTransfers(ctx)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "0", transfers[0].TxId)
	assert.Equal(t, "1.5", transfers[0].Amount)
	assert.Equal(t, "0", transfers[0].ApprovalCount)
	assert.False(t, transfers[0].Executed)

	// 阈值未满足时执行被链上拒绝
	_, err = env.multisig.Execute(ctx, 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errno.ErrGasEstimation)
	assert.Contains(t, err.Error(), "not enough approvals")

	_, err = env.multisig.Approve(ctx, 0, 1)
	require.NoError(t, err)

	// 重复审批由链上拒绝，原因原样返回
	_, err = env.multisig.Approve(ctx, 0, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already approved")

	_, err = env.multisig.Approve(ctx, 0, 2)
	require.NoError(t, err)

	_, err = env.multisig.Execute(ctx, 0, 0)
	require.NoError(t, err)

	transfers, err = env.multisig.ListTransfers(ctx)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.True(t, transfers[0].Executed)
	assert.Equal(t, "2", transfers[0].ApprovalCount)
	assert.Equal(t, common.HexToAddress(to).Hex(), transfers[0].To)

	approvals, err := env.multisig.ListApprovals(ctx, 0)
	require.NoError(t, err)
	require.Len(t, approvals, 2)
	assert.Equal(t, ledgertest.Addresses()[1].Hex(), approvals[0].Approver)
	assert.Equal(t, "2024-05-01T12:30:00.000Z", approvals[0].Timestamp)
	assert.Equal(t, "1", approvals[1].ApprovalId)

	bal, err := env.multisig.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3.5", bal.Ether)
	assert.Equal(t, "3500000000000000000", bal.Wei)
}

func TestMultisigValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.multisig.Submit(ctx, "0xB0B", "1", 0)
	assert.ErrorIs(t, err, errno.ErrInvalidAddress)

	_, err = env.multisig.Submit(ctx, "0xB0B0000000000000000000000000000000000001", "one", 0)
	assert.ErrorIs(t, err, errno.ErrInvalidAmount)

	_, err = env.multisig.Approve(ctx, 0, 99)
	assert.ErrorIs(t, err, errno.ErrInvalidAccountIndex)

	assert.Equal(t, 0, env.fake.SendCalls())
}

func TestReleasePayments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.multisig.ReleasePayments(ctx, 0)
	assert.ErrorIs(t, err, errno.ErrGasEstimation, "nothing to release yet")

	_, err = env.multisig.Deposit(ctx, "2", 3)
	require.NoError(t, err)
	_, err = env.multisig.ReleasePayments(ctx, 0)
	require.NoError(t, err)

	bal, err := env.multisig.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0", bal.Ether)
}

func TestProductEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seller := 1

	_, err := env.products.Add(ctx, "Widget", "0.01", seller)
	require.NoError(t, err)

	products, err := env.products.List(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Widget", products[0].Name)
	assert.Equal(t, "0.01", products[0].Price)
	assert.True(t, products[0].Active)

	detail, err := env.products.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", detail.Price)
	assert.Equal(t, "0.01", detail.PriceFormatted)

	// 购买成功，卖家收到精确价格
	res, err := env.products.Buy(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, purchaseMessage, res.Message)
	assert.Equal(t, PurchasedProduct{Id: "0", Name: "Widget", Price: "0.01"}, res.Product)
	require.NotNil(t, res.Receipt)
	assert.True(t, res.Receipt.Succeeded())

	_, err = env.products.Disable(ctx, 0, seller)
	require.NoError(t, err)

	products, err = env.products.List(ctx)
	require.NoError(t, err)
	assert.False(t, products[0].Active)

	sendsBefore := env.fake.SendCalls()
	_, err = env.products.Buy(ctx, 0, 2)
	assert.ErrorIs(t, err, errno.ErrProductInactive)
	assert.Equal(t, sendsBefore, env.fake.SendCalls(), "inactive product must not be broadcast")
}

func TestBuyOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.products.Buy(ctx, 0, 0)
	assert.ErrorIs(t, err, errno.ErrInvalidProductID)

	_, err = env.products.Add(ctx, "Widget", "1", 0)
	require.NoError(t, err)
	_, err = env.products.Buy(ctx, 1, 0)
	assert.ErrorIs(t, err, errno.ErrInvalidProductID)
	_, err = env.products.Get(ctx, 5)
	assert.ErrorIs(t, err, errno.ErrInvalidProductID)
}

func TestUpdateWithoutPriceSendsZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.products.Add(ctx, "Widget", "0.5", 0)
	require.NoError(t, err)

	newPrice := "0.75"
	_, err = env.products.Update(ctx, 0, "Gadget", &newPrice, true, 0)
	require.NoError(t, err)
	p, err := env.products.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "Gadget", p.Name)
	assert.Equal(t, "0.75", p.PriceFormatted)

	_, err = env.products.Update(ctx, 0, "Gadget", nil, true, 0)
	require.NoError(t, err)
	p, err = env.products.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "0", p.Price)

	// 重新上架
	_, err = env.products.Disable(ctx, 0, 0)
	require.NoError(t, err)
	_, err = env.products.Update(ctx, 0, "Gadget", &newPrice, true, 0)
	require.NoError(t, err)
	p, err = env.products.Get(ctx, 0)
	require.NoError(t, err)
	assert.True(t, p.Active)

	// 只有卖家能修改
	_, err = env.products.Update(ctx, 0, "Stolen", nil, true, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only seller")
}

func TestAccountServiceReconcile(t *testing.T) {
	env := newTestEnv(t, ledger.WithConfirmTimeout(20*time.Millisecond))
	ctx := context.Background()

	_, err := env.accounts.Reconcile(ctx, 0)
	assert.ErrorIs(t, err, errno.ErrNoPendingTx)
	_, err = env.accounts.Reconcile(ctx, 42)
	assert.ErrorIs(t, err, errno.ErrInvalidAccountIndex)

	env.fake.HoldReceipts(true)
	_, err = env.products.Add(ctx, "Widget", "1", 0)
	require.ErrorIs(t, err, errno.ErrConfirmationTimeout)

	list, err := env.accounts.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, len(ledgertest.TestAddresses))
	require.NotNil(t, list[0].Pending)
	assert.Equal(t, uint64(0), list[0].Pending.Nonce)
	assert.Nil(t, list[1].Pending)

	env.fake.HoldReceipts(false)
	res, err := env.accounts.Reconcile(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, ledger.ReconcileConfirmed, res.Status)

	_, err = env.accounts.Abandon(ctx, 0)
	assert.True(t, errors.Is(err, errno.ErrNoPendingTx))
}

func TestNewReceiptEvent(t *testing.T) {
	addr := ledgertest.Addresses()[0]
	entry := ledger.JournalEntry{
		Account: addr,
		Method:  "addProduct",
		Nonce:   3,
		Stage:   ledger.StageConfirmed,
		Receipt: &ledger.Receipt{GasUsed: 21000, BlockNumber: big.NewInt(9), Status: 1},
	}
	ev := newReceiptEvent(entry, fixedNow)
	assert.Equal(t, "CONFIRMED", ev.Stage)
	require.NotNil(t, ev.BlockNumber)
	assert.Equal(t, uint64(9), *ev.BlockNumber)
	assert.Equal(t, uint64(21000), *ev.GasUsed)
	assert.Empty(t, ev.Error)

	entry.Stage = ledger.StageTimeout
	entry.Receipt = nil
	entry.Err = errors.New("not confirmed")
	ev = newReceiptEvent(entry, fixedNow)
	assert.Nil(t, ev.BlockNumber)
	assert.Equal(t, "not confirmed", ev.Error)
}

func TestUnitsRoundTripThroughLedger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, amount := range []string{"0.000000000000000001", "123.456", "1"} {
		_, err := env.multisig.Submit(ctx, ledgertest.TestAddresses[3], amount, 0)
		require.NoError(t, err)
	}
	transfers, err := env.multisig.ListTransfers(ctx)
	require.NoError(t, err)
	require.Len(t, transfers, 3)
	assert.Equal(t, "0.000000000000000001", transfers[0].Amount)
	assert.Equal(t, "123.456", transfers[1].Amount)
	assert.Equal(t, "1", transfers[2].Amount)
	assert.Equal(t, 0, units.MustToBaseUnits(transfers[1].Amount).Cmp(units.MustToBaseUnits("123.456")))
}
