package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"ledger-core/internal/contract"
	"ledger-core/internal/ledgertest"
	"ledger-core/pkg/accounts"
	"ledger-core/pkg/errno"
	"ledger-core/pkg/units"
	"ledger-core/pkg/utils/lock"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	fake     *ledgertest.FakeLedger
	pipeline *Pipeline
	store    *accounts.Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	fake := ledgertest.New()
	opts = append([]Option{WithPollInterval(time.Millisecond), WithConfirmTimeout(2 * time.Second)}, opts...)
	return &fixture{
		fake:     fake,
		pipeline: NewPipeline(NewGateway(fake), opts...),
		store:    ledgertest.Store(),
	}
}

func (f *fixture) account(t *testing.T, i int) accounts.Account {
	t.Helper()
	acc, err := f.store.Resolve(i)
	require.NoError(t, err)
	return acc
}

func (f *fixture) addProduct(ctx context.Context, t *testing.T, acc accounts.Account) (*Receipt, error) {
	t.Helper()
	return f.pipeline.Submit(ctx, f.fake.Contract(), contract.MustExamenABI(), contract.MethodAddProduct,
		[]any{"Widget", units.MustToBaseUnits("0.01")}, acc)
}

func pendingOf(t *testing.T, p *Pipeline) []Reservation {
	t.Helper()
	out, err := p.Pending(context.Background())
	require.NoError(t, err)
	return out
}

func pendingFor(t *testing.T, p *Pipeline, addr common.Address) (Reservation, bool) {
	t.Helper()
	r, ok, err := p.PendingFor(context.Background(), addr)
	require.NoError(t, err)
	return r, ok
}

func TestSubmitConfirms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, 0)

	receipt, err := f.addProduct(ctx, t, acc)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, uint64(0), receipt.Nonce)
	assert.Equal(t, acc.Address, receipt.From)
	assert.Equal(t, f.fake.Contract(), receipt.To)
	assert.NotNil(t, receipt.BlockNumber)

	products, err := CallAs[[]contract.ExamenProduct](ctx, f.pipeline.Gateway(), f.fake.Contract(), contract.MustExamenABI(), contract.MethodGetAllProducts)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Widget", products[0].Name)
	assert.Equal(t, acc.Address, products[0].Seller)
}

func TestSubmitEncodingErrorSkipsNetwork(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Submit(context.Background(), f.fake.Contract(), contract.MustExamenABI(),
		contract.MethodApproveTransaction, []any{"not-a-number"}, f.account(t, 0))
	assert.ErrorIs(t, err, errno.ErrEncoding)
	assert.Equal(t, 0, f.fake.SendCalls())
}

func TestSubmitGasEstimationKeepsRevertReason(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Submit(context.Background(), f.fake.Contract(), contract.MustExamenABI(),
		contract.MethodApproveTransaction, []any{big.NewInt(5)}, f.account(t, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, errno.ErrGasEstimation)
	assert.Contains(t, err.Error(), "transaction does not exist")
	assert.Equal(t, 0, f.fake.SendCalls())
}

func TestSubmitNetworkUnavailable(t *testing.T) {
	f := newFixture(t)
	f.fake.SetUnavailable(true)

	_, err := f.addProduct(context.Background(), t, f.account(t, 0))
	assert.ErrorIs(t, err, errno.ErrNetworkUnavailable)
}

// skipEstimate 让会失败的交易也能被广播，用来得到 status=0 的回执
type skipEstimate struct {
	*ledgertest.FakeLedger
}

func (s skipEstimate) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func TestRevertedReceiptIsBroadcastRejected(t *testing.T) {
	fake := ledgertest.New()
	p := NewPipeline(NewGateway(skipEstimate{fake}), WithPollInterval(time.Millisecond))
	acc, err := ledgertest.Store().Resolve(0)
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), fake.Contract(), contract.MustExamenABI(),
		contract.MethodExecuteTransaction, []any{big.NewInt(0)}, acc)
	require.Error(t, err)
	assert.ErrorIs(t, err, errno.ErrBroadcastRejected)
	assert.Contains(t, err.Error(), "reverted")
	assert.Equal(t, 1, fake.SendCalls())
	assert.Empty(t, pendingOf(t, p), "a mined transaction never reserves its nonce")
}

func TestConcurrentSubmitsSameAccountUseDistinctNonces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, 0)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.addProduct(ctx, t, acc)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	seen := make(map[uint64]bool)
	for _, b := range f.fake.Broadcasts() {
		assert.False(t, seen[b.Nonce], "nonce %d broadcast twice", b.Nonce)
		seen[b.Nonce] = true
	}
	assert.Len(t, seen, n)
}

func TestDifferentAccountsProceedIndependently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := f.addProduct(ctx, t, f.account(t, idx))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, f.fake.Broadcasts(), 3)
}

func TestConfirmationTimeoutReservesNonce(t *testing.T) {
	f := newFixture(t, WithConfirmTimeout(30*time.Millisecond))
	ctx := context.Background()
	acc := f.account(t, 0)
	f.fake.HoldReceipts(true)

	_, err := f.addProduct(ctx, t, acc)
	require.ErrorIs(t, err, errno.ErrConfirmationTimeout)

	r, ok := pendingFor(t, f.pipeline, acc.Address)
	require.True(t, ok)
	assert.Equal(t, uint64(0), r.Nonce)

	// 链上 latest nonce 仍为 0，下一笔必须跳过保留的 0
	_, err = f.addProduct(ctx, t, acc)
	require.ErrorIs(t, err, errno.ErrConfirmationTimeout)
	r, ok = pendingFor(t, f.pipeline, acc.Address)
	require.True(t, ok)
	assert.Equal(t, uint64(1), r.Nonce)

	// 出块后对账
	f.fake.HoldReceipts(false)
	res, err := f.pipeline.Reconcile(ctx, acc.Address)
	require.NoError(t, err)
	assert.Equal(t, ReconcileConfirmed, res.Status)
	require.NotNil(t, res.Receipt)
	assert.True(t, res.Receipt.Succeeded())
	assert.Empty(t, pendingOf(t, f.pipeline))

	receipt, err := f.addProduct(ctx, t, acc)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), receipt.Nonce)
}

func TestReservationClearedWhenChainMovesPast(t *testing.T) {
	f := newFixture(t, WithConfirmTimeout(30*time.Millisecond))
	ctx := context.Background()
	acc := f.account(t, 0)

	f.fake.HoldReceipts(true)
	_, err := f.addProduct(ctx, t, acc)
	require.ErrorIs(t, err, errno.ErrConfirmationTimeout)
	f.fake.HoldReceipts(false)

	receipt, err := f.addProduct(ctx, t, acc)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Nonce)
	assert.Empty(t, pendingOf(t, f.pipeline))
}

func TestReconcileDropped(t *testing.T) {
	f := newFixture(t, WithConfirmTimeout(30*time.Millisecond))
	ctx := context.Background()
	acc := f.account(t, 1)

	f.fake.HoldReceipts(true)
	_, err := f.addProduct(ctx, t, acc)
	require.ErrorIs(t, err, errno.ErrConfirmationTimeout)
	r, _ := pendingFor(t, f.pipeline, acc.Address)

	res, err := f.pipeline.Reconcile(ctx, acc.Address)
	require.NoError(t, err)
	assert.Equal(t, ReconcilePending, res.Status)

	f.fake.Drop(r.TxHash)
	res, err = f.pipeline.Reconcile(ctx, acc.Address)
	require.NoError(t, err)
	assert.Equal(t, ReconcileDropped, res.Status)
	assert.Empty(t, pendingOf(t, f.pipeline))

	f.fake.HoldReceipts(false)
	receipt, err := f.addProduct(ctx, t, acc)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), receipt.Nonce, "dropped nonce is reused")
}

func TestAbandon(t *testing.T) {
	f := newFixture(t, WithConfirmTimeout(30*time.Millisecond))
	ctx := context.Background()
	acc := f.account(t, 0)

	_, err := f.pipeline.Abandon(ctx, acc.Address)
	assert.ErrorIs(t, err, errno.ErrNoPendingTx)
	_, err = f.pipeline.Reconcile(ctx, acc.Address)
	assert.ErrorIs(t, err, errno.ErrNoPendingTx)

	f.fake.HoldReceipts(true)
	_, err = f.addProduct(ctx, t, acc)
	require.ErrorIs(t, err, errno.ErrConfirmationTimeout)

	r, err := f.pipeline.Abandon(ctx, acc.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.Nonce)
	assert.Empty(t, pendingOf(t, f.pipeline))
}

func TestDepositValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	abi := contract.MustExamenABI()

	_, err := f.pipeline.DepositValue(ctx, f.fake.Contract(), abi, "abc", f.account(t, 0))
	assert.ErrorIs(t, err, errno.ErrInvalidAmount)
	assert.Equal(t, 0, f.fake.SendCalls())

	_, err = f.pipeline.DepositValue(ctx, f.fake.Contract(), abi, "1.5", f.account(t, 0))
	require.NoError(t, err)

	bal, err := CallAs[*big.Int](ctx, f.pipeline.Gateway(), f.fake.Contract(), abi, contract.MethodGetBalance)
	require.NoError(t, err)
	assert.Equal(t, "1.5", units.FromBaseUnits(bal))
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []JournalEntry
}

func (j *recordingJournal) Record(_ context.Context, e JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

func TestJournalStages(t *testing.T) {
	j := &recordingJournal{}
	f := newFixture(t, WithJournal(j))

	_, err := f.addProduct(context.Background(), t, f.account(t, 0))
	require.NoError(t, err)

	require.Len(t, j.entries, 2)
	assert.Equal(t, StageBroadcast, j.entries[0].Stage)
	assert.Equal(t, StageConfirmed, j.entries[1].Stage)
	assert.Equal(t, contract.MethodAddProduct, j.entries[1].Method)
	assert.NotNil(t, j.entries[1].Receipt)
}

func TestMissingKeyIsSigningError(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, 0)
	acc.PrivateKey = nil

	_, err := f.addProduct(context.Background(), t, acc)
	assert.True(t, errors.Is(err, errno.ErrSigning))
}

func TestInstancesSharingReservationsSkipReservedNonce(t *testing.T) {
	fake := ledgertest.New()
	locker := lock.NewKeyedMutex()
	shared := NewMemoryReservations()
	newInstance := func() *Pipeline {
		return NewPipeline(NewGateway(fake),
			WithPollInterval(time.Millisecond),
			WithConfirmTimeout(30*time.Millisecond),
			WithLocker(locker),
			WithReservationStore(shared),
		)
	}
	a, b := newInstance(), newInstance()
	acc, err := ledgertest.Store().Resolve(0)
	require.NoError(t, err)
	ctx := context.Background()
	submit := func(p *Pipeline) error {
		_, err := p.Submit(ctx, fake.Contract(), contract.MustExamenABI(), contract.MethodAddProduct,
			[]any{"Widget", units.MustToBaseUnits("0.01")}, acc)
		return err
	}

	fake.HoldReceipts(true)
	require.ErrorIs(t, submit(a), errno.ErrConfirmationTimeout)

	// b 看到 a 保留的 nonce 0，链上 latest 仍为 0 也不能重用
	require.ErrorIs(t, submit(b), errno.ErrConfirmationTimeout)
	broadcasts := fake.Broadcasts()
	require.Len(t, broadcasts, 2)
	assert.Equal(t, uint64(0), broadcasts[0].Nonce)
	assert.Equal(t, uint64(1), broadcasts[1].Nonce)

	r, ok := pendingFor(t, a, acc.Address)
	require.True(t, ok)
	assert.Equal(t, uint64(1), r.Nonce, "both instances see the latest reservation")
}

type failingLocker struct{ err error }

func (l failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, l.err
}

func TestLockBackendFailureIsNetworkUnavailable(t *testing.T) {
	f := newFixture(t, WithLocker(failingLocker{err: errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")}))

	_, err := f.addProduct(context.Background(), t, f.account(t, 0))
	assert.ErrorIs(t, err, errno.ErrNetworkUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 0, f.fake.SendCalls())
}

func TestLockCancelledIsNotNetworkUnavailable(t *testing.T) {
	f := newFixture(t, WithLocker(failingLocker{err: context.Canceled}))

	_, err := f.addProduct(context.Background(), t, f.account(t, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, errno.ErrNetworkUnavailable)
}

func TestCallerCancelReportsContextAndReservesNonce(t *testing.T) {
	f := newFixture(t, WithConfirmTimeout(time.Minute))
	acc := f.account(t, 0)
	f.fake.HoldReceipts(true)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for f.fake.SendCalls() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := f.addProduct(ctx, t, acc)
	require.ErrorIs(t, err, errno.ErrConfirmationTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, err.Error(), "not confirmed within")

	r, ok := pendingFor(t, f.pipeline, acc.Address)
	require.True(t, ok)
	assert.Equal(t, uint64(0), r.Nonce)
}
