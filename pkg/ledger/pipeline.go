package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"ledger-core/pkg/accounts"
	"ledger-core/pkg/errno"
	"ledger-core/pkg/logger"
	"ledger-core/pkg/monitor"
	"ledger-core/pkg/units"
	"ledger-core/pkg/utils/lock"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DepositMethod 接收直接转账的 payable 方法名
const DepositMethod = "deposit"

// Locker 按 key 串行化。同一账户从取 nonce 到拿到回执 (或超时) 期间必须持有锁。
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Pipeline 构造、签名、广播交易并等待回执
type Pipeline struct {
	gateway        *Gateway
	locker         Locker
	journal        Journal
	confirmTimeout time.Duration
	pollInterval   time.Duration
	log            *zap.Logger
	reservations   ReservationStore
}

type Option func(*Pipeline)

// WithLocker 默认是进程内的 lock.KeyedMutex；多实例部署使用 lock.RedisMutex
func WithLocker(l Locker) Option {
	return func(p *Pipeline) { p.locker = l }
}

// WithReservationStore 默认是进程内的 MemoryReservations；与 lock.RedisMutex 配套使用 RedisReservations
func WithReservationStore(s ReservationStore) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.reservations = s
		}
	}
}

func WithJournal(j Journal) Option {
	return func(p *Pipeline) {
		if j != nil {
			p.journal = j
		}
	}
}

func WithConfirmTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.confirmTimeout = d
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

func NewPipeline(gateway *Gateway, opts ...Option) *Pipeline {
	p := &Pipeline{
		gateway:        gateway,
		locker:         lock.NewKeyedMutex(),
		journal:        nopJournal{},
		confirmTimeout: 2 * time.Minute,
		pollInterval:   time.Second,
		log:            logger.Named("pipeline"),
		reservations:   NewMemoryReservations(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Gateway() *Gateway {
	return p.gateway
}

// Submit 调用合约的写方法，阻塞直到交易被打包
func (p *Pipeline) Submit(ctx context.Context, contract common.Address, contractABI *abi.ABI, method string, args []any, account accounts.Account) (*Receipt, error) {
	return p.SubmitValue(ctx, contract, contractABI, method, nil, args, account)
}

// DepositValue 向合约的 payable deposit() 直接转入 amount (十进制 ether 字符串)
func (p *Pipeline) DepositValue(ctx context.Context, contract common.Address, contractABI *abi.ABI, amount string, account accounts.Account) (*Receipt, error) {
	value, err := units.ToBaseUnits(amount)
	if err != nil {
		return nil, err
	}
	return p.SubmitValue(ctx, contract, contractABI, DepositMethod, value, nil, account)
}

// SubmitValue 带 value 的合约调用 (payable 方法)
func (p *Pipeline) SubmitValue(ctx context.Context, contract common.Address, contractABI *abi.ABI, method string, value *big.Int, args []any, account accounts.Account) (receipt *Receipt, err error) {
	start := time.Now()
	defer func() {
		monitor.ObserveTx(method, resultLabel(err), time.Since(start))
	}()

	if account.PrivateKey == nil {
		return nil, errno.ErrSigning.Wrap(fmt.Errorf("account %s has no private key", account.Address.Hex()))
	}

	// 1. 编码 (确定性，失败不需要任何网络往返)
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, errno.ErrEncoding.Wrap(fmt.Errorf("%s: %w", method, err))
	}

	// 2. 账户串行化: 取 nonce 到拿到回执之间不允许同账户的其他提交
	unlock, err := p.lock(ctx, account.Address)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 3. 构造交易
	tx, err := p.build(ctx, account.Address, contract, data, value)
	if err != nil {
		return nil, err
	}

	// 4. 估算 gas (会 revert 的调用在这里被拒绝，不会花费 gas)
	tx.GasLimit, err = p.gateway.EstimateGas(ctx, tx)
	if err != nil {
		p.log.Warn("gas 估算失败", zap.String("method", method), zap.String("account", account.Address.Hex()), zap.Error(err))
		return nil, err
	}

	// 5. 签名 (EIP-155)
	signed, err := types.SignTx(tx.Transaction(), types.NewEIP155Signer(tx.ChainID), account.PrivateKey)
	if err != nil {
		return nil, errno.ErrSigning.Wrap(err)
	}

	// 6. 广播
	if err := p.gateway.sendTransaction(ctx, signed); err != nil {
		p.log.Warn("广播失败", zap.String("method", method), zap.String("account", account.Address.Hex()), zap.Uint64("nonce", tx.Nonce), zap.Error(err))
		return nil, err
	}
	p.log.Info("交易已广播",
		zap.String("method", method),
		zap.String("account", account.Address.Hex()),
		zap.Uint64("nonce", tx.Nonce),
		zap.String("tx", signed.Hash().Hex()))
	p.journal.Record(context.WithoutCancel(ctx), JournalEntry{
		Account: account.Address, Method: method, Nonce: tx.Nonce, TxHash: signed.Hash(), Stage: StageBroadcast,
	})

	// 7. 等待回执
	return p.await(ctx, tx, signed.Hash(), method)
}

func (p *Pipeline) lock(ctx context.Context, addr common.Address) (func(), error) {
	start := time.Now()
	unlock, err := p.locker.Lock(ctx, strings.ToLower(addr.Hex()))
	monitor.ObserveLockWait(time.Since(start))
	if err != nil {
		err = fmt.Errorf("acquire account lock %s: %w", addr.Hex(), err)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// 锁后端 (Redis) 不可达
		return nil, errno.ErrNetworkUnavailable.Wrap(err)
	}
	return unlock, nil
}

// build nonce / gas price / chain id 三次独立往返并发执行，不做缓存
func (p *Pipeline) build(ctx context.Context, from, to common.Address, data []byte, value *big.Int) (*UnsignedTransaction, error) {
	var (
		chainNonce uint64
		gasPrice   *big.Int
		chainID    *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		chainNonce, err = p.gateway.Nonce(gctx, from)
		return err
	})
	g.Go(func() (err error) {
		gasPrice, err = p.gateway.GasPrice(gctx)
		return err
	})
	g.Go(func() (err error) {
		chainID, err = p.gateway.ChainID(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	nonce, err := p.nextNonce(ctx, from, chainNonce)
	if err != nil {
		return nil, err
	}

	if value == nil {
		value = new(big.Int)
	}
	return &UnsignedTransaction{
		From:     from,
		To:       to,
		Nonce:    nonce,
		GasPrice: gasPrice,
		ChainID:  chainID,
		Data:     data,
		Value:    value,
	}, nil
}

// await 轮询回执直到打包或超时；超时后 nonce 进入保留表
func (p *Pipeline) await(ctx context.Context, tx *UnsignedTransaction, hash common.Hash, method string) (*Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	jctx := context.WithoutCancel(ctx)
	entry := JournalEntry{Account: tx.From, Method: method, Nonce: tx.Nonce, TxHash: hash}

	for {
		raw, err := p.gateway.receipt(waitCtx, hash)
		if err == nil {
			receipt := newReceipt(raw, tx)
			entry.Receipt = receipt
			if !receipt.Succeeded() {
				entry.Stage = StageReverted
				entry.Err = fmt.Errorf("transaction %s reverted in block %s", hash.Hex(), raw.BlockNumber)
				p.journal.Record(jctx, entry)
				return nil, errno.ErrBroadcastRejected.Wrap(entry.Err)
			}
			entry.Stage = StageConfirmed
			p.journal.Record(jctx, entry)
			p.log.Info("交易已确认", zap.String("tx", hash.Hex()), zap.Uint64("block", raw.BlockNumber.Uint64()), zap.Uint64("gasUsed", raw.GasUsed))
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			p.log.Warn("查询回执失败，继续轮询", zap.String("tx", hash.Hex()), zap.Error(err))
		}

		select {
		case <-waitCtx.Done():
			p.reserve(jctx, Reservation{Account: tx.From, To: tx.To, Nonce: tx.Nonce, TxHash: hash, Method: method, Since: time.Now()})
			entry.Stage = StageTimeout
			if err := ctx.Err(); err != nil {
				entry.Err = fmt.Errorf("stopped waiting for transaction %s (nonce %d): %w, nonce reserved until reconciled", hash.Hex(), tx.Nonce, err)
			} else {
				entry.Err = fmt.Errorf("transaction %s (nonce %d) not confirmed within %s, nonce reserved until reconciled", hash.Hex(), tx.Nonce, p.confirmTimeout)
			}
			p.journal.Record(jctx, entry)
			p.log.Warn("等待回执超时", zap.String("tx", hash.Hex()), zap.Uint64("nonce", tx.Nonce))
			return nil, errno.ErrConfirmationTimeout.Wrap(entry.Err)
		case <-ticker.C:
		}
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, errno.ErrConfirmationTimeout):
		return "timeout"
	default:
		return "error"
	}
}
