// Package ledgertest 提供一个内存版的链节点，实现 Examen 合约语义，
// 供 ledger / service / handler 的测试使用。交易使用真实的 ABI 编码和 EIP-155 签名。
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"sort"
	"sync"
	"time"

	"ledger-core/internal/contract"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	callGas     uint64 = 120_000
	transferGas uint64 = 21_000
)

// Broadcast 记录一次被节点接受的 SendTransaction
type Broadcast struct {
	From   common.Address
	Nonce  uint64
	Method string
	Hash   common.Hash
}

type transfer struct {
	to        common.Address
	amount    *big.Int
	approvals []contract.ExamenApproval
	approved  map[common.Address]bool
	executed  bool
}

type product struct {
	productID *big.Int
	name      string
	price     *big.Int
	seller    common.Address
	active    bool
}

type pendingTx struct {
	tx     *types.Transaction
	from   common.Address
	method string
}

// FakeLedger 内存链 + Examen 合约
type FakeLedger struct {
	mu sync.Mutex

	chainID  *big.Int
	gasPrice *big.Int
	contract common.Address
	abi      *abi.ABI
	now      func() time.Time

	block    uint64
	nonces   map[common.Address]uint64
	balances map[common.Address]*big.Int
	mempool  map[common.Hash]*pendingTx
	mined    map[common.Hash]*types.Transaction
	receipts map[common.Hash]*types.Receipt

	owners   map[common.Address]bool
	required int64
	payees   []common.Address
	shares   []int64

	transfers []*transfer
	products  []*product

	hold        bool
	unavailable bool
	sendCalls   int
	broadcasts  []Broadcast
}

// Option 配置 FakeLedger
type Option func(*FakeLedger)

// WithOwners 多签 owner 列表和通过阈值 (默认: 前三个测试账户, 阈值 2)
func WithOwners(owners []common.Address, required int64) Option {
	return func(f *FakeLedger) {
		f.owners = make(map[common.Address]bool, len(owners))
		for _, o := range owners {
			f.owners[o] = true
		}
		f.required = required
	}
}

// WithPayees releasePayments 的收款人和份额
func WithPayees(payees []common.Address, shares []int64) Option {
	return func(f *FakeLedger) {
		f.payees = payees
		f.shares = shares
	}
}

// WithClock 固定审批时间戳
func WithClock(now func() time.Time) Option {
	return func(f *FakeLedger) { f.now = now }
}

// New 创建节点，每个测试账户预存 1000 ether
func New(opts ...Option) *FakeLedger {
	f := &FakeLedger{
		chainID:  big.NewInt(31337),
		gasPrice: big.NewInt(1_000_000_000),
		contract: ContractAddress,
		abi:      contract.MustExamenABI(),
		now:      time.Now,
		block:    1,
		nonces:   make(map[common.Address]uint64),
		balances: make(map[common.Address]*big.Int),
		mempool:  make(map[common.Hash]*pendingTx),
		mined:    make(map[common.Hash]*types.Transaction),
		receipts: make(map[common.Hash]*types.Receipt),
	}
	addrs := Addresses()
	WithOwners(addrs[:3], 2)(f)
	WithPayees(addrs[:2], []int64{1, 1})(f)

	initial := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	for _, a := range addrs {
		f.balances[a] = new(big.Int).Set(initial)
	}
	f.balances[f.contract] = new(big.Int)

	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ---- 测试控制 ----

// HoldReceipts 为 true 时交易停留在 mempool，不出块
func (f *FakeLedger) HoldReceipts(hold bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = hold
	if !hold {
		f.mineLocked()
	}
}

// SetUnavailable 模拟节点不可达 (所有调用返回拨号错误)
func (f *FakeLedger) SetUnavailable(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailable = down
}

// Drop 从 mempool 移除交易 (模拟被节点丢弃)
func (f *FakeLedger) Drop(hash common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.mempool, hash)
}

// SendCalls SendTransaction 被调用的次数 (包括被拒绝的)
func (f *FakeLedger) SendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

// Broadcasts 被接受的广播记录
func (f *FakeLedger) Broadcasts() []Broadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Broadcast, len(f.broadcasts))
	copy(out, f.broadcasts)
	return out
}

// Contract 合约地址
func (f *FakeLedger) Contract() common.Address { return f.contract }

// Fund 给合约或账户充值
func (f *FakeLedger) Fund(addr common.Address, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceLocked(addr).Add(f.balanceLocked(addr), wei)
}

// ---- Provider ----

var errUnavailable = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")}

func (f *FakeLedger) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return 0, errUnavailable
	}
	return f.nonces[account], nil
}

func (f *FakeLedger) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return 0, errUnavailable
	}
	n := f.nonces[account]
	for _, p := range f.mempool {
		if p.from == account && p.tx.Nonce() >= n {
			n = p.tx.Nonce() + 1
		}
	}
	return n, nil
}

func (f *FakeLedger) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return nil, errUnavailable
	}
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *FakeLedger) ChainID(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return nil, errUnavailable
	}
	return new(big.Int).Set(f.chainID), nil
}

func (f *FakeLedger) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return nil, errUnavailable
	}
	return new(big.Int).Set(f.balanceLocked(account)), nil
}

func (f *FakeLedger) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return 0, errUnavailable
	}
	if msg.To == nil {
		return 0, errors.New("contract creation is not supported")
	}
	if _, err := f.applyLocked(msg.From, *msg.To, msg.Value, msg.Data, false); err != nil {
		return 0, err
	}
	if *msg.To != f.contract {
		return transferGas, nil
	}
	return callGas, nil
}

func (f *FakeLedger) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return nil, errUnavailable
	}
	if msg.To == nil || *msg.To != f.contract {
		return nil, nil
	}
	return f.applyLocked(msg.From, *msg.To, msg.Value, msg.Data, false)
}

func (f *FakeLedger) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.unavailable {
		return errUnavailable
	}

	if tx.ChainId().Cmp(f.chainID) != 0 {
		return fmt.Errorf("invalid chain id: have %s want %s", tx.ChainId(), f.chainID)
	}
	from, err := types.Sender(types.LatestSignerForChainID(f.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if _, known := f.mempool[tx.Hash()]; known {
		return errors.New("already known")
	}
	if next := f.nonces[from]; tx.Nonce() < next {
		return fmt.Errorf("nonce too low: address %s, tx: %d state: %d", from.Hex(), tx.Nonce(), next)
	}
	for _, p := range f.mempool {
		if p.from == from && p.tx.Nonce() == tx.Nonce() {
			return errors.New("replacement transaction underpriced")
		}
	}

	method := ""
	if tx.To() != nil && *tx.To() == f.contract && len(tx.Data()) >= 4 {
		if m, err := f.abi.MethodById(tx.Data()[:4]); err == nil {
			method = m.Name
		}
	}

	f.mempool[tx.Hash()] = &pendingTx{tx: tx, from: from, method: method}
	f.broadcasts = append(f.broadcasts, Broadcast{From: from, Nonce: tx.Nonce(), Method: method, Hash: tx.Hash()})
	if !f.hold {
		f.mineLocked()
	}
	return nil
}

func (f *FakeLedger) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return nil, errUnavailable
	}
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *FakeLedger) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return nil, false, errUnavailable
	}
	if p, ok := f.mempool[hash]; ok {
		return p.tx, true, nil
	}
	if tx, ok := f.mined[hash]; ok {
		return tx, false, nil
	}
	return nil, false, ethereum.NotFound
}

// ---- 出块 ----

// mineLocked 按 nonce 顺序打包 mempool 中可执行的交易，每笔一个区块
func (f *FakeLedger) mineLocked() {
	for {
		var ready []*pendingTx
		for _, p := range f.mempool {
			if p.tx.Nonce() == f.nonces[p.from] {
				ready = append(ready, p)
			}
		}
		if len(ready) == 0 {
			return
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i].tx.Hash().Hex() < ready[j].tx.Hash().Hex() })
		for _, p := range ready {
			f.includeLocked(p)
		}
	}
}

func (f *FakeLedger) includeLocked(p *pendingTx) {
	tx := p.tx
	delete(f.mempool, tx.Hash())
	f.nonces[p.from] = tx.Nonce() + 1
	f.block++

	status := types.ReceiptStatusSuccessful
	if _, err := f.applyLocked(p.from, *tx.To(), tx.Value(), tx.Data(), true); err != nil {
		status = types.ReceiptStatusFailed
	}

	f.mined[tx.Hash()] = tx
	f.receipts[tx.Hash()] = &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		CumulativeGasUsed: tx.Gas(),
		GasUsed:           tx.Gas(),
		TxHash:            tx.Hash(),
		BlockNumber:       new(big.Int).SetUint64(f.block),
		Logs:              []*types.Log{},
	}
}

func (f *FakeLedger) balanceLocked(addr common.Address) *big.Int {
	b, ok := f.balances[addr]
	if !ok {
		b = new(big.Int)
		f.balances[addr] = b
	}
	return b
}
