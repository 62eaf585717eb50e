package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ledger-core/pkg/errno"
	"ledger-core/pkg/monitor"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Reservation 等待回执超时后仍被占用的 nonce
type Reservation struct {
	Account common.Address `json:"account"`
	To      common.Address `json:"to"`
	Nonce   uint64         `json:"nonce"`
	TxHash  common.Hash    `json:"hash"`
	Method  string         `json:"method"`
	Since   time.Time      `json:"since"`
}

// ReconcileStatus 对账结论
type ReconcileStatus string

const (
	ReconcileConfirmed ReconcileStatus = "confirmed" // 已打包 (receipt 可能为 status 0)
	ReconcilePending   ReconcileStatus = "pending"   // 仍在 mempool，保留
	ReconcileDropped   ReconcileStatus = "dropped"   // 节点已不认识这笔交易，释放 nonce
)

// ReconcileResult Reconcile 的返回
type ReconcileResult struct {
	Status      ReconcileStatus `json:"status"`
	Reservation Reservation     `json:"reservation"`
	Receipt     *Receipt        `json:"receipt,omitempty"`
}

// ReservationStore 保留 nonce 的存放位置。
// 共享同一把账户锁 (lock.RedisMutex) 的多个实例必须共享同一个 ReservationStore，
// 否则一个实例超时保留的 nonce 会被另一个实例按链上 latest nonce 重复使用。
type ReservationStore interface {
	Get(ctx context.Context, addr common.Address) (Reservation, bool, error)
	Put(ctx context.Context, r Reservation) error
	Delete(ctx context.Context, addr common.Address) (Reservation, bool, error)
	List(ctx context.Context) ([]Reservation, error)
}

// MemoryReservations 进程内的 ReservationStore，单实例部署的默认值
type MemoryReservations struct {
	mu       sync.Mutex
	reserved map[common.Address]Reservation
}

func NewMemoryReservations() *MemoryReservations {
	return &MemoryReservations{reserved: make(map[common.Address]Reservation)}
}

func (m *MemoryReservations) Get(_ context.Context, addr common.Address) (Reservation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reserved[addr]
	return r, ok, nil
}

func (m *MemoryReservations) Put(_ context.Context, r Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserved[r.Account] = r
	return nil
}

func (m *MemoryReservations) Delete(_ context.Context, addr common.Address) (Reservation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reserved[addr]
	delete(m.reserved, addr)
	return r, ok, nil
}

func (m *MemoryReservations) List(_ context.Context) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Reservation, 0, len(m.reserved))
	for _, r := range m.reserved {
		out = append(out, r)
	}
	return out, nil
}

func (p *Pipeline) reserve(ctx context.Context, r Reservation) {
	if err := p.reservations.Put(ctx, r); err != nil {
		// 写不进去只能靠运维对账，日志里留下 nonce 和 hash
		p.log.Error("保存保留 nonce 失败",
			zap.String("account", r.Account.Hex()),
			zap.Uint64("nonce", r.Nonce),
			zap.String("tx", r.TxHash.Hex()),
			zap.Error(err))
	}
	p.refreshPendingGauge(ctx)
}

func (p *Pipeline) release(ctx context.Context, addr common.Address) (Reservation, bool, error) {
	r, ok, err := p.reservations.Delete(ctx, addr)
	if err != nil {
		return Reservation{}, false, reservationErr(err)
	}
	p.refreshPendingGauge(ctx)
	return r, ok, nil
}

func (p *Pipeline) refreshPendingGauge(ctx context.Context) {
	if all, err := p.reservations.List(ctx); err == nil {
		monitor.SetPendingNonces(len(all))
	}
}

// nextNonce 链上 nonce 与保留 nonce 取大；链上已越过保留值说明那笔交易已落地
func (p *Pipeline) nextNonce(ctx context.Context, addr common.Address, chainNonce uint64) (uint64, error) {
	r, ok, err := p.reservations.Get(ctx, addr)
	if err != nil {
		return 0, reservationErr(err)
	}
	if !ok {
		return chainNonce, nil
	}
	if chainNonce > r.Nonce {
		if _, _, err := p.release(ctx, addr); err != nil {
			return 0, err
		}
		p.log.Info("保留的 nonce 已上链，释放", zap.String("account", addr.Hex()), zap.Uint64("nonce", r.Nonce))
		return chainNonce, nil
	}
	return r.Nonce + 1, nil
}

// Pending 当前所有保留中的 nonce，按账户地址排序
func (p *Pipeline) Pending(ctx context.Context) ([]Reservation, error) {
	out, err := p.reservations.List(ctx)
	if err != nil {
		return nil, reservationErr(err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account.Hex() < out[j].Account.Hex() })
	return out, nil
}

// PendingFor 单个账户的保留 nonce
func (p *Pipeline) PendingFor(ctx context.Context, addr common.Address) (Reservation, bool, error) {
	r, ok, err := p.reservations.Get(ctx, addr)
	if err != nil {
		return Reservation{}, false, reservationErr(err)
	}
	return r, ok, nil
}

func reservationErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errno.ErrNetworkUnavailable.Wrap(fmt.Errorf("reservation store: %w", err))
}

// Reconcile 重新查询链上状态，判断超时的交易是否已经落地
func (p *Pipeline) Reconcile(ctx context.Context, addr common.Address) (*ReconcileResult, error) {
	unlock, err := p.lock(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, ok, err := p.PendingFor(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errno.ErrNoPendingTx.WithMessage("no pending transaction for account " + addr.Hex())
	}

	// 1. 有回执: 已打包
	raw, err := p.gateway.receipt(ctx, r.TxHash)
	if err == nil {
		receipt := newReceipt(raw, &UnsignedTransaction{From: r.Account, To: r.To, Nonce: r.Nonce})
		if _, _, err := p.release(ctx, addr); err != nil {
			return nil, err
		}
		stage := StageConfirmed
		if !receipt.Succeeded() {
			stage = StageReverted
		}
		p.journal.Record(ctx, JournalEntry{Account: addr, Method: r.Method, Nonce: r.Nonce, TxHash: r.TxHash, Stage: stage, Receipt: receipt})
		return &ReconcileResult{Status: ReconcileConfirmed, Reservation: r, Receipt: receipt}, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return nil, err
	}

	// 2. 没有回执: 节点是否还持有这笔交易
	known, err := p.gateway.transactionKnown(ctx, r.TxHash)
	if err != nil {
		return nil, err
	}
	if known {
		return &ReconcileResult{Status: ReconcilePending, Reservation: r}, nil
	}

	if _, _, err := p.release(ctx, addr); err != nil {
		return nil, err
	}
	p.journal.Record(ctx, JournalEntry{Account: addr, Method: r.Method, Nonce: r.Nonce, TxHash: r.TxHash, Stage: StageDropped})
	return &ReconcileResult{Status: ReconcileDropped, Reservation: r}, nil
}

// Abandon 运维确认放弃保留的 nonce (下一次提交将重新使用链上 nonce)
func (p *Pipeline) Abandon(ctx context.Context, addr common.Address) (Reservation, error) {
	r, ok, err := p.release(ctx, addr)
	if err != nil {
		return Reservation{}, err
	}
	if !ok {
		return Reservation{}, errno.ErrNoPendingTx.WithMessage("no pending transaction for account " + addr.Hex())
	}
	p.log.Warn("放弃保留的 nonce",
		zap.String("account", addr.Hex()),
		zap.Uint64("nonce", r.Nonce),
		zap.String("tx", r.TxHash.Hex()))
	p.journal.Record(ctx, JournalEntry{Account: addr, Method: r.Method, Nonce: r.Nonce, TxHash: r.TxHash, Stage: StageDropped})
	return r, nil
}
