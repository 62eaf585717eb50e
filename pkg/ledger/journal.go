package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Stage 交易在流水线中的阶段
type Stage string

const (
	StageBroadcast Stage = "BROADCAST" // 节点已接受
	StageConfirmed Stage = "CONFIRMED" // 打包且 status=1
	StageReverted  Stage = "REVERTED"  // 打包但 status=0
	StageTimeout   Stage = "TIMEOUT"   // 等待回执超时，nonce 保留
	StageDropped   Stage = "DROPPED"   // 对账发现节点已丢弃 / 运维放弃
)

// JournalEntry 一次阶段变化
type JournalEntry struct {
	Account common.Address
	Method  string
	Nonce   uint64
	TxHash  common.Hash
	Stage   Stage
	Receipt *Receipt
	Err     error
}

// Journal 记录广播流水 (可选)。实现不得阻塞太久，错误自行处理。
type Journal interface {
	Record(ctx context.Context, entry JournalEntry)
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, JournalEntry) {}
