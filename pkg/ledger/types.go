package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// UnsignedTransaction 每次调用新建，不复用
type UnsignedTransaction struct {
	From     common.Address
	To       common.Address
	Nonce    uint64
	GasPrice *big.Int
	GasLimit uint64
	ChainID  *big.Int
	Data     []byte
	Value    *big.Int
}

// CallMsg 估算 gas 使用的草稿 (不含 gas limit)
func (u *UnsignedTransaction) CallMsg() ethereum.CallMsg {
	to := u.To
	return ethereum.CallMsg{
		From:     u.From,
		To:       &to,
		GasPrice: u.GasPrice,
		Value:    u.Value,
		Data:     u.Data,
	}
}

// Transaction 转换为 legacy 交易，由 EIP-155 签名器签名
func (u *UnsignedTransaction) Transaction() *types.Transaction {
	to := u.To
	value := u.Value
	if value == nil {
		value = new(big.Int)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    u.Nonce,
		GasPrice: u.GasPrice,
		Gas:      u.GasLimit,
		To:       &to,
		Value:    value,
		Data:     u.Data,
	})
}

// Receipt 交易被打包后的回执
type Receipt struct {
	TxHash      common.Hash    `json:"hash"`
	Status      uint64         `json:"status"`
	GasUsed     uint64         `json:"gasUsed"`
	BlockNumber *big.Int       `json:"blockNumber"`
	Nonce       uint64         `json:"nonce"`
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	Logs        []*types.Log   `json:"logs"`
}

func newReceipt(r *types.Receipt, tx *UnsignedTransaction) *Receipt {
	logs := r.Logs
	if logs == nil {
		logs = []*types.Log{}
	}
	return &Receipt{
		TxHash:      r.TxHash,
		Status:      r.Status,
		GasUsed:     r.GasUsed,
		BlockNumber: r.BlockNumber,
		Nonce:       tx.Nonce,
		From:        tx.From,
		To:          tx.To,
		Logs:        logs,
	}
}

// Succeeded status == 1
func (r *Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}
