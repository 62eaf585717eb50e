package service

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"ledger-core/internal/contract"
	"ledger-core/pkg/accounts"
	"ledger-core/pkg/errno"
	"ledger-core/pkg/ledger"
	"ledger-core/pkg/units"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// MultisigService 多签转账: 提交 -> 审批 (链上校验去重和阈值) -> 执行
type MultisigService struct {
	store    *accounts.Store
	pipeline *ledger.Pipeline
	contract common.Address
	abi      *abi.ABI
}

var _ MultisigWorkflow = (*MultisigService)(nil)

func NewMultisigService(store *accounts.Store, pipeline *ledger.Pipeline, contractAddr common.Address) *MultisigService {
	return &MultisigService{
		store:    store,
		pipeline: pipeline,
		contract: contractAddr,
		abi:      contract.MustExamenABI(),
	}
}

func (s *MultisigService) send(ctx context.Context, method string, account int, args ...any) (*ledger.Receipt, error) {
	acc, err := s.store.Resolve(account)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Submit(ctx, s.contract, s.abi, method, args, acc)
}

// Submit 创建转账请求，金额先转换为 wei
func (s *MultisigService) Submit(ctx context.Context, to, amount string, account int) (*ledger.Receipt, error) {
	if !common.IsHexAddress(to) {
		return nil, errno.ErrInvalidAddress.WithMessage(fmt.Sprintf("invalid address %q", to))
	}
	amountWei, err := units.ToBaseUnits(amount)
	if err != nil {
		return nil, err
	}
	receipt, err := s.send(ctx, contract.MethodSubmitTransaction, account, common.HexToAddress(to), amountWei)
	if err != nil {
		return nil, err
	}
	log.Printf("[Multisig] 转账请求已提交 to=%s amount=%s tx=%s", to, amount, receipt.TxHash.Hex())
	return receipt, nil
}

// Approve 不在本地检查重复审批，由链上拒绝并原样返回原因
func (s *MultisigService) Approve(ctx context.Context, txID uint64, account int) (*ledger.Receipt, error) {
	return s.send(ctx, contract.MethodApproveTransaction, account, new(big.Int).SetUint64(txID))
}

// Execute 阈值未满足时链上在 gas 估算阶段 revert
func (s *MultisigService) Execute(ctx context.Context, txID uint64, account int) (*ledger.Receipt, error) {
	receipt, err := s.send(ctx, contract.MethodExecuteTransaction, account, new(big.Int).SetUint64(txID))
	if err != nil {
		return nil, err
	}
	log.Printf("[Multisig] 转账请求 %d 已执行 tx=%s", txID, receipt.TxHash.Hex())
	return receipt, nil
}

func (s *MultisigService) ReleasePayments(ctx context.Context, account int) (*ledger.Receipt, error) {
	return s.send(ctx, contract.MethodReleasePayments, account)
}

// Deposit 向合约 deposit() 转入 amount ether
func (s *MultisigService) Deposit(ctx context.Context, amount string, account int) (*ledger.Receipt, error) {
	acc, err := s.store.Resolve(account)
	if err != nil {
		return nil, err
	}
	return s.pipeline.DepositValue(ctx, s.contract, s.abi, amount, acc)
}

func (s *MultisigService) Balance(ctx context.Context) (*BalanceView, error) {
	wei, err := ledger.CallAs[*big.Int](ctx, s.pipeline.Gateway(), s.contract, s.abi, contract.MethodGetBalance)
	if err != nil {
		return nil, err
	}
	return &BalanceView{Ether: units.FromBaseUnits(wei), Wei: decimalString(wei)}, nil
}

func (s *MultisigService) ListTransfers(ctx context.Context) ([]TransferView, error) {
	txs, err := ledger.CallAs[[]contract.ExamenTransaction](ctx, s.pipeline.Gateway(), s.contract, s.abi, contract.MethodGetTransactions)
	if err != nil {
		return nil, err
	}
	out := make([]TransferView, len(txs))
	for i, t := range txs {
		out[i] = newTransferView(t)
	}
	return out, nil
}

func (s *MultisigService) ListApprovals(ctx context.Context, txID uint64) ([]ApprovalView, error) {
	approvals, err := ledger.CallAs[[]contract.ExamenApproval](ctx, s.pipeline.Gateway(), s.contract, s.abi,
		contract.MethodGetTransactionApprovals, new(big.Int).SetUint64(txID))
	if err != nil {
		return nil, err
	}
	out := make([]ApprovalView, len(approvals))
	for i, a := range approvals {
		out[i] = newApprovalView(a)
	}
	return out, nil
}
