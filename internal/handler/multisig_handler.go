package handler

import (
	"context"

	"ledger-core/internal/handler/request"
	"ledger-core/internal/handler/response"
	"ledger-core/internal/service"
	"ledger-core/pkg/ledger"

	"github.com/gin-gonic/gin"
)

type MultisigHandler struct {
	svc service.MultisigWorkflow
}

func NewMultisigHandler(svc service.MultisigWorkflow) *MultisigHandler {
	return &MultisigHandler{svc: svc}
}

// Deposit 向合约存入 ether
// @Router /api/v1/examen/deposit [post]
func (h *MultisigHandler) Deposit(c *gin.Context) {
	var req request.DepositRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	receipt, err := h.svc.Deposit(c.Request.Context(), req.Amount.String(), req.Account.Int())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"receipt": receipt})
}

// SubmitTransaction 创建多签转账请求
// @Router /api/v1/examen/transaction [post]
func (h *MultisigHandler) SubmitTransaction(c *gin.Context) {
	var req request.SubmitTransactionRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	receipt, err := h.svc.Submit(c.Request.Context(), req.To, req.Amount.String(), req.Account.Int())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"receipt": receipt})
}

// @Router /api/v1/examen/transaction/{txId}/approve [post]
func (h *MultisigHandler) ApproveTransaction(c *gin.Context) {
	h.withTxID(c, h.svc.Approve)
}

// @Router /api/v1/examen/transaction/{txId}/execute [post]
func (h *MultisigHandler) ExecuteTransaction(c *gin.Context) {
	h.withTxID(c, h.svc.Execute)
}

func (h *MultisigHandler) withTxID(c *gin.Context, op func(ctx context.Context, txID uint64, account int) (*ledger.Receipt, error)) {
	txID, err := txIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req request.AccountRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	receipt, err := op(c.Request.Context(), txID, req.Account.Int())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"receipt": receipt})
}

// @Router /api/v1/examen/release-payments [post]
func (h *MultisigHandler) ReleasePayments(c *gin.Context) {
	var req request.AccountRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	receipt, err := h.svc.ReleasePayments(c.Request.Context(), req.Account.Int())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"receipt": receipt})
}

// @Router /api/v1/examen/balance [get]
func (h *MultisigHandler) GetBalance(c *gin.Context) {
	balance, err := h.svc.Balance(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"balance": balance})
}

// @Router /api/v1/examen/transactions [get]
func (h *MultisigHandler) GetTransactions(c *gin.Context) {
	txs, err := h.svc.ListTransfers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"transactions": txs})
}

// @Router /api/v1/examen/transaction/{txId}/approvals [get]
func (h *MultisigHandler) GetTransactionApprovals(c *gin.Context) {
	txID, err := txIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	approvals, err := h.svc.ListApprovals(c.Request.Context(), txID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"approvals": approvals})
}
