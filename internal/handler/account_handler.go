package handler

import (
	"ledger-core/internal/handler/response"
	"ledger-core/internal/service"

	"github.com/gin-gonic/gin"
)

// AccountHandler 签名账户与保留 nonce 的运维接口
type AccountHandler struct {
	svc service.AccountService
}

func NewAccountHandler(svc service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// @Router /api/v1/examen/accounts [get]
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	accs, err := h.svc.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"accounts": accs})
}

// Reconcile 查询超时未确认的交易，已上链或已丢弃时释放 nonce
// @Router /api/v1/examen/accounts/{account}/reconcile [post]
func (h *AccountHandler) Reconcile(c *gin.Context) {
	idx, err := accountParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.svc.Reconcile(c.Request.Context(), idx)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"result": result})
}

// Abandon 放弃保留的 nonce (交易确认已被节点丢弃时使用)
// @Router /api/v1/examen/accounts/{account}/pending [delete]
func (h *AccountHandler) Abandon(c *gin.Context) {
	idx, err := accountParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	reservation, err := h.svc.Abandon(c.Request.Context(), idx)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"abandoned": reservation})
}
