package handler

import (
	"fmt"
	"strconv"

	"ledger-core/pkg/errno"
	"ledger-core/pkg/validator"

	"github.com/gin-gonic/gin"
)

// bind 解析 JSON 请求体，校验失败统一转换为 ErrBind (400)
func bind(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return errno.ErrBind.WithMessage(validator.GetErrorMsg(err))
	}
	return nil
}

func txIDParam(c *gin.Context) (uint64, error) {
	raw := c.Param("txId")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errno.ErrBind.WithMessage(fmt.Sprintf("txId %q is not a non-negative integer", raw))
	}
	return id, nil
}

func productIDParam(c *gin.Context) (uint64, error) {
	raw := c.Param("productId")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errno.ErrInvalidProductID.WithMessage(fmt.Sprintf("product id %q does not exist", raw))
	}
	return id, nil
}

func accountParam(c *gin.Context) (int, error) {
	raw := c.Param("account")
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errno.ErrInvalidAccountIndex.WithMessage(fmt.Sprintf("invalid account index %q", raw))
	}
	return idx, nil
}
