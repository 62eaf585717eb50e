package response

import (
	"net/http"

	"ledger-core/pkg/errno"

	"github.com/gin-gonic/gin"
)

// Success 返回 {success: true, ...payload}
func Success(c *gin.Context, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// Error 返回 {success: false, code, error}，HTTP 状态码取自 errno
func Error(c *gin.Context, err error) {
	status, code, msg := errno.Decode(err)
	c.JSON(status, gin.H{
		"success": false,
		"code":    code,
		"error":   msg,
	})
}
