package handler

import (
	"ledger-core/internal/handler/response"

	"github.com/gin-gonic/gin"
)

// HealthCheck 进程存活检查，不访问链上节点
// @Router /health [get]
func HealthCheck(c *gin.Context) {
	response.Success(c, gin.H{
		"status":  "UP",
		"version": "1.0.0",
		"service": "ledger-server",
	})
}
