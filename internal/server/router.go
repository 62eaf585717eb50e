package server

import (
	"ledger-core/internal/handler"
	"ledger-core/internal/server/middleware"
	"ledger-core/pkg/monitor"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 路由依赖。Idempotency 为 nil 时不启用幂等中间件
type Handlers struct {
	Multisig    *handler.MultisigHandler
	Product     *handler.ProductHandler
	Account     *handler.AccountHandler
	Idempotency gin.HandlerFunc
}

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(h Handlers) *gin.Engine {
	// 0. 初始化监控指标
	monitor.Init()

	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(middleware.RequestID())
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 4. 注册业务路由
	api := r.Group("/api/v1/examen")
	if h.Idempotency != nil {
		api.Use(h.Idempotency)
	}
	{
		api.POST("/deposit", h.Multisig.Deposit)
		api.POST("/transaction", h.Multisig.SubmitTransaction)
		api.POST("/transaction/:txId/approve", h.Multisig.ApproveTransaction)
		api.POST("/transaction/:txId/execute", h.Multisig.ExecuteTransaction)
		api.GET("/transactions", h.Multisig.GetTransactions)
		api.GET("/transaction/:txId/approvals", h.Multisig.GetTransactionApprovals)
		api.POST("/release-payments", h.Multisig.ReleasePayments)
		api.GET("/balance", h.Multisig.GetBalance)

		api.POST("/product", h.Product.AddProduct)
		api.PUT("/product/:productId", h.Product.UpdateProduct)
		api.POST("/product/:productId/buy", h.Product.BuyProduct)
		api.POST("/product/:productId/disable", h.Product.DisableProduct)
		api.GET("/products", h.Product.GetProducts)
		api.GET("/product/:productId", h.Product.GetProduct)

		api.GET("/accounts", h.Account.ListAccounts)
		api.POST("/accounts/:account/reconcile", h.Account.Reconcile)
		api.DELETE("/accounts/:account/pending", h.Account.Abandon)
	}

	return r
}
