package handler

import (
	"ledger-core/internal/handler/request"
	"ledger-core/internal/handler/response"
	"ledger-core/internal/service"
	"ledger-core/pkg/errno"

	"github.com/gin-gonic/gin"
)

type ProductHandler struct {
	svc service.ProductCatalog
}

func NewProductHandler(svc service.ProductCatalog) *ProductHandler {
	return &ProductHandler{svc: svc}
}

// @Router /api/v1/examen/product [post]
func (h *ProductHandler) AddProduct(c *gin.Context) {
	var req request.AddProductRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	receipt, err := h.svc.Add(c.Request.Context(), req.Name, req.Price.String(), req.Account.Int())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"receipt": receipt})
}

// UpdateProduct 省略 price 时链上价格会被置为 0
// @Router /api/v1/examen/product/{productId} [put]
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	productID, err := productIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req request.UpdateProductRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	receipt, err := h.svc.Update(c.Request.Context(), productID, req.Name, req.PriceString(), *req.Active, req.Account.Int())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"receipt": receipt})
}

// BuyProduct 先校验商品存在且上架，再按链上价格付款
// @Router /api/v1/examen/product/{productId}/buy [post]
func (h *ProductHandler) BuyProduct(c *gin.Context) {
	productID, err := productIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req request.AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("Cuenta es requerida"))
		return
	}

	result, err := h.svc.Buy(c.Request.Context(), productID, req.Account.Int())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"message": result.Message,
		"product": result.Product,
		"receipt": result.Receipt,
	})
}

// @Router /api/v1/examen/product/{productId}/disable [post]
func (h *ProductHandler) DisableProduct(c *gin.Context) {
	productID, err := productIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req request.AccountRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	receipt, err := h.svc.Disable(c.Request.Context(), productID, req.Account.Int())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"receipt": receipt})
}

// @Router /api/v1/examen/products [get]
func (h *ProductHandler) GetProducts(c *gin.Context) {
	products, err := h.svc.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"products": products})
}

// @Router /api/v1/examen/product/{productId} [get]
func (h *ProductHandler) GetProduct(c *gin.Context) {
	productID, err := productIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	product, err := h.svc.Get(c.Request.Context(), productID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"product": product})
}
