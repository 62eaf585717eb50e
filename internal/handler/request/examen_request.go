package request

type DepositRequest struct {
	Amount  *Amount       `json:"amount" binding:"required"`
	Account *AccountIndex `json:"account" binding:"required"`
}

type SubmitTransactionRequest struct {
	To      string        `json:"to" binding:"required,eth_addr"`
	Amount  *Amount       `json:"amount" binding:"required"`
	Account *AccountIndex `json:"account" binding:"required"`
}

type AddProductRequest struct {
	Name    string        `json:"name" binding:"required,max=256"`
	Price   *Amount       `json:"price" binding:"required"`
	Account *AccountIndex `json:"account" binding:"required"`
}

// UpdateProductRequest price 可省略，省略时链上价格被置为 0
type UpdateProductRequest struct {
	Name    string        `json:"name" binding:"max=256"`
	Price   *Amount       `json:"price"`
	Active  *bool         `json:"active" binding:"required"`
	Account *AccountIndex `json:"account" binding:"required"`
}

// PriceString 把可选价格原文交给 service，nil 保持 nil
func (r *UpdateProductRequest) PriceString() *string {
	if r.Price == nil {
		return nil
	}
	s := r.Price.String()
	return &s
}
