package service

import (
	"math/big"
	"time"

	"ledger-core/internal/contract"
	"ledger-core/pkg/ledger"
	"ledger-core/pkg/units"
)

// 审批时间戳的展示格式 (UTC，毫秒精度)
const timestampLayout = "2006-01-02T15:04:05.000Z"

// TransferView 多签转账请求的展示形式
type TransferView struct {
	TxId          string `json:"txId"`
	To            string `json:"to"`
	Amount        string `json:"amount"`
	ApprovalCount string `json:"approvalCount"`
	Executed      bool   `json:"executed"`
}

// ApprovalView 单条审批
type ApprovalView struct {
	Approver   string `json:"approver"`
	Timestamp  string `json:"timestamp"`
	ApprovalId string `json:"approvalId"`
}

// ProductView 商品列表项，price 为十进制 ether
type ProductView struct {
	Id        string `json:"id"`
	ProductId string `json:"productId"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Seller    string `json:"seller"`
	Active    bool   `json:"active"`
}

// ProductDetailView 单个商品，price 为 wei 原值，priceFormatted 为 ether
type ProductDetailView struct {
	Id             string `json:"id"`
	ProductId      string `json:"productId"`
	Name           string `json:"name"`
	Price          string `json:"price"`
	PriceFormatted string `json:"priceFormatted"`
	Seller         string `json:"seller"`
	Active         bool   `json:"active"`
}

// BalanceView 合约余额
type BalanceView struct {
	Ether string `json:"ether"`
	Wei   string `json:"wei"`
}

// PurchasedProduct 购买结果中的商品摘要
type PurchasedProduct struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

// PurchaseResult buy 的返回
type PurchaseResult struct {
	Message string           `json:"message"`
	Product PurchasedProduct `json:"product"`
	Receipt *ledger.Receipt  `json:"receipt"`
}

func decimalString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newTransferView(t contract.ExamenTransaction) TransferView {
	return TransferView{
		TxId:          decimalString(t.TxId),
		To:            t.To.Hex(),
		Amount:        units.FromBaseUnits(t.Amount),
		ApprovalCount: decimalString(t.ApprovalCount),
		Executed:      t.Executed,
	}
}

func newApprovalView(a contract.ExamenApproval) ApprovalView {
	var ts int64
	if a.Timestamp != nil {
		ts = a.Timestamp.Int64()
	}
	return ApprovalView{
		Approver:   a.Approver.Hex(),
		Timestamp:  time.Unix(ts, 0).UTC().Format(timestampLayout),
		ApprovalId: decimalString(a.ApprovalId),
	}
}

func newProductView(p contract.ExamenProduct) ProductView {
	return ProductView{
		Id:        decimalString(p.Id),
		ProductId: decimalString(p.ProductId),
		Name:      p.Name,
		Price:     units.FromBaseUnits(p.Price),
		Seller:    p.Seller.Hex(),
		Active:    p.Active,
	}
}

func newProductDetailView(p contract.ExamenProduct) ProductDetailView {
	return ProductDetailView{
		Id:             decimalString(p.Id),
		ProductId:      decimalString(p.ProductId),
		Name:           p.Name,
		Price:          decimalString(p.Price),
		PriceFormatted: units.FromBaseUnits(p.Price),
		Seller:         p.Seller.Hex(),
		Active:         p.Active,
	}
}
