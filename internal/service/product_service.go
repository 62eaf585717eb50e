package service

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strconv"

	"ledger-core/internal/contract"
	"ledger-core/pkg/accounts"
	"ledger-core/pkg/errno"
	"ledger-core/pkg/ledger"
	"ledger-core/pkg/units"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const purchaseMessage = "Producto comprado exitosamente"

// ProductService 商品目录: Active <-> Inactive，购买要求 Active
type ProductService struct {
	store    *accounts.Store
	pipeline *ledger.Pipeline
	contract common.Address
	abi      *abi.ABI
}

var _ ProductCatalog = (*ProductService)(nil)

func NewProductService(store *accounts.Store, pipeline *ledger.Pipeline, contractAddr common.Address) *ProductService {
	return &ProductService{
		store:    store,
		pipeline: pipeline,
		contract: contractAddr,
		abi:      contract.MustExamenABI(),
	}
}

func (s *ProductService) send(ctx context.Context, method string, value *big.Int, account int, args ...any) (*ledger.Receipt, error) {
	acc, err := s.store.Resolve(account)
	if err != nil {
		return nil, err
	}
	return s.pipeline.SubmitValue(ctx, s.contract, s.abi, method, value, args, acc)
}

func (s *ProductService) Add(ctx context.Context, name, price string, account int) (*ledger.Receipt, error) {
	priceWei, err := units.ToBaseUnits(price)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, contract.MethodAddProduct, nil, account, name, priceWei)
}

// Update price 为 nil 时发送 0 wei: 合约方法参数个数固定，不能省略 price
func (s *ProductService) Update(ctx context.Context, productID uint64, name string, price *string, active bool, account int) (*ledger.Receipt, error) {
	priceWei := new(big.Int)
	if price != nil {
		v, err := units.ToBaseUnits(*price)
		if err != nil {
			return nil, err
		}
		priceWei = v
	}
	return s.send(ctx, contract.MethodUpdateProduct, nil, account, new(big.Int).SetUint64(productID), name, priceWei, active)
}

func (s *ProductService) Disable(ctx context.Context, productID uint64, account int) (*ledger.Receipt, error) {
	return s.send(ctx, contract.MethodDisableProduct, nil, account, new(big.Int).SetUint64(productID))
}

// Buy 两阶段: 先读取商品并校验 (不花 gas)，再按精确价格发送 payable 调用
func (s *ProductService) Buy(ctx context.Context, productID uint64, account int) (*PurchaseResult, error) {
	// 账户先解析，非法账户不产生任何链上读取
	acc, err := s.store.Resolve(account)
	if err != nil {
		return nil, err
	}

	// 1. 读取并校验
	p, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, errno.ErrProductInactive.WithMessage("Producto no disponible")
	}

	// 2. 支付精确价格
	receipt, err := s.pipeline.SubmitValue(ctx, s.contract, s.abi, contract.MethodBuyProduct, p.Price,
		[]any{new(big.Int).SetUint64(productID)}, acc)
	if err != nil {
		return nil, err
	}
	log.Printf("[Product] 商品 %d (%s) 已售出 buyer=%s tx=%s", productID, p.Name, acc.Address.Hex(), receipt.TxHash.Hex())

	return &PurchaseResult{
		Message: purchaseMessage,
		Product: PurchasedProduct{
			Id:    strconv.FormatUint(productID, 10),
			Name:  p.Name,
			Price: units.FromBaseUnits(p.Price),
		},
		Receipt: receipt,
	}, nil
}

func (s *ProductService) List(ctx context.Context) ([]ProductView, error) {
	products, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProductView, len(products))
	for i, p := range products {
		out[i] = newProductView(p)
	}
	return out, nil
}

func (s *ProductService) Get(ctx context.Context, productID uint64) (*ProductDetailView, error) {
	p, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}
	view := newProductDetailView(p)
	return &view, nil
}

func (s *ProductService) all(ctx context.Context) ([]contract.ExamenProduct, error) {
	return ledger.CallAs[[]contract.ExamenProduct](ctx, s.pipeline.Gateway(), s.contract, s.abi, contract.MethodGetAllProducts)
}

// product 按下标读取，越界返回 ErrInvalidProductID
func (s *ProductService) product(ctx context.Context, productID uint64) (contract.ExamenProduct, error) {
	products, err := s.all(ctx)
	if err != nil {
		return contract.ExamenProduct{}, err
	}
	if productID >= uint64(len(products)) {
		return contract.ExamenProduct{}, errno.ErrInvalidProductID.WithMessage(
			fmt.Sprintf("Product ID %d does not exist (%d products)", productID, len(products)))
	}
	return products[productID], nil
}
