// Package contract 描述 Examen 合约的调用面: 内嵌 ABI、方法名常量以及 view 方法返回的结构体。
package contract

import (
	_ "embed"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed examen.abi.json
var examenABIJSON string

// 写方法
const (
	MethodSubmitTransaction  = "SubmitTransaction"
	MethodApproveTransaction = "approveTransaction"
	MethodExecuteTransaction = "executeTransaction"
	MethodReleasePayments    = "releasePayments"
	MethodDeposit            = "deposit"
	MethodAddProduct         = "addProduct"
	MethodUpdateProduct      = "updateProduct"
	MethodBuyProduct         = "buyProduct"
	MethodDisableProduct     = "disableProduct"
)

// 只读方法
const (
	MethodGetBalance              = "getBalance"
	MethodGetTransactions         = "getTransactions"
	MethodGetTransactionApprovals = "getTransactionApprovals"
	MethodGetAllProducts          = "getAllProducts"
)

// ExamenTransaction getTransactions() 的元素 (字段名与 ABI tuple 组件一一对应)
type ExamenTransaction struct {
	TxId          *big.Int
	To            common.Address
	Amount        *big.Int
	ApprovalCount *big.Int
	Executed      bool
}

// ExamenApproval getTransactionApprovals(txId) 的元素
type ExamenApproval struct {
	Approver   common.Address
	Timestamp  *big.Int
	ApprovalId *big.Int
}

// ExamenProduct getAllProducts() 的元素
type ExamenProduct struct {
	Id        *big.Int
	ProductId *big.Int
	Name      string
	Price     *big.Int
	Seller    common.Address
	Active    bool
}

var (
	parseOnce sync.Once
	parsed    abi.ABI
	parseErr  error
)

// ExamenABI 返回解析后的 ABI (只解析一次)
func ExamenABI() (*abi.ABI, error) {
	parseOnce.Do(func() {
		parsed, parseErr = abi.JSON(strings.NewReader(examenABIJSON))
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return &parsed, nil
}

// MustExamenABI 内嵌 ABI 解析失败属于构建错误
func MustExamenABI() *abi.ABI {
	a, err := ExamenABI()
	if err != nil {
		panic(err)
	}
	return a
}
