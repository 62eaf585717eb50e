package ledger

import (
	"context"
	"fmt"
	"math/big"

	"ledger-core/pkg/errno"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"
)

// NonceTag 查询 nonce 时使用的区块标签
type NonceTag string

const (
	NonceLatest  NonceTag = "latest"
	NoncePending NonceTag = "pending"
)

// Gateway 只读的节点门面。每个方法都是一次网络往返，没有缓存。
type Gateway struct {
	provider Provider
	limiter  *rate.Limiter
	nonceTag NonceTag
}

type GatewayOption func(*Gateway)

// WithRateLimit 客户端限流 (每秒请求数)，<= 0 表示不限
func WithRateLimit(rps float64) GatewayOption {
	return func(g *Gateway) {
		if rps > 0 {
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithNonceTag latest (默认) 或 pending
func WithNonceTag(tag string) GatewayOption {
	return func(g *Gateway) {
		if NonceTag(tag) == NoncePending {
			g.nonceTag = NoncePending
		} else {
			g.nonceTag = NonceLatest
		}
	}
}

func NewGateway(provider Provider, opts ...GatewayOption) *Gateway {
	g := &Gateway{provider: provider, nonceTag: NonceLatest}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) wait(ctx context.Context, op string) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return errno.ErrNetworkUnavailable.Wrap(fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// Nonce 账户的下一个 nonce
func (g *Gateway) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	if err := g.wait(ctx, "nonce"); err != nil {
		return 0, err
	}
	var (
		n   uint64
		err error
	)
	if g.nonceTag == NoncePending {
		n, err = g.provider.PendingNonceAt(ctx, addr)
	} else {
		n, err = g.provider.NonceAt(ctx, addr, nil)
	}
	return n, classify("nonce", err)
}

func (g *Gateway) GasPrice(ctx context.Context) (*big.Int, error) {
	if err := g.wait(ctx, "gas_price"); err != nil {
		return nil, err
	}
	price, err := g.provider.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classify("gas_price", err)
	}
	return price, nil
}

func (g *Gateway) ChainID(ctx context.Context) (*big.Int, error) {
	if err := g.wait(ctx, "chain_id"); err != nil {
		return nil, err
	}
	id, err := g.provider.ChainID(ctx)
	if err != nil {
		return nil, classify("chain_id", err)
	}
	return id, nil
}

// EstimateGas 在草稿交易上估算 gas；会 revert 的调用返回 ErrGasEstimation，节点给出的原因原样保留
func (g *Gateway) EstimateGas(ctx context.Context, tx *UnsignedTransaction) (uint64, error) {
	if err := g.wait(ctx, "estimate_gas"); err != nil {
		return 0, err
	}
	gas, err := g.provider.EstimateGas(ctx, tx.CallMsg())
	if err != nil {
		return 0, classifyAs("estimate_gas", errno.ErrGasEstimation, err)
	}
	return gas, nil
}

func (g *Gateway) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	if err := g.wait(ctx, "balance"); err != nil {
		return nil, err
	}
	bal, err := g.provider.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, classify("balance", err)
	}
	return bal, nil
}

// Call 调用合约的只读方法并按 ABI 解码返回值
func (g *Gateway) Call(ctx context.Context, contract common.Address, contractABI *abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, errno.ErrEncoding.Wrap(fmt.Errorf("pack %s: %w", method, err))
	}
	if err := g.wait(ctx, "call"); err != nil {
		return nil, err
	}

	raw, err := g.provider.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, classify("call", err)
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, errno.ErrEncoding.Wrap(fmt.Errorf("unpack %s: %w", method, err))
	}
	return out, nil
}

// CallAs 调用只返回一个值的只读方法，并转换为 T (例如 []contract.ExamenProduct)
func CallAs[T any](ctx context.Context, g *Gateway, contract common.Address, contractABI *abi.ABI, method string, args ...any) (T, error) {
	var zero T
	out, err := g.Call(ctx, contract, contractABI, method, args...)
	if err != nil {
		return zero, err
	}
	if len(out) != 1 {
		return zero, errno.ErrEncoding.Wrap(fmt.Errorf("%s returned %d values, want 1", method, len(out)))
	}
	return convert[T](method, out[0])
}

func convert[T any](method string, v any) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errno.ErrEncoding.Wrap(fmt.Errorf("convert %s result: %v", method, r))
		}
	}()
	converted, ok := abi.ConvertType(v, new(T)).(*T)
	if !ok {
		return result, errno.ErrEncoding.Wrap(fmt.Errorf("convert %s result: unexpected type %T", method, v))
	}
	return *converted, nil
}

func (g *Gateway) sendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := g.wait(ctx, "send"); err != nil {
		return err
	}
	return classifyAs("send", errno.ErrBroadcastRejected, g.provider.SendTransaction(ctx, tx))
}

// receipt 未打包时返回 ethereum.NotFound (原样，不归类)
func (g *Gateway) receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := g.wait(ctx, "receipt"); err != nil {
		return nil, err
	}
	r, err := g.provider.TransactionReceipt(ctx, hash)
	if err != nil {
		if err == ethereum.NotFound {
			return nil, err
		}
		return nil, classify("receipt", err)
	}
	return r, nil
}

// transactionKnown 节点是否还知道这笔交易 (mempool 或已打包)
func (g *Gateway) transactionKnown(ctx context.Context, hash common.Hash) (bool, error) {
	if err := g.wait(ctx, "tx_by_hash"); err != nil {
		return false, err
	}
	_, _, err := g.provider.TransactionByHash(ctx, hash)
	if err == ethereum.NotFound {
		return false, nil
	}
	if err != nil {
		return false, classify("tx_by_hash", err)
	}
	return true, nil
}
