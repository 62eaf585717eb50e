package ledger

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"

	"ledger-core/pkg/errno"
	"ledger-core/pkg/monitor"

	"github.com/ethereum/go-ethereum/rpc"
)

// classify 将节点调用的错误归类为 ErrNetworkUnavailable 或 ErrRPC，原始文本保留在 cause 中
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	monitor.RPCError(op)
	if isTransport(err) {
		return errno.ErrNetworkUnavailable.Wrap(err)
	}
	return errno.ErrRPC.Wrap(err)
}

// classifyAs 节点明确拒绝时使用给定的业务错误码 (估算失败 / 广播被拒)
func classifyAs(op string, kind errno.Errno, err error) error {
	if err == nil {
		return nil
	}
	monitor.RPCError(op)
	if isTransport(err) {
		return errno.ErrNetworkUnavailable.Wrap(err)
	}
	return kind.Wrap(err)
}

func isTransport(err error) bool {
	// 节点返回的 JSON-RPC 错误说明网络是通的
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
