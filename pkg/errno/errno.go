package errno

import (
	"errors"
	"net/http"
)

// Errno defines the error code logic
// Status 是映射到 HTTP 层的状态码，cause 保存底层错误 (例如节点返回的原始 revert 信息)
type Errno struct {
	Code    int
	Status  int
	Message string
	cause   error
}

func (e Errno) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap 暴露底层错误，便于 errors.As 取出具体类型
func (e Errno) Unwrap() error {
	return e.cause
}

// Is 按错误码比较，忽略 message 和 cause
func (e Errno) Is(target error) bool {
	switch t := target.(type) {
	case Errno:
		return t.Code == e.Code
	case *Errno:
		return t != nil && t.Code == e.Code
	}
	return false
}

// WithMessage 返回一个替换了 Message 的副本
func (e Errno) WithMessage(msg string) Errno {
	e.Message = msg
	return e
}

// Wrap 返回一个携带 cause 的副本，cause 的文本原样保留
func (e Errno) Wrap(err error) Errno {
	e.cause = err
	return e
}

// Decode tries to convert an error to (http status, code, message)
func Decode(err error) (int, int, string) {
	if err == nil {
		return http.StatusOK, OK.Code, OK.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		status := typed.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		// 外层可能用 fmt.Errorf 追加了上下文，直接使用完整文本
		return status, typed.Code, err.Error()
	}
	return http.StatusInternalServerError, InternalServerError.Code, err.Error()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Status: http.StatusOK, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Status: http.StatusInternalServerError, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Status: http.StatusBadRequest, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Status: http.StatusInternalServerError, Message: "Database error"}
	ErrIdempotencyKey   = Errno{Code: 10005, Status: http.StatusUnprocessableEntity, Message: "Idempotency-Key reused with a different request"}
)

// Validation / domain precondition errors (20000+)
var (
	ErrInvalidAccountIndex = Errno{Code: 20101, Status: http.StatusBadRequest, Message: "invalid account index"}
	ErrInvalidAmount       = Errno{Code: 20102, Status: http.StatusBadRequest, Message: "invalid amount"}
	ErrInvalidAddress      = Errno{Code: 20103, Status: http.StatusBadRequest, Message: "invalid address"}
	ErrInvalidProductID    = Errno{Code: 20201, Status: http.StatusBadRequest, Message: "product id does not exist"}
	ErrProductInactive     = Errno{Code: 20202, Status: http.StatusBadRequest, Message: "product is not available"}
	ErrNoPendingTx         = Errno{Code: 20301, Status: http.StatusNotFound, Message: "no pending transaction for account"}
)

// Ledger pipeline errors (30000+)
var (
	ErrEncoding            = Errno{Code: 30001, Status: http.StatusInternalServerError, Message: "call data encoding failed"}
	ErrGasEstimation       = Errno{Code: 30002, Status: http.StatusInternalServerError, Message: "gas estimation failed"}
	ErrSigning             = Errno{Code: 30003, Status: http.StatusInternalServerError, Message: "signing failed"}
	ErrBroadcastRejected   = Errno{Code: 30004, Status: http.StatusInternalServerError, Message: "broadcast rejected"}
	ErrConfirmationTimeout = Errno{Code: 30005, Status: http.StatusInternalServerError, Message: "confirmation timeout"}
	ErrNetworkUnavailable  = Errno{Code: 30006, Status: http.StatusInternalServerError, Message: "network unavailable"}
	ErrRPC                 = Errno{Code: 30007, Status: http.StatusInternalServerError, Message: "rpc error"}
)
