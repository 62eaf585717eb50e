// Package units 在人类可读的十进制金额与链上整数最小单位 (wei) 之间转换。
package units

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"ledger-core/pkg/errno"

	"github.com/shopspring/decimal"
)

// Decimals 链上原生定点精度 (1 ether = 10^18 wei)
const Decimals = 18

// MaxUint256 链上整数上限
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// maxWholeDigits uint256 wei 换算成 ether 后整数部分最多 60 位
const maxWholeDigits = 78 - Decimals

// plainDecimal 只接受 "12"、"1.5"、".5"、"1." 这类写法，不接受指数和千分位
var plainDecimal = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

// ToBaseUnits 将十进制字符串 (例如 "1.5") 转换为最小单位整数。
// 超过 18 位小数的输入直接拒绝，不做截断。
func ToBaseUnits(amount string) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, errno.ErrInvalidAmount.WithMessage("invalid amount: empty")
	}
	if strings.HasPrefix(s, "-") && plainDecimal.MatchString(s[1:]) {
		return nil, errno.ErrInvalidAmount.WithMessage(fmt.Sprintf("invalid amount %q: must not be negative", amount))
	}
	if !plainDecimal.MatchString(s) {
		return nil, errno.ErrInvalidAmount.WithMessage(fmt.Sprintf("invalid amount %q: not a number", amount))
	}
	whole := strings.TrimLeft(strings.SplitN(s, ".", 2)[0], "0")
	if len(whole) > maxWholeDigits {
		return nil, errno.ErrInvalidAmount.WithMessage(fmt.Sprintf("invalid amount %q: exceeds uint256", amount))
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errno.ErrInvalidAmount.WithMessage(fmt.Sprintf("invalid amount %q: not a number", amount))
	}
	return DecimalToBaseUnits(d)
}

// DecimalToBaseUnits 同 ToBaseUnits，输入已是 decimal
func DecimalToBaseUnits(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, errno.ErrInvalidAmount.WithMessage("invalid amount: must not be negative")
	}
	// 先看量级再展开，指数形式的 decimal 展开代价与指数成正比
	if !d.IsZero() && d.NumDigits()+int(d.Exponent()) > maxWholeDigits {
		return nil, errno.ErrInvalidAmount.WithMessage("invalid amount: exceeds uint256")
	}
	if d.Exponent() < -(Decimals + maxWholeDigits + 1) {
		return nil, errno.ErrInvalidAmount.WithMessage(fmt.Sprintf("invalid amount: more than %d decimal places", Decimals))
	}

	shifted := d.Shift(Decimals)
	if !shifted.IsInteger() {
		return nil, errno.ErrInvalidAmount.WithMessage(fmt.Sprintf("invalid amount %s: more than %d decimal places", d.String(), Decimals))
	}
	v := shifted.BigInt()
	if v.Cmp(MaxUint256) > 0 {
		return nil, errno.ErrInvalidAmount.WithMessage(fmt.Sprintf("invalid amount %s: exceeds uint256", d.String()))
	}
	return v, nil
}

// FromBaseUnits 将最小单位整数格式化为规范的十进制字符串 (无多余的尾随 0)
func FromBaseUnits(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -Decimals).String()
}

// MustToBaseUnits 用于常量和测试，非法输入直接 panic
func MustToBaseUnits(amount string) *big.Int {
	v, err := ToBaseUnits(amount)
	if err != nil {
		panic(err)
	}
	return v
}
