package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AccountIndex 签名账户下标。JSON 中既可以是数字 (0) 也可以是数字字符串 ("0")
type AccountIndex int

func (a *AccountIndex) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("account must be an integer, got %s", string(data))
	}
	*a = AccountIndex(n)
	return nil
}

func (a *AccountIndex) Int() int {
	return int(*a)
}

// AccountRequest 只携带签名账户的请求体 (approve / execute / disable / release-payments / buy)
type AccountRequest struct {
	Account *AccountIndex `json:"account" binding:"required"`
}
