package request

import (
	"bytes"
	"encoding/json"
)

// Amount 十进制金额原文。JSON 中可以是数字或字符串，不经过 float64，
// 格式和范围由 units.ToBaseUnits 校验
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	*a = Amount(data)
	return nil
}

func (a *Amount) String() string {
	return string(*a)
}
