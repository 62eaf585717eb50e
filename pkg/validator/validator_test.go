package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	To      string  `json:"to" binding:"required,eth_addr"`
	Account *int    `json:"account" binding:"required"`
	Name    string  `json:"name" binding:"max=4"`
	Price   *string `json:"price"`
}

func TestGetErrorMsg(t *testing.T) {
	Init()
	one := 1

	err := Struct(sample{To: "0x123", Account: &one})
	assert.Contains(t, GetErrorMsg(err), "to 不是合法的以太坊地址")

	err = Struct(sample{To: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", Name: "toolong"})
	msg := GetErrorMsg(err)
	assert.Contains(t, msg, "account 不能为空")
	assert.Contains(t, msg, "name 长度不能超过 4")

	assert.NoError(t, Struct(sample{To: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", Account: &one}))
	assert.Equal(t, "请求参数错误: boom", GetErrorMsg(errors.New("boom")))
}
