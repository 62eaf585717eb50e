package ledgertest

import (
	"ledger-core/pkg/accounts"

	"github.com/ethereum/go-ethereum/common"
)

// ContractAddress 测试链上的 Examen 合约地址
var ContractAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// 本地开发链 (hardhat / anvil) 的默认账户
var (
	TestAddresses = []string{
		"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
		"0x90F79bf6EB2c4f870365E785982E1f101E93b906",
	}
	TestKeys = []string{
		"0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
		"0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
		"0x5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a",
		"0x7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6",
	}
)

// Addresses TestAddresses 的 common.Address 形式
func Addresses() []common.Address {
	out := make([]common.Address, len(TestAddresses))
	for i, a := range TestAddresses {
		out[i] = common.HexToAddress(a)
	}
	return out
}

// Store 测试账户表
func Store() *accounts.Store {
	s, err := accounts.New(TestAddresses, TestKeys)
	if err != nil {
		panic(err)
	}
	return s
}
