package accounts

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

// ETHPathPrefix BIP-44 以太坊路径 m/44'/60'/0'/0
var ETHPathPrefix = []uint32{
	hdkeychain.HardenedKeyStart + 44,
	hdkeychain.HardenedKeyStart + 60,
	hdkeychain.HardenedKeyStart + 0,
	0,
}

// FromMnemonic 从 BIP-39 助记词派生 count 个账户 (m/44'/60'/0'/0/i)
// 仅用于开发环境 (例如 hardhat / anvil 的默认助记词)
func FromMnemonic(mnemonic string, count int) (*Store, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("accounts: invalid mnemonic")
	}
	if count <= 0 {
		return nil, fmt.Errorf("accounts: account count must be positive, got %d", count)
	}

	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("accounts: master key: %w", err)
	}

	// 1. 派生到 m/44'/60'/0'/0
	parent := master
	for _, idx := range ETHPathPrefix {
		parent, err = parent.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("accounts: derive path: %w", err)
		}
	}

	// 2. 逐个派生 address_index
	keys := make([]*ecdsa.PrivateKey, count)
	for i := 0; i < count; i++ {
		child, err := parent.Derive(uint32(i))
		if err != nil {
			return nil, fmt.Errorf("accounts: derive index %d: %w", i, err)
		}
		priv, err := child.ECPrivKey()
		if err != nil {
			return nil, err
		}
		keys[i] = priv.ToECDSA()
	}
	return FromKeys(keys), nil
}
