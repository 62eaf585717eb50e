// Package accounts 持有进程内固定的签名账户表。
//
// 账户在启动时一次性加载 (两个顺序对应的列表 / 加密 keystore / 助记词)，之后只读，
// 通过构造函数注入到需要签名的组件中。
package accounts

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"ledger-core/pkg/errno"
	"ledger-core/pkg/keystore"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account 一个可签名的账户
type Account struct {
	Index      int               `json:"index"`
	Address    common.Address    `json:"address"`
	PrivateKey *ecdsa.PrivateKey `json:"-"`
}

// IndexError 记录越界的账户下标
type IndexError struct {
	Index int
	Size  int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("account index %d out of range [0, %d)", e.Index, e.Size)
}

// Store 只读账户表
type Store struct {
	accounts []Account
	byAddr   map[common.Address]int
}

// Parse 解析逗号分隔的地址列表和私钥列表
func Parse(addressesCSV, keysCSV string) (*Store, error) {
	return New(splitList(addressesCSV), splitList(keysCSV))
}

// New 两个列表必须等长且一一对应，私钥推导出的地址必须与同位置的地址一致
func New(addresses, privateKeys []string) (*Store, error) {
	if len(addresses) == 0 {
		return nil, errors.New("accounts: address list is empty")
	}
	if len(addresses) != len(privateKeys) {
		return nil, fmt.Errorf("accounts: %d addresses but %d private keys", len(addresses), len(privateKeys))
	}

	keys := make([]*ecdsa.PrivateKey, len(privateKeys))
	for i, raw := range privateKeys {
		if !common.IsHexAddress(addresses[i]) {
			return nil, fmt.Errorf("accounts: entry %d: malformed address %q", i, addresses[i])
		}
		key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, fmt.Errorf("accounts: entry %d: unusable private key: %w", i, err)
		}
		want := common.HexToAddress(addresses[i])
		if got := crypto.PubkeyToAddress(key.PublicKey); got != want {
			return nil, fmt.Errorf("accounts: entry %d: private key belongs to %s, not %s", i, got.Hex(), want.Hex())
		}
		keys[i] = key
	}
	return FromKeys(keys), nil
}

// FromKeys 直接由私钥构造，地址由私钥推导
func FromKeys(keys []*ecdsa.PrivateKey) *Store {
	s := &Store{
		accounts: make([]Account, len(keys)),
		byAddr:   make(map[common.Address]int, len(keys)),
	}
	for i, key := range keys {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		s.accounts[i] = Account{Index: i, Address: addr, PrivateKey: key}
		s.byAddr[addr] = i
	}
	return s
}

// FromKeystore 从加密的 keystore 文件加载账户列表
func FromKeystore(path, password string) (*Store, error) {
	encrypted, err := keystore.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("accounts: read keystore: %w", err)
	}
	list, err := keystore.DecryptAccounts(encrypted, password)
	if err != nil {
		return nil, fmt.Errorf("accounts: decrypt keystore: %w", err)
	}
	return New(list.Addresses, list.PrivateKeys)
}

// Resolve 按下标取账户，越界返回 ErrInvalidAccountIndex (不会返回默认账户)
func (s *Store) Resolve(index int) (Account, error) {
	if index < 0 || index >= len(s.accounts) {
		return Account{}, errno.ErrInvalidAccountIndex.
			WithMessage(fmt.Sprintf("invalid account index %d", index)).
			Wrap(&IndexError{Index: index, Size: len(s.accounts)})
	}
	return s.accounts[index], nil
}

// Lookup 按地址查找账户
func (s *Store) Lookup(addr common.Address) (Account, bool) {
	i, ok := s.byAddr[addr]
	if !ok {
		return Account{}, false
	}
	return s.accounts[i], true
}

func (s *Store) Len() int {
	return len(s.accounts)
}

// Accounts 返回副本，调用方修改不影响 Store
func (s *Store) Accounts() []Account {
	out := make([]Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

func splitList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
