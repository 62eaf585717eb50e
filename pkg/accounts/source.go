package accounts

import (
	"errors"

	"ledger-core/pkg/config"
)

// Load 按配置选择账户来源: keystore 文件 > 助记词 > 明文列表
func Load(cfg config.LedgerConfig) (*Store, error) {
	switch {
	case cfg.KeystorePath != "":
		return FromKeystore(cfg.KeystorePath, cfg.KeystorePassword)
	case cfg.Mnemonic != "":
		return FromMnemonic(cfg.Mnemonic, cfg.HDAccounts)
	case cfg.PublicKeys != "" || cfg.PrivateKeys != "":
		return Parse(cfg.PublicKeys, cfg.PrivateKeys)
	}
	return nil, errors.New("accounts: no signing accounts configured (ledger.keystore_path, ledger.mnemonic or ledger.public_keys/private_keys)")
}
