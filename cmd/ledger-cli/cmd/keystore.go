package cmd

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"ledger-core/pkg/accounts"
	"ledger-core/pkg/keystore"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var keystoreCmd = &cobra.Command{
	Use:   "keystore",
	Short: "加密账户文件工具",
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "把 ledger.public_keys / ledger.private_keys 加密保存为 keystore 文件",
	Long: `读取配置中的两个明文列表，校验每个私钥与地址对应，
使用输入的密码 (scrypt + AES-256-GCM) 加密后写入文件。
之后可以删除明文配置，改用 ledger.keystore_path。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFile, _ := cmd.Flags().GetString("output")
		light, _ := cmd.Flags().GetBool("light")
		if _, err := os.Stat(outputFile); err == nil {
			return fmt.Errorf("文件 %s 已存在。请先删除或指定其他文件名", outputFile)
		}

		// 1. 校验明文列表 (私钥必须推导出对应地址)
		store, err := accounts.Parse(cfg.Ledger.PublicKeys, cfg.Ledger.PrivateKeys)
		if err != nil {
			return err
		}
		var list keystore.AccountList
		for _, acc := range store.Accounts() {
			list.Addresses = append(list.Addresses, acc.Address.Hex())
			list.PrivateKeys = append(list.PrivateKeys, hexutil.Encode(crypto.FromECDSA(acc.PrivateKey)))
		}

		// 2. 输入密码
		password, err := readPassword()
		if err != nil {
			return err
		}

		// 3. 加密并保存
		n := keystore.StandardScryptN
		if light {
			n = keystore.LightScryptN
		}
		encrypted, err := keystore.EncryptAccounts(list, password, n)
		if err != nil {
			return fmt.Errorf("加密失败: %w", err)
		}
		if err := encrypted.SaveToFile(outputFile); err != nil {
			return fmt.Errorf("保存文件失败: %w", err)
		}

		fmt.Printf("\n✅ 已加密 %d 个账户\n", len(list.Addresses))
		fmt.Printf("文件位置: %s\n", outputFile)
		fmt.Printf("ID: %s\n", encrypted.Id)
		return nil
	},
}

func readPassword() (string, error) {
	fmt.Print("输入密码: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}

	fmt.Print("确认密码: ")
	bytePasswordConfirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}

	password := string(bytePassword)
	if password != string(bytePasswordConfirm) {
		return "", errors.New("两次输入的密码不一致")
	}
	if len(password) < 8 {
		return "", errors.New("密码长度至少需要 8 位")
	}
	return password, nil
}

func init() {
	rootCmd.AddCommand(keystoreCmd)
	keystoreCmd.AddCommand(encryptCmd)
	encryptCmd.Flags().StringP("output", "o", "accounts.json", "输出文件")
	encryptCmd.Flags().Bool("light", false, "使用较小的 scrypt 参数 (仅开发环境)")
}
