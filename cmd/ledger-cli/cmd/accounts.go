package cmd

import (
	"fmt"

	"ledger-core/pkg/accounts"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "列出配置中的签名账户 (下标 -> 地址)",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := accounts.Load(cfg.Ledger)
		if err != nil {
			return err
		}
		for _, acc := range store.Accounts() {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", acc.Index, acc.Address.Hex())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}
