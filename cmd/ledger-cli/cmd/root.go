package cmd

import (
	"fmt"
	"os"

	"ledger-core/pkg/config"

	"github.com/spf13/cobra"
)

var (
	cfg         *config.Config
	rpcURL      string
	contractHex string
	configDir   string
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "ledger-cli",
	Short: "Examen 合约运维命令行工具",
	Long: `查看签名账户、生成加密的账户文件，以及只读查询合约状态
(余额、多签转账、商品) 和订阅回执事件。`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configDir)
		if err != nil {
			return fmt.Errorf("读取配置失败: %w", err)
		}
		cfg = loaded
		if rpcURL == "" {
			rpcURL = cfg.Ledger.RpcUrl
		}
		if contractHex == "" {
			contractHex = cfg.Ledger.ContractAddress
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "config.yaml 所在目录")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "", "RPC 节点地址 (默认取 ledger.rpc_url)")
	rootCmd.PersistentFlags().StringVar(&contractHex, "contract", "", "合约地址 (默认取 ledger.contract_address)")
}
