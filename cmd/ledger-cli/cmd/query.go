package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ledger-core/internal/service"
	"ledger-core/pkg/accounts"
	"ledger-core/pkg/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

// 只读查询不需要签名账户
type queryClients struct {
	multisig service.MultisigWorkflow
	products service.ProductCatalog
	close    func()
}

func dialQuery(ctx context.Context) (*queryClients, error) {
	if !common.IsHexAddress(contractHex) {
		return nil, fmt.Errorf("合约地址无效: %q", contractHex)
	}
	contractAddr := common.HexToAddress(contractHex)

	client, err := ledger.Dial(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	pipeline := ledger.NewPipeline(ledger.NewGateway(client))
	store := accounts.FromKeys(nil)
	return &queryClients{
		multisig: service.NewMultisigService(store, pipeline, contractAddr),
		products: service.NewProductService(store, pipeline, contractAddr),
		close:    client.Close,
	}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runQuery 建立连接后执行 fn 并以 JSON 输出
func runQuery(fn func(ctx context.Context, q *queryClients) (any, error)) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		q, err := dialQuery(ctx)
		if err != nil {
			return err
		}
		defer q.close()

		out, err := fn(ctx, q)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	}
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "合约余额",
	RunE: runQuery(func(ctx context.Context, q *queryClients) (any, error) {
		return q.multisig.Balance(ctx)
	}),
}

var transactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "多签转账请求列表",
	RunE: runQuery(func(ctx context.Context, q *queryClients) (any, error) {
		return q.multisig.ListTransfers(ctx)
	}),
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals <txId>",
	Short: "某个转账请求的审批记录",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		txID, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("txId 必须是非负整数: %q", args[0])
		}
		return runQuery(func(ctx context.Context, q *queryClients) (any, error) {
			return q.multisig.ListApprovals(ctx, txID)
		})(cmd, args)
	},
}

var productsCmd = &cobra.Command{
	Use:   "products [productId]",
	Short: "商品列表，指定 productId 时显示单个商品",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return runQuery(func(ctx context.Context, q *queryClients) (any, error) {
				return q.products.List(ctx)
			})(cmd, args)
		}
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("productId 必须是非负整数: %q", args[0])
		}
		return runQuery(func(ctx context.Context, q *queryClients) (any, error) {
			return q.products.Get(ctx, id)
		})(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd, transactionsCmd, approvalsCmd, productsCmd)
}
