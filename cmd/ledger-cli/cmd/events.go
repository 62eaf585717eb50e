package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ledger-core/internal/service/mq"
	"ledger-core/pkg/database"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "订阅交易回执事件 (ledger_events_receipt) 并逐行输出",
	RunE: func(cmd *cobra.Command, args []string) error {
		group, _ := cmd.Flags().GetString("group")
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var consumer mq.Consumer
		switch cfg.MQ.Type {
		case "kafka":
			consumer = mq.NewKafkaConsumer(cfg.Kafka.Brokers, group)
		case "redis":
			rdb, err := database.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			host, _ := os.Hostname()
			consumer = mq.NewRedisConsumer(rdb, group, fmt.Sprintf("%s-%d", host, os.Getpid()))
		default:
			return fmt.Errorf("mq.type=%q: 未启用消息队列", cfg.MQ.Type)
		}
		defer consumer.Close() // Redis 消费者会一并关闭连接

		out := cmd.OutOrStdout()
		err := consumer.Subscribe(ctx, cfg.MQ.Topic, func(msg *mq.Message) error {
			_, err := fmt.Fprintf(out, "%s\t%s\t%s\n", msg.ID, msg.Key, msg.Payload)
			return err
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().String("group", "ledger-cli", "消费者组")
}
