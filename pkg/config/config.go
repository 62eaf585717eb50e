package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Lock        LockConfig        `mapstructure:"lock"`
	DB          DBConfig          `mapstructure:"db"`
	Redis       RedisConfig       `mapstructure:"redis"`
	MQ          MQConfig          `mapstructure:"mq"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	GrpcPort string `mapstructure:"grpc_port"`
}

// LedgerConfig 链上合约与签名账户
// PublicKeys / PrivateKeys 是两个顺序对应的逗号分隔列表，按下标寻址
type LedgerConfig struct {
	RpcUrl           string        `mapstructure:"rpc_url"`
	ContractAddress  string        `mapstructure:"contract_address"`
	PublicKeys       string        `mapstructure:"public_keys"`
	PrivateKeys      string        `mapstructure:"private_keys"`
	KeystorePath     string        `mapstructure:"keystore_path"`     // 加密的账户文件 (ledger-cli keystore encrypt 生成)
	KeystorePassword string        `mapstructure:"keystore_password"` // 通常通过环境变量 LEDGER_KEYSTORE_PASSWORD 传入
	Mnemonic         string        `mapstructure:"mnemonic"`          // 仅限开发环境
	HDAccounts       int           `mapstructure:"hd_accounts"`
	NonceTag         string        `mapstructure:"nonce_tag"` // latest | pending
	ConfirmTimeout   time.Duration `mapstructure:"confirm_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RpcRateLimit     float64       `mapstructure:"rpc_rate_limit"` // 每秒请求数, 0 表示不限流
}

type LockConfig struct {
	Backend        string        `mapstructure:"backend"` // "local" or "redis"
	TTL            time.Duration `mapstructure:"ttl"`
	ReservationKey string        `mapstructure:"reservation_key"` // redis 后端下保留 nonce 的 Hash key
}

type DBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MQConfig struct {
	Type  string `mapstructure:"type"` // "none", "redis" or "kafka"
	Topic string `mapstructure:"topic"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type IdempotencyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"` // "memory" or "redis"
	TTL     time.Duration `mapstructure:"ttl"`
}

var Global Config

func Init() {
	cfg, err := Load(".")
	if err != nil {
		log.Fatalf("Fatal error config file: %s \n", err)
	}
	Global = *cfg
	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// Load 读取配置: .env -> config.yaml -> 环境变量 (后者覆盖前者)
func Load(dir string) (*Config, error) {
	// .env 不存在时忽略 (与原 Node 服务的 dotenv 行为一致)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name
	v.AddConfigPath(dir)
	v.AddConfigPath(dir + "/config")

	// 环境变量设置
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindLegacyEnv(v)

	// 设置默认值
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Printf("Warning: Config file not found, using defaults and environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindLegacyEnv 兼容旧部署使用的变量名
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("ledger.contract_address", "LEDGER_CONTRACT_ADDRESS", "EXAMEN_CONTRACT")
	_ = v.BindEnv("ledger.rpc_url", "LEDGER_RPC_URL", "API_URL")
	_ = v.BindEnv("ledger.public_keys", "LEDGER_PUBLIC_KEYS", "PUBLIC_KEYS")
	_ = v.BindEnv("ledger.private_keys", "LEDGER_PRIVATE_KEYS", "PRIVATE_KEYS")
	_ = v.BindEnv("app.http_port", "APP_HTTP_PORT", "PORT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http_port", "3000")
	v.SetDefault("app.grpc_port", "50051")

	v.SetDefault("ledger.rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("ledger.hd_accounts", 2)
	v.SetDefault("ledger.nonce_tag", "latest")
	v.SetDefault("ledger.confirm_timeout", 2*time.Minute)
	v.SetDefault("ledger.poll_interval", time.Second)
	v.SetDefault("ledger.rpc_rate_limit", 0)

	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.ttl", 5*time.Minute)
	v.SetDefault("lock.reservation_key", "ledger:reservations")

	v.SetDefault("db.enabled", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "ledger_user")
	v.SetDefault("db.password", "ledger_password")
	v.SetDefault("db.name", "ledger_db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("mq.type", "none")
	v.SetDefault("mq.topic", "ledger_events_receipt")
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})

	v.SetDefault("idempotency.enabled", true)
	v.SetDefault("idempotency.backend", "memory")
	v.SetDefault("idempotency.ttl", 24*time.Hour)
}
