package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述 SennaVault 在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`
	Wallet  WalletConfig  `json:"wallet"`
	Chain   ChainConfig   `json:"chain"`
	Storage StorageConfig `json:"storage"`
	Autopay AutopayConfig `json:"autopay"`
	Relay   RelayConfig   `json:"relay"`
	Auth    AuthConfig    `json:"auth"`
	Alerts  AlertConfig   `json:"alerts"`
	Runtime RuntimeConfig `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// LoggingConfig 控制结构化日志与审计日志的输出。
type LoggingConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	Audit       AuditLogConfig `json:"audit"`
}

// AuditLogConfig 描述审计日志文件及其轮转策略。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// WalletConfig 描述金库引擎的初始参数。金额一律使用十进制 wei 字符串。
type WalletConfig struct {
	Owners               []string `json:"owners"`
	Threshold            int      `json:"threshold"`
	DailyLimitWei        string   `json:"daily_limit_wei"`
	PerTxLimitWei        string   `json:"per_tx_limit_wei"`
	RecoveryAgent        string   `json:"recovery_agent"`
	AutomationAgent      string   `json:"automation_agent"`
	AutomationCeilingWei string   `json:"automation_ceiling_wei"`
}

// ChainConfig 包含访问区块链节点所需的 RPC 地址与签名配置。
// 未启用时转账走日志记录的干跑实现。
type ChainConfig struct {
	Enabled                bool   `json:"enabled"`
	Name                   string `json:"name"`
	RPCURL                 string `json:"rpc_url"`
	WSURL                  string `json:"ws_url"`
	VaultAddress           string `json:"vault_address"`
	SignerKeyEnv           string `json:"signer_key_env"`
	ReceiptTimeoutSeconds  int    `json:"receipt_timeout_seconds"`
	PollIntervalSeconds    int    `json:"poll_interval_seconds"`
	WatchDeposits          bool   `json:"watch_deposits"`
	WatchReconnectSeconds  int    `json:"watch_reconnect_seconds"`
	GasQuoteCacheSeconds   int    `json:"gas_quote_cache_seconds"`
}

// StorageConfig 统一描述事件归档后端的连接信息。
type StorageConfig struct {
	EventArchive DriverConfig `json:"event_archive"`
}

// DriverConfig 描述一个可在内存与 MySQL 之间切换的存储后端。
type DriverConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// AutopayConfig 控制自动支付流水线。
type AutopayConfig struct {
	Enabled    bool         `json:"enabled"`
	Store      DriverConfig `json:"store"`
	Queue      QueueConfig  `json:"queue"`
	Workers    int          `json:"workers"`
	MaxRetries int          `json:"max_retries"`
}

// QueueConfig 描述自动支付队列的驱动与连接参数。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Exchange   string `json:"exchange"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// RelayConfig 控制金库事件向外部流的转发。
type RelayConfig struct {
	Enabled    bool            `json:"enabled"`
	PolicyPath string          `json:"policy_path"`
	Publisher  PublisherConfig `json:"publisher"`
}

// PublisherConfig 描述事件转发的目标驱动。
type PublisherConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// AuthConfig 描述 API 鉴权模式与密钥清单。
type AuthConfig struct {
	Mode        string             `json:"mode"`
	Credentials []CredentialConfig `json:"credentials"`
}

// CredentialConfig 描述一条 API 密钥及其主体。
type CredentialConfig struct {
	Name         string   `json:"name"`
	Key          string   `json:"key"`
	KeyEnv       string   `json:"key_env"`
	Address      string   `json:"address"`
	Roles        []string `json:"roles"`
	Capabilities []string `json:"capabilities"`
	Disabled     bool     `json:"disabled"`
}

// AlertConfig 描述告警通知渠道。
type AlertConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Storage.EventArchive.Driver == "" {
		c.Storage.EventArchive.Driver = "memory"
	}
	if c.Autopay.Store.Driver == "" {
		c.Autopay.Store.Driver = "memory"
	}
	if c.Autopay.Queue.Driver == "" {
		c.Autopay.Queue.Driver = "memory"
	}
	if c.Autopay.Workers <= 0 {
		c.Autopay.Workers = 4
	}
	if c.Autopay.MaxRetries <= 0 {
		c.Autopay.MaxRetries = 3
	}

	if c.Relay.Publisher.Driver == "" {
		c.Relay.Publisher.Driver = "memory"
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}

	if c.Chain.ReceiptTimeoutSeconds <= 0 {
		c.Chain.ReceiptTimeoutSeconds = 120
	}
	if c.Chain.PollIntervalSeconds <= 0 {
		c.Chain.PollIntervalSeconds = 2
	}
	if c.Chain.WatchReconnectSeconds <= 0 {
		c.Chain.WatchReconnectSeconds = 5
	}
	if c.Chain.GasQuoteCacheSeconds <= 0 {
		c.Chain.GasQuoteCacheSeconds = 60
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Relay.PolicyPath != "" && !filepath.IsAbs(c.Relay.PolicyPath) {
		c.Relay.PolicyPath = filepath.Join(baseDir, c.Relay.PolicyPath)
	}

	// 允许密钥通过环境变量注入，避免写进配置文件。
	for i := range c.Auth.Credentials {
		credential := &c.Auth.Credentials[i]
		if credential.Key == "" && credential.KeyEnv != "" {
			credential.Key = os.Getenv(credential.KeyEnv)
		}
	}
}

// validate 检查启动前必须满足的约束。金库参数的细致校验由引擎完成。
func (c *Config) validate() error {
	if len(c.Wallet.Owners) == 0 {
		return errors.New("wallet.owners 不能为空")
	}
	if c.Wallet.Threshold < 1 {
		return errors.New("wallet.threshold 必须不小于 1")
	}
	if c.Chain.Enabled && c.Chain.RPCURL == "" {
		return errors.New("chain.rpc_url 不能为空")
	}
	if c.Relay.Enabled && c.Relay.PolicyPath == "" {
		return errors.New("relay.policy_path 不能为空")
	}
	return nil
}
