package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"SennaVault/internal/api"
	"SennaVault/internal/auth"
	"SennaVault/internal/autopay"
	"SennaVault/internal/chain"
	"SennaVault/internal/config"
	"SennaVault/internal/observability/alerting"
	"SennaVault/internal/observability/metrics"
	"SennaVault/internal/relay"
	"SennaVault/internal/storage/mysql"
	"SennaVault/internal/token"
	"SennaVault/internal/wallet"
	"SennaVault/pkg/logger"
)

// main 是 SennaVault 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("sennavaultd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("SENNAVAULT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "sennavault.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	dataDir := cfg.Runtime.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	// 事件归档。
	archive, archiveCloser, err := buildEventArchive(ctx, cfg, dataDir)
	if err != nil {
		return err
	}
	if archiveCloser != nil {
		defer archiveCloser()
	}

	// 引擎事件下游：审计归档、外部转发、代币镜像。
	sinks := []wallet.Sink{mysql.NewArchiveSink(archive)}

	if cfg.Relay.Enabled {
		policy, err := relay.LoadRoutingPolicy(cfg.Relay.PolicyPath)
		if err != nil {
			return err
		}
		publisher, err := buildRelayPublisher(cfg)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, relay.New(policy, publisher))
	}

	owners, err := parseAddresses(cfg.Wallet.Owners)
	if err != nil {
		return err
	}

	mintController := owners[0]
	if common.IsHexAddress(cfg.Chain.VaultAddress) {
		mintController = common.HexToAddress(cfg.Chain.VaultAddress)
	}
	mirror := token.NewLedger(mintController)
	sinks = append(sinks, token.NewDepositMinter(mirror, mintController))

	// 出金通道：启用链时走真实节点，否则干跑。
	var transferer wallet.Transferer
	var chainClient *chain.Client
	if cfg.Chain.Enabled {
		signerKey := ""
		if cfg.Chain.SignerKeyEnv != "" {
			signerKey = strings.TrimSpace(os.Getenv(cfg.Chain.SignerKeyEnv))
		}
		chainClient, err = chain.NewClient(ctx, chain.Config{
			Name:           cfg.Chain.Name,
			RPCURL:         cfg.Chain.RPCURL,
			WSURL:          cfg.Chain.WSURL,
			SignerKeyHex:   signerKey,
			ReceiptTimeout: time.Duration(cfg.Chain.ReceiptTimeoutSeconds) * time.Second,
			PollInterval:   time.Duration(cfg.Chain.PollIntervalSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		defer chainClient.Close()
		transferer = chainClient
	} else {
		transferer = chain.NewNoopTransferer()
	}

	engine, err := buildEngine(cfg, owners, transferer, sinks)
	if err != nil {
		return err
	}

	// 链上入账订阅。
	if chainClient != nil && cfg.Chain.WatchDeposits && common.IsHexAddress(cfg.Chain.VaultAddress) {
		watcher := chainClient.WatchDeposits(common.HexToAddress(cfg.Chain.VaultAddress), engine)
		watcher.SetRetryInterval(time.Duration(cfg.Chain.WatchReconnectSeconds) * time.Second)
		go watcher.Run(ctx)
	}

	serverOpts := []api.Option{api.WithEventArchive(archive)}
	if chainClient != nil {
		serverOpts = append(serverOpts,
			api.WithChainInfo(chainClient),
			api.WithGasQuoter(chainClient.GasOracle(time.Duration(cfg.Chain.GasQuoteCacheSeconds)*time.Second)),
		)
	}

	// 自动支付流水线。
	if cfg.Autopay.Enabled {
		payments, processor, cleanup, err := buildAutopay(cfg, engine)
		if err != nil {
			return err
		}
		defer cleanup()

		processorCtx, processorCancel := context.WithCancel(ctx)
		defer processorCancel()
		go func() {
			if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("支付处理器异常退出", "error", err)
			}
		}()
		serverOpts = append(serverOpts, api.WithPayments(payments))
	}

	if cfg.Auth.Mode != "" && cfg.Auth.Mode != string(auth.ModeDisabled) {
		authSvc, err := buildAuth(cfg)
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, api.WithAuth(authSvc))
	}

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", "error", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, engine, serverOpts...)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildEngine(cfg *config.Config, owners []common.Address, transferer wallet.Transferer, sinks []wallet.Sink) (*wallet.Engine, error) {
	daily, err := parseWei(cfg.Wallet.DailyLimitWei, "wallet.daily_limit_wei")
	if err != nil {
		return nil, err
	}
	perTx, err := parseWei(cfg.Wallet.PerTxLimitWei, "wallet.per_tx_limit_wei")
	if err != nil {
		return nil, err
	}

	engineCfg := wallet.Config{
		Owners:     owners,
		Threshold:  cfg.Wallet.Threshold,
		DailyLimit: daily,
		PerTxLimit: perTx,
	}
	if common.IsHexAddress(cfg.Wallet.RecoveryAgent) {
		engineCfg.RecoveryAgent = common.HexToAddress(cfg.Wallet.RecoveryAgent)
	}
	if common.IsHexAddress(cfg.Wallet.AutomationAgent) {
		engineCfg.AutomationAgent = common.HexToAddress(cfg.Wallet.AutomationAgent)
	}
	if raw := strings.TrimSpace(cfg.Wallet.AutomationCeilingWei); raw != "" {
		ceiling, err := parseWei(raw, "wallet.automation_ceiling_wei")
		if err != nil {
			return nil, err
		}
		engineCfg.AutomationCeiling = ceiling
	}

	return wallet.New(engineCfg, transferer, wallet.WithSink(wallet.NewFanoutSink(sinks...)))
}

func buildEventArchive(ctx context.Context, cfg *config.Config, dataDir string) (mysql.EventArchive, func(), error) {
	switch cfg.Storage.EventArchive.Driver {
	case "", "memory":
		archive, err := mysql.NewMemoryEventArchive(dataDir)
		if err != nil {
			return nil, nil, err
		}
		return archive, nil, nil
	case "mysql":
		archive, err := mysql.NewSQLEventArchive(ctx, mysql.Config{
			DSN:             cfg.Storage.EventArchive.DSN,
			MaxOpenConns:    cfg.Storage.EventArchive.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.EventArchive.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.EventArchive.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.EventArchive.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return archive, func() { _ = archive.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("未知的事件归档驱动: %s", cfg.Storage.EventArchive.Driver)
	}
}

func buildRelayPublisher(cfg *config.Config) (relay.Publisher, error) {
	switch cfg.Relay.Publisher.Driver {
	case "", "memory":
		return relay.NewMemoryPublisher(), nil
	case "redis":
		return relay.NewRedisPublisher(relay.RedisPublisherConfig{
			Address:  cfg.Relay.Publisher.Redis.Address,
			Password: cfg.Relay.Publisher.Redis.Password,
			DB:       cfg.Relay.Publisher.Redis.DB,
		})
	case "rabbitmq":
		return relay.NewRabbitMQPublisher(relay.RabbitMQPublisherConfig{
			URL:      cfg.Relay.Publisher.RabbitMQ.URL,
			Exchange: cfg.Relay.Publisher.RabbitMQ.Exchange,
			Durable:  cfg.Relay.Publisher.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的事件转发驱动: %s", cfg.Relay.Publisher.Driver)
	}
}

func buildAutopay(cfg *config.Config, engine *wallet.Engine) (*autopay.Service, *autopay.Processor, func(), error) {
	var store autopay.Store
	switch cfg.Autopay.Store.Driver {
	case "", "memory":
		store = autopay.NewMemoryStore()
	case "mysql":
		mysqlStore, err := autopay.NewMySQLStore(cfg.Autopay.Store.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		store = mysqlStore
	default:
		return nil, nil, nil, fmt.Errorf("未知的支付存储驱动: %s", cfg.Autopay.Store.Driver)
	}

	var queue autopay.Queue
	switch cfg.Autopay.Queue.Driver {
	case "", "memory":
		queue = autopay.NewMemoryQueue(1024)
	case "redis":
		redisQueue, err := autopay.NewRedisQueue(autopay.RedisQueueConfig{
			Address:   cfg.Autopay.Queue.Redis.Address,
			Password:  cfg.Autopay.Queue.Redis.Password,
			DB:        cfg.Autopay.Queue.Redis.DB,
			Queue:     cfg.Autopay.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Autopay.Queue.Redis.BlockWaitSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		queue = redisQueue
	case "rabbitmq":
		rabbitQueue, err := autopay.NewRabbitMQQueue(autopay.RabbitMQConfig{
			URL:        cfg.Autopay.Queue.RabbitMQ.URL,
			Queue:      cfg.Autopay.Queue.RabbitMQ.Queue,
			Prefetch:   cfg.Autopay.Queue.RabbitMQ.Prefetch,
			Durable:    cfg.Autopay.Queue.RabbitMQ.Durable,
			AutoDelete: cfg.Autopay.Queue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		queue = rabbitQueue
	default:
		return nil, nil, nil, fmt.Errorf("未知的支付队列驱动: %s", cfg.Autopay.Queue.Driver)
	}

	processorOpts := []autopay.ProcessorOption{
		autopay.WithWorkerCount(cfg.Autopay.Workers),
		autopay.WithProcessorLogger(logger.Named("autopay")),
	}
	if cfg.Alerts.WebhookURL != "" {
		processorOpts = append(processorOpts, autopay.WithAlertDispatcher(
			alerting.NewFanout(&alerting.WebhookNotifier{URL: cfg.Alerts.WebhookURL}),
		))
	}

	payments := autopay.NewService(store, queue, cfg.Autopay.MaxRetries)
	processor := autopay.NewProcessor(engine, engine.AutomationAgent(), store, queue, queue, processorOpts...)

	cleanup := func() {
		_ = queue.Close()
		_ = store.Close()
	}
	return payments, processor, cleanup, nil
}

func buildAuth(cfg *config.Config) (*auth.Service, error) {
	credentials := make([]auth.Credential, 0, len(cfg.Auth.Credentials))
	for _, credential := range cfg.Auth.Credentials {
		credentials = append(credentials, auth.Credential{
			Name:         credential.Name,
			Key:          credential.Key,
			Address:      credential.Address,
			Roles:        credential.Roles,
			Capabilities: credential.Capabilities,
			Disabled:     credential.Disabled,
		})
	}
	return auth.NewService(auth.Config{
		Mode:        auth.Mode(cfg.Auth.Mode),
		Credentials: credentials,
	})
}

func parseAddresses(raw []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(raw))
	for _, value := range raw {
		if !common.IsHexAddress(value) {
			return nil, fmt.Errorf("非法地址: %s", value)
		}
		addresses = append(addresses, common.HexToAddress(value))
	}
	return addresses, nil
}

func parseWei(raw, field string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%s 必须是非负十进制 wei 数值", field)
	}
	return value, nil
}
