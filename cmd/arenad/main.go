package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"Traitors-Arena/internal/api"
	"Traitors-Arena/internal/auth"
	"Traitors-Arena/internal/config"
	"Traitors-Arena/internal/economy"
	"Traitors-Arena/internal/fanout"
	"Traitors-Arena/internal/game"
	"Traitors-Arena/internal/observability/alerting"
	"Traitors-Arena/internal/observability/metrics"
	"Traitors-Arena/internal/participant"
	"Traitors-Arena/internal/rules"
	"Traitors-Arena/internal/storage/mysql"
	redisstore "Traitors-Arena/internal/storage/redis"
	"Traitors-Arena/pkg/logger"
)

// main 是竞技场守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("arenad 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("ARENA_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "arena.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Outputs: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.AuditEnabled,
			Path:       cfg.Logging.AuditPath,
			MaxSizeMB:  cfg.Logging.AuditMaxSize,
			MaxBackups: cfg.Logging.AuditBackups,
			MaxAgeDays: cfg.Logging.AuditMaxDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	gameRules, err := rules.Load(cfg.Runtime.RulesPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	// 持久化后端。
	var (
		gameStore game.Store
		partStore participant.Store
		econStore economy.Store
	)
	switch cfg.Storage.Driver {
	case "", "memory":
		gameStore = game.NewMemoryStore()
		partStore = participant.NewMemoryStore()
		econStore = economy.NewMemoryStore()
	case "mysql":
		db, err := mysql.Open(ctx, mysql.Config{
			DSN:             cfg.Storage.DSN,
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.ConnMaxLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		if gameStore, err = game.NewMySQLStore(db); err != nil {
			return err
		}
		if partStore, err = participant.NewMySQLStore(db); err != nil {
			return err
		}
		if econStore, err = economy.NewMySQLStore(db); err != nil {
			return err
		}
	default:
		return fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
	defer gameStore.Close()
	defer partStore.Close()
	defer econStore.Close()

	// 广播:本地 Hub 永远在线,跨节点投递按配置叠加 RabbitMQ。
	hub := fanout.NewHub(64)
	defer hub.Close()
	var publisher fanout.Publisher = hub
	switch cfg.Fanout.Driver {
	case "", "memory":
	case "rabbitmq":
		rabbit, err := fanout.NewRabbitMQPublisher(fanout.RabbitMQConfig{
			URL:      cfg.Fanout.RabbitMQ.URL,
			Exchange: cfg.Fanout.RabbitMQ.Exchange,
			Durable:  cfg.Fanout.RabbitMQ.Durable,
		})
		if err != nil {
			return err
		}
		defer rabbit.Close()
		publisher = fanout.Multi{hub, rabbit}
	default:
		return fmt.Errorf("未知的广播驱动: %s", cfg.Fanout.Driver)
	}

	// 告警。
	var notifiers []alerting.Notifier
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.WebhookURL})
	}
	dispatcher := alerting.NewFanout(notifiers...)

	registry := game.NewRegistry(0)
	settler := economy.NewService(econStore, partStore, registry, gameRules,
		economy.WithAlerts(dispatcher),
	)
	clock := game.NewClock(registry, gameRules, publisher, gameStore, settler)
	queue := game.NewQueue(registry, clock, publisher, gameRules.Match)

	gameOpts := []game.ServiceOption{}
	if cfg.Cache.Enabled {
		live, err := redisstore.NewLiveCache(ctx, redisstore.Config{
			Address:  cfg.Cache.Address,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			// 缓存只是快速路径,连不上降级为进程内计数。
			logger.L().Warn("Redis 不可用,观战计数退化为单机模式", slog.Any("error", err))
		} else {
			defer live.Close()
			gameOpts = append(gameOpts,
				game.WithSpectatorCounter(live),
				game.WithViewCache(live),
			)
		}
	}
	gameSvc := game.NewService(registry, queue, clock, gameStore, publisher, gameOpts...)

	secret := cfg.Auth.Secret
	if cfg.Auth.Mode == string(auth.ModeToken) && secret == "" {
		// 未配置密钥时生成临时密钥,重启后旧令牌全部失效。
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		secret = hex.EncodeToString(buf)
		logger.L().Warn("未配置令牌密钥,已生成临时密钥")
	}
	authSvc, err := auth.NewService(auth.Config{
		Mode:   auth.Mode(cfg.Auth.Mode),
		Secret: secret,
		Issuer: "arenad",
	})
	if err != nil {
		return err
	}

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	logger.L().Info("arenad 启动",
		slog.String("address", cfg.Server.Address),
		slog.Int("roster_size", gameRules.Match.RosterSize),
		slog.Int("traitor_count", gameRules.Match.TraitorCount),
	)

	server := api.NewServer(cfg.Server.Address, gameSvc, settler, partStore, authSvc, hub)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
