package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/msubot/internal/api"
	"github.com/betbot/msubot/internal/engine"
	"github.com/betbot/msubot/internal/journal"
	"github.com/betbot/msubot/internal/metrics"
	"github.com/betbot/msubot/internal/registry"
	"github.com/betbot/msubot/internal/scheduler"
	"github.com/betbot/msubot/pkg/config"
	"github.com/betbot/msubot/pkg/logger"
	"github.com/betbot/msubot/pkg/proxypool"
	"github.com/betbot/msubot/pkg/secretstore"
	"github.com/betbot/msubot/pkg/shutdown"
	"github.com/betbot/msubot/pkg/transport"
)

func main() {
	// .env 可选，不存在时使用真实环境变量
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("MSUBOT_CONFIG"), "配置文件路径（.yaml/.yml/.json），为空则只用默认值和环境变量")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
		NoColor:    cfg.Log.NoColor,
	}); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Close()
	logger.Infof("🚀 msubot v%s 正在启动...", api.Version)

	if err := run(cfg); err != nil {
		logger.Errorf("❌ 服务异常退出: %v", err)
		_ = logger.Close()
		os.Exit(1)
	}
	logger.Info("服务已停止")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	sd := shutdown.NewManager()

	regOpts := registry.Options{
		BaseURL: cfg.Venue.BaseURL,
		Transport: transport.Config{
			Strategy: cfg.Request.Strategy,
			Timeout:  cfg.RequestTimeout(),
			UseProxy: cfg.Request.UseProxy,
			Pool:     proxypool.New(cfg.Request.ProxyFile),
		},
		Race: engine.RaceOptions{
			Concurrency:    cfg.Race.Concurrency,
			Stagger:        time.Duration(cfg.Race.StaggerMillis) * time.Millisecond,
			Cooldown:       time.Duration(cfg.Race.CooldownSeconds) * time.Second,
			FailureBackoff: time.Duration(cfg.Race.FailureBackoffSeconds) * time.Second,
		},
	}

	var store *secretstore.Store
	if cfg.Store.TokenDir != "" {
		var key []byte
		if cfg.Store.EncryptionKey != "" {
			k, err := secretstore.ParseKey(cfg.Store.EncryptionKey)
			if err != nil {
				return err
			}
			key = k
		}
		s, err := secretstore.Open(secretstore.OpenOptions{Path: cfg.Store.TokenDir, EncryptionKey: key})
		if err != nil {
			return err
		}
		store = s
		regOpts.Store = store
	}

	var orders *journal.Journal
	if cfg.Store.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.JournalPath), 0o755); err != nil {
			return err
		}
		j, err := journal.Open(cfg.Store.JournalPath)
		if err != nil {
			return err
		}
		orders = j
		regOpts.Journal = orders
	}

	reg := registry.New(regOpts)
	if cfg.Wallet.PrivateKey != "" {
		if _, err := reg.GetOrCreate(ctx, cfg.Wallet.PrivateKey); err != nil {
			logger.Warnf("初始化下单引擎失败: %v", err)
		}
	} else {
		logger.Warnf("未设置 PRIVATE_KEY，下单接口不可用")
	}

	apiOpts := api.Options{
		Registry:            reg,
		PrivateKey:          cfg.Wallet.PrivateKey,
		RequireConfirmation: cfg.RequireConfirmation,
	}
	if orders != nil {
		apiOpts.Journal = orders
	}

	if cfg.Scheduler.Enabled && cfg.Wallet.PrivateKey != "" {
		sched := scheduler.New()
		tasks := scheduler.NewTasks(reg, scheduler.TaskOptions{
			PrivateKey:        cfg.Wallet.PrivateKey,
			Filters:           cfg.Scheduler.Filters,
			MaxResults:        cfg.Scheduler.MaxResults,
			SeenTTL:           time.Duration(cfg.Scheduler.SeenTTLMinutes) * time.Minute,
			ExploreRate:       cfg.Scheduler.ExploreRatePerSecond,
			LoginInterval:     time.Duration(cfg.Scheduler.LoginIntervalSeconds) * time.Second,
			DiscoveryInterval: time.Duration(cfg.Scheduler.DiscoveryIntervalSeconds) * time.Second,
		})
		if err := tasks.Register(sched); err != nil {
			return err
		}
		if err := sched.Start(context.Background()); err != nil {
			return err
		}
		apiOpts.Scheduler = sched
		sd.OnShutdown("scheduler", func(ctx context.Context) error {
			err := sched.Stop(ctx)
			tasks.Close()
			return err
		})
	}

	if cfg.MetricsAddr != "" {
		if _, err := metrics.StartAsync(ctx, cfg.MetricsAddr); err != nil {
			logger.Warnf("启动 debug 服务失败: %v", err)
		} else {
			logger.Infof("debug 服务: http://%s/debug/vars", cfg.MetricsAddr)
		}
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           api.New(apiOpts).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("HTTP 服务监听 %s", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sd.OnShutdown("http", httpSrv.Shutdown)
	sd.OnShutdown("registry", func(context.Context) error {
		reg.Cleanup()
		return nil
	})
	if orders != nil {
		sd.OnShutdown("journal", func(context.Context) error { return orders.Close() })
	}
	if store != nil {
		sd.OnShutdown("token store", func(context.Context) error { return store.Close() })
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("🔄 收到退出信号，正在清理资源...")
	case err, ok := <-serveErr:
		if ok {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sd.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("清理资源时出错: %v", err)
	}
	return runErr
}
