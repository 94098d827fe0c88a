package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binance-signal-bot-go/internal/bot"
	"binance-signal-bot-go/internal/config"
	"binance-signal-bot-go/internal/exchange"
	"binance-signal-bot-go/internal/executor"
	"binance-signal-bot-go/internal/ledger"
	"binance-signal-bot-go/internal/logger"
	"binance-signal-bot-go/internal/metrics"
	"binance-signal-bot-go/internal/models"
	"binance-signal-bot-go/internal/notifier"
	"binance-signal-bot-go/internal/persistence"
	"binance-signal-bot-go/internal/position"
	"binance-signal-bot-go/internal/reporter"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	flag.Parse()

	// 在加载配置之前先用默认配置初始化日志，以便记录启动阶段的错误
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if errors.Is(err, config.ErrMissingCredentials) {
			logger.S().Fatalf("启动失败，缺少凭证: %v", err)
		}
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	logger.InitLogger(cfg.Log)
	defer logger.Sync()

	run(cfg)
}

func run(cfg *models.Config) {
	log := logger.L()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 尽早注册信号，启动阶段收到的退出信号也会走正常的关闭流程
	quit, stopSignals := notifyQuit()
	defer stopSignals()

	// --- 交易账本 ---
	tradeLedger, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		logger.S().Fatalf("初始化交易账本失败: %v", err)
	}
	defer tradeLedger.Close()

	// --- 交易所 ---
	live, err := exchange.NewLiveExchange(ctx, exchange.LiveOptions{
		APIKey:            cfg.Binance.APIKey,
		SecretKey:         cfg.Binance.SecretKey,
		TestMode:          cfg.TestMode,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, log.Named("exchange"))
	if err != nil {
		logger.S().Fatalf("初始化交易所失败: %v", err)
	}

	var market exchange.MarketData = exchange.NewRetryingMarketData(live, exchange.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseWait:    time.Duration(cfg.Retry.BaseWaitSec) * time.Second,
		MaxWait:     time.Duration(cfg.Retry.MaxWaitSec) * time.Second,
	}, log.Named("market"))
	var placer exchange.OrderPlacer = live
	if cfg.PaperTrading {
		paper := exchange.NewPaperExchange(cfg.PaperSlippageRate, log.Named("paper"))
		market = paper.Track(market)
		placer = paper
		logger.S().Warn("纸面交易模式：订单只在本地模拟成交。")
	}

	// --- 通知 ---
	var notify notifier.Notifier
	tg, err := notifier.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log.Named("telegram"))
	if err != nil {
		logger.S().Errorf("Telegram 初始化失败，通知只写入日志: %v", err)
		notify = notifier.NewLog(log.Named("notify"))
	} else {
		notify = tg
	}

	// --- 持仓跟踪 ---
	var repo persistence.PositionRepository
	if cfg.PositionStorePath != "" {
		repo, err = persistence.NewBadgerRepository(cfg.PositionStorePath)
		if err != nil {
			logger.S().Fatalf("打开持仓存储失败: %v", err)
		}
		defer repo.Close()
	}
	tracker := position.NewTracker(repo, log.Named("position"))
	if n, err := tracker.Restore(); err != nil {
		logger.S().Errorf("恢复持仓失败，将从空状态开始: %v", err)
	} else if n > 0 {
		logger.S().Infof("已从持仓存储恢复 %d 个持仓。", n)
	}
	tracker.Start()
	defer tracker.Stop()

	exec := executor.New(placer, tradeLedger, notify, cfg.StopLossMultiplier, cfg.TakeProfitMult, log.Named("executor"))

	signalBot, err := bot.New(cfg, bot.Deps{
		Market:   market,
		Orders:   exec,
		Exchange: placer,
		Tracker:  tracker,
		Ledger:   tradeLedger,
		Reporter: reporter.New(tradeLedger, log.Named("report")),
	}, log.Named("bot"))
	if err != nil {
		logger.S().Fatalf("机器人初始化失败: %v", err)
	}

	if cfg.ReconcileOnStart {
		if err := signalBot.Reconcile(ctx); err != nil {
			logger.S().Errorf("启动对账失败: %v", err)
		}
	}

	if cfg.MetricsAddr != "" {
		go metrics.Serve(ctx, cfg.MetricsAddr, log.Named("metrics"))
	}

	signalBot.Start(ctx)
	logger.S().Infof("机器人已启动，交易对数量: %d，按 Ctrl+C 退出。", len(cfg.Symbols))

	sig := <-quit
	logger.S().Infow("收到退出信号，正在关闭...", "signal", sig.String())

	signalBot.Shutdown()
	stop()
	logger.S().Info("机器人已安全退出。")
}

// notifyQuit 注册 SIGINT/SIGTERM，信号会缓存在通道中直到被读取
func notifyQuit() (<-chan os.Signal, func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return quit, func() { signal.Stop(quit) }
}
