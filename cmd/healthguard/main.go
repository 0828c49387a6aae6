package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/config"
	"github.com/karthiksai109/healthguard/internal/service"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	logger, err := initLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer logger.Sync()

	// 3. 创建服务
	guard, err := service.NewHealthGuardService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create healthguard service",
			zap.Error(err),
		)
	}
	defer guard.Stop()

	// 4. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. 启动服务
	if err := guard.Start(ctx); err != nil {
		logger.Fatal("Failed to start healthguard service",
			zap.Error(err),
		)
	}

	// 6. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, shutting down",
		zap.String("signal", sig.String()),
	)
	cancel()

	logger.Info("Healthguard service stopped")
}

// initLogger 初始化日志
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Log.Format == "json" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
