package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/config"
	logpkg "github.com/EricMovillaSanolivar/ai-fall-prevent/internal/logger"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "fallguard-monitor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting fallguard-monitor service",
		zap.String("camera_id", cfg.Monitor.CameraID),
		zap.String("snapshot_url", cfg.Camera.SnapshotURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := service.NewMonitorService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create monitor service", zap.Error(err))
	}

	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Start(ctx)
	}()

	exitCode := 0
	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil {
			log.Error("Monitor loop failed", zap.Error(err))
			exitCode = 1
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping service", zap.Error(err))
	}

	log.Info("Service stopped")
	if exitCode != 0 {
		_ = log.Sync()
		os.Exit(exitCode)
	}
}
