package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookstore/internal/auth"
	"bookstore/internal/config"
	"bookstore/internal/handler"
	"bookstore/internal/infrastructure/cache"
	"bookstore/internal/infrastructure/database"
	"bookstore/internal/infrastructure/lock"
	"bookstore/internal/infrastructure/mq"
	"bookstore/internal/job"
	"bookstore/internal/logging"
	"bookstore/internal/service"
	"bookstore/pkg/idgen"
)

func main() {
	if err := run(); err != nil {
		slog.Error("服务异常退出", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("BOOKSTORE_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	// 初始化 ID 生成器
	if err := idgen.Init(1); err != nil {
		return err
	}

	// 初始化数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return err
	}

	// Redis 可选，未启用时使用进程内无锁实现
	var locker lock.Locker = lock.NoopLocker{}
	if cfg.Redis.Enabled {
		redisClient, err := cache.InitRedis(&cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, cfg.Business.LockTTL)
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始超级管理员
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	if err := service.NewUserService(db, tokens, cfg).EnsureBootstrapAdmin(ctx); err != nil {
		return err
	}

	// 启动后台任务
	if cfg.Kafka.Enabled {
		publisher, err := mq.NewKafkaPublisher(&cfg.Kafka)
		if err != nil {
			return err
		}
		defer publisher.Close()

		outboxSender := job.NewOutboxSender(db, publisher, &cfg.Job)
		go outboxSender.Start(ctx)
	}

	if cfg.Job.DailySummaryEnabled {
		summaryJob := job.NewDailySummaryJob(service.NewFinancialService(db, cfg), cfg.Job.DailySummaryCron)
		if err := summaryJob.Start(); err != nil {
			return err
		}
		defer summaryJob.Stop()
	}

	// 设置路由
	router, err := handler.SetupRouter(db, locker, cfg, logger)
	if err != nil {
		return err
	}

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("服务启动", "port", cfg.Server.Port, "db_driver", cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	slog.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("服务关闭异常", "error", err)
	}

	slog.Info("服务已关闭")
	return nil
}
