package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/winstondavid829/ats-platform/internal/api/handler"
	"github.com/winstondavid829/ats-platform/internal/api/router"
	"github.com/winstondavid829/ats-platform/internal/config"
	"github.com/winstondavid829/ats-platform/internal/lifecycle"
	applogger "github.com/winstondavid829/ats-platform/internal/logger"
	"github.com/winstondavid829/ats-platform/internal/outbox"
	"github.com/winstondavid829/ats-platform/internal/parsing"
	"github.com/winstondavid829/ats-platform/internal/storage"
	"github.com/winstondavid829/ats-platform/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzotel "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	hertzadapter "github.com/hertz-contrib/logger/zerolog"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	initLogger(&cfg.Logger)
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, &cfg.Tracing)
	if err != nil {
		glog.Fatalf("初始化追踪失败: %v", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := shutdownTracing(shutdownCtx); err != nil {
			glog.Warnf("关闭追踪导出器失败: %v", err)
		}
	}()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	// 公开投递接口依赖对象存储保存简历文件, MinIO不可用时直接拒绝启动
	if storageManager.MinIO == nil {
		glog.Fatalf("MinIO不可用, 无法保存简历文件, 拒绝启动")
	}

	// 状态流转引擎和批量协调器
	engine := lifecycle.NewStatusTransitionEngine(storageManager.MySQL)
	bulk := lifecycle.NewBulkTransitionCoordinator(engine)
	lifecycleService := lifecycle.NewApplicationLifecycleService(
		storageManager.MySQL,
		storageManager.MinIO,
		engine,
		bulk,
		cfg.RabbitMQ.ApplicationEventsExchange,
		cfg.RabbitMQ.ParseRequestedRoutingKey,
	)
	glog.Info("生命周期服务初始化成功")

	// 发件箱中继：把业务事务写入的解析任务消息投递到RabbitMQ
	var messageRelay *outbox.MessageRelay
	if storageManager.RabbitMQ != nil {
		relayLogger := log.New(applogger.Logger, "[MessageRelay] ", log.LstdFlags|log.Lshortfile)
		messageRelay = outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, relayLogger)
		messageRelay.Start()
		glog.Info("消息中继服务已启动")
	} else {
		glog.Warn("RabbitMQ不可用, 发件箱中继未启动, 解析任务将积压待发")
	}

	// 解析链路：队列消费 -> 编排器 -> 外部解析服务
	var parseWorker *parsing.Worker
	if storageManager.RabbitMQ != nil && storageManager.MinIO != nil {
		parserClient := parsing.NewClient(&cfg.Parser)
		orchestrator := parsing.NewOrchestrator(storageManager.MySQL, storageManager.MinIO, parserClient, storageManager.Redis)
		parseWorker = parsing.NewWorker(storageManager.RabbitMQ, orchestrator, &cfg.RabbitMQ)
		if err := parseWorker.Start(ctx); err != nil {
			glog.Fatalf("启动解析消费端失败: %v", err)
		}
		glog.Info("解析消费端已启动")
	} else {
		glog.Warn("RabbitMQ或MinIO不可用, 解析消费端未启动")
	}

	appHandler := handler.NewApplicationHandler(lifecycleService)
	jobHandler := handler.NewJobHandler(storageManager.MySQL, storageManager.Redis)

	tracer, tracerCfg := hertzotel.NewServerTracer()
	h := server.New(
		tracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(hertzotel.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h, cfg, appHandler, jobHandler)
	glog.Info("HTTP路由注册成功")

	go func() {
		glog.Infof("HTTP服务器启动中, 监听地址: %s", cfg.Server.Address)
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号, 正在优雅退出...")

	if parseWorker != nil {
		parseWorker.Stop()
		glog.Info("解析消费端已停止")
	}
	if messageRelay != nil {
		messageRelay.Stop()
		glog.Info("消息中继服务已停止")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

// initLogger 初始化zerolog全局实例并接管Hertz的日志
func initLogger(cfg *config.LoggerConfig) {
	applogger.Init(applogger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		TimeFormat:   cfg.TimeFormat,
		ReportCaller: cfg.ReportCaller,
	})
	zlog.Logger = applogger.Logger

	hertzCompatibleLogger := hertzadapter.From(applogger.Logger)
	glog.SetLogger(hertzCompatibleLogger)

	if level, err := zerolog.ParseLevel(cfg.Level); err == nil {
		switch level {
		case zerolog.DebugLevel:
			glog.SetLevel(glog.LevelDebug)
		case zerolog.WarnLevel:
			glog.SetLevel(glog.LevelWarn)
		case zerolog.ErrorLevel:
			glog.SetLevel(glog.LevelError)
		default:
			glog.SetLevel(glog.LevelInfo)
		}
	}
}
