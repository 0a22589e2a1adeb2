// Package main API Server 入口
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memoria/internal/apiserver/auth"
	"memoria/internal/apiserver/metrics"
	"memoria/internal/apiserver/server"
	"memoria/internal/config"
	"memoria/internal/shared/infra"
	"memoria/internal/shared/mailer"
	objstore "memoria/internal/shared/minio"
	"memoria/pkg/logging"
)

func main() {
	configDir := flag.String("config", "", "配置文件目录（默认按 APP_ENV 选择）")
	flag.Parse()
	if *configDir != "" {
		config.SetConfigDir(*configDir)
	}

	// 加载配置（自动加载 .env，根据 APP_ENV 选择 YAML）
	cfg := config.Load()
	logging.Init(cfg.Log)

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 内嵌 OpenAPI 文档有误时拒绝启动
	if _, err := server.LoadOpenAPI(ctx); err != nil {
		log.Fatalf("Invalid OpenAPI document: %v", err)
	}

	// 初始化存储、缓存、事件总线、发件箱
	inf, err := infra.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}
	defer inf.Close()
	log.Printf("Connected to %s", cfg.DatabaseDriver)

	// 邮件：配置了 Redis 时先写入发件箱，由 Worker 异步发送
	sender, err := mailer.New(cfg.Mail)
	if err != nil {
		log.Fatalf("Failed to create mailer: %v", err)
	}
	var m mailer.Mailer = sender
	if inf.Queue != nil {
		hostname, _ := os.Hostname()
		wcfg := mailer.DefaultWorkerConfig("api-" + hostname)
		wcfg.Report = metrics.SetMailOutbox
		worker := mailer.NewWorker(inf.Queue, sender, wcfg)
		go worker.Start(ctx)
		defer worker.Stop()
		m = mailer.NewQueuedMailer(inf.Queue)
	}

	deps := server.Deps{
		Store:       inf.Storage,
		Cache:       inf.Cache,
		Bus:         inf.Bus,
		Mailer:      m,
		Auth:        auth.ConfigFrom(cfg),
		CORSOrigins: cfg.APIServer.CORSOrigins,
	}

	// MinIO 未配置时导出接口返回 503
	if cfg.MinIO.Enabled() {
		objects, err := objstore.NewClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("Failed to create MinIO client: %v", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			log.Fatalf("Failed to prepare MinIO bucket: %v", err)
		}
		deps.Objects = objects
		log.Printf("Export bucket: %s", objects.Bucket())
	} else {
		log.Printf("MinIO not configured, yearbook export is disabled")
	}

	h := server.NewHandler(deps)
	handler := h.Router()
	switch {
	case cfg.APIServer.DevFrontend != "":
		if handler, err = newDevHandler(handler, cfg.APIServer.DevFrontend); err != nil {
			log.Fatalf("Invalid dev frontend address: %v", err)
		}
	case cfg.APIServer.WebDir != "":
		if handler, err = newSPAHandler(handler, os.DirFS(cfg.APIServer.WebDir)); err != nil {
			log.Fatalf("Failed to load frontend from %s: %v", cfg.APIServer.WebDir, err)
		}
		log.Printf("Serving frontend from %s", cfg.APIServer.WebDir)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      handler,
		ReadTimeout:  durationOr(cfg.APIServer.ReadTimeout, 15*time.Second),
		WriteTimeout: durationOr(cfg.APIServer.WriteTimeout, 30*time.Second),
		IdleTimeout:  durationOr(cfg.APIServer.IdleTimeout, 60*time.Second),
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
