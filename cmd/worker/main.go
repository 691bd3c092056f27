package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"comfyserve/internal/comfy"
	"comfyserve/internal/config"
	"comfyserve/internal/handler"
	"comfyserve/internal/logging"
	"comfyserve/internal/storage"
	"comfyserve/internal/workflow"
)

func main() {
	cfg := config.Load()

	logger, err := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting worker",
		zap.String("comfyui_url", cfg.ComfyUIURL),
		zap.Duration("default_timeout", cfg.DefaultTimeout))

	template, err := workflow.LoadTemplate(cfg.WorkflowPath)
	if err != nil {
		// a broken template is a misconfigured deployment, not a per-request error
		logger.Fatal("load workflow template", zap.String("path", cfg.WorkflowPath), zap.Error(err))
	}

	client := comfy.New(cfg.ComfyUIURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	readyCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	if err := client.WaitForReady(readyCtx, 2*time.Second); err != nil {
		cancel()
		logger.Fatal("ComfyUI did not become ready", zap.Error(err))
	}
	cancel()
	logger.Info("ComfyUI ready")

	var uploader *storage.Uploader
	if cfg.StorageConfigured() {
		uploader = storage.NewUploader(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket, cfg.WebPQuality)
		logger.Info("storage uploader enabled", zap.String("bucket", cfg.SupabaseBucket))
	}

	h := handler.New(client, template, uploader, cfg.DefaultTimeout)

	var queue *handler.Queue
	if cfg.QueueConfigured() {
		queue, err = handler.NewQueue(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, h, cfg.ResultTTL)
		if err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		go queue.Run(ctx)
		logger.Info("async queue enabled", zap.String("redis", cfg.RedisAddr))
	}

	srv := handler.NewServer(h, queue, client)
	if err := srv.Serve(ctx, cfg.ListenAddr); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
