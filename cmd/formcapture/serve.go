package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"formcapture/internal/controllers/form"
	"formcapture/internal/models"
	"formcapture/internal/router"
	"formcapture/internal/services/session"
	"formcapture/internal/services/submission"
	"formcapture/pkg/config"
	"formcapture/pkg/imagex/compress"
	"formcapture/pkg/imagex/convert"
	"formcapture/pkg/logger"
	"formcapture/pkg/storage"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	Long:  "启动表单会话 HTTP/WebSocket 服务，并定时清理空闲会话。",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "监听端口（覆盖配置 server.port）")
	rootCmd.AddCommand(serveCmd)
}

// newConverter 后台加载旧格式解码能力：goheif 优先，外部命令兜底
func newConverter(ctx context.Context, c config.CaptureConfig) *convert.Converter {
	capability := convert.NewCapability()
	sources := []convert.Source{convert.GoHEIFSource}
	if c.HeifConvertPath != "" {
		sources = append(sources, convert.CommandSource(c.HeifConvertPath))
	}
	go convert.Load(ctx, capability, sources...)

	return convert.NewConverter(capability, convert.Options{
		Quality:        c.ConvertQuality,
		CapabilityWait: c.CapabilityWait,
		Timeout:        c.ConvertTimeout,
	})
}

func newOptimizer(c config.CaptureConfig) *compress.Optimizer {
	return compress.NewOptimizer(compress.Options{
		TargetBytes:       c.TargetBytes,
		InitialMaxEdge:    c.InitialMaxEdge,
		AggressiveMaxEdge: c.AggressiveMaxEdge,
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	forms, err := models.LoadFormDefinitions(cfg.Forms.Dir)
	if err != nil {
		return eris.Wrap(err, "serve: load forms")
	}
	logger.Info("已加载 %d 个表单定义 (%s)", len(forms), cfg.Forms.Dir)

	registry := session.NewRegistry(forms, session.Dependencies{
		Converter:       newConverter(ctx, cfg.Capture),
		Optimizer:       newOptimizer(cfg.Capture),
		TargetBytes:     cfg.Capture.TargetBytes,
		SignatureWidth:  cfg.Signature.Width,
		SignatureHeight: cfg.Signature.Height,
		StrokeWidth:     cfg.Signature.StrokeWidth,
	}, cfg.Session.IdleTTL)

	sweeper, err := session.NewSweeper(registry, cfg.Session.SweepSpec)
	if err != nil {
		return err
	}

	store, err := storage.NewFromConfig(cfg.Storage.Type, cfg.Storage.AsMap(), cfg.Storage.Prefix)
	if err != nil {
		return eris.Wrap(err, "serve: init storage")
	}
	if err := store.HealthCheck(ctx); err != nil {
		logger.Warn("存储健康检查失败 (%s): %v", store.Type(), err)
	}

	svc := submission.NewService(submission.NewGate(cfg.Submission.MaxAttachmentBytes), store)
	ctl := form.NewController(registry, svc, cfg.Capture.MaxUploadBytes)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.New(cfg.Server.Mode, ctl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP 服务启动: %s (存储 %s)", addr, store.Type())
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "serve: http server")
		}
		return nil
	})
	g.Go(func() error {
		sweeper.Start()
		<-gctx.Done()
		sweeper.Stop()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("正在关闭 HTTP 服务")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
