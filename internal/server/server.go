// Package server はパイプラインを操作する HTTP API を提供します。
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shouni/go-comic-kit/pkg/checkpoint"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/pipeline"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ginprometheus "github.com/zsais/go-gin-prometheus"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	// maxUploadBytes は画像やアーカイブのアップロードの上限です。
	maxUploadBytes = 64 << 20
)

// Pipeline はサーバーが操作するパイプラインの操作です。
type Pipeline interface {
	Snapshot() pipeline.State
	Subscribe() (<-chan pipeline.State, func())
	Running() bool
	StartFromImage(ctx context.Context, img domain.Image) error
	StartFromSample(ctx context.Context) error
	Retry(ctx context.Context) error
	ResolveIntervention(d pipeline.Decision) error
	Reset() error
	Load(s pipeline.State) error
}

// ImageFetcher は URL からシード画像を取得します。
type ImageFetcher interface {
	FetchURL(ctx context.Context, rawURL string) (domain.Image, error)
}

// Options はサーバーの任意設定です。
type Options struct {
	CORSOrigins []string
	// Store が設定されていれば、エクスポートしたアーカイブを保存します。
	Store checkpoint.Store
	// Images が nil の場合、imageUrl による開始は受け付けません。
	Images ImageFetcher
	// Prometheus が nil の場合は /metrics を promhttp で直接公開します。
	Prometheus *ginprometheus.Prometheus
}

// Server は gin のルーターとバックグラウンドの実行を管理します。
type Server struct {
	pipeline Pipeline
	store    checkpoint.Store
	images   ImageFetcher
	router   *gin.Engine

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New はルーティングを設定した Server を生成します。
func New(p Pipeline, opts Options) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline は必須です")
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		pipeline: p,
		store:    opts.Store,
		images:   opts.Images,
		router:   gin.New(),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
	s.router.Use(gin.Recovery(), requestLogger())

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsConfig := cors.DefaultConfig()
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	s.router.Use(cors.New(corsConfig))

	if opts.Prometheus != nil {
		opts.Prometheus.Use(s.router)
	} else {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	api := s.router.Group("/api/run")
	api.GET("", s.handleSnapshot)
	api.GET("/events", s.handleEvents)
	api.POST("/image", s.handleStartFromImage)
	api.POST("/sample", s.handleStartFromSample)
	api.POST("/retry", s.handleRetry)
	api.POST("/intervention", s.handleIntervention)
	api.GET("/intervention/image", s.handleInterventionImage)
	api.POST("/reset", s.handleReset)
	api.GET("/export", s.handleExport)
	api.POST("/restore", s.handleRestore)
	api.GET("/panels/:page/:panel/image", s.handlePanelImage)
}

// Handler は http.Handler を返します。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run は addr で待ち受け、ctx がキャンセルされるとグレースフルに停止します。
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTPサーバーを起動します", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTPサーバーの起動に失敗しました: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("HTTPサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗しました: %w", err)
	}
	return nil
}

// Close は実行中のパイプラインを中断し、終了を待ちます。
// 介入待ちの実行は context のキャンセルで解放されます。
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// launch はパイプラインの操作をバックグラウンドで実行します。
// 実行結果はスナップショットの Err に記録されるため、ここではログだけを残します。
func (s *Server) launch(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := time.Now()
		if err := fn(s.baseCtx); err != nil {
			slog.Error("パイプラインの実行に失敗しました", "op", name, "error", err,
				"elapsed", time.Since(start).Round(time.Millisecond))
			return
		}
		slog.Info("パイプラインの実行が完了しました", "op", name,
			"elapsed", time.Since(start).Round(time.Millisecond))
	}()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// SSE は接続時間が長いため対象外にします。
		if c.FullPath() == "/api/run/events" {
			return
		}
		slog.Info("HTTPリクエスト",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).Round(time.Millisecond))
	}
}
