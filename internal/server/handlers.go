package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/checkpoint"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/pipeline"

	"github.com/gin-gonic/gin"
)

type imageURLRequest struct {
	ImageURL string `json:"imageUrl"`
}

type interventionRequest struct {
	Choice string `json:"choice" binding:"required"`
	Reason string `json:"reason"`
}

type restoreResponse struct {
	Hint     checkpoint.ResumeHint `json:"hint"`
	Message  string                `json:"message"`
	Resumed  bool                  `json:"resumed"`
	Snapshot snapshotView          `json:"snapshot"`
}

// errorStatus はエラーの種類を HTTP ステータスに対応させます。
func errorStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrBusy), errors.Is(err, pipeline.ErrNoPendingIntervention):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrInvalidChoice),
		errors.Is(err, pipeline.ErrNoSeedImage),
		errors.Is(err, checkpoint.ErrMissingMetadata):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "リクエストの処理に失敗しました", "path", c.Request.URL.Path, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, newSnapshotView(s.pipeline.Snapshot()))
}

// handleEvents は状態が変わるたびに snapshot イベントを SSE で送ります。
func (s *Server) handleEvents(c *gin.Context) {
	updates, cancel := s.pipeline.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("snapshot", newSnapshotView(s.pipeline.Snapshot()))
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case st, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("snapshot", newSnapshotView(st))
			return true
		case <-c.Request.Context().Done():
			return false
		case <-s.baseCtx.Done():
			return false
		}
	})
}

// start はパイプラインが空いていることを確認してから、バックグラウンドで実行を始めます。
func (s *Server) start(c *gin.Context, name string, fn func(ctx context.Context) error) {
	if s.pipeline.Running() {
		writeError(c, http.StatusConflict, pipeline.ErrBusy)
		return
	}
	s.launch(name, fn)
	c.JSON(http.StatusAccepted, newSnapshotView(s.pipeline.Snapshot()))
}

// handleStartFromImage は multipart の image ファイル、または JSON の imageUrl で実行を開始します。
func (s *Server) handleStartFromImage(c *gin.Context) {
	var (
		img domain.Image
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		img, err = readUploadedImage(c)
		if err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
	} else {
		var req imageURLRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ImageURL) == "" {
			writeError(c, http.StatusBadRequest, fmt.Errorf("image ファイルまたは imageUrl を指定してください"))
			return
		}
		if s.images == nil {
			writeError(c, http.StatusBadRequest, fmt.Errorf("imageUrl による開始は無効化されています"))
			return
		}
		if s.pipeline.Running() {
			writeError(c, http.StatusConflict, pipeline.ErrBusy)
			return
		}
		img, err = s.images.FetchURL(c.Request.Context(), strings.TrimSpace(req.ImageURL))
		if err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
	}

	s.start(c, "image", func(ctx context.Context) error {
		return s.pipeline.StartFromImage(ctx, img)
	})
}

func readUploadedImage(c *gin.Context) (domain.Image, error) {
	data, err := readFormFile(c, "image")
	if err != nil {
		return domain.Image{}, err
	}
	img := domain.NewImage(data)
	if img.IsEmpty() || !strings.HasPrefix(img.MIMEType, "image/") {
		return domain.Image{}, fmt.Errorf("アップロードされたファイルは画像として認識できません")
	}
	return img, nil
}

func readFormFile(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%s ファイルを読み込めませんでした: %w", field, err)
	}
	if fh.Size > maxUploadBytes {
		return nil, fmt.Errorf("%s ファイルが大きすぎます (上限 %d バイト)", field, maxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%s ファイルを開けませんでした: %w", field, err)
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxUploadBytes))
}

func (s *Server) handleStartFromSample(c *gin.Context) {
	s.start(c, "sample", s.pipeline.StartFromSample)
}

func (s *Server) handleRetry(c *gin.Context) {
	s.start(c, "retry", s.pipeline.Retry)
}

func (s *Server) handleIntervention(c *gin.Context) {
	var req interventionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("choice を指定してください: %w", err))
		return
	}
	choice, err := pipeline.ParseChoice(req.Choice)
	if err != nil {
		writeError(c, errorStatus(err), err)
		return
	}
	if err := s.pipeline.ResolveIntervention(pipeline.Decision{Choice: choice, Reason: strings.TrimSpace(req.Reason)}); err != nil {
		writeError(c, errorStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, newSnapshotView(s.pipeline.Snapshot()))
}

func (s *Server) handleInterventionImage(c *gin.Context) {
	snap := s.pipeline.Snapshot()
	if snap.Pending == nil {
		writeError(c, http.StatusNotFound, pipeline.ErrNoPendingIntervention)
		return
	}
	img := snap.Pending.Image
	if c.Query("kind") == "reference" {
		img = snap.Pending.Reference
	}
	writeImage(c, img)
}

func (s *Server) handleReset(c *gin.Context) {
	if err := s.pipeline.Reset(); err != nil {
		writeError(c, errorStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, newSnapshotView(s.pipeline.Snapshot()))
}

// handleExport は現在の状態を zip でダウンロードさせます。介入待ちの間でも利用できます。
func (s *Server) handleExport(c *gin.Context) {
	snap := s.pipeline.Snapshot()
	data, err := checkpoint.Export(snap)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	name := checkpoint.ArchiveName(snap)
	if s.store != nil {
		if err := s.store.Save(c.Request.Context(), name, data); err != nil {
			slog.WarnContext(c.Request.Context(), "チェックポイントの保存に失敗しました", "name", name, "error", err)
		}
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/zip", data)
}

// handleRestore はアーカイブから状態を復元し、再開できる場合は続きを実行します。
func (s *Server) handleRestore(c *gin.Context) {
	data, err := readFormFile(c, "archive")
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	restored, err := checkpoint.Restore(data)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.pipeline.Load(restored); err != nil {
		writeError(c, errorStatus(err), err)
		return
	}

	hint := checkpoint.HintFor(restored)
	resumed := false
	if hint.Resumable() {
		s.launch("restore", s.pipeline.Retry)
		resumed = true
	}
	slog.InfoContext(c.Request.Context(), "チェックポイントから復元しました", "hint", hint, "resumed", resumed)
	c.JSON(http.StatusOK, restoreResponse{
		Hint:     hint,
		Message:  hint.Message(),
		Resumed:  resumed,
		Snapshot: newSnapshotView(s.pipeline.Snapshot()),
	})
}

func (s *Server) handlePanelImage(c *gin.Context) {
	page, err := domain.ParsePageNumber(c.Param("page"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	panel, err := strconv.Atoi(c.Param("panel"))
	if err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("パネル番号として解釈できません: %q", c.Param("panel")))
		return
	}
	gp, ok := s.pipeline.Snapshot().FindPanel(domain.PanelKey{Page: page, Panel: panel})
	if !ok {
		writeError(c, http.StatusNotFound, fmt.Errorf("パネル %s-%d は生成されていません", page, panel))
		return
	}
	writeImage(c, gp.Image)
}

func writeImage(c *gin.Context, img domain.Image) {
	if img.IsEmpty() {
		writeError(c, http.StatusNotFound, fmt.Errorf("画像がありません"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, img.MIMEType, img.Data)
}
