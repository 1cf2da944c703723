package builder

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"

	"github.com/shouni/gemini-image-kit/pkg/generator"
)

// maxSeedImageBytes はシード画像として受け付ける最大サイズです。
const maxSeedImageBytes = 20 << 20

// ObjectReader はローカルや GCS のファイルを読み込む入力元です。
type ObjectReader interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// ByteFetcher は URL からデータを取得する HTTP クライアントです。
type ByteFetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// ImageSource はシード画像をローカル、GCS、HTTP(S) のいずれかから読み込みます。
type ImageSource struct {
	reader     ObjectReader
	httpClient ByteFetcher
}

// NewImageSource は ImageSource を生成します。
func NewImageSource(reader ObjectReader, httpClient ByteFetcher) (*ImageSource, error) {
	if reader == nil || httpClient == nil {
		return nil, fmt.Errorf("reader と httpClient は必須です")
	}
	return &ImageSource{reader: reader, httpClient: httpClient}, nil
}

// Load はパスまたは URL から画像を読み込みます。CLI から使うため、ローカルパスも受け付けます。
func (s *ImageSource) Load(ctx context.Context, ref string) (domain.Image, error) {
	if isHTTPURL(ref) {
		return s.FetchURL(ctx, ref)
	}
	rc, err := s.reader.Open(ctx, ref)
	if err != nil {
		return domain.Image{}, fmt.Errorf("画像 '%s' を開けませんでした: %w", ref, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxSeedImageBytes+1))
	if err != nil {
		return domain.Image{}, fmt.Errorf("画像 '%s' の読み込みに失敗しました: %w", ref, err)
	}
	return toImage(ref, data)
}

// FetchURL は HTTP(S) の URL から画像を取得します。
// 内部ネットワークへのアクセスを防ぐため、事前に宛先を検証します。
func (s *ImageSource) FetchURL(ctx context.Context, rawURL string) (domain.Image, error) {
	if safe, err := generator.IsSafeURL(rawURL); err != nil || !safe {
		return domain.Image{}, fmt.Errorf("安全ではないURLが指定されました: %w", err)
	}
	data, err := s.httpClient.FetchBytes(ctx, rawURL)
	if err != nil {
		return domain.Image{}, fmt.Errorf("画像の取得に失敗しました (%s): %w", rawURL, err)
	}
	return toImage(rawURL, data)
}

func toImage(ref string, data []byte) (domain.Image, error) {
	if len(data) > maxSeedImageBytes {
		return domain.Image{}, fmt.Errorf("画像 '%s' が大きすぎます (上限 %d バイト)", ref, maxSeedImageBytes)
	}
	img := domain.NewImage(data)
	if img.IsEmpty() || !strings.HasPrefix(img.MIMEType, "image/") {
		return domain.Image{}, fmt.Errorf("'%s' は画像として認識できません", ref)
	}
	return img, nil
}

func isHTTPURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
