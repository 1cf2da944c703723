package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shouni/go-utils/urlpath"
)

const (
	archiveContentType = "application/zip"
	// DefaultRedisTTL は Redis に保存したチェックポイントの保持期間です。
	DefaultRedisTTL = 7 * 24 * time.Hour
	// DefaultRedisPrefix は Redis のキーに付与するプレフィックスです。
	DefaultRedisPrefix = "comic-kit:checkpoint:"
)

// ErrNotFound は指定キーのチェックポイントが存在しないことを表します。
var ErrNotFound = errors.New("チェックポイントが見つかりません")

// Store はアーカイブの保存先です。
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// ObjectReader はローカルや GCS のファイルを読み込む入力元です。
type ObjectReader interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// ObjectWriter はローカルや GCS にファイルを書き出す出力先です。
type ObjectWriter interface {
	Write(ctx context.Context, path string, r io.Reader, contentType string) error
}

// RemoteStore はローカルディレクトリまたは gs:// 配下にアーカイブを保存します。
type RemoteStore struct {
	reader  ObjectReader
	writer  ObjectWriter
	baseDir string
}

// NewRemoteStore は RemoteStore を生成します。
func NewRemoteStore(reader ObjectReader, writer ObjectWriter, baseDir string) (*RemoteStore, error) {
	if reader == nil || writer == nil {
		return nil, fmt.Errorf("reader と writer は必須です")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir は必須です")
	}
	return &RemoteStore{reader: reader, writer: writer, baseDir: baseDir}, nil
}

// Path はキーに対応する保存先のパスを返します。
func (s *RemoteStore) Path(key string) (string, error) {
	return urlpath.ResolveOutputPath(s.baseDir, key)
}

// Save はアーカイブを書き出します。
func (s *RemoteStore) Save(ctx context.Context, key string, data []byte) error {
	p, err := s.Path(key)
	if err != nil {
		return fmt.Errorf("保存先パスの解決に失敗しました: %w", err)
	}
	if err := s.writer.Write(ctx, p, bytes.NewReader(data), archiveContentType); err != nil {
		return fmt.Errorf("チェックポイントの書き込みに失敗しました (%s): %w", p, err)
	}
	slog.InfoContext(ctx, "チェックポイントを保存しました", "path", p, "bytes", len(data))
	return nil
}

// Load はアーカイブを読み込みます。
func (s *RemoteStore) Load(ctx context.Context, key string) ([]byte, error) {
	p, err := s.Path(key)
	if err != nil {
		return nil, fmt.Errorf("保存先パスの解決に失敗しました: %w", err)
	}
	rc, err := s.reader.Open(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("チェックポイントを開けませんでした (%s): %w", p, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("チェックポイントの読み込みに失敗しました (%s): %w", p, err)
	}
	return data, nil
}

// RedisStore はアーカイブを Redis に TTL 付きで保存します。
// サーバーの再起動をまたいで直近のエクスポートを取り出すために使います。
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore は RedisStore を生成します。ttl が0以下の場合は DefaultRedisTTL を使います。
func NewRedisStore(client redis.Cmdable, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client は必須です")
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{client: client, prefix: DefaultRedisPrefix, ttl: ttl}, nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

// Save はアーカイブを保存します。
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("チェックポイントの Redis への保存に失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "チェックポイントを Redis に保存しました", "key", s.key(key), "bytes", len(data), "ttl", s.ttl)
	return nil
}

// Load はアーカイブを読み込みます。キーがない場合は ErrNotFound を返します。
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("チェックポイントの Redis からの読み込みに失敗しました: %w", err)
	}
	return data, nil
}
