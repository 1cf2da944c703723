package pipeline

import (
	"fmt"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// デフォルト値の定義なのだ
const (
	// MaxAttempts はパネル画像生成の最大試行回数です。
	MaxAttempts = 3
	// DefaultPolishConcurrency はセリフ推敲の同時実行数です。
	DefaultPolishConcurrency = 4
	// DefaultSamplePageLimit はサンプルデータから使用する最大ページ番号です。
	DefaultSamplePageLimit domain.PageNumber = 3
)

// SceneMode は背景画像をいくつの視点で生成するかを表します。
type SceneMode string

const (
	// SceneModeSingle はワイドの1視点だけを生成します。
	SceneModeSingle SceneMode = "single"
	// SceneModeFull は wide/medium/low/high の4視点を生成します。
	SceneModeFull SceneMode = "full"
)

// ParseSceneMode は文字列から SceneMode を解釈します。
func ParseSceneMode(s string) (SceneMode, error) {
	switch SceneMode(strings.ToLower(strings.TrimSpace(s))) {
	case SceneModeSingle, "":
		return SceneModeSingle, nil
	case SceneModeFull:
		return SceneModeFull, nil
	}
	return "", fmt.Errorf("不明なシーンモードです: '%s' (single または full を指定してください)", s)
}

// Perspectives はモードに応じて生成する視点の一覧を返します。
func (m SceneMode) Perspectives() []domain.Perspective {
	if m == SceneModeFull {
		return domain.Perspectives
	}
	return []domain.Perspective{domain.PerspectiveWide}
}

// Config はパイプラインの挙動を制御する設定なのだ。
type Config struct {
	MaxAttempts       int
	PolishDialogue    bool
	PolishConcurrency int
	SceneMode         SceneMode
	SamplePageLimit   domain.PageNumber
}

// DefaultConfig は推奨されるデフォルト設定を返すヘルパー関数なのだ。
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       MaxAttempts,
		PolishDialogue:    true,
		PolishConcurrency: DefaultPolishConcurrency,
		SceneMode:         SceneModeSingle,
		SamplePageLimit:   DefaultSamplePageLimit,
	}
}

func (c Config) normalized() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = MaxAttempts
	}
	if c.PolishConcurrency < 1 {
		c.PolishConcurrency = DefaultPolishConcurrency
	}
	if c.SceneMode == "" {
		c.SceneMode = SceneModeSingle
	}
	if c.SamplePageLimit < 1 {
		c.SamplePageLimit = DefaultSamplePageLimit
	}
	return c
}
