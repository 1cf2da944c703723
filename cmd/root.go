package cmd

import (
	"fmt"
	"os"

	"github.com/shouni/go-comic-kit/internal/config"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
)

// opts はフラグから受け取った実行時パラメータなのだ。
var opts config.GenerateOptions

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	// --- 生成結果の出力設定 ---
	rootCmd.PersistentFlags().StringVarP(&opts.OutputDir, "output-dir", "o", config.DefaultOutputDir, "完成したコミックの保存先（ローカル or gs://...）なのだ。")

	// --- AIモデル・挙動設定 ---
	rootCmd.PersistentFlags().StringVar(&opts.AIModel, "model", "", "テキスト生成に使う Gemini モデル名なのだ（未指定なら GEMINI_MODEL）。")
	rootCmd.PersistentFlags().StringVar(&opts.ImageModel, "image-model", "", "画像生成に使う Gemini モデル名なのだ（未指定なら IMAGE_GEMINI_MODEL）。")
	rootCmd.PersistentFlags().StringVar(&opts.SceneMode, "scene-mode", "", "背景の視点数なのだ: single または full（未指定なら SCENE_MODE）。")
	rootCmd.PersistentFlags().StringVar(&opts.Intervention, "intervention", config.DefaultInterventionMode, "整合性チェックで止まったときの扱いなのだ: prompt, accept, reject。")
	rootCmd.PersistentFlags().BoolVar(&opts.SkipPolish, "skip-polish", false, "セリフの推敲を省略するのだ。")
	rootCmd.PersistentFlags().DurationVar(&opts.HTTPTimeout, "http-timeout", config.DefaultHTTPTimeout, "Webリクエストのタイムアウトなのだ。")
}

// preRunAppE は、コマンド実行前に環境変数などの必須チェックを行うのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	// Gemini APIを利用するため、APIキーの存在チェックは欠かせないのだ！
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("エラー: 環境変数 GEMINI_API_KEY が設定されていません。Gemini APIの利用には必須なのだ")
	}
	switch opts.Intervention {
	case config.InterventionPrompt, config.InterventionAccept, config.InterventionReject:
	default:
		return fmt.Errorf("--intervention には prompt, accept, reject のいずれかを指定してほしいのだ: %q", opts.Intervention)
	}
	return nil
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	clibase.Execute(
		"comic-kit",
		addAppFlags,
		preRunAppE,
		generateCmd,
		sampleCmd,
		resumeCmd,
		serveCmd,
	)
}
