package domain

// ImageRequest は画像生成1回分の入力です。
type ImageRequest struct {
	Prompt         string
	References     []Image
	AspectRatio    string
	CorrectionNote string // 2回目以降の試行で前回の失敗理由を伝える注記
}

// Verification はキャラクター一貫性チェックの結果です。
type Verification struct {
	Match  bool   `json:"match"`
	Reason string `json:"reason"`
}
