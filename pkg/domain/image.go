package domain

import "net/http"

// Image は生成または入力された画像のバイナリとMIMEタイプを保持します。
// ゼロ値はリストア時の「空のプレースホルダー」を表します。
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type,omitempty"`
}

// NewImage はバイト列から MIME タイプを判定して Image を生成します。
func NewImage(data []byte) Image {
	if len(data) == 0 {
		return Image{}
	}
	return Image{Data: data, MIMEType: http.DetectContentType(data)}
}

// IsEmpty はプレースホルダー（データなし）かどうかを返します。
func (i Image) IsEmpty() bool {
	return len(i.Data) == 0
}

// Clone はデータを複製した Image を返します。
func (i Image) Clone() Image {
	if i.Data == nil {
		return Image{MIMEType: i.MIMEType}
	}
	data := make([]byte, len(i.Data))
	copy(data, i.Data)
	return Image{Data: data, MIMEType: i.MIMEType}
}
