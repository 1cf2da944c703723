package prompts

import (
	"fmt"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

const (
	// AspectSquare はポートレート用のアスペクト比です。
	AspectSquare = "1:1"
	// AspectLandscape は背景・横長パネル用のアスペクト比です。
	AspectLandscape = "16:9"
	// AspectPortrait は表紙・縦長パネル用のアスペクト比です。
	AspectPortrait = "3:4"

	// SafetyReframingNote は安全フィルタでブロックされた後の再試行に付与する注記です。
	SafetyReframingNote = "Depict any conflict or injury in a metaphorical, non-graphic way. Avoid gore and explicit violence."

	// ComicSystemInstruction は画像生成時のシステムプロンプトです。
	ComicSystemInstruction = "You are a professional comic book illustrator. Keep every recurring character visually identical to the provided reference images."
)

// shotDescriptions はショット種別ごとのポートレート指示なのだ。
var shotDescriptions = map[domain.Shot]string{
	domain.ShotFull:         "full body shot, standing in a neutral heroic pose, entire costume visible from head to toe",
	domain.ShotCloseupHappy: "close-up portrait of the face, smiling warmly, head and shoulders only",
	domain.ShotAction:       "dynamic action pose, mid-movement, full body",
	domain.ShotProfile:      "side profile view, full body, facing right",
}

// perspectiveDescriptions は視点ごとの背景指示なのだ。
var perspectiveDescriptions = map[domain.Perspective]string{
	domain.PerspectiveWide:   "wide establishing shot showing the whole location",
	domain.PerspectiveMedium: "medium shot at eye level",
	domain.PerspectiveLow:    "low angle looking up, emphasizing scale",
	domain.PerspectiveHigh:   "high angle looking down over the location",
}

// ShotDescription はショット種別の説明を返します。
func ShotDescription(shot domain.Shot) string {
	if d, ok := shotDescriptions[shot]; ok {
		return d
	}
	return string(shot)
}

// PerspectiveDescription は視点の説明を返します。
func PerspectiveDescription(p domain.Perspective) string {
	if d, ok := perspectiveDescriptions[p]; ok {
		return d
	}
	return string(p)
}

// AspectInstruction はプロンプト末尾に付与するアスペクト比の指示を返します。
func AspectInstruction(aspectRatio string) string {
	return fmt.Sprintf("Strictly generate the image with an aspect ratio of %s.", aspectRatio)
}

// PanelAspectRatio はパネルのレイアウトからアスペクト比を決定します。
func PanelAspectRatio(p domain.Panel) string {
	if p.IsLandscape() {
		return AspectLandscape
	}
	return AspectPortrait
}
