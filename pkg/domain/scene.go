package domain

import "strings"

// Perspective は背景画像のカメラ視点です。
type Perspective string

const (
	PerspectiveWide   Perspective = "wide"
	PerspectiveMedium Perspective = "medium"
	PerspectiveLow    Perspective = "low"
	PerspectiveHigh   Perspective = "high"
)

// Perspectives は視点の固定順序です。フォールバック時はこの順で最初に存在するものを選びます。
var Perspectives = []Perspective{PerspectiveWide, PerspectiveMedium, PerspectiveLow, PerspectiveHigh}

// ScenePerspectives は1ロケーション分の視点別背景画像です。
type ScenePerspectives map[Perspective]Image

// SceneRegistry は正規化ロケーションキーから視点別背景画像へのマップです。
type SceneRegistry map[string]ScenePerspectives

// LocationKey はロケーション名を大文字小文字と空白の差異を無視したキーに正規化します。
func LocationKey(location string) string {
	return strings.ToLower(strings.Join(strings.Fields(location), " "))
}

// Has は指定ロケーションの指定視点が登録済みかを返します。
func (r SceneRegistry) Has(locationKey string, p Perspective) bool {
	set, ok := r[locationKey]
	if !ok {
		return false
	}
	_, ok = set[p]
	return ok
}

// Put は背景画像を登録します。
func (r SceneRegistry) Put(locationKey string, p Perspective, img Image) {
	set, ok := r[locationKey]
	if !ok {
		set = make(ScenePerspectives)
		r[locationKey] = set
	}
	set[p] = img
}

// Available は登録済みの視点を Perspectives の順序で返します。
func (s ScenePerspectives) Available() []Perspective {
	out := make([]Perspective, 0, len(s))
	for _, p := range Perspectives {
		if _, ok := s[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// SelectPerspective はパネルの構図から背景に使う視点を決定的に選びます。
// 視点が1つしかなければそれを使い、複数あればアングルとショット種別のキーワードで選びます。
// 選んだ視点が存在しない場合は最初に存在する視点に戻ります。
func SelectPerspective(available ScenePerspectives, comp Composition) (Perspective, bool) {
	present := available.Available()
	if len(present) == 0 {
		return "", false
	}
	if len(present) == 1 {
		return present[0], true
	}

	angle := strings.ToLower(comp.Angle)
	shot := strings.ToLower(comp.ShotType)

	chosen := PerspectiveMedium
	switch {
	case strings.Contains(angle, "low"):
		chosen = PerspectiveLow
	case strings.Contains(angle, "high"):
		chosen = PerspectiveHigh
	case strings.Contains(shot, "wide"), strings.Contains(shot, "splash"):
		chosen = PerspectiveWide
	}

	if _, ok := available[chosen]; ok {
		return chosen, true
	}
	return present[0], true
}
