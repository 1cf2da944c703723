package domain

import "testing"

func TestLocationKey(t *testing.T) {
	if LocationKey("  Rooftop   Garden ") != LocationKey("rooftop garden") {
		t.Errorf("大文字小文字と空白の差異が吸収されていません: %q", LocationKey("  Rooftop   Garden "))
	}
}

func TestSelectPerspective(t *testing.T) {
	img := Image{Data: []byte{1}}
	full := ScenePerspectives{
		PerspectiveWide:   img,
		PerspectiveMedium: img,
		PerspectiveLow:    img,
		PerspectiveHigh:   img,
	}

	tests := []struct {
		name      string
		available ScenePerspectives
		comp      Composition
		want      Perspective
	}{
		{"ローアングル", full, Composition{Angle: "Low Angle"}, PerspectiveLow},
		{"ハイアングル", full, Composition{Angle: "High angle", ShotType: "Wide Shot"}, PerspectiveHigh},
		{"ワイドショット", full, Composition{ShotType: "Wide Shot"}, PerspectiveWide},
		{"スプラッシュ", full, Composition{ShotType: "Splash Page"}, PerspectiveWide},
		{"キーワードなしはミディアム", full, Composition{ShotType: "Close-Up"}, PerspectiveMedium},
		{"1視点のみならそれを使う", ScenePerspectives{PerspectiveWide: img}, Composition{Angle: "Low"}, PerspectiveWide},
		{
			"選んだ視点がなければ最初の視点",
			ScenePerspectives{PerspectiveHigh: img, PerspectiveLow: img},
			Composition{ShotType: "Medium Shot"},
			PerspectiveLow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectPerspective(tt.available, tt.comp)
			if !ok {
				t.Fatal("視点が選ばれませんでした")
			}
			if got != tt.want {
				t.Errorf("期待値 %s, 実際の値 %s", tt.want, got)
			}
		})
	}

	t.Run("視点がない場合はfalse", func(t *testing.T) {
		if _, ok := SelectPerspective(ScenePerspectives{}, Composition{}); ok {
			t.Error("空のセットで視点が選ばれました")
		}
	})
}

func TestStoryOutline_Locations(t *testing.T) {
	o := StoryOutline{Panels: []Panel{
		{PageNumber: 1, Visuals: Visuals{Setting: Setting{Location: "Harbor Docks"}}},
		{PageNumber: 2, Visuals: Visuals{Setting: Setting{Location: " harbor  docks"}}},
		{PageNumber: 3, Visuals: Visuals{Setting: Setting{Location: "Clock Tower"}}},
	}}
	keys, settings := o.Locations()
	if len(keys) != 2 || keys[0] != "harbor docks" || keys[1] != "clock tower" {
		t.Errorf("ロケーションの重複排除が期待と異なります: %v", keys)
	}
	if settings["harbor docks"].Location != "Harbor Docks" {
		t.Errorf("初出のSettingが保持されていません: %+v", settings["harbor docks"])
	}
}
