package domain

import (
	"encoding/json"
	"testing"
)

func TestPageNumber_JSON(t *testing.T) {
	t.Run("数値と見開き文字列の両方をパースできること", func(t *testing.T) {
		input := `[{"page_number": 0, "panel_number": 1}, {"page_number": "3-4", "panel_number": 1}, {"page_number": "2", "panel_number": 3}]`

		var panels []Panel
		if err := json.Unmarshal([]byte(input), &panels); err != nil {
			t.Fatalf("パース失敗: %v", err)
		}

		if panels[0].PageNumber != CoverPage {
			t.Errorf("表紙のページ番号が違います: %v", panels[0].PageNumber)
		}
		if panels[1].PageNumber != CenterfoldPage {
			t.Errorf("見開きのページ番号が違います: %v", panels[1].PageNumber)
		}
		if panels[2].PageNumber != 2 {
			t.Errorf("文字列の数値が解釈されていません: %v", panels[2].PageNumber)
		}
	})

	t.Run("見開きは3-4として出力されること", func(t *testing.T) {
		data, err := json.Marshal(PanelKey{Page: CenterfoldPage, Panel: 2})
		if err != nil {
			t.Fatalf("Marshal失敗: %v", err)
		}
		if string(data) != `{"page_number":"3-4","panel_number":2}` {
			t.Errorf("期待と異なる出力です: %s", data)
		}
		if CenterfoldPage.PathSegment() != "3_4" {
			t.Errorf("パス用表記が違います: %s", CenterfoldPage.PathSegment())
		}
	})

	t.Run("不正なページ番号はエラーになること", func(t *testing.T) {
		var n PageNumber
		if err := json.Unmarshal([]byte(`"cover"`), &n); err == nil {
			t.Error("エラーが返されませんでした")
		}
	})
}

func TestParsePageNumber(t *testing.T) {
	for input, want := range map[string]PageNumber{"0": CoverPage, " 2 ": 2, "3-4": CenterfoldPage, "3_4": CenterfoldPage} {
		got, err := ParsePageNumber(input)
		if err != nil {
			t.Fatalf("%q のパースに失敗しました: %v", input, err)
		}
		if got != want {
			t.Errorf("%q: got %v, want %v", input, got, want)
		}
	}
	if _, err := ParsePageNumber("cover"); err == nil {
		t.Error("エラーが返されませんでした")
	}
}

func TestPanel_IsLandscape(t *testing.T) {
	tests := []struct {
		name  string
		panel Panel
		want  bool
	}{
		{"スプラッシュは横長", Panel{PageNumber: 1, Layout: Layout{Description: "Splash page"}}, true},
		{"ワイドショットは横長", Panel{PageNumber: 1, Visuals: Visuals{Composition: Composition{ShotType: "Wide Shot"}}}, true},
		{"見開きは横長", Panel{PageNumber: CenterfoldPage}, true},
		{"クローズアップは縦長", Panel{PageNumber: 2, Visuals: Visuals{Composition: Composition{ShotType: "Close-Up"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.panel.IsLandscape(); got != tt.want {
				t.Errorf("期待値 %v, 実際の値 %v", tt.want, got)
			}
		})
	}
}

func TestPanel_CharacterNames(t *testing.T) {
	p := Panel{Visuals: Visuals{Characters: []PanelCharacter{{Name: "Rook"}, {Name: " rook "}, {Name: ""}, {Name: "Vesper"}}}}
	names := p.CharacterNames()
	if len(names) != 2 || names[0] != "Rook" || names[1] != "Vesper" {
		t.Errorf("重複排除された名前が期待と異なります: %v", names)
	}
}
