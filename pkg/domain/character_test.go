package domain

import "testing"

func TestRoster_Protagonist(t *testing.T) {
	t.Run("ロールがProtagonistのキャラクターを返すこと", func(t *testing.T) {
		r := Roster{
			{CharacterConcept: CharacterConcept{Name: "Vesper", Role: "Antagonist"}},
			{CharacterConcept: CharacterConcept{Name: "Rook", Role: "protagonist"}},
		}
		c, ok := r.Protagonist()
		if !ok || c.Name != "Rook" {
			t.Errorf("主人公の特定に失敗しました: %+v", c)
		}
	})

	t.Run("主人公がいない場合は先頭を返すこと", func(t *testing.T) {
		r := Roster{{CharacterConcept: CharacterConcept{Name: "Ash", Role: "Mentor"}}}
		c, ok := r.Protagonist()
		if !ok || c.Name != "Ash" {
			t.Errorf("先頭のキャラクターが返されませんでした: %+v", c)
		}
	})

	t.Run("空のロスターではfalse", func(t *testing.T) {
		if _, ok := (Roster{}).Protagonist(); ok {
			t.Error("空のロスターで主人公が見つかりました")
		}
	})
}

func TestRoster_FindAndConcepts(t *testing.T) {
	r := Roster{
		{
			CharacterConcept: CharacterConcept{Name: "Rook", Role: "Protagonist", Description: "brace"},
			Images:           map[Shot]Image{ShotFull: {Data: []byte{1}}},
		},
	}
	if !r.Has("  rook") {
		t.Error("正規化された名前で見つかりませんでした")
	}
	concepts := r.Concepts()
	if len(concepts) != 1 || concepts[0].Name != "Rook" || concepts[0].Description != "brace" {
		t.Errorf("画像を除いたコンセプトが期待と異なります: %+v", concepts)
	}
}

func TestGeneratedCharacter_ReferenceImages(t *testing.T) {
	g := GeneratedCharacter{Images: map[Shot]Image{
		ShotProfile: {Data: []byte{4}},
		ShotFull:    {Data: []byte{1}},
		ShotAction:  {},
	}}
	refs := g.ReferenceImages()
	if len(refs) != 2 || refs[0].Data[0] != 1 || refs[1].Data[0] != 4 {
		t.Errorf("ShotKeys順で空でない画像が返されていません: %+v", refs)
	}
}

func TestCastDescription(t *testing.T) {
	got := CastDescription([]CharacterConcept{
		{Name: "Rook", Role: "Protagonist", Description: "weary brawler", ConsistencyTags: "left arm brace"},
		{Name: "Vesper", Role: "Antagonist", Description: "silver mask"},
	})
	want := "Rook (Protagonist): weary brawler [left arm brace]\nVesper (Antagonist): silver mask"
	if got != want {
		t.Errorf("期待値 %q, 実際の値 %q", want, got)
	}
}
