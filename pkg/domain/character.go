package domain

import (
	"fmt"
	"strings"
)

// CastSize は1回の生成で作成するキャスト人数です（主人公 + 味方2人 + 敵役 + 手下1人）。
const CastSize = 5

// RoleProtagonist は主人公を表すロール名です。
const RoleProtagonist = "Protagonist"

// Shot はキャラクターポートレートの撮影種別を表すキーです。
type Shot string

const (
	ShotFull         Shot = "full"
	ShotCloseupHappy Shot = "closeup_happy"
	ShotAction       Shot = "action"
	ShotProfile      Shot = "profile"
)

// ShotKeys はロスターの各キャラクターが必ず持つショットの固定セットです。
// 生成順や参照画像の並び順もこの順序に従います。
var ShotKeys = []Shot{ShotFull, ShotCloseupHappy, ShotAction, ShotProfile}

// CharacterProfile はシード画像から抽出されたキャラクターの視覚的な指紋です。
// 一度生成された後は変更されず、以降のすべての生成工程で参照されます。
type CharacterProfile struct {
	PhysicalTraits      string `json:"physical_traits"`
	ClothingStyle       string `json:"clothing_style"`
	ColorPalette        string `json:"color_palette"`
	DistinctiveFeatures string `json:"distinctive_features"`
	ConsistencyTags     string `json:"consistency_tags"` // 後続のすべてのプロンプトに注入するタグ
	ArtStyle            string `json:"art_style"`
}

// Description はプロフィールを1行の説明文にまとめます。
func (p CharacterProfile) Description() string {
	parts := make([]string, 0, 4)
	for _, s := range []string{p.PhysicalTraits, p.ClothingStyle, p.ColorPalette, p.DistinctiveFeatures} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "; ")
}

// CharacterConcept は画像を持たないキャスト1人分の設定です。
type CharacterConcept struct {
	Role            string `json:"role"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	ConsistencyTags string `json:"consistency_tags,omitempty"`
}

// String はキャラクターの情報を文字列で返すのだ。
func (c CharacterConcept) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.Role)
}

// GeneratedCharacter はショットごとのポートレートを持つロスターのエントリです。
type GeneratedCharacter struct {
	CharacterConcept
	Images map[Shot]Image `json:"-"`
}

// Concept は画像を取り除いたコンセプトを返します。
func (g GeneratedCharacter) Concept() CharacterConcept {
	return g.CharacterConcept
}

// Reference は検証や介入で比較に使う正準の参照画像（全身ショット）を返します。
func (g GeneratedCharacter) Reference() Image {
	return g.Images[ShotFull]
}

// ReferenceImages は ShotKeys の順に空でない画像を返します。
func (g GeneratedCharacter) ReferenceImages() []Image {
	refs := make([]Image, 0, len(ShotKeys))
	for _, shot := range ShotKeys {
		if img, ok := g.Images[shot]; ok && !img.IsEmpty() {
			refs = append(refs, img)
		}
	}
	return refs
}

// Roster は肖像画の生成が完了したキャラクターの一覧です。
type Roster []GeneratedCharacter

// Find は名前（大文字小文字・前後の空白を無視）でキャラクターを探します。
func (r Roster) Find(name string) (GeneratedCharacter, bool) {
	key := NormalizeName(name)
	if key == "" {
		return GeneratedCharacter{}, false
	}
	for _, c := range r {
		if NormalizeName(c.Name) == key {
			return c, true
		}
	}
	return GeneratedCharacter{}, false
}

// Has は指定された名前のキャラクターが既にロスターにいるかを返します。
func (r Roster) Has(name string) bool {
	_, ok := r.Find(name)
	return ok
}

// Protagonist はロールが Protagonist のキャラクター、いなければ先頭のキャラクターを返します。
func (r Roster) Protagonist() (GeneratedCharacter, bool) {
	if len(r) == 0 {
		return GeneratedCharacter{}, false
	}
	for _, c := range r {
		if strings.EqualFold(strings.TrimSpace(c.Role), RoleProtagonist) {
			return c, true
		}
	}
	return r[0], true
}

// Concepts は画像を取り除いてコンセプトの一覧に戻します。
func (r Roster) Concepts() []CharacterConcept {
	concepts := make([]CharacterConcept, 0, len(r))
	for _, c := range r {
		concepts = append(concepts, c.Concept())
	}
	return concepts
}

// CastDescription はスクリプト生成に渡すキャスト説明文を構築します。
func CastDescription(concepts []CharacterConcept) string {
	var sb strings.Builder
	for _, c := range concepts {
		sb.WriteString(fmt.Sprintf("%s (%s): %s", c.Name, c.Role, c.Description))
		if c.ConsistencyTags != "" {
			sb.WriteString(fmt.Sprintf(" [%s]", c.ConsistencyTags))
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// NormalizeName は名前の比較用キーを生成します。
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
