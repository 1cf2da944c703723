package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PageNumber はページ番号です。表紙と見開きは番兵値で表します。
type PageNumber int

const (
	// CoverPage は表紙のページ番号です。
	CoverPage PageNumber = 0
	// CenterfoldPage は見開き（"3-4"）のページ番号です。
	CenterfoldPage PageNumber = -1

	centerfoldLabel = "3-4"
)

// String は表示用のページ番号を返します。
func (n PageNumber) String() string {
	if n == CenterfoldPage {
		return centerfoldLabel
	}
	return strconv.Itoa(int(n))
}

// PathSegment はファイルパスに使うページ番号を返します（"3-4" は "3_4"）。
func (n PageNumber) PathSegment() string {
	return strings.ReplaceAll(n.String(), "-", "_")
}

// ParsePageNumber は "3-4" や "3_4"、数値の文字列をページ番号として解釈します。
func ParsePageNumber(s string) (PageNumber, error) {
	s = strings.TrimSpace(s)
	if s == centerfoldLabel || s == strings.ReplaceAll(centerfoldLabel, "-", "_") {
		return CenterfoldPage, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("ページ番号として解釈できません: %q", s)
	}
	return PageNumber(v), nil
}

// MarshalJSON は見開きを "3-4" として、それ以外を数値として出力します。
func (n PageNumber) MarshalJSON() ([]byte, error) {
	if n == CenterfoldPage {
		return json.Marshal(centerfoldLabel)
	}
	return []byte(strconv.Itoa(int(n))), nil
}

// UnmarshalJSON は数値と "3-4" のような文字列の両方を受け付けます。
func (n *PageNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := ParsePageNumber(s)
		if err != nil {
			return err
		}
		*n = v
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("ページ番号として解釈できません: %s", string(data))
	}
	*n = PageNumber(v)
	return nil
}

// PanelKey は台本内でパネルを一意に識別する (ページ, パネル) の複合キーです。
type PanelKey struct {
	Page  PageNumber `json:"page_number"`
	Panel int        `json:"panel_number"`
}

// String はログ用の表記を返します。
func (k PanelKey) String() string {
	return fmt.Sprintf("%s-%d", k.Page, k.Panel)
}

// IsCover は表紙パネルかどうかを返します。
func (k PanelKey) IsCover() bool {
	return k.Page == CoverPage
}

// Panel は台本の1コマです。
type Panel struct {
	PageNumber  PageNumber `json:"page_number"`
	PanelNumber int        `json:"panel_number"`
	Visuals     Visuals    `json:"visuals"`
	Textual     Textual    `json:"textual"`
	Auditory    Auditory   `json:"auditory"`
	Layout      Layout     `json:"layout"`
	Transition  Transition `json:"transition"`
}

// Key はパネルの複合キーを返します。
func (p Panel) Key() PanelKey {
	return PanelKey{Page: p.PageNumber, Panel: p.PanelNumber}
}

// CharacterNames はパネルに登場するキャラクター名を重複なく順序通りに返します。
func (p Panel) CharacterNames() []string {
	seen := make(map[string]struct{}, len(p.Visuals.Characters))
	names := make([]string, 0, len(p.Visuals.Characters))
	for _, c := range p.Visuals.Characters {
		key := NormalizeName(c.Name)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, c.Name)
	}
	return names
}

// IsLandscape は横長（16:9）で描くべきパネルかどうかを返します。
func (p Panel) IsLandscape() bool {
	if p.PageNumber == CenterfoldPage {
		return true
	}
	for _, s := range []string{p.Layout.Description, p.Visuals.Composition.ShotType} {
		s = strings.ToLower(s)
		if strings.Contains(s, "splash") || strings.Contains(s, "wide") {
			return true
		}
	}
	return false
}

// Visuals はパネルの視覚情報です。
type Visuals struct {
	Setting         Setting          `json:"setting"`
	Characters      []PanelCharacter `json:"characters"`
	Action          Action           `json:"action"`
	Composition     Composition      `json:"composition"`
	MoodAndLighting MoodAndLighting  `json:"mood_and_lighting"`
}

// Setting はロケーションと時間帯です。
type Setting struct {
	Location    string `json:"location"`
	TimeOfDay   string `json:"time_of_day"`
	Description string `json:"description"`
}

// PanelCharacter はパネル内でのキャラクターの配置と表情です。
type PanelCharacter struct {
	Name        string `json:"name"`
	Position    string `json:"position"`
	Expression  string `json:"expression"`
	Description string `json:"description"`
}

// Action はパネルで起きている出来事です。
type Action struct {
	Description string `json:"description"`
	KeyMoment   string `json:"key_moment"`
}

// Composition はカメラ構図です。
type Composition struct {
	ShotType string `json:"shot_type"`
	Angle    string `json:"angle"`
	Focus    string `json:"focus"`
}

// MoodAndLighting は雰囲気と照明です。
type MoodAndLighting struct {
	Atmosphere     string `json:"atmosphere"`
	LightingSource string `json:"lighting_source"`
	ColoringNotes  string `json:"coloring_notes"`
}

// Position はパネル内の正規化座標（0〜100）です。
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Textual はパネルに描き込む文字情報です。
type Textual struct {
	Dialogue    []DialogueLine `json:"dialogue"`
	Caption     *Caption       `json:"caption,omitempty"`
	InSceneText []InSceneText  `json:"in_scene_text,omitempty"`
}

// DialogueLine はセリフ1行です。
type DialogueLine struct {
	Character string   `json:"character"`
	Content   string   `json:"content"`
	Type      string   `json:"type"`
	Position  Position `json:"position"`
}

// Caption はナレーションキャプションです。
type Caption struct {
	Content     string   `json:"content"`
	Position    string   `json:"position,omitempty"`
	Coordinates Position `json:"coordinates"`
}

// InSceneText は看板などの背景内テキストです。
type InSceneText struct {
	Text string `json:"text"`
}

// Auditory はパネルの効果音です。
type Auditory struct {
	SoundEffects []SoundEffect `json:"sound_effects"`
}

// SoundEffect は効果音1つ分の描画情報です。
type SoundEffect struct {
	SFXText  string   `json:"sfx_text"`
	Style    string   `json:"style"`
	Position Position `json:"position"`
	Rotation float64  `json:"rotation"`
	Scale    float64  `json:"scale"`
}

// Layout はコマ割りの指示です。
type Layout struct {
	Description string `json:"description"`
	BorderStyle string `json:"border_style"`
}

// Transition は次のコマへのつなぎです。
type Transition struct {
	ToNextPanel string `json:"to_next_panel"`
}
