// Package notion は同期先であるNotion APIのクライアントと
// ページコンテンツのブロック表現を提供する。
package notion

import "encoding/json"

// Block はページに追加できるコンテンツブロックの閉じた直和型。
// バリアントは目次・見出し・引用・コールアウトの4種のみで、
// それぞれが自身のJSON表現を1箇所で定義する。
type Block interface {
	json.Marshaler
	isBlock()
}

// richText はNotionのrich_text配列を構築する。
func richText(content string) []any {
	return []any{
		map[string]any{
			"type": "text",
			"text": map[string]any{"content": content},
		},
	}
}

// TableOfContents は目次ブロック。
type TableOfContents struct{}

func (TableOfContents) isBlock() {}

// MarshalJSON は目次ブロックのJSON表現を返す。
func (TableOfContents) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":              "table_of_contents",
		"table_of_contents": map[string]any{"color": "default"},
	})
}

// Heading は見出しブロック。Levelは1〜3にクランプされる。
type Heading struct {
	Level int
	Text  string
}

func (Heading) isBlock() {}

// MarshalJSON は見出しブロックのJSON表現を返す。
func (h Heading) MarshalJSON() ([]byte, error) {
	level := h.Level
	if level < 1 {
		level = 1
	}
	if level > 3 {
		level = 3
	}
	headingType := [...]string{"heading_1", "heading_2", "heading_3"}[level-1]
	return json.Marshal(map[string]any{
		"type": headingType,
		headingType: map[string]any{
			"rich_text":     richText(h.Text),
			"color":         "default",
			"is_toggleable": false,
		},
	})
}

// Quote は引用ブロック。ハイライトの補助注釈（abstract）の描画に使う。
type Quote struct {
	Text string
}

func (Quote) isBlock() {}

// MarshalJSON は引用ブロックのJSON表現を返す。
func (q Quote) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": "quote",
		"quote": map[string]any{
			"rich_text": richText(q.Text),
			"color":     "default",
		},
	})
}

// Callout は1件のハイライトまたはメモを表すコールアウトブロック。
type Callout struct {
	Text       string
	Style      *int
	ColorStyle *int
	ReviewID   string
}

func (Callout) isBlock() {}

// styleEmojis はハイライト装飾コードに対応するアイコン。
var styleEmojis = map[int]string{
	0: "💡", // 下線
	1: "⭐", // 背景色
	2: "🌟", // 波線
}

// noteEmoji はメモ（reviewId付き）のアイコン。装飾コードより優先される。
const noteEmoji = "✍️"

// defaultEmoji は未知・未設定の装飾コードのアイコン。
const defaultEmoji = "🌟"

// colorStyles は色コード1〜5に対応するNotionの色名。
var colorStyles = map[int]string{
	1: "red",
	2: "purple",
	3: "blue",
	4: "green",
	5: "yellow",
}

// Emoji はコールアウトのアイコンを返す。
// reviewIdを持つレコードはメモとして扱い、装飾コードを上書きする。
func (c Callout) Emoji() string {
	if c.ReviewID != "" {
		return noteEmoji
	}
	if c.Style == nil {
		return defaultEmoji
	}
	if emoji, ok := styleEmojis[*c.Style]; ok {
		return emoji
	}
	return defaultEmoji
}

// Color はコールアウトの色名を返す。未設定・範囲外はdefault。
func (c Callout) Color() string {
	if c.ColorStyle == nil {
		return "default"
	}
	if color, ok := colorStyles[*c.ColorStyle]; ok {
		return color
	}
	return "default"
}

// MarshalJSON はコールアウトブロックのJSON表現を返す。
func (c Callout) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": "callout",
		"callout": map[string]any{
			"rich_text": richText(c.Text),
			"icon":      map[string]any{"emoji": c.Emoji()},
			"color":     c.Color(),
		},
	})
}
