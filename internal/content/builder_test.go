package content

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/hitoshi/shiori/internal/model"
	"github.com/hitoshi/shiori/internal/notion"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// passthroughSanitizer は入力をそのまま返すSanitizerのモック。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(raw string) string { return raw }

// markingSanitizer は通過したテキストを記録するSanitizerのモック。
type markingSanitizer struct {
	seen []string
}

func (m *markingSanitizer) Sanitize(raw string) string {
	m.seen = append(m.seen, raw)
	return "clean:" + raw
}

func newTestBuilder() *Builder {
	var buf bytes.Buffer
	return NewBuilder(passthroughSanitizer{}, newTestLogger(&buf))
}

func TestBuilder_Build_WithChapters(t *testing.T) {
	book := model.Book{
		ID: "b1",
		Chapters: map[int]model.Chapter{
			1: {UID: 1, Title: "第一章", Level: 1},
			2: {UID: 2, Title: "第二章", Level: 2},
		},
		Bookmarks: []model.Bookmark{
			{ChapterUID: 1, Text: "h1"},
			{ChapterUID: 1, Text: "h2"},
			{ChapterUID: 2, Text: "h3"},
		},
	}

	children, nested := newTestBuilder().Build(book)

	// 目次見出し + 目次 + 章見出し + 2件 + 章見出し + 1件 = 7ブロック
	if len(children) != 7 {
		t.Fatalf("children数 = %d, want 7", len(children))
	}
	if len(nested) != 0 {
		t.Errorf("nested数 = %d, want 0", len(nested))
	}

	if h, ok := children[0].(notion.Heading); !ok || h.Text != "目录" {
		t.Errorf("children[0] = %+v, want 目录見出し", children[0])
	}
	if _, ok := children[1].(notion.TableOfContents); !ok {
		t.Errorf("children[1] = %+v, want 目次", children[1])
	}
	if h, ok := children[2].(notion.Heading); !ok || h.Text != "第一章" || h.Level != 1 {
		t.Errorf("children[2] = %+v, want 第一章見出し", children[2])
	}
	if c, ok := children[3].(notion.Callout); !ok || c.Text != "h1" {
		t.Errorf("children[3] = %+v, want h1", children[3])
	}
	if h, ok := children[5].(notion.Heading); !ok || h.Text != "第二章" || h.Level != 2 {
		t.Errorf("children[5] = %+v, want 第二章見出し", children[5])
	}
}

func TestBuilder_Build_GroupsByFirstAppearance(t *testing.T) {
	// グループの順序は一覧中でchapterUidが最初に現れた順
	book := model.Book{
		ID: "b1",
		Chapters: map[int]model.Chapter{
			1: {UID: 1, Title: "一", Level: 1},
			2: {UID: 2, Title: "二", Level: 1},
		},
		Bookmarks: []model.Bookmark{
			{ChapterUID: 2, Text: "c2 first"},
			{ChapterUID: 1, Text: "c1"},
			{ChapterUID: 2, Text: "c2 second"},
		},
	}

	children, _ := newTestBuilder().Build(book)

	// 目次(2) + 二見出し + c2 first + c2 second + 一見出し + c1
	if len(children) != 7 {
		t.Fatalf("children数 = %d, want 7", len(children))
	}
	if h := children[2].(notion.Heading); h.Text != "二" {
		t.Errorf("最初のグループは初出のchapterUid=2であるべき: got %+v", h)
	}
	if c := children[3].(notion.Callout); c.Text != "c2 first" {
		t.Errorf("children[3] = %+v", c)
	}
	if c := children[4].(notion.Callout); c.Text != "c2 second" {
		t.Errorf("グループ内は入力順を保つべき: got %+v", c)
	}
	if h := children[5].(notion.Heading); h.Text != "一" {
		t.Errorf("children[5] = %+v", h)
	}
}

func TestBuilder_Build_HeadingOnlyForKnownChapters(t *testing.T) {
	book := model.Book{
		ID: "b1",
		Chapters: map[int]model.Chapter{
			1: {UID: 1, Title: "一", Level: 1},
		},
		Bookmarks: []model.Bookmark{
			{ChapterUID: 1, Text: "known"},
			{ChapterUID: 99, Text: "unknown chapter"},
		},
	}

	children, _ := newTestBuilder().Build(book)

	// 目次(2) + 一見出し + known + unknown chapter（見出しなし）
	if len(children) != 5 {
		t.Fatalf("children数 = %d, want 5", len(children))
	}
	if c, ok := children[4].(notion.Callout); !ok || c.Text != "unknown chapter" {
		t.Errorf("章マップにないグループは見出しなしで描画されるべき: got %+v", children[4])
	}
}

func TestBuilder_Build_MissingChapterUIDGroupedAsFirstChapter(t *testing.T) {
	book := model.Book{
		ID: "b1",
		Chapters: map[int]model.Chapter{
			1: {UID: 1, Title: "前付", Level: 1},
		},
		Bookmarks: []model.Bookmark{
			{ChapterUID: 0, Text: "no uid"},
			{ChapterUID: 1, Text: "uid 1"},
		},
	}

	children, _ := newTestBuilder().Build(book)

	// uid 0とuid 1は同じグループ: 目次(2) + 見出し + 2件 = 5ブロック
	if len(children) != 5 {
		t.Fatalf("children数 = %d, want 5", len(children))
	}
	if h := children[2].(notion.Heading); h.Text != "前付" {
		t.Errorf("children[2] = %+v", h)
	}
}

func TestBuilder_Build_NestedQuotesForAbstracts(t *testing.T) {
	book := model.Book{
		ID: "b1",
		Chapters: map[int]model.Chapter{
			1: {UID: 1, Title: "一", Level: 1},
		},
		Bookmarks: []model.Bookmark{
			{ChapterUID: 1, Text: "plain"},
			{ChapterUID: 1, Text: "annotated", Abstract: "the abstract"},
			{ChapterUID: 1, Text: "also annotated", Abstract: "another"},
		},
	}

	children, nested := newTestBuilder().Build(book)

	// abstractを持つブックマーク数だけnestedエントリができる
	if len(nested) != 2 {
		t.Fatalf("nested数 = %d, want 2", len(nested))
	}

	// 位置4 = annotated のコールアウト、位置5 = also annotated
	quote, ok := nested[4].(notion.Quote)
	if !ok || quote.Text != "the abstract" {
		t.Errorf("nested[4] = %+v, want the abstract", nested[4])
	}
	quote, ok = nested[5].(notion.Quote)
	if !ok || quote.Text != "another" {
		t.Errorf("nested[5] = %+v, want another", nested[5])
	}

	// 全ての位置はchildrenの範囲内でコールアウトを指す
	for position := range nested {
		if position < 0 || position >= len(children) {
			t.Errorf("位置 %d がchildrenの範囲外", position)
		}
		if _, ok := children[position].(notion.Callout); !ok {
			t.Errorf("位置 %d はコールアウトを指すべき: got %+v", position, children[position])
		}
	}
}

func TestBuilder_Build_NoChaptersRendersFlat(t *testing.T) {
	book := model.Book{
		ID: "b1",
		Bookmarks: []model.Bookmark{
			{ChapterUID: 1, Text: "first"},
			{ChapterUID: 2, Text: "second"},
		},
	}

	children, nested := newTestBuilder().Build(book)

	// 目次も見出しもなくコールアウトのみ
	if len(children) != 2 {
		t.Fatalf("children数 = %d, want 2", len(children))
	}
	if len(nested) != 0 {
		t.Errorf("nested数 = %d, want 0", len(nested))
	}
	for i, block := range children {
		if _, ok := block.(notion.Callout); !ok {
			t.Errorf("children[%d] = %+v, want コールアウト", i, block)
		}
	}
}

func TestBuilder_Build_SummarySection(t *testing.T) {
	book := model.Book{
		ID: "b1",
		Bookmarks: []model.Bookmark{
			{ChapterUID: 1, Text: "highlight"},
		},
		Summary: []model.Review{
			{ReviewID: "r1", Type: model.ReviewTypeSummary, Text: "great book"},
		},
	}

	children, _ := newTestBuilder().Build(book)

	// highlight + 点评見出し + 総評コールアウト
	if len(children) != 3 {
		t.Fatalf("children数 = %d, want 3", len(children))
	}
	if h, ok := children[1].(notion.Heading); !ok || h.Text != "点评" || h.Level != 1 {
		t.Errorf("children[1] = %+v, want 点评見出し", children[1])
	}
	c, ok := children[2].(notion.Callout)
	if !ok || c.Text != "great book" {
		t.Errorf("children[2] = %+v, want 総評", children[2])
	}
	if c.ReviewID != "r1" {
		t.Errorf("総評コールアウトはReviewIDを引き継ぐべき: got %+v", c)
	}
}

func TestBuilder_Build_EmptyBookProducesNothing(t *testing.T) {
	children, nested := newTestBuilder().Build(model.Book{ID: "b1"})

	if len(children) != 0 {
		t.Errorf("children数 = %d, want 0", len(children))
	}
	if len(nested) != 0 {
		t.Errorf("nested数 = %d, want 0", len(nested))
	}
}

func TestBuilder_Build_SanitizesAllText(t *testing.T) {
	sanitizer := &markingSanitizer{}
	var buf bytes.Buffer
	b := NewBuilder(sanitizer, newTestLogger(&buf))

	book := model.Book{
		ID: "b1",
		Chapters: map[int]model.Chapter{
			1: {UID: 1, Title: "一", Level: 1},
		},
		Bookmarks: []model.Bookmark{
			{ChapterUID: 1, Text: "<b>bold</b>", Abstract: "<i>note</i>"},
		},
		Summary: []model.Review{
			{ReviewID: "r1", Type: model.ReviewTypeSummary, Text: "<script>x</script>"},
		},
	}

	children, nested := b.Build(book)

	// 本文・注釈・総評の全てがサニタイザーを通る
	if len(sanitizer.seen) != 3 {
		t.Fatalf("サニタイズ回数 = %d, want 3: %v", len(sanitizer.seen), sanitizer.seen)
	}
	if c := children[3].(notion.Callout); c.Text != "clean:<b>bold</b>" {
		t.Errorf("本文がサニタイズされていない: %+v", c)
	}
	if q := nested[3].(notion.Quote); q.Text != "clean:<i>note</i>" {
		t.Errorf("注釈がサニタイズされていない: %+v", q)
	}
}
