// Package content は書籍のアノテーションからページコンテンツの
// ブロックツリーを構築する。
package content

import (
	"log/slog"

	"github.com/hitoshi/shiori/internal/model"
	"github.com/hitoshi/shiori/internal/notion"
)

// 見出しテキスト（WeRead準拠の表記）。
const (
	tocHeading     = "目录"
	summaryHeading = "点评"
)

// Sanitizer はブロック構築前のテキスト無害化のインターフェース。
type Sanitizer interface {
	Sanitize(raw string) string
}

// Builder はアノテーションをブロック列に変換する。
// 変換は同期1回ごとに新規に行われ、結果は使い捨てである。
type Builder struct {
	sanitizer Sanitizer
	logger    *slog.Logger
}

// NewBuilder はBuilderの新しいインスタンスを生成する。
func NewBuilder(sanitizer Sanitizer, logger *slog.Logger) *Builder {
	return &Builder{sanitizer: sanitizer, logger: logger}
}

// Build は書籍のアノテーション一式からブロック列を構築する。
// 返り値のchildrenはページ直下に並ぶブロック列（位置＝ページ内の順序）、
// nestedはchildren内の位置→入れ子ブロック（ハイライトの補助注釈）の疎なマップ。
//
// 章情報がある場合: 目次を先頭に置き、ブックマークをchapterUid単位で
// グルーピングする。グループの順序は「一覧中でそのchapterUidが最初に
// 現れた順」、グループ内の順序は一覧の順序をそのまま保つ。
// chapterUidが章マップに存在するグループのみ見出しを出す。
// 章情報がない場合: ブックマークを一覧順にフラットに並べる。
// 総評がある場合: 末尾に見出しと総評のコールアウトを追加する。
func (b *Builder) Build(book model.Book) ([]notion.Block, map[int]notion.Block) {
	var children []notion.Block
	nested := make(map[int]notion.Block)

	if len(book.Chapters) > 0 {
		children = append(children,
			notion.Heading{Level: 1, Text: tocHeading},
			notion.TableOfContents{},
		)

		for _, group := range groupByChapter(book.Bookmarks) {
			if chapter, ok := book.Chapters[group.chapterUID]; ok {
				children = append(children, notion.Heading{
					Level: chapter.Level,
					Text:  chapter.Title,
				})
			}
			for _, bookmark := range group.bookmarks {
				children = append(children, b.callout(bookmark))
				if bookmark.Abstract != "" {
					// 位置は直前にappendしたコールアウトのインデックス
					nested[len(children)-1] = notion.Quote{
						Text: b.sanitizer.Sanitize(bookmark.Abstract),
					}
				}
			}
		}
	} else {
		for _, bookmark := range book.Bookmarks {
			children = append(children, b.callout(bookmark))
		}
	}

	if len(book.Summary) > 0 {
		children = append(children, notion.Heading{Level: 1, Text: summaryHeading})
		for _, review := range book.Summary {
			children = append(children, notion.Callout{
				Text:       b.sanitizer.Sanitize(review.Text),
				Style:      review.Style,
				ColorStyle: review.ColorStyle,
				ReviewID:   review.ReviewID,
			})
		}
	}

	b.logger.Info("コンテンツツリーを構築しました",
		slog.String("book_id", book.ID),
		slog.Int("children", len(children)),
		slog.Int("nested", len(nested)),
	)

	return children, nested
}

// callout は1件のブックマークをコールアウトブロックに変換する。
func (b *Builder) callout(bookmark model.Bookmark) notion.Callout {
	return notion.Callout{
		Text:       b.sanitizer.Sanitize(bookmark.Text),
		Style:      bookmark.Style,
		ColorStyle: bookmark.ColorStyle,
		ReviewID:   bookmark.ReviewID,
	}
}

// chapterGroup は同じ章に属するブックマークのグループ。
type chapterGroup struct {
	chapterUID int
	bookmarks  []model.Bookmark
}

// groupByChapter はブックマークをchapterUid単位でグルーピングする。
// グループはchapterUidの初出順、グループ内は入力順を保つ。
// chapterUid未設定（0）は第1章（前付）として扱う。
func groupByChapter(bookmarks []model.Bookmark) []chapterGroup {
	var groups []chapterGroup
	index := make(map[int]int)

	for _, bookmark := range bookmarks {
		uid := bookmark.ChapterUID
		if uid == 0 {
			uid = 1
		}
		i, ok := index[uid]
		if !ok {
			i = len(groups)
			index[uid] = i
			groups = append(groups, chapterGroup{chapterUID: uid})
		}
		groups[i].bookmarks = append(groups[i].bookmarks, bookmark)
	}

	return groups
}
