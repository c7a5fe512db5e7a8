// Package book はソースAPIから取得した生データを正規化済みの
// 書籍モデルに組み立てるビルダーを提供する。
package book

import (
	"context"
	"log/slog"
	"sort"

	"github.com/hitoshi/shiori/internal/model"
)

// Source は書籍の付加情報を提供するソースAPIのインターフェース。
type Source interface {
	BookInfo(ctx context.Context, bookID string) (model.BookInfo, error)
	Bookmarks(ctx context.Context, bookID string) ([]model.Bookmark, error)
	Chapters(ctx context.Context, bookID string) ([]model.Chapter, error)
	Reviews(ctx context.Context, bookID string) ([]model.Review, error)
	ReadInfo(ctx context.Context, bookID string) (model.ReadInfo, error)
}

// Builder は書籍一覧のエントリに5系統の独立したフェッチ結果を合流させ、
// 完成した書籍モデルを生成する。
// 各フェッチは互いに独立しており、一部が失敗しても該当フィールドを
// デフォルト値のまま残して続行する（章取得の失敗はブックマークのみの
// 描画を妨げない）。
type Builder struct {
	source Source
	logger *slog.Logger
}

// NewBuilder はBuilderの新しいインスタンスを生成する。
func NewBuilder(source Source, logger *slog.Logger) *Builder {
	return &Builder{source: source, logger: logger}
}

// Build はベースの書籍（一覧エントリ由来）を付加情報で補完して返す。
// 入力は変更せず、完成した値を新たに返す。
func (b *Builder) Build(ctx context.Context, base model.Book) model.Book {
	built := base

	b.mergeInfo(ctx, &built)
	b.mergeReviews(ctx, &built)
	b.mergeBookmarks(ctx, &built)
	b.mergeChapters(ctx, &built)
	b.mergeReadInfo(ctx, &built)

	return built
}

// mergeInfo はISBNとレーティングを設定する。
func (b *Builder) mergeInfo(ctx context.Context, book *model.Book) {
	info, err := b.source.BookInfo(ctx, book.ID)
	if err != nil {
		b.warnFetch("book_info", book.ID, err)
		return
	}
	book.ISBN = info.ISBN
	book.Rating = info.Rating()
}

// mergeReviews はレビューを種別で振り分ける。
// type=4は総評（Summary）、type=1はメモとしてReviewsに入る。
// メモはクライアント側でcontentがTextに寄せられており、
// ハイライトと同じ形で描画できる。
func (b *Builder) mergeReviews(ctx context.Context, book *model.Book) {
	reviews, err := b.source.Reviews(ctx, book.ID)
	if err != nil {
		b.warnFetch("reviews", book.ID, err)
		return
	}
	for _, review := range reviews {
		switch review.Type {
		case model.ReviewTypeSummary:
			book.Summary = append(book.Summary, review)
		case model.ReviewTypeNote:
			book.Reviews = append(book.Reviews, review)
		}
	}
}

// mergeBookmarks はブックマークを取得し、メモ（type=1のレビュー）を
// 合流させたうえで表示順に並べ替える。
// 並び順は (chapterUid昇順, 範囲開始オフセット昇順)。
// chapterUid未設定は1、範囲が空・不正は0として扱う（範囲を持たない
// メモは章の先頭に並ぶ）。
// この順序は最終的なページレイアウトを決めるため、
// 同値の場合は取得順を保つ安定ソートでなければならない。
// mergeReviewsの後に呼ばれることが前提。
// ブックマーク取得の失敗はメモの合流を妨げない。取得済みのメモだけで
// ストリームを組み立てて続行する。
func (b *Builder) mergeBookmarks(ctx context.Context, book *model.Book) {
	bookmarks, err := b.source.Bookmarks(ctx, book.ID)
	if err != nil {
		b.warnFetch("bookmarks", book.ID, err)
		bookmarks = nil
	}

	for _, review := range book.Reviews {
		bookmarks = append(bookmarks, noteBookmark(review))
	}

	sort.SliceStable(bookmarks, func(i, j int) bool {
		ci, cj := chapterKey(bookmarks[i]), chapterKey(bookmarks[j])
		if ci != cj {
			return ci < cj
		}
		return bookmarks[i].RangeStart() < bookmarks[j].RangeStart()
	})

	book.Bookmarks = bookmarks
	book.BookmarkCount = len(bookmarks)
}

// noteBookmark はメモをブックマークと同じ形に変換する。
// ReviewIDが引き継がれるため、描画時はメモ用のアイコンになる。
func noteBookmark(review model.Review) model.Bookmark {
	return model.Bookmark{
		ChapterUID: review.ChapterUID,
		Text:       review.Text,
		Style:      review.Style,
		ColorStyle: review.ColorStyle,
		ReviewID:   review.ReviewID,
	}
}

// chapterKey はソート用の章キーを返す。未設定（0）は第1章として扱う。
func chapterKey(bookmark model.Bookmark) int {
	if bookmark.ChapterUID == 0 {
		return 1
	}
	return bookmark.ChapterUID
}

// mergeChapters はchapterUid→章のマップを構築する。
// 有効な章が1件もない場合は警告のみ出して続行する。
func (b *Builder) mergeChapters(ctx context.Context, book *model.Book) {
	chapters, err := b.source.Chapters(ctx, book.ID)
	if err != nil {
		b.warnFetch("chapters", book.ID, err)
		return
	}

	chapterMap := make(map[int]model.Chapter, len(chapters))
	for _, chapter := range chapters {
		chapterMap[chapter.UID] = chapter
	}

	if len(chapterMap) == 0 {
		b.logger.Warn("有効な章情報がありません。ブックマークはフラットに描画されます",
			slog.String("book_id", book.ID),
		)
		return
	}
	book.Chapters = chapterMap
}

// mergeReadInfo は読書状態・累計読書時間・読了日を設定する。
func (b *Builder) mergeReadInfo(ctx context.Context, book *model.Book) {
	info, err := b.source.ReadInfo(ctx, book.ID)
	if err != nil {
		b.warnFetch("read_info", book.ID, err)
		return
	}
	book.Status = model.StatusFromMarked(info.MarkedStatus)
	book.ReadingTime = info.ReadingTime
	book.FinishedDate = info.FinishedDate
}

// warnFetch はフィールド単位のフェッチ失敗を警告ログに残す。
// 失敗は非致命でありパイプラインは続行する。
func (b *Builder) warnFetch(field, bookID string, err error) {
	syncErr := model.NewSourceFetchFailedError(field, bookID, err)
	b.logger.Warn("付加情報の取得に失敗しました。デフォルト値で続行します",
		slog.String("book_id", bookID),
		slog.String("field", field),
		slog.String("error", syncErr.Error()),
	)
}
