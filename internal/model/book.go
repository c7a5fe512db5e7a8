// Package model はドメインモデルを定義する。
package model

import (
	"math"
	"strconv"
	"strings"
)

// markedStatusFinished はWeReadのreadInfoで「読了」を意味するステータスコード。
const markedStatusFinished = 4

// ReadingStatus は書籍の読書状態を表す。
// 値はそのまま同期先のStatusプロパティ（WeRead準拠の表記）になる。
type ReadingStatus string

const (
	// ReadingStatusNotStarted は未読状態（readInfo未取得を含む）。
	ReadingStatusNotStarted ReadingStatus = ""
	// ReadingStatusReading は読書中の状態。
	ReadingStatusReading ReadingStatus = "在读"
	// ReadingStatusFinished は読了状態。
	ReadingStatusFinished ReadingStatus = "读完"
)

// StatusFromMarked はWeReadのmarkedStatusコードを読書状態に変換する。
func StatusFromMarked(marked int) ReadingStatus {
	if marked == markedStatusFinished {
		return ReadingStatusFinished
	}
	return ReadingStatusReading
}

// DefaultCategory はカテゴリ未設定の書籍に与えるカテゴリ名。
const DefaultCategory = "未分类"

// UnsortedKey はソートキー未設定の書籍に与える値。
// 一覧の末尾に並ぶよう+Infとする。
func UnsortedKey() float64 { return math.Inf(1) }

// Book は1冊の書籍と取得済みアノテーション一式を表す。
// 同期1回ごとにビルダーが構築し、コンテンツ生成後に破棄される。
// ローカルには永続化しない。
type Book struct {
	ID       string
	Title    string
	Author   string
	Cover    string
	Sort     float64
	Category string

	ISBN   string
	Rating float64 // newRating/1000で0.0〜10.0に正規化した値

	Status       ReadingStatus
	ReadingTime  int // 累計読書時間（秒）
	FinishedDate *int64

	Bookmarks []Bookmark
	Summary   []Review
	Reviews   []Review
	Chapters  map[int]Chapter

	// BookmarkCount は常にlen(Bookmarks)と一致する。
	// Bookmarksを差し替える際はビルダーが再計算する。
	BookmarkCount int
}

// Bookmark は1件のハイライト/ブックマークを表す。
type Bookmark struct {
	// ChapterUID は所属章のUID。0は未設定を意味し、第1章（前付）として扱う。
	ChapterUID int
	// Range は"start-end"形式のテキスト範囲。空や不正な形式はstart=0として扱う。
	Range string
	// Text はハイライト本文（markText）。
	Text string
	// Style はハイライトの装飾コード（0=下線, 1=背景色, 2=波線）。nilは未指定。
	Style *int
	// ColorStyle は色コード（1〜5）。nilまたは範囲外はデフォルト色。
	ColorStyle *int
	// ReviewID が空でない場合、このブックマークはユーザーのメモを伴う。
	ReviewID string
	// Abstract は補助的な注釈テキスト。空でなければ入れ子の引用として描画される。
	Abstract string
}

// RangeStart はRangeの開始オフセットを返す。
// 空文字列や"start-end"形式でない値は0を返す（例外にしない）。
func (b Bookmark) RangeStart() int {
	start, _, _ := strings.Cut(b.Range, "-")
	n, err := strconv.Atoi(start)
	if err != nil {
		return 0
	}
	return n
}

// レビューの種別コード。
const (
	// ReviewTypeNote はインラインのメモ（type=1）。
	ReviewTypeNote = 1
	// ReviewTypeSummary は書籍全体の総評（type=4）。
	ReviewTypeSummary = 4
)

// Review は1件のレビュー/総評を表す。
// メモ種別（type=1）はcontentをTextへ寄せてブックマークと同じ形で描画できるようにする。
type Review struct {
	ReviewID   string
	Type       int
	Text       string
	ChapterUID int
	Style      *int
	ColorStyle *int
}

// Chapter は章を表す。UIDはWeReadのchapterUid。
type Chapter struct {
	UID   int
	Title string
	// Level は見出しレベル。描画時に1〜3へクランプされる。
	Level int
}
