package notion

import (
	"fmt"
	"math"
	"time"

	"github.com/hitoshi/shiori/internal/model"
)

// propertyTimezone はデータベースの日付プロパティで使うタイムゾーン。
// WeReadのタイムスタンプは中国標準時基準のため固定する。
var propertyTimezone = time.FixedZone("Asia/Shanghai", 8*60*60)

// timezoneName は日付プロパティのtime_zoneフィールドに入れる名前。
const timezoneName = "Asia/Shanghai"

// BookPage は1冊分のデータベースレコードの作成要求を表す。
type BookPage struct {
	Properties map[string]any
	Icon       map[string]any
}

// BuildBookPage は書籍からデータベースレコードのプロパティ一式を構築する。
// readerURLは書籍IDコーデックで構築済みのディープリンク。
// nowはUpdatedTimeプロパティに記録される同期時刻。
func BuildBookPage(book model.Book, readerURL string, now time.Time) BookPage {
	properties := map[string]any{
		"BookName": map[string]any{"title": richText(book.Title)},
		"BookId":   map[string]any{"rich_text": richText(book.ID)},
		"ISBN":     map[string]any{"rich_text": richText(book.ISBN)},
		"URL":      map[string]any{"url": readerURL},
		"Author":   map[string]any{"rich_text": richText(book.Author)},
		"Sort":     map[string]any{"number": sortNumber(book.Sort)},
		"Rating":   map[string]any{"number": book.Rating},
		"Cover": map[string]any{
			"files": []any{
				map[string]any{
					"type":     "external",
					"name":     "Cover",
					"external": map[string]any{"url": book.Cover},
				},
			},
		},
		"Category":    map[string]any{"select": map[string]any{"name": categoryName(book.Category)}},
		"ReadingTime": map[string]any{"rich_text": richText(FormatReadingTime(book.ReadingTime))},
		"UpdatedTime": dateProperty(now),
	}

	// 読書状態が未取得（未読）の場合はselectを設定しない
	if book.Status != model.ReadingStatusNotStarted {
		properties["Status"] = map[string]any{"select": map[string]any{"name": string(book.Status)}}
	}

	if book.FinishedDate != nil {
		properties["FinishedDate"] = dateProperty(time.Unix(*book.FinishedDate, 0))
	} else {
		properties["FinishedDate"] = map[string]any{"date": nil}
	}

	var icon map[string]any
	if book.Cover != "" {
		icon = map[string]any{
			"type":     "external",
			"external": map[string]any{"url": book.Cover},
		}
	}

	return BookPage{Properties: properties, Icon: icon}
}

// sortNumber はソートキーをNumberプロパティ値に変換する。
// +Inf（ソートキー未設定）はJSONで表現できないためnullにする。
func sortNumber(sort float64) any {
	if math.IsInf(sort, 0) || math.IsNaN(sort) {
		return nil
	}
	return sort
}

// categoryName は空カテゴリをデフォルトカテゴリに置き換える。
func categoryName(category string) string {
	if category == "" {
		return model.DefaultCategory
	}
	return category
}

// FormatReadingTime は累計読書時間（秒）を「N时M分」形式に整形する。
// 0以下は空文字列を返す。
func FormatReadingTime(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60

	var out string
	if hours > 0 {
		out += fmt.Sprintf("%d时", hours)
	}
	if minutes > 0 {
		out += fmt.Sprintf("%d分", minutes)
	}
	return out
}

// dateProperty は時刻をNotionの日付プロパティに変換する。
func dateProperty(t time.Time) map[string]any {
	return map[string]any{
		"date": map[string]any{
			"start":     t.In(propertyTimezone).Format("2006-01-02 15:04:05"),
			"time_zone": timezoneName,
		},
	}
}
