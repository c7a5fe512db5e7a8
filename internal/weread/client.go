// Package weread はWeReadアノテーションAPIのクライアントを提供する。
// 書籍一覧・ハイライト・章情報・レビュー・読書進捗の取得と、
// Webリーダー用の書籍ID変換を含む。
package weread

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"

	"github.com/hitoshi/shiori/internal/model"
)

// defaultBaseURL はWeRead APIのベースURL。
const defaultBaseURL = "https://weread.qq.com"

// APIエンドポイントのパス。
// 章情報はbookmarklistレスポンスのchaptersキーから取得する。
const (
	pathNotebooks    = "/api/user/notebook"
	pathBookInfo     = "/api/book/info"
	pathBookmarkList = "/web/book/bookmarklist"
	pathReviewList   = "/web/review/list"
	pathReadProgress = "/web/book/getProgress"
)

// userAgent は全リクエストに付与するUser-Agent。
const userAgent = "Shiori/1.0 WeRead Sync"

// Client はWeRead APIのクライアント。
// 事前に取得済みのCookie文字列を認証情報として使用する。
// Cookieの取得・更新自体はこのパッケージの責務ではない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	cookie     string
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cookie string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		cookie:     cookie,
		baseURL:    defaultBaseURL,
	}
}

// Validate はCookieの有効性を確認する。
// ノートブック一覧エンドポイントへの呼び出しが認証エラーになった場合、
// 起動を中断すべきCredentialInvalidエラーを返す。
func (c *Client) Validate(ctx context.Context) error {
	var resp notebookListResponse
	if err := c.getJSON(ctx, pathNotebooks, nil, &resp); err != nil {
		return model.NewCredentialInvalidError(err.Error())
	}
	return nil
}

// ListNotebooks はユーザーがノートを付けた全書籍の一覧を返す。
// sortキーの昇順で返す。sort未設定の書籍は+Infとして末尾に並ぶ。
func (c *Client) ListNotebooks(ctx context.Context) ([]model.Book, error) {
	var resp notebookListResponse
	if err := c.getJSON(ctx, pathNotebooks, nil, &resp); err != nil {
		return nil, fmt.Errorf("ノートブック一覧の取得に失敗しました: %w", err)
	}

	books := make([]model.Book, 0, len(resp.Books))
	for _, entry := range resp.Books {
		if entry.Book.BookID == "" {
			c.logger.Warn("bookIdを持たないノートブックエントリをスキップします")
			continue
		}

		category := model.DefaultCategory
		if len(entry.Book.Categories) > 0 && entry.Book.Categories[0].Title != "" {
			category = entry.Book.Categories[0].Title
		}

		sortKey := model.UnsortedKey()
		if entry.Sort != nil {
			sortKey = *entry.Sort
		}

		books = append(books, model.Book{
			ID:       entry.Book.BookID,
			Title:    entry.Book.Title,
			Author:   entry.Book.Author,
			Cover:    entry.Book.Cover,
			Sort:     sortKey,
			Category: category,
		})
	}

	sort.SliceStable(books, func(i, j int) bool {
		return lessSort(books[i].Sort, books[j].Sort)
	})

	return books, nil
}

// lessSort は+Infを末尾に寄せるソートキー比較。
func lessSort(a, b float64) bool {
	if math.IsInf(a, 1) {
		return false
	}
	if math.IsInf(b, 1) {
		return true
	}
	return a < b
}

// BookInfo は書籍の基本情報（ISBN、レーティング）を取得する。
func (c *Client) BookInfo(ctx context.Context, bookID string) (model.BookInfo, error) {
	params := url.Values{"bookId": {bookID}}
	var resp bookInfoResponse
	if err := c.getJSON(ctx, pathBookInfo, params, &resp); err != nil {
		return model.BookInfo{}, fmt.Errorf("書籍情報の取得に失敗しました: %w", err)
	}
	return model.BookInfo{ISBN: resp.ISBN, NewRating: resp.NewRating}, nil
}

// Bookmarks は書籍のハイライト/ブックマーク一覧を取得する。
// レスポンス順（取得順）のまま返す。並べ替えはビルダーの責務。
func (c *Client) Bookmarks(ctx context.Context, bookID string) ([]model.Bookmark, error) {
	params := url.Values{"bookId": {bookID}}
	var resp bookmarkListResponse
	if err := c.getJSON(ctx, pathBookmarkList, params, &resp); err != nil {
		return nil, fmt.Errorf("ブックマーク一覧の取得に失敗しました: %w", err)
	}

	bookmarks := make([]model.Bookmark, 0, len(resp.Updated))
	for _, raw := range resp.Updated {
		bookmarks = append(bookmarks, model.Bookmark{
			ChapterUID: raw.ChapterUID,
			Range:      raw.Range,
			Text:       raw.MarkText,
			Style:      raw.Style,
			ColorStyle: raw.ColorStyle,
			ReviewID:   raw.ReviewID,
			Abstract:   raw.Abstract,
		})
	}
	return bookmarks, nil
}

// Chapters は書籍の章一覧を取得する。
// chapterUidを持たないレコードはスキップする。
func (c *Client) Chapters(ctx context.Context, bookID string) ([]model.Chapter, error) {
	params := url.Values{"bookId": {bookID}}
	var resp bookmarkListResponse
	if err := c.getJSON(ctx, pathBookmarkList, params, &resp); err != nil {
		return nil, fmt.Errorf("章情報の取得に失敗しました: %w", err)
	}

	chapters := make([]model.Chapter, 0, len(resp.Chapters))
	for _, raw := range resp.Chapters {
		if raw.ChapterUID == nil {
			continue
		}
		chapters = append(chapters, model.Chapter{
			UID:   *raw.ChapterUID,
			Title: raw.Title,
			Level: raw.Level,
		})
	}
	return chapters, nil
}

// Reviews は書籍のレビュー一覧を取得する。
// type=4は総評、type=1はインラインのメモ。メモはcontentがTextに入る。
func (c *Client) Reviews(ctx context.Context, bookID string) ([]model.Review, error) {
	params := url.Values{
		"bookId":   {bookID},
		"listType": {"11"},
		"mine":     {"1"},
		"syncKey":  {"0"},
	}
	var resp reviewListResponse
	if err := c.getJSON(ctx, pathReviewList, params, &resp); err != nil {
		return nil, fmt.Errorf("レビュー一覧の取得に失敗しました: %w", err)
	}

	reviews := make([]model.Review, 0, len(resp.Reviews))
	for _, entry := range resp.Reviews {
		reviews = append(reviews, model.Review{
			ReviewID:   entry.Review.ReviewID,
			Type:       entry.Review.Type,
			Text:       entry.Review.Content,
			ChapterUID: entry.Review.ChapterUID,
			Style:      entry.Style,
			ColorStyle: entry.ColorStyle,
		})
	}
	return reviews, nil
}

// ReadInfo は書籍の読書進捗（状態・累計時間・読了日）を取得する。
func (c *Client) ReadInfo(ctx context.Context, bookID string) (model.ReadInfo, error) {
	params := url.Values{
		"bookId":           {bookID},
		"readingDetail":    {"1"},
		"readingBookIndex": {"1"},
		"finishedDate":     {"1"},
	}
	var resp readInfoResponse
	if err := c.getJSON(ctx, pathReadProgress, params, &resp); err != nil {
		return model.ReadInfo{}, fmt.Errorf("読書進捗の取得に失敗しました: %w", err)
	}
	return model.ReadInfo{
		MarkedStatus: resp.MarkedStatus,
		ReadingTime:  resp.ReadingTime,
		FinishedDate: resp.FinishedDate,
	}, nil
}

// getJSON はGETリクエストを実行してレスポンスJSONをoutにデコードする。
// WeReadのerrCodeエンベロープを検査し、非ゼロのerrCodeはエラーとして返す。
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cookie", c.cookie)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("WeRead APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("認証エラー（ステータス %d）", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("WeRead APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	// errCodeエンベロープの検査（0は成功）
	var envelope struct {
		ErrCode *int   `json:"errCode"`
		ErrMsg  string `json:"errMsg"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil &&
		envelope.ErrCode != nil && *envelope.ErrCode != 0 {
		return fmt.Errorf("WeRead APIエラー: errCode=%d errMsg=%s", *envelope.ErrCode, envelope.ErrMsg)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

// --- レスポンスDTO ---

type notebookListResponse struct {
	Books []notebookEntry `json:"books"`
}

type notebookEntry struct {
	Sort *float64 `json:"sort"`
	Book struct {
		BookID     string `json:"bookId"`
		Title      string `json:"title"`
		Author     string `json:"author"`
		Cover      string `json:"cover"`
		Categories []struct {
			Title string `json:"title"`
		} `json:"categories"`
	} `json:"book"`
}

type bookInfoResponse struct {
	ISBN      string `json:"isbn"`
	NewRating int    `json:"newRating"`
}

type bookmarkListResponse struct {
	Updated []struct {
		ChapterUID int    `json:"chapterUid"`
		Range      string `json:"range"`
		MarkText   string `json:"markText"`
		Style      *int   `json:"style"`
		ColorStyle *int   `json:"colorStyle"`
		ReviewID   string `json:"reviewId"`
		Abstract   string `json:"abstract"`
	} `json:"updated"`
	Chapters []struct {
		ChapterUID *int   `json:"chapterUid"`
		Title      string `json:"title"`
		Level      int    `json:"level"`
	} `json:"chapters"`
}

type reviewListResponse struct {
	Reviews []struct {
		Style      *int `json:"style"`
		ColorStyle *int `json:"colorStyle"`
		Review     struct {
			ReviewID   string `json:"reviewId"`
			Type       int    `json:"type"`
			Content    string `json:"content"`
			ChapterUID int    `json:"chapterUid"`
		} `json:"review"`
	} `json:"reviews"`
}

type readInfoResponse struct {
	MarkedStatus int    `json:"markedStatus"`
	ReadingTime  int    `json:"readingTime"`
	FinishedDate *int64 `json:"finishedDate"`
}
