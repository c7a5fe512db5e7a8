package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

const (
	// defaultBaseURL はNotion APIのベースURL。
	defaultBaseURL = "https://api.notion.com"
	// notionVersion はAPIバージョンヘッダの値。
	notionVersion = "2022-06-28"
	// maxBlocksPerAppend は1回のappend呼び出しで送れるブロック数の上限。
	// Notion APIの制限値。
	maxBlocksPerAppend = 100
	// defaultRequestsPerSecond はAPI呼び出しのセルフスロットル値。
	// Notionのレート制限（平均3リクエスト/秒）に合わせる。
	defaultRequestsPerSecond = 3
)

// Client はNotion APIのクライアント。
// 全ての呼び出しはレートリミッターを通り、再試行ポリシーの対象になる。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	token      string
	databaseID string
	limiter    *rate.Limiter
	retry      RetryPolicy
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// ClientConfig はClientの調整可能なパラメータ。
// ゼロ値のフィールドにはデフォルト値が適用される。
type ClientConfig struct {
	// RequestsPerSecond はAPI呼び出しのセルフスロットル値。
	RequestsPerSecond int
	// Retry は失敗時の再試行ポリシー。
	Retry RetryPolicy
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, token, databaseID string, cfg ClientConfig) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		token:      token,
		databaseID: databaseID,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		retry:      cfg.Retry,
		baseURL:    defaultBaseURL,
	}
}

// QueryByBookID はBookIdプロパティが一致するレコードのページIDを全て返す。
// 一致なしは空スライスを返す（エラーにしない）。
func (c *Client) QueryByBookID(ctx context.Context, bookID string) ([]string, error) {
	reqBody := map[string]any{
		"filter": map[string]any{
			"property":  "BookId",
			"rich_text": map[string]any{"equals": bookID},
		},
	}

	var resp queryResponse
	err := c.retry.Do(ctx, c.logger, "query", func() error {
		return c.do(ctx, http.MethodPost, "/v1/databases/"+c.databaseID+"/query", reqBody, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("既存レコードの検索に失敗しました: %w", err)
	}

	ids := make([]string, 0, len(resp.Results))
	for _, result := range resp.Results {
		ids = append(ids, result.ID)
	}
	return ids, nil
}

// DeletePage は指定ページを削除（アーカイブ）する。
func (c *Client) DeletePage(ctx context.Context, pageID string) error {
	err := c.retry.Do(ctx, c.logger, "delete", func() error {
		return c.do(ctx, http.MethodDelete, "/v1/blocks/"+pageID, nil, nil)
	})
	if err != nil {
		return fmt.Errorf("レコードの削除に失敗しました: %w", err)
	}
	return nil
}

// CreatePage はデータベースに新しいレコードを作成し、ページIDを返す。
func (c *Client) CreatePage(ctx context.Context, page BookPage) (string, error) {
	reqBody := map[string]any{
		"parent": map[string]any{
			"type":        "database_id",
			"database_id": c.databaseID,
		},
		"properties": page.Properties,
	}
	if page.Icon != nil {
		reqBody["icon"] = page.Icon
	}

	var resp struct {
		ID string `json:"id"`
	}
	err := c.retry.Do(ctx, c.logger, "create", func() error {
		return c.do(ctx, http.MethodPost, "/v1/pages", reqBody, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("レコードの作成に失敗しました: %w", err)
	}
	return resp.ID, nil
}

// AppendChildren はブロック列を親ブロックの子として追加する。
// APIの上限に合わせて100件単位のチャンクに分割し、同じ順序で送信する。
// 返り値は追加されたブロックIDを元の順序で連結したもの。
// 入れ子ブロックの位置解決がこの順序に依存するため、順序保存は必須。
// いずれかのチャンクが（再試行後も）失敗した場合はエラーを返す。
// 部分的に追加済みのブロックのクリーンアップは呼び出し側の判断に委ねる。
func (c *Client) AppendChildren(ctx context.Context, blockID string, blocks []Block) ([]string, error) {
	ids := make([]string, 0, len(blocks))

	for i := 0; i < len(blocks); i += maxBlocksPerAppend {
		end := i + maxBlocksPerAppend
		if end > len(blocks) {
			end = len(blocks)
		}
		chunk := blocks[i:end]

		reqBody := map[string]any{"children": chunk}

		var resp appendResponse
		err := c.retry.Do(ctx, c.logger, "append", func() error {
			return c.do(ctx, http.MethodPatch, "/v1/blocks/"+blockID+"/children", reqBody, &resp)
		})
		if err != nil {
			return nil, fmt.Errorf("ブロックの追加に失敗しました (チャンク %d-%d): %w", i, end-1, err)
		}

		for _, result := range resp.Results {
			ids = append(ids, result.ID)
		}
	}

	if len(ids) != len(blocks) {
		return nil, fmt.Errorf("追加されたブロック数が一致しません: got %d, want %d", len(ids), len(blocks))
	}
	return ids, nil
}

// MaxSort はデータベース内の最大Sort値（同期ウォーターマーク）を返す。
// レコードが存在しない場合は0を返す。
func (c *Client) MaxSort(ctx context.Context) (float64, error) {
	reqBody := map[string]any{
		"filter": map[string]any{
			"property": "Sort",
			"number":   map[string]any{"is_not_empty": true},
		},
		"sorts": []any{
			map[string]any{"property": "Sort", "direction": "descending"},
		},
		"page_size": 1,
	}

	var resp queryResponse
	err := c.retry.Do(ctx, c.logger, "max_sort", func() error {
		return c.do(ctx, http.MethodPost, "/v1/databases/"+c.databaseID+"/query", reqBody, &resp)
	})
	if err != nil {
		return 0, fmt.Errorf("ウォーターマークの取得に失敗しました: %w", err)
	}

	if len(resp.Results) == 0 {
		c.logger.Info("データベースに既存のSort値がありません。ウォーターマークは0になります")
		return 0, nil
	}
	if resp.Results[0].Properties.Sort.Number == nil {
		return 0, nil
	}
	return *resp.Results[0].Properties.Sort.Number, nil
}

// do は1回のAPI呼び出しを実行する。
// レートリミッターで送信間隔を空け、エラーレスポンスはAPIErrorに変換する。
func (c *Client) do(ctx context.Context, method, path string, reqBody any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", notionVersion)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Notion APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		// エラーボディは {code, message} 形式。パース失敗は無視する。
		_ = json.Unmarshal(body, &struct {
			Code    *string `json:"code"`
			Message *string `json:"message"`
		}{&apiErr.Code, &apiErr.Message})
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
		}
	}
	return nil
}

// --- レスポンスDTO ---

type queryResponse struct {
	Results []struct {
		ID         string `json:"id"`
		Properties struct {
			Sort struct {
				Number *float64 `json:"number"`
			} `json:"Sort"`
		} `json:"properties"`
	} `json:"results"`
}

type appendResponse struct {
	Results []struct {
		ID string `json:"id"`
	} `json:"results"`
}
