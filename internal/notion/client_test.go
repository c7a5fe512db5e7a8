package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestNotionClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), "secret_token", "db-123",
		ClientConfig{
			// テストではスロットルとバックオフを実質無効化する
			RequestsPerSecond: 1000,
			Retry:             RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond},
		})
	c.baseURL = server.URL
	return c
}

func TestClient_QueryByBookID(t *testing.T) {
	c := newTestNotionClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/databases/db-123/query" {
			t.Errorf("パス = %s, want /v1/databases/db-123/query", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("メソッド = %s, want POST", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret_token" {
			t.Errorf("Authorization = %q", auth)
		}
		if version := r.Header.Get("Notion-Version"); version != notionVersion {
			t.Errorf("Notion-Version = %q, want %q", version, notionVersion)
		}

		var reqBody map[string]any
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗: %v", err)
		}
		filter := reqBody["filter"].(map[string]any)
		if filter["property"] != "BookId" {
			t.Errorf("filter.property = %v, want BookId", filter["property"])
		}
		equals := filter["rich_text"].(map[string]any)["equals"]
		if equals != "3300028078" {
			t.Errorf("filter.rich_text.equals = %v, want 3300028078", equals)
		}

		w.Write([]byte(`{"results":[{"id":"page-1"},{"id":"page-2"}]}`))
	})

	ids, err := c.QueryByBookID(context.Background(), "3300028078")
	if err != nil {
		t.Fatalf("QueryByBookID がエラーを返した: %v", err)
	}
	if len(ids) != 2 || ids[0] != "page-1" || ids[1] != "page-2" {
		t.Errorf("ids = %v, want [page-1 page-2]", ids)
	}
}

func TestClient_QueryByBookID_NoMatch(t *testing.T) {
	c := newTestNotionClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})

	ids, err := c.QueryByBookID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("一致なしはエラーにしない: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want 空", ids)
	}
}

func TestClient_DeletePage(t *testing.T) {
	c := newTestNotionClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("メソッド = %s, want DELETE", r.Method)
		}
		if r.URL.Path != "/v1/blocks/page-1" {
			t.Errorf("パス = %s, want /v1/blocks/page-1", r.URL.Path)
		}
		w.Write([]byte(`{"id":"page-1"}`))
	})

	if err := c.DeletePage(context.Background(), "page-1"); err != nil {
		t.Fatalf("DeletePage がエラーを返した: %v", err)
	}
}

func TestClient_CreatePage(t *testing.T) {
	c := newTestNotionClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/pages" {
			t.Errorf("パス = %s, want /v1/pages", r.URL.Path)
		}

		var reqBody map[string]any
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗: %v", err)
		}
		parent := reqBody["parent"].(map[string]any)
		if parent["database_id"] != "db-123" {
			t.Errorf("parent.database_id = %v, want db-123", parent["database_id"])
		}
		if _, ok := reqBody["icon"]; !ok {
			t.Error("アイコンがリクエストに含まれるべき")
		}

		w.Write([]byte(`{"id":"new-page"}`))
	})

	page := BookPage{
		Properties: map[string]any{"BookId": map[string]any{"rich_text": richText("b1")}},
		Icon:       map[string]any{"type": "external", "external": map[string]any{"url": "https://c/1.jpg"}},
	}
	id, err := c.CreatePage(context.Background(), page)
	if err != nil {
		t.Fatalf("CreatePage がエラーを返した: %v", err)
	}
	if id != "new-page" {
		t.Errorf("id = %q, want new-page", id)
	}
}

func TestClient_CreatePage_NoIcon(t *testing.T) {
	c := newTestNotionClient(t, func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]any
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗: %v", err)
		}
		if _, ok := reqBody["icon"]; ok {
			t.Error("アイコンなしのページ作成にiconキーを含めない")
		}
		w.Write([]byte(`{"id":"new-page"}`))
	})

	_, err := c.CreatePage(context.Background(), BookPage{Properties: map[string]any{}})
	if err != nil {
		t.Fatalf("CreatePage がエラーを返した: %v", err)
	}
}

func TestClient_AppendChildren_ChunksOf100(t *testing.T) {
	var chunkSizes []int
	nextID := 0

	c := newTestNotionClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("メソッド = %s, want PATCH", r.Method)
		}

		var reqBody struct {
			Children []json.RawMessage `json:"children"`
		}
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗: %v", err)
		}
		chunkSizes = append(chunkSizes, len(reqBody.Children))

		var results []map[string]string
		for range reqBody.Children {
			results = append(results, map[string]string{"id": fmt.Sprintf("block-%d", nextID)})
			nextID++
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	})

	// 250ブロックは100+100+50の3チャンクに分割される
	blocks := make([]Block, 250)
	for i := range blocks {
		blocks[i] = Callout{Text: fmt.Sprintf("block %d", i)}
	}

	ids, err := c.AppendChildren(context.Background(), "parent", blocks)
	if err != nil {
		t.Fatalf("AppendChildren がエラーを返した: %v", err)
	}

	if len(chunkSizes) != 3 {
		t.Fatalf("チャンク数 = %d, want 3", len(chunkSizes))
	}
	wantSizes := []int{100, 100, 50}
	for i, want := range wantSizes {
		if chunkSizes[i] != want {
			t.Errorf("チャンク%dのサイズ = %d, want %d", i, chunkSizes[i], want)
		}
	}

	// 返り値のIDは元の順序で連結される
	if len(ids) != 250 {
		t.Fatalf("ID数 = %d, want 250", len(ids))
	}
	for i, id := range ids {
		if want := fmt.Sprintf("block-%d", i); id != want {
			t.Fatalf("ids[%d] = %q, want %q", i, id, want)
		}
	}
}

func TestClient_AppendChildren_SingleChunk(t *testing.T) {
	calls := 0
	c := newTestNotionClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"results":[{"id":"b0"},{"id":"b1"}]}`))
	})

	ids, err := c.AppendChildren(context.Background(), "parent", []Block{
		Callout{Text: "a"}, Callout{Text: "b"},
	})
	if err != nil {
		t.Fatalf("AppendChildren がエラーを返した: %v", err)
	}
	if calls != 1 {
		t.Errorf("呼び出し回数 = %d, want 1", calls)
	}
	if len(ids) != 2 {
		t.Errorf("ID数 = %d, want 2", len(ids))
	}
}

func TestClient_AppendChildren_ChunkFailureReturnsError(t *testing.T) {
	calls := 0
	c := newTestNotionClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte(`{"results":[{"id":"b0"}]}`))
			return
		}
		// 2チャンク目は再試行込みで失敗させる
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"validation_error","message":"bad block"}`))
	})

	blocks := make([]Block, 101)
	for i := range blocks {
		blocks[i] = Callout{Text: "x"}
	}

	_, err := c.AppendChildren(context.Background(), "parent", blocks)
	if err == nil {
		t.Fatal("チャンク失敗時はエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "100-100") {
		t.Errorf("エラーメッセージに失敗チャンクの範囲が含まれるべき: %s", err.Error())
	}
}

func TestClient_AppendChildren_RetriesConflict(t *testing.T) {
	calls := 0
	c := newTestNotionClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"code":"conflict_error","message":"try again"}`))
			return
		}
		w.Write([]byte(`{"results":[{"id":"b0"}]}`))
	})

	ids, err := c.AppendChildren(context.Background(), "parent", []Block{Callout{Text: "x"}})
	if err != nil {
		t.Fatalf("409は再試行されるべき: %v", err)
	}
	if calls != 2 {
		t.Errorf("呼び出し回数 = %d, want 2", calls)
	}
	if len(ids) != 1 {
		t.Errorf("ID数 = %d, want 1", len(ids))
	}
}

func TestClient_MaxSort(t *testing.T) {
	c := newTestNotionClient(t, func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]any
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗: %v", err)
		}
		if reqBody["page_size"] != float64(1) {
			t.Errorf("page_size = %v, want 1", reqBody["page_size"])
		}
		sorts := reqBody["sorts"].([]any)
		first := sorts[0].(map[string]any)
		if first["direction"] != "descending" {
			t.Errorf("sorts[0].direction = %v, want descending", first["direction"])
		}

		w.Write([]byte(`{"results":[{"id":"p1","properties":{"Sort":{"number":99}}}]}`))
	})

	got, err := c.MaxSort(context.Background())
	if err != nil {
		t.Fatalf("MaxSort がエラーを返した: %v", err)
	}
	if got != 99 {
		t.Errorf("MaxSort = %v, want 99", got)
	}
}

func TestClient_MaxSort_EmptyDatabaseReturnsZero(t *testing.T) {
	c := newTestNotionClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})

	got, err := c.MaxSort(context.Background())
	if err != nil {
		t.Fatalf("空データベースはエラーにしない: %v", err)
	}
	if got != 0 {
		t.Errorf("MaxSort = %v, want 0", got)
	}
}

func TestClient_Do_RateLimitedErrorSurfaced(t *testing.T) {
	c := newTestNotionClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":"rate_limited","message":"slow down"}`))
	})

	_, err := c.QueryByBookID(context.Background(), "b1")
	if err == nil {
		t.Fatal("レート制限エラーが返されるべき")
	}
	if !strings.Contains(err.Error(), "rate_limited") {
		t.Errorf("エラーメッセージにAPIのcodeが含まれるべき: %s", err.Error())
	}
}
