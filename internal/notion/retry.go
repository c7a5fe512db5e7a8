package notion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// RetryPolicy はNotion API呼び出しの再試行ポリシー。
// 競合（409）とレート制限・一時障害（429/5xx）を有界の
// 指数バックオフ付きで再試行する。それ以外のエラーは即座に返す。
type RetryPolicy struct {
	// MaxAttempts は初回を含む最大試行回数。
	MaxAttempts int
	// InitialBackoff は初回リトライ前の待機時間。試行ごとに2倍になる。
	InitialBackoff time.Duration
}

// DefaultRetryPolicy はデフォルトの再試行ポリシーを返す。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// APIError はNotion APIのエラーレスポンスを表す。
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("notion api error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
}

// Retryable は再試行すべきエラーかを返す。
// 409は削除・再作成の競合、429はレート制限、5xxは一時障害。
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusConflict ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// Do はoperationを実行し、再試行可能なAPIエラーをポリシーに従って再試行する。
// コンテキストのキャンセルはバックオフ待機中にも反映される。
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, operation string, fn func() error) error {
	backoff := p.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var apiErr *APIError
		if !errors.As(lastErr, &apiErr) || !apiErr.Retryable() {
			return lastErr
		}

		if attempt == p.MaxAttempts {
			break
		}

		logger.Warn("Notion API呼び出しを再試行します",
			slog.String("operation", operation),
			slog.Int("attempt", attempt),
			slog.Int("http_status", apiErr.StatusCode),
			slog.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("%s: リトライ上限（%d回）に達しました: %w", operation, p.MaxAttempts, lastErr)
}
