// Package model はドメインモデルを定義する。
package model

import "fmt"

// SyncError は同期処理の統一エラーフォーマットを表す。
// ログに出す原因カテゴリと運用上の対処方法を含む。
type SyncError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: credential, source, destination, pipeline
	Action   string // 運用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *SyncError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeCredentialInvalid      = "CREDENTIAL_INVALID"
	ErrCodeSourceFetchFailed      = "SOURCE_FETCH_FAILED"
	ErrCodeDestinationConflict    = "DESTINATION_CONFLICT"
	ErrCodeDestinationRateLimited = "DESTINATION_RATE_LIMITED"
	ErrCodeBookPipelineFailed     = "BOOK_PIPELINE_FAILED"
)

// NewCredentialInvalidError は認証情報が無効な場合のエラーを生成する。
// このエラーは起動時に同期全体を中断させる。
func NewCredentialInvalidError(reason string) *SyncError {
	return &SyncError{
		Code:     ErrCodeCredentialInvalid,
		Message:  fmt.Sprintf("WeReadの認証情報が無効です: %s", reason),
		Category: "credential",
		Action:   "ブラウザから新しいCookie文字列を取得して再実行してください。",
	}
}

// NewSourceFetchFailedError はソースAPIからの取得失敗エラーを生成する。
// フィールド単位の失敗でありパイプライン全体は継続する。
func NewSourceFetchFailedError(field, bookID string, cause error) *SyncError {
	return &SyncError{
		Code:     ErrCodeSourceFetchFailed,
		Message:  fmt.Sprintf("書籍 %s の %s の取得に失敗しました: %v", bookID, field, cause),
		Category: "source",
		Action:   "該当フィールドはデフォルト値のまま同期されます。次回実行で再取得されます。",
	}
}

// NewDestinationConflictError は同期先APIの競合エラーを生成する。
func NewDestinationConflictError(operation string) *SyncError {
	return &SyncError{
		Code:     ErrCodeDestinationConflict,
		Message:  fmt.Sprintf("同期先APIで競合が発生しました: %s", operation),
		Category: "destination",
		Action:   "リトライ上限まで再試行済みです。次回実行の削除・再作成で解消されます。",
	}
}

// NewDestinationRateLimitedError は同期先APIのレート制限エラーを生成する。
func NewDestinationRateLimitedError(operation string) *SyncError {
	return &SyncError{
		Code:     ErrCodeDestinationRateLimited,
		Message:  fmt.Sprintf("同期先APIのレート制限に達しました: %s", operation),
		Category: "destination",
		Action:   "同時実行数を下げるか、スロットル間隔を広げてください。",
	}
}

// NewBookPipelineError は1冊分のパイプライン失敗エラーを生成する。
// 他の書籍の処理には影響しない。
func NewBookPipelineError(bookID, title string, cause error) *SyncError {
	return &SyncError{
		Code:     ErrCodeBookPipelineFailed,
		Message:  fmt.Sprintf("書籍の同期に失敗しました (%s: %s): %v", bookID, title, cause),
		Category: "pipeline",
		Action:   "次回実行時に削除・再作成で再同期されます。",
	}
}
