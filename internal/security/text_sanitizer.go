// Package security は外部由来データの検証・無害化機能を提供する。
//
// TextSanitizerService はソースAPIから取得したハイライト本文や
// レビュー本文を平文に無害化する。WeReadの本文は通常プレーンテキストだが、
// 外部入力である以上マークアップの混入を前提にできないため、
// bluemondayの厳格ポリシーで全タグを除去してからブロックを構築する。
package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキスト無害化機能のインターフェースを定義する。
// コンテンツツリーの構築前に使用される。
type TextSanitizerService interface {
	// Sanitize は入力からHTMLタグを全て除去した平文を返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフに無害化処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは許可タグを一切持たないため、全てのタグと属性が除去される。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からHTMLタグを除去した平文を返す。
// bluemondayはテキストをHTMLエンティティにエスケープするため、
// 平文として扱えるようアンエスケープして返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return html.UnescapeString(s.policy.Sanitize(raw))
}
