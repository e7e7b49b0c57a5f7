package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は上流APIのエラーボディをログ用の1行テキストに変換する。
// 上流やその手前のプロキシは5xx時にHTMLのエラーページを返すことがあるため、
// タグを除去して本文だけを残す。フィードに出力する文字列には使わない。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグをすべて除去するbluemondayのStrictPolicyでTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// PlainText はタグを除去して実体参照を展開し、連続する空白を1つにまとめる。
func (s *TextSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(stripped), " ")
}
