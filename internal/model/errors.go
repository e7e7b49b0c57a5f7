// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// クライアントに返す原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: upstream, validation, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUpstreamFailed    = "UPSTREAM_FAILED"
	ErrCodeUpstreamMalformed = "UPSTREAM_MALFORMED"
	ErrCodeInvalidFormat     = "INVALID_FORMAT"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// 上流API呼び出しの種類。
const (
	UpstreamCallProfile     = "profile"
	UpstreamCallCollections = "collections"
)

// ErrMalformedResponse は上流APIのレスポンスが想定した形をしていないことを示す。
var ErrMalformedResponse = errors.New("malformed upstream response")

// UpstreamError は上流APIの呼び出し失敗を表す。
// 通信エラー、非2xxステータス、レスポンス形式の不正のいずれも1つのリクエスト全体を失敗させる。
type UpstreamError struct {
	Call       string // profile または collections
	StatusCode int    // HTTPステータス。レスポンスを受け取れなかった場合は0
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s call failed (status %d): %v", e.Call, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s call failed: %v", e.Call, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Malformed はレスポンス形式の不正による失敗かどうかを返す。
func (e *UpstreamError) Malformed() bool {
	return errors.Is(e.Err, ErrMalformedResponse)
}

// APIError は利用者向けの統一エラーに変換する。
func (e *UpstreamError) APIError() *APIError {
	if e.Malformed() {
		return &APIError{
			Code:     ErrCodeUpstreamMalformed,
			Message:  fmt.Sprintf("Bangumi APIのレスポンスを解釈できませんでした（%s）。", e.Call),
			Category: "upstream",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  fmt.Sprintf("Bangumi APIの呼び出しに失敗しました（%s）。", e.Call),
		Category: "upstream",
		Action:   "ユーザーIDを確認し、しばらく待ってから再度お試しください。",
	}
}

// NewInvalidFormatError は未対応の出力形式が指定された場合のエラーを生成する。
func NewInvalidFormatError(format string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFormat,
		Message:  fmt.Sprintf("未対応のフィード形式です: %s", format),
		Category: "validation",
		Action:   "format には rss、atom、json のいずれかを指定してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-After ヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewNotFoundError は存在しないパスへのリクエストに対するエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "指定されたパスは存在しません。",
		Category: "validation",
		Action:   "/bangumi/tv/user/collections/{ユーザーID} の形式で指定してください。",
	}
}

// NewMethodNotAllowedError はGET以外のメソッドに対するエラーを生成する。
func NewMethodNotAllowedError() *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  "このメソッドは使用できません。",
		Category: "validation",
		Action:   "GETでリクエストしてください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
