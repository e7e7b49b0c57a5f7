package middleware

import "net/http"

// feedContentSecurityPolicy はフィードとJSONエラーのレスポンスに付けるCSP。
// どのレスポンスもHTMLとして描画される想定がないため、サブリソースの読み込みと埋め込みをすべて禁止する。
const feedContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'; sandbox"

// NewSecurityHeadersMiddleware は公開の読み取り専用フィードAPI向けのセキュリティヘッダーを付与するミドルウェアを返す。
//
// フィードはブラウザ上のリーダーから別オリジンで読み込まれるため、
// Cross-Origin-Resource-Policy は cross-origin にする。
// 利用者ごとのクッキーや認証情報は扱わないので、リファラーは送らせない。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Content-Security-Policy", feedContentSecurityPolicy)
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")
			h.Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}
