// Package bangumi はBangumi API（api.bgm.tv）のクライアントを提供する。
// ユーザー情報と収蔵一覧の取得だけを扱い、リトライやページングは行わない。
package bangumi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hitoshi/bgmfeed/internal/metrics"
	"github.com/hitoshi/bgmfeed/internal/model"
)

const (
	// defaultBaseURL はBangumi APIのベースURL。
	defaultBaseURL = "https://api.bgm.tv"
	// defaultMaxResponseSize はレスポンスボディの読み取り上限（5MB）。
	defaultMaxResponseSize = 5 << 20
	tracerName             = "github.com/hitoshi/bgmfeed/internal/bangumi"
)

// BodySanitizer はエラーレスポンスのボディをログ用のテキストに変換する。
// security.TextSanitizer が実装する。
type BodySanitizer interface {
	PlainText(raw string) string
}

// ClientConfig はClientの設定。
type ClientConfig struct {
	BaseURL         string        // 空の場合は https://api.bgm.tv
	UserAgent       string        // 全リクエストに付与するUser-Agent
	MaxResponseSize int64         // 0以下の場合は5MB
	ErrorBody       BodySanitizer // nilの場合はボディをそのままログに出す
}

// Client はBangumi APIのクライアント。
// タイムアウトとキャンセルは注入されたhttp.Clientとcontextに委ねる。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	baseURL    string
	userAgent  string
	maxSize    int64
	errorBody  BodySanitizer
}

// NewClient はClientの新しいインスタンスを生成する。
// metricsCollectorがnilの場合はメトリクスを記録しない。
func NewClient(httpClient *http.Client, logger *slog.Logger, metricsCollector metrics.MetricsCollector, cfg ClientConfig) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metricsCollector == nil {
		metricsCollector = metrics.Nop{}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxSize := cfg.MaxResponseSize
	if maxSize <= 0 {
		maxSize = defaultMaxResponseSize
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    metricsCollector,
		baseURL:    baseURL,
		userAgent:  cfg.UserAgent,
		maxSize:    maxSize,
		errorBody:  cfg.ErrorBody,
	}
}

// userResponse は GET /v0/users/{username} のレスポンスのうち使用する部分。
type userResponse struct {
	Username string `json:"username"`
	Nickname string `json:"nickname"`
}

// collectionsResponse は GET /v0/users/{username}/collections のレスポンス。
// data の欠落を検出するためポインタで受ける。
type collectionsResponse struct {
	Data *[]collectionItem `json:"data"`
}

type collectionItem struct {
	SubjectID int    `json:"subject_id"`
	UpdatedAt string `json:"updated_at"`
	Subject   *struct {
		Name   string `json:"name"`
		NameCN string `json:"name_cn"`
	} `json:"subject"`
}

// GetUser はユーザー情報を取得する。
// nicknameが空の場合はレスポンス形式の不正として扱う。
func (c *Client) GetUser(ctx context.Context, userID string) (*model.UserProfile, error) {
	var resp userResponse
	if err := c.getJSON(ctx, model.UpstreamCallProfile, "/v0/users/"+url.PathEscape(userID), nil, &resp); err != nil {
		return nil, err
	}

	if resp.Nickname == "" {
		return nil, c.malformed(model.UpstreamCallProfile, errors.New("nickname is missing"))
	}

	c.metrics.RecordUpstreamRequest(model.UpstreamCallProfile, metrics.OutcomeSuccess)
	return &model.UserProfile{
		Username: resp.Username,
		Nickname: resp.Nickname,
	}, nil
}

// ListCollections はユーザーの収蔵一覧（1ページ分）を取得する。
// subject_type と type は常にクエリに含め、未指定時は空文字列を送る。
// subject が欠けた要素だけを形式不正とし、subject_id の値は検証しない。
// 返す順序は上流APIのレスポンス順のまま。
func (c *Client) ListCollections(ctx context.Context, query model.CollectionQuery) ([]model.CollectionRecord, error) {
	q := url.Values{}
	q.Set("subject_type", query.SubjectType)
	q.Set("type", query.CollectionType)

	var resp collectionsResponse
	path := "/v0/users/" + url.PathEscape(query.UserID) + "/collections"
	if err := c.getJSON(ctx, model.UpstreamCallCollections, path, q, &resp); err != nil {
		return nil, err
	}

	if resp.Data == nil {
		return nil, c.malformed(model.UpstreamCallCollections, errors.New("data is missing"))
	}

	records := make([]model.CollectionRecord, 0, len(*resp.Data))
	for i, item := range *resp.Data {
		if item.Subject == nil {
			return nil, c.malformed(model.UpstreamCallCollections,
				fmt.Errorf("data[%d]: subject is missing", i))
		}
		updatedAt, err := time.Parse(time.RFC3339, item.UpdatedAt)
		if err != nil {
			return nil, c.malformed(model.UpstreamCallCollections,
				fmt.Errorf("data[%d]: invalid updated_at %q: %v", i, item.UpdatedAt, err))
		}
		records = append(records, model.CollectionRecord{
			SubjectID: item.SubjectID,
			Name:      item.Subject.Name,
			NameCN:    item.Subject.NameCN,
			UpdatedAt: updatedAt,
		})
	}

	c.metrics.RecordUpstreamRequest(model.UpstreamCallCollections, metrics.OutcomeSuccess)
	return records, nil
}

// getJSON はGETリクエストを送り、2xxレスポンスのボディをoutにデコードする。
// 失敗はすべて *model.UpstreamError として返す。
func (c *Client) getJSON(ctx context.Context, call, path string, query url.Values, out any) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "bangumi."+call)
	defer span.End()
	span.SetAttributes(
		attribute.String("bangumi.call", call),
		attribute.String("http.request.method", http.MethodGet),
	)

	reqURL := c.baseURL + path
	if query != nil {
		reqURL += "?" + query.Encode()
	}

	fail := func(statusCode int, err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome := metrics.OutcomeFailure
		if errors.Is(err, model.ErrMalformedResponse) {
			outcome = metrics.OutcomeMalformed
		}
		c.metrics.RecordUpstreamRequest(call, outcome)
		return &model.UpstreamError{Call: call, StatusCode: statusCode, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fail(0, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordUpstreamLatency(call, time.Since(start))
	if err != nil {
		c.logger.Error("Bangumi APIの呼び出しに失敗しました",
			slog.String("call", call),
			slog.String("url", reqURL),
			slog.String("error", err.Error()),
		)
		return fail(0, err)
	}
	defer resp.Body.Close()

	c.metrics.RecordUpstreamStatus(call, resp.StatusCode)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// 上流のエラーボディはログ用に先頭だけ読む
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("Bangumi APIがエラーステータスを返しました",
			slog.String("call", call),
			slog.String("url", reqURL),
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(snippet)),
		)
		return fail(resp.StatusCode, fmt.Errorf("Bangumi APIがステータス %d を返しました", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("call", call),
			slog.String("error", err.Error()),
		)
		return fail(resp.StatusCode, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err))
	}
	if int64(len(body)) > c.maxSize {
		c.logger.Error("レスポンスボディが上限を超えました",
			slog.String("call", call),
			slog.Int64("max_size", c.maxSize),
		)
		return fail(resp.StatusCode, fmt.Errorf("レスポンスボディが上限 %d バイトを超えました", c.maxSize))
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("Bangumi APIのレスポンスのパースに失敗しました",
			slog.String("call", call),
			slog.String("error", err.Error()),
		)
		return fail(resp.StatusCode, fmt.Errorf("レスポンスJSONのパースに失敗しました: %v: %w", err, model.ErrMalformedResponse))
	}

	return nil
}

// logBody はエラーボディの先頭をログ出力用の文字列にする。
func (c *Client) logBody(snippet []byte) string {
	if c.errorBody == nil {
		return string(snippet)
	}
	return c.errorBody.PlainText(string(snippet))
}

// malformed はデコード後の検証で見つかった形式不正をUpstreamErrorに変換する。
func (c *Client) malformed(call string, cause error) error {
	c.logger.Error("Bangumi APIのレスポンス形式が不正です",
		slog.String("call", call),
		slog.String("error", cause.Error()),
	)
	c.metrics.RecordUpstreamRequest(call, metrics.OutcomeMalformed)
	return &model.UpstreamError{
		Call:       call,
		StatusCode: http.StatusOK,
		Err:        fmt.Errorf("%v: %w", cause, model.ErrMalformedResponse),
	}
}
