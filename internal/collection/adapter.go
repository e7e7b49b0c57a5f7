// Package collection はBangumiユーザーの収蔵一覧をフィードに変換するアダプタを提供する。
//
// 1リクエストにつきユーザー情報と収蔵一覧の2回だけ上流APIを呼び出し、
// 結果を正規化済みの model.FeedDocument に組み立てる。
// キャッシュ、リトライ、ページング、重複排除は行わない。
package collection

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/bgmfeed/internal/metrics"
	"github.com/hitoshi/bgmfeed/internal/model"
)

// defaultSiteBaseURL はフィードのリンク先となるBangumiサイトのURL。
const defaultSiteBaseURL = "https://bgm.tv"

// defaultListSuffix は絞り込みなしの場合のタイトル接尾辞。
const defaultListSuffix = "的Bangumi收藏列表"

// UpstreamClient はアダプタが必要とする上流APIの操作。
// bangumi.Client が実装する。
type UpstreamClient interface {
	GetUser(ctx context.Context, userID string) (*model.UserProfile, error)
	ListCollections(ctx context.Context, query model.CollectionQuery) ([]model.CollectionRecord, error)
}

// AdapterConfig はAdapterの設定。
type AdapterConfig struct {
	SiteBaseURL string // 空の場合は https://bgm.tv
}

// Adapter はリクエストごとに上流APIを呼び出してフィードを組み立てる。
// 状態を持たないため、複数のgoroutineから同時に呼び出してよい。
type Adapter struct {
	client      UpstreamClient
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	siteBaseURL string
}

// NewAdapter はAdapterを生成する。
func NewAdapter(client UpstreamClient, metricsCollector metrics.MetricsCollector, logger *slog.Logger, cfg AdapterConfig) *Adapter {
	if metricsCollector == nil {
		metricsCollector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	siteBaseURL := strings.TrimRight(cfg.SiteBaseURL, "/")
	if siteBaseURL == "" {
		siteBaseURL = defaultSiteBaseURL
	}

	return &Adapter{
		client:      client,
		metrics:     metricsCollector,
		logger:      logger,
		siteBaseURL: siteBaseURL,
	}
}

// Handle はユーザーの収蔵一覧フィードを生成する。
//
// ユーザー情報、収蔵一覧の順に上流APIを呼び出す。どちらかが失敗した場合は
// *model.UpstreamError を返し、部分的な結果は返さない。
// ユーザー情報の取得に失敗した場合、収蔵一覧は取得しない。
func (a *Adapter) Handle(ctx context.Context, query model.CollectionQuery) (*model.FeedDocument, error) {
	statusLabel := model.ParseCollectionType(query.CollectionType).Label()
	categoryLabel := model.ParseSubjectType(query.SubjectType).Label()
	suffix := ListSuffix(statusLabel, categoryLabel)

	user, err := a.client.GetUser(ctx, query.UserID)
	if err != nil {
		return nil, err
	}

	records, err := a.client.ListCollections(ctx, query)
	if err != nil {
		return nil, err
	}

	// 条目名は上流の値をそのまま使う。XMLやJSONへのエスケープはレンダラーが行う。
	items := make([]model.FeedItem, 0, len(records))
	for _, r := range records {
		link := a.SubjectURL(r.SubjectID)
		items = append(items, model.FeedItem{
			Title:   r.DisplayName(),
			Link:    link,
			PubDate: r.UpdatedAt.UTC(),
			URLs:    link,
		})
	}

	title := user.Nickname + suffix
	doc := &model.FeedDocument{
		Title:       title,
		Link:        a.UserCollectionsURL(query.UserID),
		Description: title,
		Items:       items,
	}

	a.metrics.RecordFeedBuilt(len(items))
	a.logger.Info("collection feed built",
		slog.String("user_id", query.UserID),
		slog.String("subject_type", query.SubjectType),
		slog.String("collection_type", query.CollectionType),
		slog.Int("items_count", len(items)),
	)

	return doc, nil
}

// SubjectURL は条目ページのURLを返す。
func (a *Adapter) SubjectURL(subjectID int) string {
	return a.siteBaseURL + "/subject/" + strconv.Itoa(subjectID)
}

// UserCollectionsURL はユーザーの収蔵一覧ページのURLを返す。
func (a *Adapter) UserCollectionsURL(userID string) string {
	return a.siteBaseURL + "/user/" + url.PathEscape(userID) + "/collections"
}

// ListSuffix はフィードタイトルの接尾辞を返す。
// statusLabel は収蔵状態（想看など）、categoryLabel は条目種別（动画など）の表示名で、
// 空文字列は未指定を表す。
func ListSuffix(statusLabel, categoryLabel string) string {
	switch {
	case statusLabel != "" && categoryLabel != "":
		return statusLabel + "的" + categoryLabel + "列表"
	case statusLabel != "":
		return statusLabel + "的列表"
	case categoryLabel != "":
		return "收藏的" + categoryLabel + "列表"
	default:
		return defaultListSuffix
	}
}
