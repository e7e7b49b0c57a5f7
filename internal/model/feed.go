// Package model はドメインモデルを定義する。
package model

import "time"

// FeedDocument はアダプタが生成する正規化済みフィード。
// JSONタグはフィードフレームワークへの返却形式に合わせている。
type FeedDocument struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Description string     `json:"description"`
	Items       []FeedItem `json:"item"`
}

// FeedItem はフィード内の1記事。URLs には Link と同じ値が入る。
type FeedItem struct {
	Title   string    `json:"title"`
	Link    string    `json:"link"`
	PubDate time.Time `json:"pubDate"`
	URLs    string    `json:"urls"`
}

// LatestPubDate は記事の中で最も新しい公開日時を返す。記事がなければゼロ値。
func (d *FeedDocument) LatestPubDate() time.Time {
	var latest time.Time
	for _, it := range d.Items {
		if it.PubDate.After(latest) {
			latest = it.PubDate
		}
	}
	return latest
}
