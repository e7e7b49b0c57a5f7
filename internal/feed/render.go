package feed

import (
	"fmt"
	"strings"

	"github.com/gorilla/feeds"

	"github.com/hitoshi/bgmfeed/internal/model"
)

// Format はフィードの出力形式。
type Format string

const (
	FormatRSS  Format = "rss"
	FormatAtom Format = "atom"
	FormatJSON Format = "json"
)

// ContentType は出力形式に対応するContent-Typeを返す。
func (f Format) ContentType() string {
	switch f {
	case FormatAtom:
		return "application/atom+xml; charset=utf-8"
	case FormatJSON:
		return "application/feed+json; charset=utf-8"
	default:
		return "application/rss+xml; charset=utf-8"
	}
}

// ParseFormat はクエリパラメータの値を Format に変換する。
// 空文字列はRSSとして扱う。未対応の値は model.APIError を返す。
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatRSS:
		return FormatRSS, nil
	case FormatAtom:
		return FormatAtom, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", model.NewInvalidFormatError(raw)
	}
}

// Render は FeedDocument を指定形式で書き出す。
// 記事の順序は FeedDocument のまま保持し、urls はguid/idとして出力する。
func Render(doc *model.FeedDocument, format Format) ([]byte, error) {
	f := toGorillaFeed(doc)

	var (
		out string
		err error
	)
	switch format {
	case FormatRSS:
		out, err = f.ToRss()
	case FormatAtom:
		out, err = f.ToAtom()
	case FormatJSON:
		out, err = f.ToJSON()
	default:
		return nil, model.NewInvalidFormatError(string(format))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render %s feed: %w", format, err)
	}

	return []byte(out), nil
}

func toGorillaFeed(doc *model.FeedDocument) *feeds.Feed {
	f := &feeds.Feed{
		Title:       doc.Title,
		Link:        &feeds.Link{Href: doc.Link},
		Description: doc.Description,
		Id:          doc.Link,
		Updated:     doc.LatestPubDate(),
		Items:       make([]*feeds.Item, 0, len(doc.Items)),
	}

	for _, it := range doc.Items {
		f.Items = append(f.Items, &feeds.Item{
			Title:   it.Title,
			Link:    &feeds.Link{Href: it.Link},
			Id:      it.URLs,
			Created: it.PubDate,
			Updated: it.PubDate,
		})
	}

	return f
}
