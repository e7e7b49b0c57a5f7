package feed

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/bgmfeed/internal/model"
)

func sampleDocument() *model.FeedDocument {
	return &model.FeedDocument{
		Title:       "Sai想看的动画列表",
		Link:        "https://bgm.tv/user/sai/collections",
		Description: "Sai想看的动画列表",
		Items: []model.FeedItem{
			{
				Title:   "Cowboy Bebop",
				Link:    "https://bgm.tv/subject/42",
				PubDate: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
				URLs:    "https://bgm.tv/subject/42",
			},
			{
				Title:   "Tom & Jerry <特別編>",
				Link:    "https://bgm.tv/subject/7",
				PubDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
				URLs:    "https://bgm.tv/subject/7",
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"":      FormatRSS,
		"rss":   FormatRSS,
		"RSS":   FormatRSS,
		"atom":  FormatAtom,
		" json": FormatJSON,
	}
	for raw, want := range cases {
		got, err := ParseFormat(raw)
		if err != nil {
			t.Errorf("ParseFormat(%q) returned error: %v", raw, err)
			continue
		}
		if got != want {
			t.Errorf("ParseFormat(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestParseFormat_Unsupported(t *testing.T) {
	_, err := ParseFormat("opml")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeInvalidFormat {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidFormat)
	}
}

func TestFormat_ContentType(t *testing.T) {
	cases := map[Format]string{
		FormatRSS:  "application/rss+xml; charset=utf-8",
		FormatAtom: "application/atom+xml; charset=utf-8",
		FormatJSON: "application/feed+json; charset=utf-8",
	}
	for f, want := range cases {
		if got := f.ContentType(); got != want {
			t.Errorf("%s.ContentType() = %q, want %q", f, got, want)
		}
	}
}

func TestRender_RSS_ParsesWithGofeed(t *testing.T) {
	body, err := Render(sampleDocument(), FormatRSS)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		t.Fatalf("rendered RSS does not parse: %v\n%s", err, body)
	}

	if parsed.FeedType != "rss" {
		t.Errorf("FeedType = %q, want %q", parsed.FeedType, "rss")
	}
	if parsed.Title != "Sai想看的动画列表" {
		t.Errorf("Title = %q, want %q", parsed.Title, "Sai想看的动画列表")
	}
	if parsed.Link != "https://bgm.tv/user/sai/collections" {
		t.Errorf("Link = %q, want %q", parsed.Link, "https://bgm.tv/user/sai/collections")
	}
	if parsed.Description != "Sai想看的动画列表" {
		t.Errorf("Description = %q, want %q", parsed.Description, "Sai想看的动画列表")
	}
	if len(parsed.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(parsed.Items))
	}

	// 順序は入力のまま（日付順に並べ替えない）
	first := parsed.Items[0]
	if first.Title != "Cowboy Bebop" {
		t.Errorf("Items[0].Title = %q, want %q", first.Title, "Cowboy Bebop")
	}
	if first.Link != "https://bgm.tv/subject/42" {
		t.Errorf("Items[0].Link = %q, want %q", first.Link, "https://bgm.tv/subject/42")
	}
	if first.GUID != "https://bgm.tv/subject/42" {
		t.Errorf("Items[0].GUID = %q, want %q", first.GUID, "https://bgm.tv/subject/42")
	}
	if first.PublishedParsed == nil {
		t.Fatal("Items[0].PublishedParsed is nil")
	}
	if !first.PublishedParsed.Equal(time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)) {
		t.Errorf("Items[0].Published = %v, want 2024-05-01T12:30:00Z", first.PublishedParsed)
	}
	if _, offset := first.PublishedParsed.Zone(); offset != 0 {
		t.Errorf("Items[0].Published offset = %d, want 0", offset)
	}

	// XML特殊文字はエスケープされ、パース後に元の文字列に戻る
	if parsed.Items[1].Title != "Tom & Jerry <特別編>" {
		t.Errorf("Items[1].Title = %q, want %q", parsed.Items[1].Title, "Tom & Jerry <特別編>")
	}
}

func TestRender_Atom_ParsesWithGofeed(t *testing.T) {
	body, err := Render(sampleDocument(), FormatAtom)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		t.Fatalf("rendered Atom does not parse: %v\n%s", err, body)
	}

	if parsed.FeedType != "atom" {
		t.Errorf("FeedType = %q, want %q", parsed.FeedType, "atom")
	}
	if parsed.Title != "Sai想看的动画列表" {
		t.Errorf("Title = %q, want %q", parsed.Title, "Sai想看的动画列表")
	}
	if len(parsed.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(parsed.Items))
	}
	if parsed.Items[0].GUID != "https://bgm.tv/subject/42" {
		t.Errorf("Items[0].GUID = %q, want %q", parsed.Items[0].GUID, "https://bgm.tv/subject/42")
	}
	if parsed.Items[0].Link != "https://bgm.tv/subject/42" {
		t.Errorf("Items[0].Link = %q, want %q", parsed.Items[0].Link, "https://bgm.tv/subject/42")
	}
	if parsed.Items[0].UpdatedParsed == nil ||
		!parsed.Items[0].UpdatedParsed.Equal(time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)) {
		t.Errorf("Items[0].Updated = %v, want 2024-05-01T12:30:00Z", parsed.Items[0].UpdatedParsed)
	}
	// フィードの更新日時は最新記事の日時
	if parsed.UpdatedParsed == nil ||
		!parsed.UpdatedParsed.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Updated = %v, want 2024-06-01T00:00:00Z", parsed.UpdatedParsed)
	}
}

func TestRender_JSON_ParsesWithGofeed(t *testing.T) {
	body, err := Render(sampleDocument(), FormatJSON)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	if !json.Valid(body) {
		t.Fatalf("rendered JSON is not valid: %s", body)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		t.Fatalf("rendered JSON Feed does not parse: %v\n%s", err, body)
	}

	if parsed.FeedType != "json" {
		t.Errorf("FeedType = %q, want %q", parsed.FeedType, "json")
	}
	if parsed.Title != "Sai想看的动画列表" {
		t.Errorf("Title = %q, want %q", parsed.Title, "Sai想看的动画列表")
	}
	if len(parsed.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(parsed.Items))
	}
	if parsed.Items[1].Link != "https://bgm.tv/subject/7" {
		t.Errorf("Items[1].Link = %q, want %q", parsed.Items[1].Link, "https://bgm.tv/subject/7")
	}
}

func TestRender_EmptyDocument(t *testing.T) {
	doc := &model.FeedDocument{
		Title:       "Sai的Bangumi收藏列表",
		Link:        "https://bgm.tv/user/sai/collections",
		Description: "Sai的Bangumi收藏列表",
	}

	for _, f := range []Format{FormatRSS, FormatAtom, FormatJSON} {
		body, err := Render(doc, f)
		if err != nil {
			t.Errorf("Render(%s) returned error: %v", f, err)
			continue
		}
		parsed, err := gofeed.NewParser().ParseString(string(body))
		if err != nil {
			t.Errorf("Render(%s) output does not parse: %v", f, err)
			continue
		}
		if len(parsed.Items) != 0 {
			t.Errorf("Render(%s) items = %d, want 0", f, len(parsed.Items))
		}
	}
}

func TestRender_UnknownFormat(t *testing.T) {
	_, err := Render(sampleDocument(), Format("opml"))
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
	if !strings.Contains(err.Error(), "opml") {
		t.Errorf("error should mention the format, got %v", err)
	}
}
