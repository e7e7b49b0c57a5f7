package model

import (
	"strconv"
	"time"
)

// SubjectType はBangumiの条目種別を表す。値は上流APIのコードと一致する。
// 0 は「指定なし」を意味する。
type SubjectType int

const (
	SubjectTypeBook  SubjectType = 1
	SubjectTypeAnime SubjectType = 2
	SubjectTypeMusic SubjectType = 3
	SubjectTypeGame  SubjectType = 4
	// SubjectTypeReal は三次元（実写など）。上流APIでは5は欠番。
	SubjectTypeReal SubjectType = 6
)

// ParseSubjectType はパスパラメータの文字列を SubjectType に変換する。
// 空文字列や未知のコードは 0（指定なし）を返す。"02" や "+2" のような
// 正規形でない表記もラベルを持たないコードとして扱う。
func ParseSubjectType(raw string) SubjectType {
	n, err := strconv.Atoi(raw)
	if err != nil || strconv.Itoa(n) != raw {
		return 0
	}
	st := SubjectType(n)
	if st.Label() == "" {
		return 0
	}
	return st
}

// Label はフィードタイトルに使う表示名を返す。未知の値は空文字列。
func (t SubjectType) Label() string {
	switch t {
	case SubjectTypeBook:
		return "书籍"
	case SubjectTypeAnime:
		return "动画"
	case SubjectTypeMusic:
		return "音乐"
	case SubjectTypeGame:
		return "游戏"
	case SubjectTypeReal:
		return "三次元"
	default:
		return ""
	}
}

// CollectionType はユーザーの収蔵状態を表す。0 は「指定なし」。
type CollectionType int

const (
	CollectionTypeWant     CollectionType = 1
	CollectionTypeDone     CollectionType = 2
	CollectionTypeWatching CollectionType = 3
	CollectionTypeOnHold   CollectionType = 4
	CollectionTypeDropped  CollectionType = 5
)

// ParseCollectionType はパスパラメータの文字列を CollectionType に変換する。
// 空文字列や未知のコードは 0（指定なし）を返す。
func ParseCollectionType(raw string) CollectionType {
	n, err := strconv.Atoi(raw)
	if err != nil || strconv.Itoa(n) != raw {
		return 0
	}
	ct := CollectionType(n)
	if ct.Label() == "" {
		return 0
	}
	return ct
}

// Label はフィードタイトルに使う表示名を返す。未知の値は空文字列。
func (t CollectionType) Label() string {
	switch t {
	case CollectionTypeWant:
		return "想看"
	case CollectionTypeDone:
		return "看过"
	case CollectionTypeWatching:
		return "在看"
	case CollectionTypeOnHold:
		return "搁置"
	case CollectionTypeDropped:
		return "抛弃"
	default:
		return ""
	}
}

// CollectionQuery は収蔵一覧フィードのリクエストパラメータ。
// SubjectType と CollectionType は上流APIへそのまま渡す生の文字列で、空文字列は絞り込みなしを表す。
type CollectionQuery struct {
	UserID         string
	SubjectType    string
	CollectionType string
}

// UserProfile は上流APIから取得したユーザー情報。
type UserProfile struct {
	Username string
	Nickname string
}

// CollectionRecord は上流APIの収蔵1件を表す。
type CollectionRecord struct {
	SubjectID int
	Name      string
	NameCN    string
	UpdatedAt time.Time
}

// DisplayName は中国語名があればそれを、なければ原題を返す。
func (r CollectionRecord) DisplayName() string {
	if r.NameCN != "" {
		return r.NameCN
	}
	return r.Name
}
