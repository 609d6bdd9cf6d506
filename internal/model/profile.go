// Package model はドメインモデルを定義する。
package model

import "time"

// 既知の利用カテゴリ。拡張機能が計測する時間の分類に使用する。
const (
	CategoryAcademic      = "academic"
	CategoryEntertainment = "entertainment"
)

// KnownCategories は新規プロフィール作成時に初期化するカテゴリ一覧。
var KnownCategories = []string{CategoryAcademic, CategoryEntertainment}

// Profile はユーザーごとの利用時間ドキュメントを表す。
// uidは認証済みアイデンティティのsubject idと一致する。
//
// TotalTimeとカテゴリ合計の一致は表示上の目安であり、
// ストア側で厳密には強制されない。
type Profile struct {
	UID        string
	TotalTime  int64            // 合計利用時間（分）
	Categories map[string]int64 // カテゴリ名 -> 利用時間（分）
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewProfile は初期値ゼロのプロフィールを生成する。
// 初回サインイン時の遅延作成に使用する。
func NewProfile(uid string) *Profile {
	categories := make(map[string]int64, len(KnownCategories))
	for _, c := range KnownCategories {
		categories[c] = 0
	}
	return &Profile{
		UID:        uid,
		TotalTime:  0,
		Categories: categories,
	}
}

// Category は指定カテゴリの利用時間（分）を返す。未知のカテゴリは0。
func (p *Profile) Category(name string) int64 {
	if p.Categories == nil {
		return 0
	}
	return p.Categories[name]
}
