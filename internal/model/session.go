package model

import "time"

// Identity は外部IdPとの紐付け情報を表す。
// uidはプロフィールドキュメントのキーと同一。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UID            string
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UID       string
	ExpiresAt time.Time
	CreatedAt time.Time
}
