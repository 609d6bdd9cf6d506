// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/tracko/tracko-web/internal/model"
)

// ProfileRepository はユーザープロフィールドキュメントの永続化インターフェース。
type ProfileRepository interface {
	// Ensure は指定uidのプロフィールが存在しない場合に初期値
	// {totalTime:0, categories:{academic:0, entertainment:0}} で作成する。
	// 既存ドキュメントは決して上書きしない。並行呼び出しでも作成は高々1回。
	Ensure(ctx context.Context, uid string) error

	// FindByUID は指定uidのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUID(ctx context.Context, uid string) (*model.Profile, error)

	// IncrementCategory は指定カテゴリの利用時間と合計時間を同じ加算量で
	// 原子的に加算する。読み取り-変更-書き込みのレースを避けるため、
	// 単一の加算的UPDATEで実行すること。
	IncrementCategory(ctx context.Context, uid, category string, minutes int64) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create はidentityを作成する。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUID は指定ユーザーの全セッションを削除する。
	DeleteByUID(ctx context.Context, uid string) error
}
