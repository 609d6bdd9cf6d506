package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tracko/tracko-web/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
// カテゴリはjsonbカラムに保持する。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// Ensure はプロフィールが存在しない場合のみ初期値で作成する。
// ON CONFLICT DO NOTHINGにより、並行するサインイン起点の初期化でも
// 作成は高々1回で、既存ドキュメントには一切触れない。
func (r *PostgresProfileRepo) Ensure(ctx context.Context, uid string) error {
	initial := model.NewProfile(uid)
	categories, err := json.Marshal(initial.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal initial categories: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO profiles (uid, total_time, categories, created_at, updated_at)
		 VALUES ($1, 0, $2, now(), now())
		 ON CONFLICT (uid) DO NOTHING`,
		uid, categories,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure profile: %w", err)
	}
	return nil
}

// FindByUID は指定uidのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUID(ctx context.Context, uid string) (*model.Profile, error) {
	profile := &model.Profile{}
	var categories []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT uid, total_time, categories, created_at, updated_at
		 FROM profiles WHERE uid = $1`,
		uid,
	).Scan(&profile.UID, &profile.TotalTime, &categories, &profile.CreatedAt, &profile.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by uid: %w", err)
	}

	if err := json.Unmarshal(categories, &profile.Categories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
	}

	return profile, nil
}

// IncrementCategory は指定カテゴリと合計時間を単一のUPDATEで加算する。
// 加算的・可換な更新のため、拡張機能側の並行書き込みと競合しても
// 値が失われることはない。
func (r *PostgresProfileRepo) IncrementCategory(ctx context.Context, uid, category string, minutes int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET total_time = total_time + $3,
		     categories = jsonb_set(
		         categories,
		         ARRAY[$2],
		         to_jsonb(COALESCE((categories->>$2)::bigint, 0) + $3)
		     ),
		     updated_at = now()
		 WHERE uid = $1`,
		uid, category, minutes,
	)
	if err != nil {
		return fmt.Errorf("failed to increment category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewProfileNotFoundError(uid)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
