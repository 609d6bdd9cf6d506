// Package token はFirebaseカスタム認証トークンの発行を提供する。
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tracko/tracko-web/internal/credentials"
)

// firebaseTokenAudience はカスタムトークンの検証者が期待するaudクレーム。
// Identity Toolkitのエンドポイント識別子で固定。
const firebaseTokenAudience = "https://identitytoolkit.googleapis.com/google.identity.identitytoolkit.v1.IdentityToolkit"

// ErrUIDRequired はuidが空の場合に返される。
var ErrUIDRequired = errors.New("uid is required")

// SigningError は署名処理の失敗を表す。
// 安定したエラーコードと人間可読メッセージを持ち、鍵素材は含まない。
type SigningError struct {
	Code    string
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *SigningError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *SigningError) Unwrap() error {
	return e.Err
}

// 署名エラーコード
const (
	SigningErrCodeInitFailed = "CREDENTIAL_INIT_FAILED"
	SigningErrCodeSignFailed = "TOKEN_SIGN_FAILED"
)

// customTokenClaims はFirebaseカスタムトークンのクレームレイアウト。
// iss/subはサービスアカウントのclient email、audは固定値、
// uidクレームがトークンのsubject uidを運ぶ。
type customTokenClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// Minter はカスタムトークンの発行器。
// プロセス起動時に1個だけ構築し、ハンドラーへ参照で注入する。
// 署名鍵のパースはsync.Onceで高々1回だけ行い、以降は同じハンドルを
// 再利用する（重複初期化の排除）。
type Minter struct {
	cred *credentials.ServiceCredential
	ttl  time.Duration

	initOnce sync.Once
	key      *rsa.PrivateKey
	initErr  error
}

// NewMinter はMinterを生成する。ttlが0以下の場合は1時間を使用する。
// この時点では鍵のパースは行わない。Ready()で事前検証できる。
func NewMinter(cred *credentials.ServiceCredential, ttl time.Duration) *Minter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Minter{cred: cred, ttl: ttl}
}

// init は署名鍵ハンドルを高々1回だけ構築する。
// 並行する初回リクエストに対してもレースせず、2回目以降は結果を再利用する。
func (m *Minter) init() error {
	m.initOnce.Do(func() {
		m.key, m.initErr = m.cred.ParsePrivateKey()
		if m.initErr != nil {
			slog.Error("signing credential initialization failed",
				slog.String("error", m.initErr.Error()),
				slog.Int("private_key_length", len(m.cred.PrivateKey)),
			)
			return
		}
		slog.Info("signing credential initialized",
			slog.String("project_id", m.cred.ProjectID),
			slog.Int("client_email_length", len(m.cred.ClientEmail)),
		)
	})
	return m.initErr
}

// Ready は署名鍵が利用可能かどうかを検証する。
// 起動時のfail-closedチェックと診断エンドポイントから使用する。冪等。
func (m *Minter) Ready() error {
	if err := m.init(); err != nil {
		return &SigningError{
			Code:    SigningErrCodeInitFailed,
			Message: "signing credential is not usable",
			Err:     err,
		}
	}
	return nil
}

// MintCustomToken は指定uidに対する短命のカスタム認証トークンを発行する。
// トークンの有効期間は発行側権威（Firebase）が強制するため、
// expはttl以内に収める。トークン値そのものはログに出力しない。
func (m *Minter) MintCustomToken(uid string) (string, error) {
	if uid == "" {
		return "", ErrUIDRequired
	}

	if err := m.init(); err != nil {
		return "", &SigningError{
			Code:    SigningErrCodeInitFailed,
			Message: "signing credential is not usable",
			Err:     err,
		}
	}

	now := time.Now()
	claims := customTokenClaims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cred.ClientEmail,
			Subject:   m.cred.ClientEmail,
			Audience:  jwt.ClaimStrings{firebaseTokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.key)
	if err != nil {
		return "", &SigningError{
			Code:    SigningErrCodeSignFailed,
			Message: "failed to sign custom token",
			Err:     err,
		}
	}

	slog.Info("custom token minted",
		slog.String("uid", uid),
		slog.Int("token_length", len(signed)),
	)

	return signed, nil
}
