// Package credentials はトークン署名用サービスアカウント認証情報の
// 読み込みと検証を提供する。
//
// 秘密鍵の値そのものは決してログに出力しない。診断用途には
// 存在フラグと長さのみを公開する。
package credentials

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

const defaultProjectID = "tracko-ext"

// ServiceCredential はカスタムトークンの署名に使用するサービス識別情報。
// 起動時に1回読み込み、プロセス生存中はイミュータブルとして扱う。
type ServiceCredential struct {
	ProjectID   string
	ClientEmail string
	PrivateKey  string // PEM形式。転送時の `\n` エスケープは読み込み時に解決済み。
}

// Diagnostics は認証情報の存在フラグと長さのみを保持する。
// 環境プローブエンドポイントのレスポンスに使用する。値は含まない。
type Diagnostics struct {
	HasClientEmail    bool `json:"hasClientEmail"`
	HasPrivateKey     bool `json:"hasPrivateKey"`
	ClientEmailLength int  `json:"clientEmailLength"`
	PrivateKeyLength  int  `json:"privateKeyLength"`
}

// Load は環境変数からServiceCredentialを読み込む。
// FIREBASE_CLIENT_EMAILとFIREBASE_PRIVATE_KEYは必須で、
// どちらかが欠けている場合はエラーを返す（fail closed）。
// FIREBASE_PROJECT_IDは未設定の場合デフォルト値を使用する。
func Load() (*ServiceCredential, error) {
	clientEmail := os.Getenv("FIREBASE_CLIENT_EMAIL")
	privateKey := os.Getenv("FIREBASE_PRIVATE_KEY")

	var missing []string
	if clientEmail == "" {
		missing = append(missing, "FIREBASE_CLIENT_EMAIL")
	}
	if privateKey == "" {
		missing = append(missing, "FIREBASE_PRIVATE_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing service credentials: %v", missing)
	}

	projectID := os.Getenv("FIREBASE_PROJECT_ID")
	if projectID == "" {
		projectID = defaultProjectID
	}

	return &ServiceCredential{
		ProjectID:   projectID,
		ClientEmail: clientEmail,
		PrivateKey:  NormalizePrivateKey(privateKey),
	}, nil
}

// NormalizePrivateKey は環境変数経由でエスケープされた改行（リテラルの
// `\n`）を実際の改行に変換する。デプロイ環境のシークレット設定では
// PEMが1行文字列として渡されるため、この正規化が必要になる。
func NormalizePrivateKey(pemText string) string {
	return strings.ReplaceAll(pemText, `\n`, "\n")
}

// ParsePrivateKey はPEMテキストからRSA秘密鍵を解釈する。
// PKCS#8とPKCS#1の両形式を受け付ける。
func (c *ServiceCredential) ParsePrivateKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(c.PrivateKey))
	if block == nil {
		return nil, fmt.Errorf("private key is not valid PEM")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not an RSA key")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return rsaKey, nil
}

// EnvDiagnostics は現在の環境変数の状態から診断情報を収集する。
// 認証情報が未設定でも失敗しない。値は一切含まない。
func EnvDiagnostics() Diagnostics {
	clientEmail := os.Getenv("FIREBASE_CLIENT_EMAIL")
	privateKey := os.Getenv("FIREBASE_PRIVATE_KEY")
	return Diagnostics{
		HasClientEmail:    clientEmail != "",
		HasPrivateKey:     privateKey != "",
		ClientEmailLength: len(clientEmail),
		PrivateKeyLength:  len(privateKey),
	}
}
