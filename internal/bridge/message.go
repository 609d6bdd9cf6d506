// Package bridge はWebページとブラウザ拡張機能の間の認証ハンドシェイク
// プロトコルを提供する。
//
// 両コンテキストはメモリを共有せず、ページスコープのブロードキャスト
// チャネル上のメッセージだけで通信する。チャネル自体は誰でも送受信
// できるため、受信側のオリジン検査がこのプロトコル唯一のセキュリティ
// 境界となる。
package bridge

import (
	"encoding/json"
	"fmt"
)

// MessageType はブリッジメッセージの種別を表す。
type MessageType string

// ワイヤ上のメッセージ種別。値は拡張機能側と共有する固定文字列。
const (
	TypeAuthToken          MessageType = "AUTH_TOKEN"
	TypeAuthResponse       MessageType = "AUTH_RESPONSE"
	TypeValidateConnection MessageType = "VALIDATE_CONNECTION"
	TypeValidateResponse   MessageType = "VALIDATE_RESPONSE"
)

// Message はブリッジメッセージの閉じたタグ付きユニオン。
// ケースはワイヤ上の4種別と1対1に対応し、受信側は型switchで
// 網羅的に処理する。送信後のメッセージはイミュータブルとして扱う。
type Message interface {
	// Type はワイヤ上のメッセージ種別を返す。
	Type() MessageType
	// Correlation はハンドシェイク相関IDを返す。
	// 応答を特定の未完了リクエストに対応付けるために使用する。
	Correlation() string

	isMessage()
}

// AuthToken はページから拡張機能へトークンを中継するメッセージ。
type AuthToken struct {
	CorrelationID string
	Token         string
}

// AuthResponse は拡張機能からのトークン受理/拒否の応答。
type AuthResponse struct {
	CorrelationID string
	Success       bool
	Error         string
}

// ValidateConnection はページから拡張機能への接続検証要求。
type ValidateConnection struct {
	CorrelationID string
}

// ValidateResponse は拡張機能からの接続検証結果。
type ValidateResponse struct {
	CorrelationID string
	Success       bool
	Error         string
}

func (m AuthToken) Type() MessageType          { return TypeAuthToken }
func (m AuthResponse) Type() MessageType       { return TypeAuthResponse }
func (m ValidateConnection) Type() MessageType { return TypeValidateConnection }
func (m ValidateResponse) Type() MessageType   { return TypeValidateResponse }

func (m AuthToken) Correlation() string          { return m.CorrelationID }
func (m AuthResponse) Correlation() string       { return m.CorrelationID }
func (m ValidateConnection) Correlation() string { return m.CorrelationID }
func (m ValidateResponse) Correlation() string   { return m.CorrelationID }

func (AuthToken) isMessage()          {}
func (AuthResponse) isMessage()       {}
func (ValidateConnection) isMessage() {}
func (ValidateResponse) isMessage()   {}

// wireMessage はワイヤ上のJSON表現。全ケースのフィールドの和集合を持ち、
// typeフィールドで判別する。
type wireMessage struct {
	Type          MessageType `json:"type"`
	CorrelationID string      `json:"correlationId,omitempty"`
	Token         string      `json:"token,omitempty"`
	Success       *bool       `json:"success,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// Encode はメッセージをワイヤ形式のJSONに変換する。
func Encode(m Message) ([]byte, error) {
	w := wireMessage{
		Type:          m.Type(),
		CorrelationID: m.Correlation(),
	}

	switch msg := m.(type) {
	case AuthToken:
		w.Token = msg.Token
	case AuthResponse:
		w.Success = &msg.Success
		w.Error = msg.Error
	case ValidateConnection:
		// 追加フィールドなし
	case ValidateResponse:
		w.Success = &msg.Success
		w.Error = msg.Error
	default:
		return nil, fmt.Errorf("unknown message type: %T", m)
	}

	return json.Marshal(w)
}

// Decode はワイヤ形式のJSONをメッセージに変換する。
// 未知のtype値は黙って握り潰さずエラーとして返す。
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bridge message: %w", err)
	}

	success := false
	if w.Success != nil {
		success = *w.Success
	}

	switch w.Type {
	case TypeAuthToken:
		return AuthToken{CorrelationID: w.CorrelationID, Token: w.Token}, nil
	case TypeAuthResponse:
		return AuthResponse{CorrelationID: w.CorrelationID, Success: success, Error: w.Error}, nil
	case TypeValidateConnection:
		return ValidateConnection{CorrelationID: w.CorrelationID}, nil
	case TypeValidateResponse:
		return ValidateResponse{CorrelationID: w.CorrelationID, Success: success, Error: w.Error}, nil
	default:
		return nil, fmt.Errorf("unknown bridge message type: %q", w.Type)
	}
}
